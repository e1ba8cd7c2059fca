package model

// Address is a structured mailing address. The tracker accepts either a
// structured address or a preformatted single line.
type Address struct {
	Line1 string `json:"line1,omitempty"`
	Line2 string `json:"line2,omitempty"`
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
	Zip   string `json:"zip,omitempty"`
}

// String renders the address as a single display line.
func (a Address) String() string {
	out := a.Line1
	if a.Line2 != "" {
		out += ", " + a.Line2
	}
	if a.City != "" {
		out += ", " + a.City
	}
	if a.State != "" {
		out += ", " + a.State
	}
	if a.Zip != "" {
		out += " " + a.Zip
	}
	return out
}

// IsZero reports whether no field is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// RentalInfo is the flat merge object accumulated across form steps:
// everything the application form and e-sign payloads need about the
// rental and the applicant. Fields are filled additively as steps
// complete; later writes win per field.
type RentalInfo struct {
	PropertyID      string  `json:"property_id,omitempty"`
	PropertyAddress string  `json:"property_address,omitempty"`
	LandlordName    string  `json:"landlord_name,omitempty"`
	LandlordEmail   string  `json:"landlord_email,omitempty"`
	MonthlyRent     float64 `json:"monthly_rent,omitempty"`
	MoveInDate      string  `json:"move_in_date,omitempty"`

	ApplicantName     string  `json:"applicant_name,omitempty"`
	ApplicantEmail    string  `json:"applicant_email,omitempty"`
	ApplicantPhone    string  `json:"applicant_phone,omitempty"`
	CurrentAddress    Address `json:"current_address,omitempty"`
	Employer          string  `json:"employer,omitempty"`
	AnnualIncome      float64 `json:"annual_income,omitempty"`
	RentalHistory     []Stay  `json:"rental_history,omitempty"`
	EmailFromDocument bool    `json:"email_from_document,omitempty"`
}

// Stay is one prior-residence entry in the applicant's rental history.
type Stay struct {
	Address       Address `json:"address"`
	LandlordName  string  `json:"landlord_name,omitempty"`
	LandlordPhone string  `json:"landlord_phone,omitempty"`
	FromYear      int     `json:"from_year,omitempty"`
	ToYear        int     `json:"to_year,omitempty"`
}

// Merge overlays non-zero fields of other onto r. An applicant email that
// came from a verified document outranks a typed one and is not replaced
// by later form input.
func (r *RentalInfo) Merge(other RentalInfo) {
	if other.PropertyID != "" {
		r.PropertyID = other.PropertyID
	}
	if other.PropertyAddress != "" {
		r.PropertyAddress = other.PropertyAddress
	}
	if other.LandlordName != "" {
		r.LandlordName = other.LandlordName
	}
	if other.LandlordEmail != "" {
		r.LandlordEmail = other.LandlordEmail
	}
	if other.MonthlyRent != 0 {
		r.MonthlyRent = other.MonthlyRent
	}
	if other.MoveInDate != "" {
		r.MoveInDate = other.MoveInDate
	}
	if other.ApplicantName != "" {
		r.ApplicantName = other.ApplicantName
	}
	if other.ApplicantEmail != "" {
		if !r.EmailFromDocument || other.EmailFromDocument {
			r.ApplicantEmail = other.ApplicantEmail
			r.EmailFromDocument = other.EmailFromDocument
		}
	}
	if other.ApplicantPhone != "" {
		r.ApplicantPhone = other.ApplicantPhone
	}
	if !other.CurrentAddress.IsZero() {
		r.CurrentAddress = other.CurrentAddress
	}
	if other.Employer != "" {
		r.Employer = other.Employer
	}
	if other.AnnualIncome != 0 {
		r.AnnualIncome = other.AnnualIncome
	}
	if len(other.RentalHistory) > 0 {
		r.RentalHistory = other.RentalHistory
	}
}
