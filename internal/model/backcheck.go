package model

// SearchFindings is the fixed result shape returned by the background
// search collaborator for one applicant.
type SearchFindings struct {
	PressMentions        []string `json:"press_mentions"`
	LegalAppearances     []string `json:"legal_appearances"`
	SocialMediaProfiles  []string `json:"social_media_profiles"`
	CompanyRegistrations []string `json:"company_registrations"`
	Others               string   `json:"others"`
	PublicComments       string   `json:"public_comments"`
	ShortSummary         string   `json:"short_summary"`
}

// RiskLevel is the tiered outcome of scoring SearchFindings.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
	RiskClear  RiskLevel = "clear"
)

// BackgroundCheck is the stored artifact of the background-check step.
type BackgroundCheck struct {
	Findings SearchFindings `json:"findings"`
	Risk     RiskLevel      `json:"risk"`
	Reason   string         `json:"reason,omitempty"`
}
