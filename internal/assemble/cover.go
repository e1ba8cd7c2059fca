// Package assemble turns the completed step-output sequence into the
// single merged application packet a landlord opens once.
package assemble

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CoverInfo feeds the generated cover page.
type CoverInfo struct {
	PropertyAddress string
	ApplicantName   string
	Date            time.Time
	// Sections is the packet's table of contents, in packet order.
	Sections []string
}

var titleCaser = cases.Title(language.AmericanEnglish)

// RenderCover produces the one-page cover PDF.
func RenderCover(info CoverInfo) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Rental Application Packet", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 14, "Rental Application", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.Ln(6)
	pdf.CellFormat(0, 8, "Property: "+info.PropertyAddress, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, "Applicant: "+titleCaser.String(info.ApplicantName), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, "Generated: "+info.Date.Format("January 2, 2006"), "", 1, "L", false, 0, "")

	if len(info.Sections) > 0 {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 10, "Contents", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		for i, section := range info.Sections {
			pdf.CellFormat(0, 8, fmt.Sprintf("%d. %s", i+1, titleCaser.String(section)), "", 1, "L", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, eris.Wrap(err, "assemble: render cover")
	}
	return buf.Bytes(), nil
}
