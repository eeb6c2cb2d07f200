// Package reports renders issue reports as PDF letters and manages the
// stored artifacts.
package reports

import (
	"bytes"
	"fmt"
	"strings"

	"issuesmap/internal/models"

	"github.com/go-pdf/fpdf"
)

// Page layout, in millimetres and points
const (
	fontFamily = "Helvetica"
	fontSize   = 11
	lineHeight = 5
	margin     = 20
	imageWidth = 60
)

// Image is an issue image included after the letter.
type Image struct {
	Meta models.ImageMeta
	// Data holds the encoded thumbnail; Type is "JPG" or "PNG".
	Data []byte
	Type string
	URL  string
}

// Render lays out the report as a letter: addresses and ref on the right,
// greeting, body, sign off, then an optional page of issue images.
func Render(r *models.Report, images []Image) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetTitle("Issue report "+r.Ref, true)
	pdf.AddPage()
	pdf.SetFont(fontFamily, "", fontSize)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	right := func(text string) {
		pdf.CellFormat(0, lineHeight, tr(text), "", 1, "R", false, 0, "")
	}

	pdf.MultiCell(0, lineHeight, tr(r.ToAddress), "", "R", false)
	pdf.Ln(lineHeight)
	pdf.MultiCell(0, lineHeight, tr(r.FromAddress), "", "R", false)
	right(r.FromEmail)
	pdf.Ln(lineHeight)
	right("Ref: " + r.Ref)
	pdf.Ln(3 * lineHeight)

	pdf.CellFormat(0, lineHeight, tr(strings.TrimSpace(r.Greeting+" "+r.Addressee)), "", 1, "", false, 0, "")
	pdf.Ln(lineHeight)

	html := pdf.HTMLBasicNew()
	html.Write(lineHeight, tr(bodyHTML(r.Body)))
	pdf.Ln(2 * lineHeight)

	pdf.CellFormat(0, lineHeight, tr(r.SignOff), "", 1, "", false, 0, "")
	pdf.Ln(lineHeight)
	pdf.CellFormat(0, lineHeight, tr(r.AddedBy), "", 1, "", false, 0, "")
	pdf.CellFormat(0, lineHeight, tr(r.Date), "", 1, "", false, 0, "")

	if len(images) > 0 {
		addImages(pdf, images)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("reports: layout %s: %w", r.Ref, err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("reports: write %s: %w", r.Ref, err)
	}
	return buf.Bytes(), nil
}

// bodyHTML turns line breaks into <br> tags; the other allowed tags are
// interpreted by the HTML writer.
func bodyHTML(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return strings.ReplaceAll(body, "\n", "<br>")
}

func addImages(pdf *fpdf.Fpdf, images []Image) {
	pdf.AddPage()
	for _, img := range images {
		opts := fpdf.ImageOptions{ImageType: img.Type}
		pdf.RegisterImageOptionsReader(img.Meta.Filename, opts, bytes.NewReader(img.Data))
		if !pdf.Ok() {
			// an unreadable thumbnail drops only that image
			pdf.ClearError()
			continue
		}
		pdf.ImageOptions(img.Meta.Filename, -1, 0, imageWidth, 0, true, opts, 0, "")

		pdf.SetTextColor(0, 0, 255)
		pdf.SetFont(fontFamily, "U", fontSize)
		pdf.WriteLinkString(lineHeight, img.Meta.Filename, img.URL)
		pdf.SetFont(fontFamily, "", fontSize)
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(lineHeight)

		if img.Meta.Timestamp != "" {
			pdf.CellFormat(0, lineHeight, img.Meta.Timestamp, "", 1, "", false, 0, "")
		}
		if img.Meta.HasLocation() {
			gps := fmt.Sprintf("GPS: %g, %g", img.Meta.Lat, img.Meta.Lng)
			pdf.CellFormat(0, lineHeight, gps, "", 1, "", false, 0, "")
		}
		pdf.Ln(lineHeight)
	}
}
