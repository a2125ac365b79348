package report

import (
	"bytes"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const qrImage = "digest-qr"

// SavePDF renders rep into a PDF file.
func SavePDF(rep BatchReport, out string) error {
	pdf, err := render(rep)
	if err != nil {
		return err
	}
	return pdf.OutputFileAndClose(out)
}

// WritePDF renders rep into w.
func WritePDF(rep BatchReport, w io.Writer) error {
	pdf, err := render(rep)
	if err != nil {
		return err
	}
	return pdf.Output(w)
}

func render(rep BatchReport) (*gofpdf.Fpdf, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Metadata Conversion Report", false)
	pdf.SetAuthor("xmpgate", false)
	pdf.SetCreator("xmpgate", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Metadata Conversion Report")
	if err := addDigestQR(pdf, rep.Digest); err != nil {
		return nil, err
	}
	addSummarySection(pdf, rep)
	addStatesSection(pdf, rep.Summary.States)
	addFilesSection(pdf, rep.Files)

	if pdf.Err() {
		return nil, pdf.Error()
	}
	return pdf, nil
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

// addDigestQR places the digest QR code in the top right corner.
func addDigestQR(pdf *gofpdf.Fpdf, digest string) error {
	if digest == "" {
		return nil
	}
	png, err := DigestToQR(digest, 256)
	if err != nil {
		return err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(qrImage, opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions(qrImage, pageW-right-30, 15, 30, 30, false, opts, 0, "")
	return nil
}

func addSummarySection(pdf *gofpdf.Fpdf, rep BatchReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Generated", value: rep.Generated.Format(time.RFC3339)},
		{label: "Rule pack", value: emptyFallback(rep.RulePack, "-")},
		{label: "Files", value: strconv.Itoa(rep.Summary.Total)},
		{label: "Complete", value: strconv.Itoa(rep.Summary.Complete)},
		{label: "Ready", value: strconv.Itoa(rep.Summary.Ready)},
		{label: "Skipped", value: strconv.Itoa(rep.Summary.Skipped)},
		{label: "Failed", value: strconv.Itoa(rep.Summary.Failed)},
	}
	for _, item := range items {
		pdf.CellFormat(40, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	if rep.Digest != "" {
		pdf.SetFont("Courier", "", 8)
		pdf.CellFormat(40, 6, "Digest", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, rep.Digest, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addStatesSection(pdf *gofpdf.Fpdf, states map[string]int) {
	if len(states) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "States")
	pdf.Ln(9)

	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)
	widths := []float64{60, 25}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(widths[0], 7, "State", "1", 0, "L", true, 0, "")
	pdf.CellFormat(widths[1], 7, "Files", "1", 0, "L", true, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	for _, name := range names {
		renderTableRow(pdf, widths, []string{name, strconv.Itoa(states[name])}, 5)
	}
	pdf.Ln(4)
}

func addFilesSection(pdf *gofpdf.Fpdf, files []FileResult) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Files")
	pdf.Ln(9)

	if len(files) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No files processed.", "", "L", false)
		return
	}

	headers := []string{"File", "Kind", "State", "Message"}
	widths := []float64{80, 18, 32, 50}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, f := range files {
		values := []string{
			f.Path,
			emptyFallback(f.Kind, "-"),
			f.State.String(),
			emptyFallback(f.Message, f.State.Description()),
		}
		renderTableRow(pdf, widths, values, 5)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	if yStart+rowHeight > pageH-bottom {
		pdf.AddPage()
		xStart, yStart = pdf.GetX(), pdf.GetY()
	}
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
