package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/cvforge/forge/internal/domain"
)

// =============================================================================
// PDF Renderer
// =============================================================================

// PDFRenderer renders CVs and cover letters as PDF documents.
type PDFRenderer struct {
	template Template
	style    Style

	// Page dimensions (A4 in mm)
	pageWidth  float64
	pageHeight float64
	margin     float64

	// Content area
	contentWidth float64

	// Clock, overridable in tests
	now func() time.Time
}

// NewPDFRenderer creates a PDF renderer for the given template.
// Unknown templates fall back to the default layout.
func NewPDFRenderer(template Template) *PDFRenderer {
	margin := 18.0
	pageWidth := 210.0 // A4 width in mm
	return &PDFRenderer{
		template:     template,
		style:        StyleFor(template),
		pageWidth:    pageWidth,
		pageHeight:   297.0, // A4 height in mm
		margin:       margin,
		contentWidth: pageWidth - (2 * margin),
		now:          time.Now,
	}
}

// Template returns the template this renderer was built for.
func (g *PDFRenderer) Template() Template {
	return g.template
}

// Render creates a PDF from the document and writes it to the provided writer.
func (g *PDFRenderer) Render(ctx context.Context, doc *domain.Document, w io.Writer) (int64, error) {
	pdf := fpdf.New("P", "mm", "A4", "")

	// Set document metadata
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("Forge", true)

	// Enable automatic page breaks with footer space
	pdf.SetAutoPageBreak(true, 20)

	switch doc.Category {
	case domain.CategoryCV:
		var content domain.CVContent
		if err := json.Unmarshal(doc.Content, &content); err != nil {
			return 0, fmt.Errorf("parse cv content: %w", err)
		}
		pdf.SetAuthor(content.FullName, true)
		g.renderCV(pdf, &content)
	case domain.CategoryLetter:
		var content domain.LetterContent
		if err := json.Unmarshal(doc.Content, &content); err != nil {
			return 0, fmt.Errorf("parse letter content: %w", err)
		}
		pdf.SetAuthor(content.FullName, true)
		g.renderLetter(pdf, &content)
	default:
		return 0, fmt.Errorf("unknown document category: %s", doc.Category)
	}

	// Check for errors during generation
	if err := pdf.Error(); err != nil {
		return 0, fmt.Errorf("pdf generation error: %w", err)
	}

	// Write to buffer to count bytes
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("pdf output error: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// =============================================================================
// CV Layout
// =============================================================================

func (g *PDFRenderer) renderCV(pdf *fpdf.Fpdf, content *domain.CVContent) {
	pdf.AddPage()

	g.addCVHeader(pdf, content)

	if content.Summary != "" {
		g.addSectionHeader(pdf, "Summary")
		g.addBodyText(pdf, content.Summary)
		pdf.Ln(4)
	}

	if len(content.Experience) > 0 {
		g.addSectionHeader(pdf, "Experience")
		for i, entry := range content.Experience {
			g.addEntry(pdf, entry)
			if i < len(content.Experience)-1 {
				pdf.Ln(3)
			}
		}
		pdf.Ln(4)
	}

	if len(content.Education) > 0 {
		g.addSectionHeader(pdf, "Education")
		for i, entry := range content.Education {
			g.addEntry(pdf, entry)
			if i < len(content.Education)-1 {
				pdf.Ln(3)
			}
		}
		pdf.Ln(4)
	}

	if len(content.Skills) > 0 {
		g.addSectionHeader(pdf, "Skills")
		g.addBodyText(pdf, strings.Join(content.Skills, "  ·  "))
		pdf.Ln(4)
	}

	for _, section := range content.Sections {
		if section.Body == "" {
			continue
		}
		g.addSectionHeader(pdf, HeadingCase(section.Title))
		g.addBodyText(pdf, section.Body)
		pdf.Ln(4)
	}
}

func (g *PDFRenderer) addCVHeader(pdf *fpdf.Fpdf, content *domain.CVContent) {
	// Name in the accent color
	r, gr, b := HexToRGB(g.style.Accent)
	pdf.SetTextColor(r, gr, b)
	pdf.SetFont(g.style.HeadFont, "B", 24)
	pdf.Cell(0, 12, content.FullName)
	pdf.Ln(12)

	if content.Headline != "" {
		r, gr, b = HexToRGB(g.style.TextDark)
		pdf.SetTextColor(r, gr, b)
		pdf.SetFont(g.style.BodyFont, "", 12)
		pdf.Cell(0, 7, content.Headline)
		pdf.Ln(8)
	}

	// Contact line
	contact := joinNonEmpty(" · ", content.Email, content.Phone, content.Location)
	if contact != "" {
		r, gr, b = HexToRGB(g.style.TextMuted)
		pdf.SetTextColor(r, gr, b)
		pdf.SetFont(g.style.BodyFont, "", 9)
		pdf.Cell(0, 6, contact)
		pdf.Ln(6)
	}

	// External links
	for _, link := range content.Links {
		label := link.Label
		if label == "" {
			label = link.URL
		}
		r, gr, b = HexToRGB(g.style.TextMuted)
		pdf.SetTextColor(r, gr, b)
		pdf.SetFont(g.style.BodyFont, "", 9)
		pdf.CellFormat(0, 5, label+": "+link.URL, "", 1, "L", false, 0, link.URL)
	}

	// Rule under the header
	pdf.Ln(3)
	r, gr, b = HexToRGB(g.style.Accent)
	pdf.SetDrawColor(r, gr, b)
	pdf.SetLineWidth(0.6)
	pdf.Line(g.margin, pdf.GetY(), g.pageWidth-g.margin, pdf.GetY())
	pdf.Ln(6)
}

func (g *PDFRenderer) addEntry(pdf *fpdf.Fpdf, entry domain.CVEntry) {
	// Keep the entry heading with at least a line of its body
	if pdf.GetY() > 255 {
		pdf.AddPage()
	}

	r, gr, b := HexToRGB(g.style.TextDark)
	pdf.SetTextColor(r, gr, b)
	pdf.SetFont(g.style.BodyFont, "B", 11)
	pdf.Cell(0, 6, entry.Title)
	pdf.Ln(6)

	meta := joinNonEmpty("  ·  ", entry.Institution, FormatDateRange(entry.StartDate, entry.EndDate))
	if meta != "" {
		r, gr, b = HexToRGB(g.style.TextMuted)
		pdf.SetTextColor(r, gr, b)
		pdf.SetFont(g.style.BodyFont, "I", 9)
		pdf.Cell(0, 5, meta)
		pdf.Ln(6)
	}

	if entry.Description != "" {
		g.addBodyText(pdf, entry.Description)
	}
}

// =============================================================================
// Letter Layout
// =============================================================================

func (g *PDFRenderer) renderLetter(pdf *fpdf.Fpdf, content *domain.LetterContent) {
	pdf.AddPage()

	// Sender block
	r, gr, b := HexToRGB(g.style.Accent)
	pdf.SetTextColor(r, gr, b)
	pdf.SetFont(g.style.HeadFont, "B", 16)
	pdf.Cell(0, 9, content.FullName)
	pdf.Ln(9)

	contact := joinNonEmpty(" · ", content.Email, content.Phone)
	if contact != "" {
		r, gr, b = HexToRGB(g.style.TextMuted)
		pdf.SetTextColor(r, gr, b)
		pdf.SetFont(g.style.BodyFont, "", 9)
		pdf.Cell(0, 5, contact)
		pdf.Ln(5)
	}

	pdf.Ln(3)
	r, gr, b = HexToRGB(g.style.Accent)
	pdf.SetDrawColor(r, gr, b)
	pdf.SetLineWidth(0.6)
	pdf.Line(g.margin, pdf.GetY(), g.pageWidth-g.margin, pdf.GetY())
	pdf.Ln(10)

	// Date
	r, gr, b = HexToRGB(g.style.TextDark)
	pdf.SetTextColor(r, gr, b)
	pdf.SetFont(g.style.BodyFont, "", 10)
	pdf.Cell(0, 6, FormatDate(g.now()))
	pdf.Ln(10)

	// Recipient block
	if content.Recipient != "" {
		pdf.Cell(0, 6, content.Recipient)
		pdf.Ln(6)
	}
	if content.Company != "" {
		pdf.Cell(0, 6, content.Company)
		pdf.Ln(6)
	}
	pdf.Ln(4)

	// Subject line
	if content.JobTitle != "" {
		pdf.SetFont(g.style.BodyFont, "B", 10)
		pdf.Cell(0, 6, "Re: "+content.JobTitle)
		pdf.Ln(10)
	}

	// Salutation
	pdf.SetFont(g.style.BodyFont, "", 10)
	salutation := "Dear Hiring Manager,"
	if content.Recipient != "" {
		salutation = "Dear " + content.Recipient + ","
	}
	pdf.Cell(0, 6, salutation)
	pdf.Ln(10)

	// Body paragraphs
	for _, para := range strings.Split(content.Body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		pdf.MultiCell(g.contentWidth, 5.5, para, "", "L", false)
		pdf.Ln(4)
	}

	// Sign-off
	pdf.Ln(4)
	pdf.Cell(0, 6, "Sincerely,")
	pdf.Ln(8)
	pdf.SetFont(g.style.BodyFont, "B", 10)
	pdf.Cell(0, 6, content.FullName)
}

// =============================================================================
// Helper Methods
// =============================================================================

func (g *PDFRenderer) addSectionHeader(pdf *fpdf.Fpdf, title string) {
	if pdf.GetY() > 260 {
		pdf.AddPage()
	}

	r, gr, b := HexToRGB(g.style.Accent)
	pdf.SetTextColor(r, gr, b)
	pdf.SetFont(g.style.HeadFont, "B", 13)
	pdf.Cell(0, 8, strings.ToUpper(title))
	pdf.Ln(8)

	pdf.SetDrawColor(r, gr, b)
	pdf.SetLineWidth(0.3)
	pdf.Line(g.margin, pdf.GetY(), g.pageWidth-g.margin, pdf.GetY())
	pdf.Ln(4)

	r, gr, b = HexToRGB(g.style.TextDark)
	pdf.SetTextColor(r, gr, b)
}

func (g *PDFRenderer) addBodyText(pdf *fpdf.Fpdf, text string) {
	r, gr, b := HexToRGB(g.style.TextDark)
	pdf.SetTextColor(r, gr, b)
	pdf.SetFont(g.style.BodyFont, "", 10)
	pdf.MultiCell(g.contentWidth, 5.5, text, "", "L", false)
}

// joinNonEmpty joins the non-empty parts with the separator.
func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
