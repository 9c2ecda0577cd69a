// Package export provides PDF rendering of CVs and cover letters.
//
// This package defines a Renderer interface implemented by PDFRenderer, along
// with the template catalog and common formatting helpers shared by every
// template.
package export

import (
	"context"
	"io"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cvforge/forge/internal/domain"
)

// =============================================================================
// Renderer Interface
// =============================================================================

// Renderer defines the interface for document renderers.
type Renderer interface {
	// Render creates a PDF from the document and writes it to the provided
	// writer. Returns the number of bytes written and any error.
	Render(ctx context.Context, doc *domain.Document, w io.Writer) (int64, error)
}

// =============================================================================
// Template Catalog
// =============================================================================

// Template identifies an export layout and color scheme.
type Template string

const (
	TemplateClassic   Template = "classic"
	TemplateModern    Template = "modern"
	TemplateExecutive Template = "executive"
	TemplateBoutique  Template = "boutique"
)

// DefaultTemplate is used when the caller does not name one.
const DefaultTemplate = TemplateClassic

// AllTemplates lists every available template.
var AllTemplates = []Template{TemplateClassic, TemplateModern, TemplateExecutive, TemplateBoutique}

// IsValid returns true if the template is part of the catalog.
func (t Template) IsValid() bool {
	switch t {
	case TemplateClassic, TemplateModern, TemplateExecutive, TemplateBoutique:
		return true
	default:
		return false
	}
}

// IsPremium returns true for templates gated behind the premium_templates
// plan feature.
func (t Template) IsPremium() bool {
	return t == TemplateExecutive || t == TemplateBoutique
}

// =============================================================================
// Template Styles
// =============================================================================

// Style defines the visual parameters of a template.
type Style struct {
	Accent    string // Headings and rules
	TextDark  string // Primary text
	TextMuted string // Dates, contact details
	BodyFont  string // fpdf core font name for body text
	HeadFont  string // fpdf core font name for headings
}

// styles maps each template to its palette and fonts.
var styles = map[Template]Style{
	TemplateClassic: {
		Accent:    "#1E3A5F",
		TextDark:  "#1F2937",
		TextMuted: "#6B7280",
		BodyFont:  "Helvetica",
		HeadFont:  "Helvetica",
	},
	TemplateModern: {
		Accent:    "#0D9488",
		TextDark:  "#111827",
		TextMuted: "#6B7280",
		BodyFont:  "Helvetica",
		HeadFont:  "Helvetica",
	},
	TemplateExecutive: {
		Accent:    "#374151",
		TextDark:  "#111827",
		TextMuted: "#6B7280",
		BodyFont:  "Times",
		HeadFont:  "Times",
	},
	TemplateBoutique: {
		Accent:    "#9D174D",
		TextDark:  "#1F2937",
		TextMuted: "#6B7280",
		BodyFont:  "Helvetica",
		HeadFont:  "Times",
	},
}

// StyleFor returns the style for a template, falling back to the default
// template's style for unknown values.
func StyleFor(t Template) Style {
	if s, ok := styles[t]; ok {
		return s
	}
	return styles[DefaultTemplate]
}

// =============================================================================
// Color Conversion Helpers
// =============================================================================

// HexToRGB converts a hex color string to RGB values.
// Input format: "#RRGGBB" or "RRGGBB"
func HexToRGB(hex string) (r, g, b int) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}

	r = hexToDec(hex[0:2])
	g = hexToDec(hex[2:4])
	b = hexToDec(hex[4:6])
	return
}

// hexToDec converts a 2-character hex string to decimal.
func hexToDec(hex string) int {
	val := 0
	for _, c := range hex {
		val *= 16
		switch {
		case c >= '0' && c <= '9':
			val += int(c - '0')
		case c >= 'a' && c <= 'f':
			val += int(c - 'a' + 10)
		case c >= 'A' && c <= 'F':
			val += int(c - 'A' + 10)
		}
	}
	return val
}

// =============================================================================
// Text Formatting Helpers
// =============================================================================

var headingCaser = cases.Title(language.English)

// HeadingCase normalizes a user-supplied section title for display.
func HeadingCase(title string) string {
	return headingCaser.String(title)
}

// TruncateText truncates text to a maximum length, adding ellipsis if needed.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return text[:maxLen]
	}
	return text[:maxLen-3] + "..."
}

// FormatMonth renders a "2021-03" style editor date as "Mar 2021".
// Unparseable values pass through unchanged.
func FormatMonth(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return s
	}
	return t.Format("Jan 2006")
}

// FormatDateRange renders a start and end month as a display range.
// An empty end date reads as "Present".
func FormatDateRange(start, end string) string {
	from := FormatMonth(start)
	if from == "" {
		return ""
	}
	to := FormatMonth(end)
	if to == "" {
		to = "Present"
	}
	return from + " - " + to
}

// FormatDate formats a date for display in letters.
func FormatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}
