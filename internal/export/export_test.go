package export

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvforge/forge/internal/domain"
)

func TestTemplateIsValid(t *testing.T) {
	for _, tpl := range AllTemplates {
		assert.True(t, tpl.IsValid(), "template %s should be valid", tpl)
	}
	assert.False(t, Template("glossy").IsValid())
	assert.False(t, Template("").IsValid())
}

func TestTemplateIsPremium(t *testing.T) {
	assert.False(t, TemplateClassic.IsPremium())
	assert.False(t, TemplateModern.IsPremium())
	assert.True(t, TemplateExecutive.IsPremium())
	assert.True(t, TemplateBoutique.IsPremium())
}

func TestStyleForFallsBackToDefault(t *testing.T) {
	assert.Equal(t, StyleFor(DefaultTemplate), StyleFor(Template("glossy")))
	assert.NotEqual(t, StyleFor(TemplateClassic), StyleFor(TemplateModern))
}

func TestFormatDateRange(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  string
	}{
		{"both dates", "2021-03", "2023-11", "Mar 2021 - Nov 2023"},
		{"open ended", "2021-03", "", "Mar 2021 - Present"},
		{"no start", "", "2023-11", ""},
		{"unparseable passes through", "spring 2021", "", "spring 2021 - Present"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDateRange(tt.start, tt.end))
		})
	}
}

func TestHexToRGB(t *testing.T) {
	r, g, b := HexToRGB("#1E3A5F")
	assert.Equal(t, 30, r)
	assert.Equal(t, 58, g)
	assert.Equal(t, 95, b)

	r, g, b = HexToRGB("ffffff")
	assert.Equal(t, 255, r)
	assert.Equal(t, 255, g)
	assert.Equal(t, 255, b)

	r, g, b = HexToRGB("bogus")
	assert.Zero(t, r)
	assert.Zero(t, g)
	assert.Zero(t, b)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 10))
	assert.Equal(t, "long te...", TruncateText("long text that overflows", 10))
}

func TestRenderCVProducesPDF(t *testing.T) {
	content, err := json.Marshal(domain.CVContent{
		FullName: "Ada Lovelace",
		Headline: "Staff Software Engineer",
		Email:    "ada@example.com",
		Location: "London",
		Summary:  "Engineer with a decade of experience in analytical engines.",
		Experience: []domain.CVEntry{
			{
				Title:       "Staff Engineer",
				Institution: "Analytical Engines Ltd",
				StartDate:   "2019-06",
				Description: "Led the compute team.",
			},
		},
		Skills: []string{"Go", "PostgreSQL", "Mathematics"},
		Sections: []domain.CVSection{
			{Title: "publications", Body: "Notes on the Analytical Engine, 1843."},
		},
	})
	require.NoError(t, err)

	doc := &domain.Document{
		ID:       uuid.New(),
		Category: domain.CategoryCV,
		Title:    "Ada Lovelace CV",
		Content:  content,
	}

	var buf bytes.Buffer
	n, err := NewPDFRenderer(TemplateClassic).Render(context.Background(), doc, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")), "output should be a PDF")
}

func TestRenderLetterProducesPDF(t *testing.T) {
	content, err := json.Marshal(domain.LetterContent{
		FullName:  "Ada Lovelace",
		Email:     "ada@example.com",
		Company:   "Acme Corp",
		Recipient: "Grace Hopper",
		JobTitle:  "Principal Engineer",
		Body:      "First paragraph.\n\nSecond paragraph.",
	})
	require.NoError(t, err)

	doc := &domain.Document{
		ID:       uuid.New(),
		Category: domain.CategoryLetter,
		Title:    "Cover letter",
		Content:  content,
	}

	renderer := NewPDFRenderer(TemplateExecutive)
	renderer.now = func() time.Time { return time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC) }

	var buf bytes.Buffer
	n, err := renderer.Render(context.Background(), doc, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")), "output should be a PDF")
}

func TestRenderRejectsMalformedContent(t *testing.T) {
	doc := &domain.Document{
		ID:       uuid.New(),
		Category: domain.CategoryCV,
		Title:    "Broken",
		Content:  json.RawMessage(`{"full_name":`),
	}

	var buf bytes.Buffer
	_, err := NewPDFRenderer(TemplateClassic).Render(context.Background(), doc, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cv content")
}
