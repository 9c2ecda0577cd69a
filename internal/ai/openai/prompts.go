package openai

import (
	"fmt"
	"strings"

	"github.com/cvforge/forge/internal/ai"
)

// buildSystemPrompt creates the system prompt for rewriting CV or cover letter text
func buildSystemPrompt(params ai.ImproveParams) string {
	var b strings.Builder

	if params.Kind == "letter" {
		b.WriteString(`You are an expert career coach helping a candidate polish a cover letter. Rewrite the text the user sends you.

Guidelines:
- Keep every factual claim intact; never invent employers, dates, or achievements
- Tighten wording and remove filler phrases
- Prefer active voice and concrete, quantified statements
- Keep the candidate's voice; do not make it sound machine-written
- Keep roughly the same length as the original`)
	} else {
		b.WriteString(`You are an expert CV writer helping a candidate polish a section of their CV. Rewrite the text the user sends you.

Guidelines:
- Keep every factual claim intact; never invent employers, dates, or achievements
- Lead bullet points with strong action verbs
- Prefer concrete, quantified statements over vague ones
- Remove first-person pronouns where CV convention omits them
- Keep roughly the same length as the original`)
	}

	if params.Section != "" {
		fmt.Fprintf(&b, "\n\nThe text is the %q section of the document.", params.Section)
	}
	if params.Tone != "" {
		fmt.Fprintf(&b, "\n\nRequested tone: %s.", params.Tone)
	}
	if params.JobTitle != "" {
		fmt.Fprintf(&b, "\n\nTailor the wording toward a %q role.", params.JobTitle)
	}

	b.WriteString(`

Response format:
Return your answer as a JSON object with this exact structure:

{
  "improved_text": "The rewritten text",
  "suggestions": ["Optional short follow-up suggestions for the candidate"]
}

Return ONLY the JSON object, no additional text or explanation.`)

	return b.String()
}
