package llm

import (
	"fmt"
	"strings"
)

// PromptCapability is the slice of a capability the idea prompts render.
type PromptCapability struct {
	Name          string
	Description   string
	Strength      float64
	SourceProject string
}

// PromptInterest is the slice of an interest the idea prompts render.
type PromptInterest struct {
	Name     string
	Type     string
	Strength float64
}

// IdeaSystemPrompt frames every idea request.
const IdeaSystemPrompt = `You suggest concrete personal projects for one person, drawing on what they can do and what they care about. Answer with a single JSON object and nothing else.`

const ideaResponseFormat = `Return ONLY a JSON object, no other text:
{
  "title": "short project name (max 8 words)",
  "description": "2-3 sentences describing what gets built",
  "reasoning": "1-2 sentences on why this combination fits this person"
}`

// IdeaPrompt asks for one project idea that combines the given capabilities,
// with interests as secondary context.
func IdeaPrompt(caps []PromptCapability, interests []PromptInterest, wildcard bool) string {
	var b strings.Builder
	for _, c := range caps {
		fmt.Fprintf(&b, "- %s (strength %.1f/10", c.Name, c.Strength)
		if c.SourceProject != "" {
			fmt.Fprintf(&b, ", from %s", c.SourceProject)
		}
		b.WriteString(")")
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		b.WriteString("\n")
	}

	twist := "Favor something practical the person could ship in a few weekends."
	if wildcard {
		twist = "These skills are rarely used together. Favor an unexpected, playful combination over an obvious one."
	}

	return fmt.Sprintf(`You are a project idea generator for a single person with a specific skill set.

CAPABILITIES TO COMBINE:
%s
CURRENT INTERESTS (secondary context, use if they fit):
%s

Propose ONE concrete project that genuinely needs every capability listed above.
%s
Do not propose generic to-do apps, chatbots or dashboards.

%s`, b.String(), renderInterests(interests), twist, ideaResponseFormat)
}

// CreativeIdeaPrompt asks for a non-technical project drawn from interests
// alone.
func CreativeIdeaPrompt(interests []PromptInterest) string {
	return fmt.Sprintf(`You are a creative project idea generator.

The person keeps coming back to these topics in their notes:
%s
Propose ONE non-technical creative project (writing, craft, cooking, music,
making, exploring) that connects at least two of these topics. It must not
require programming.

%s`, renderInterests(interests), ideaResponseFormat)
}

func renderInterests(interests []PromptInterest) string {
	if len(interests) == 0 {
		return "(none recorded)\n"
	}
	var b strings.Builder
	for _, in := range interests {
		fmt.Fprintf(&b, "- %s [%s] (weight %.1f)\n", in.Name, in.Type, in.Strength)
	}
	return b.String()
}
