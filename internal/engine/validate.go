package engine

import (
	"log"
	"strings"
	"unicode"
)

// Draft size limits. Longer fields are truncated, not rejected.
const (
	maxTitleChars       = 120
	maxDescriptionChars = 2000
	maxReasoningChars   = 1000
)

// validateDraft trims a decoded draft and checks that every field is present.
// Returns the reason for rejection, or "" if the draft is usable.
func validateDraft(d *IdeaDraft) string {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Reasoning = strings.TrimSpace(d.Reasoning)

	switch {
	case d.Title == "":
		return "missing title"
	case d.Description == "":
		return "missing description"
	case d.Reasoning == "":
		return "missing reasoning"
	}

	if len(d.Title) > maxTitleChars {
		log.Printf("validate: truncating title (%d → %d chars)", len(d.Title), maxTitleChars)
		d.Title = truncateClean(d.Title, maxTitleChars)
	}
	if len(d.Description) > maxDescriptionChars {
		log.Printf("validate: truncating description for %q (%d → %d chars)", d.Title, len(d.Description), maxDescriptionChars)
		d.Description = truncateClean(d.Description, maxDescriptionChars)
	}
	if len(d.Reasoning) > maxReasoningChars {
		log.Printf("validate: truncating reasoning for %q (%d → %d chars)", d.Title, len(d.Reasoning), maxReasoningChars)
		d.Reasoning = truncateClean(d.Reasoning, maxReasoningChars)
	}
	return ""
}

// truncateClean truncates a string to maxLen, cutting at the last word boundary
// to avoid mid-word breaks.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	// Back up to last space
	truncated := s[:maxLen]
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > maxLen/2 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}
