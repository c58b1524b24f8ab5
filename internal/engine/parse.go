package engine

import (
	"encoding/json"
	"strings"
)

// IdeaDraft is the raw idea returned by the generator.
type IdeaDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Reasoning   string `json:"reasoning"`
}

// ParseDraft extracts the first JSON object with a title, description and
// reasoning from free-form generator output. The output may wrap the object
// in code fences or prose. Failures are returned as *ParseFailure.
func ParseDraft(raw string) (IdeaDraft, error) {
	content := stripFences(strings.TrimSpace(raw))

	reason := "no JSON object found"
	for i := 0; i < len(content); i++ {
		if content[i] != '{' {
			continue
		}

		var d IdeaDraft
		dec := json.NewDecoder(strings.NewReader(content[i:]))
		if err := dec.Decode(&d); err != nil {
			reason = "invalid JSON object: " + err.Error()
			continue
		}
		if r := validateDraft(&d); r != "" {
			reason = r
			continue
		}
		return d, nil
	}

	return IdeaDraft{}, &ParseFailure{Raw: raw, Reason: reason}
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	// Remove first and last lines (```json and ```)
	if len(lines) > 2 {
		content = strings.Join(lines[1:len(lines)-1], "\n")
	}
	return strings.TrimSpace(content)
}
