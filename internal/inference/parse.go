package inference

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON strips markdown fences from a model response, returning the
// best candidate for a JSON payload. Providers routinely wrap structured
// output in ```json blocks despite instructions not to.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return text
}

// Decode extracts the JSON payload from a model response and unmarshals it
// into v. A response with no parseable JSON is a malformed-response failure.
func Decode(text string, v any) error {
	payload := ExtractJSON(text)
	if payload == "" {
		return fmt.Errorf("inference: empty response")
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("inference: malformed response: %w", err)
	}
	return nil
}
