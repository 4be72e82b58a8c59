package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONObject extracts a JSON object from an LLM reply. Models
// wrap JSON in markdown fences or prose more often than not, so this
// strips ``` fences and falls back to the outermost {...} span before
// unmarshalling.
func ParseJSONObject(s string) (map[string]any, error) {
	cleaned := stripFences(s)

	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err == nil {
		return out, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &out); err == nil {
			return out, nil
		}
	}

	return nil, fmt.Errorf("no JSON object in response")
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}

	return strings.TrimSpace(s)
}
