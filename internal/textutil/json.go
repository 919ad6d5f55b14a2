package textutil

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// SanitizeJSON strips control characters and cuts the text down to the outermost [...] window. LLMs like to wrap the
// array they were asked for in prose or fences.
func SanitizeJSON(text string) string {
	text = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return text
}

// TextToJSON salvages a JSON array from an LLM reply and decodes it into v. The sanitized window is tried as is, then
// with single quotes rewritten to double quotes, then through jsonrepair.
func TextToJSON(text string, v any) error {
	window := SanitizeJSON(text)
	if err := json.Unmarshal([]byte(window), v); err == nil {
		return nil
	}

	quoted := strings.ReplaceAll(window, "'", "\"")
	err := json.Unmarshal([]byte(quoted), v)
	if err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(window)
	if repairErr != nil {
		return fmt.Errorf("failed to parse JSON from response: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("failed to parse repaired JSON from response: %w", err)
	}
	return nil
}
