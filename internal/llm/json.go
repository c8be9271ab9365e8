package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFence removes a surrounding markdown code fence, if present, so
// model output like "```json\n{...}\n```" decodes cleanly.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag on the opening fence line.
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// DecodeObject parses model output into the destination, tolerating code
// fences and leading prose before the first brace. It rejects anything that
// is not a single JSON object.
func DecodeObject(raw string, dest any) error {
	s := StripCodeFence(raw)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in model output")
	}
	s = s[start : end+1]

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("decoding model output: %w", err)
	}
	return nil
}
