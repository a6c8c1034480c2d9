// Package structured turns model text into JSON objects and checks them
// against embedded schemas.
package structured

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	openFenceRE  = regexp.MustCompile("(?i)^```[a-z0-9_+-]*\\s*")
	closeFenceRE = regexp.MustCompile("\\s*```$")
)

// StripFences removes a leading ``` fence (with optional language tag) and a
// trailing ``` fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = openFenceRE.ReplaceAllString(s, "")
	s = closeFenceRE.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Parse decodes text into a JSON object. It tolerates code fences and prose
// around the object by falling back to the span between the first '{' and the
// last '}'. The second result is false when no object could be decoded.
func Parse(text string) (map[string]any, bool) {
	body := StripFences(text)
	if body == "" {
		return nil, false
	}
	if obj, ok := decodeObject(body); ok {
		return obj, true
	}
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return decodeObject(body[start : end+1])
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// String returns obj[key] when it is a string, trimmed, and "" otherwise.
func String(obj map[string]any, key string) string {
	v, ok := obj[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
