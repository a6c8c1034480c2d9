package llm

import "strings"

// ExtractText returns the primary text of resp, falling back to the
// concatenated parts of the first candidate.
func ExtractText(resp Response) (string, error) {
	if text := strings.TrimSpace(resp.Text); text != "" {
		return text, nil
	}
	if len(resp.Candidates) > 0 {
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			b.WriteString(part.Text)
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text, nil
		}
	}
	return "", ErrEmptyResponse
}
