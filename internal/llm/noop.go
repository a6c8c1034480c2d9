package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

const (
	TaskClassify  = "classify"
	TaskSummarize = "summarize"
	TaskRepair    = "repair"
)

// Noop is an offline backend answering with keyword heuristics. It lets the
// pipeline run end to end without credentials.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Name() string  { return "noop" }
func (n *Noop) Model() string { return "noop" }

var orderRE = regexp.MustCompile(`#\d+`)

func (n *Noop) Generate(_ context.Context, req GenerateRequest) (Response, error) {
	var payload map[string]string
	switch req.Task {
	case TaskClassify:
		category, why := classifyKeywords(req.Input)
		payload = map[string]string{"category": category, "justification": why}
	case TaskSummarize:
		payload = map[string]string{"summary": summarizeText(req.Input), "reply": draftReply(req.Input)}
	default:
		return Response{Text: req.Input}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: string(data)}, nil
}

func classifyKeywords(text string) (string, string) {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "broken", "cracked", "damaged", "late", "delayed", "nobody", "no one", "refund", "unacceptable", "not working"):
		return "Complaint", "Reports a problem or dissatisfaction"
	case containsAny(lower, "could you add", "would be great", "suggest", "it would help", "would help", "feature", "please add"):
		return "Suggestion", "Proposes an improvement"
	case strings.Contains(lower, "?") || containsAny(lower, "how do", "how can", "what is", "when will"):
		return "Question", "Asks for information or clarification"
	case containsAny(lower, "thanks", "thank you", "great", "excellent", "congrat", "awesome"):
		return "Praise", "Expresses satisfaction"
	default:
		return "Question", "No clear intent detected"
	}
}

func summarizeText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if idx := strings.IndexAny(text, ".!?"); idx >= 0 {
		text = text[:idx+1]
	}
	return "Customer writes: " + truncate(text, 160)
}

func draftReply(text string) string {
	reply := "Thank you for reaching out."
	if order := orderRE.FindString(text); order != "" {
		reply += " We have asked for a review of order " + order + " and will follow up with an update."
	} else {
		reply += " We received your message and will follow up shortly."
	}
	return reply
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
