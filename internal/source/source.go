// Package source provides the message inputs the pipeline can drain.
package source

import (
	"context"
	"io"

	"mailtriage/internal/emailaddr"
	"mailtriage/internal/triage"
)

// Static replays a fixed list of messages.
type Static struct {
	messages []triage.Message
	next     int
}

func NewStatic(messages []triage.Message) *Static {
	return &Static{messages: messages}
}

func (s *Static) Next(ctx context.Context) (triage.Message, error) {
	if err := ctx.Err(); err != nil {
		return triage.Message{}, err
	}
	if s.next >= len(s.messages) {
		return triage.Message{}, io.EOF
	}
	msg := s.messages[s.next]
	s.next++
	return msg, nil
}

// normalize canonicalizes the sender address of externally supplied messages.
func normalize(msg triage.Message) triage.Message {
	if msg.From != "" {
		msg.From = emailaddr.Normalize(msg.From)
	}
	return msg
}

// Samples is the demo batch: one message per category plus empty, noisy and
// mixed-intent inputs.
func Samples() []triage.Message {
	return []triage.Message{
		{ID: "eml-001", From: "customer1@example.com", Subject: "Broken product and no answer", Body: "The product arrived with a cracked screen and nobody answers my ticket."},
		{ID: "eml-002", From: "customer2@example.com", Subject: "Color filter", Body: "Could you add a color filter to the search?"},
		{ID: "eml-003", From: "customer3@example.com", Subject: "Exchange within 30 days", Body: "How do I exchange a defective item within 30 days?"},
		{ID: "eml-004", From: "customer4@example.com", Subject: "Thank you", Body: "Excellent service, delivered on time. Thanks!"},
		{ID: "eml-005", From: "customer5@example.com", Subject: "Late order", Body: "My order #98765 is late and I travel tomorrow, what can I do?"},
		{ID: "eml-006", From: "customer6@example.com", Subject: "No content", Body: ""},
		{ID: "eml-007", From: "customer7@example.com", Subject: "Noisy text", Body: "asdf 123!!! ?? help, maybe, not sure, order 00000?"},
		{ID: "eml-008", From: "customer8@example.com", Subject: "Praise + suggestion", Body: "Great team! Maybe a dark mode in the app would help at night."},
	}
}
