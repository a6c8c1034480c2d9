package triage

import "fmt"

// Source tells how a structured record was obtained.
type Source string

const (
	SourceModel       Source = "model"
	SourceRepaired    Source = "repaired"
	SourceEmptyInput  Source = "empty_input"
	SourceUnparseable Source = "unparseable"
)

const (
	JustificationEmptyInput  = "Empty or unintelligible text"
	JustificationUnparseable = "Failed to interpret model response"
	JustificationDefault     = "Automatic classification"

	SummaryEmptyInput  = "Empty text; more context from the customer is needed."
	ReplyEmptyInput    = "Could you provide more details (e.g. order number and a description of what happened) so we can help accurately?"
	SummaryUnparseable = "Content could not be safely summarized."
	ReplyUnparseable   = "Thanks for your message. Could you share more details so we can better support you?"
	SummaryDefault     = "Summary unavailable."
	ReplyDefault       = "Thanks for your message. We will get back to you with more information soon."
)

type ClassificationRecord struct {
	Category      Category `json:"category"`
	Justification string   `json:"justification"`
	Source        Source   `json:"-"`
}

type SummaryRecord struct {
	Summary string `json:"summary"`
	Reply   string `json:"reply"`
	Source  Source `json:"-"`
}

// Message is one inbound customer message.
type Message struct {
	ID      string `json:"id"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// OutputRecord is the emitted result for one message.
type OutputRecord struct {
	ID       string          `json:"id"`
	Category Category        `json:"category"`
	Summary  string          `json:"summary"`
	Reply    string          `json:"reply"`
	Action   RoutingDecision `json:"action"`
}

// InputError marks a failure confined to a single input, such as a malformed
// line in a batch file. The pipeline logs it and moves on.
type InputError struct {
	ID  string
	Err error
}

func (e *InputError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("input: %v", e.Err)
	}
	return fmt.Sprintf("input %s: %v", e.ID, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}
