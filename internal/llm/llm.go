package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Placeholder is replaced by the request input when a template is rendered.
const Placeholder = "{{text}}"

var (
	ErrInvalidRequest = errors.New("invalid completion request")
	ErrEmptyResponse  = errors.New("empty response from model")
	ErrUnsupported    = errors.New("unsupported backend configuration")
)

type Sampling struct {
	Temperature     float64
	TopP            float64
	MaxOutputTokens int
}

// Request is one logical completion: a prompt template, the text it wraps and
// the sampling parameters. Task labels the request in logs and metrics.
type Request struct {
	Task     string
	Template string
	Input    string
	Sampling Sampling
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Template) == "" {
		return fmt.Errorf("%w: empty template", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Input) == "" {
		return fmt.Errorf("%w: empty input", ErrInvalidRequest)
	}
	return nil
}

// Render substitutes the input into the template. Templates without a
// placeholder get the input appended after a blank line.
func (r Request) Render() string {
	if strings.Contains(r.Template, Placeholder) {
		return strings.ReplaceAll(r.Template, Placeholder, r.Input)
	}
	return strings.TrimRight(r.Template, "\n") + "\n\n" + r.Input
}

type GenerateRequest struct {
	Task     string
	Prompt   string
	Input    string
	Sampling Sampling
}

// Response is the backend-neutral shape of a completion. Text is the primary
// output when the backend provides one; Candidates carry the raw parts.
type Response struct {
	Text       string
	Candidates []Candidate
}

type Candidate struct {
	Content      Content
	FinishReason string
}

type Content struct {
	Parts []Part
}

type Part struct {
	Text string
}

type Backend interface {
	Generate(ctx context.Context, req GenerateRequest) (Response, error)
	Name() string
	Model() string
}

// StatusError is a non-2xx answer from an HTTP backend.
type StatusError struct {
	Backend string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Backend, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Backend, e.Code, e.Body)
}

// IsTransient reports whether retrying the same request may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrUnsupported) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 408, statusErr.Code == 429:
			return true
		case statusErr.Code >= 500:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Unknown upstream failures (connection resets, truncated bodies) are
	// treated as transient.
	return true
}
