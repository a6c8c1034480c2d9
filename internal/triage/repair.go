package triage

import (
	"context"
	"log/slog"
	"strings"

	"mailtriage/internal/llm"
	"mailtriage/internal/observability"
	"mailtriage/internal/structured"
)

// Completer issues one logical completion request. *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Repairer asks the model once to rewrite malformed output as strict JSON.
type Repairer struct {
	completer Completer
	template  string
	logger    *slog.Logger
}

func NewRepairer(completer Completer, template string, logger *slog.Logger) *Repairer {
	return &Repairer{completer: completer, template: template, logger: logger}
}

// Repair sends raw back with the required shape and parses the answer. A
// failed repair call is reported as unparseable; there is never a second round.
func (r *Repairer) Repair(ctx context.Context, task, raw, shape string, sampling llm.Sampling) (map[string]any, bool) {
	req := llm.Request{
		Task:     llm.TaskRepair,
		Template: strings.ReplaceAll(r.template, shapePlaceholder, shape),
		Input:    raw,
		Sampling: sampling,
	}
	out, err := r.completer.Complete(ctx, req)
	if err != nil {
		observability.Repairs.WithLabelValues(task, "error").Inc()
		r.logger.Warn("repair completion failed", "task", task, "error", err)
		return nil, false
	}
	data, ok := structured.Parse(out)
	if !ok {
		observability.Repairs.WithLabelValues(task, "unparseable").Inc()
		r.logger.Warn("repair output is still not valid JSON", "task", task)
		return nil, false
	}
	observability.Repairs.WithLabelValues(task, "ok").Inc()
	return data, true
}
