package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mailtriage/internal/llm"
	"mailtriage/internal/observability"
	"mailtriage/internal/structured"
)

type Summarizer struct {
	completer Completer
	repairer  *Repairer
	template  string
	sampling  llm.Sampling
	schema    *structured.Schema
	logger    *slog.Logger
}

func NewSummarizer(completer Completer, repairer *Repairer, template string, sampling llm.Sampling, logger *slog.Logger) *Summarizer {
	return &Summarizer{
		completer: completer,
		repairer:  repairer,
		template:  template,
		sampling:  sampling,
		schema:    structured.MustLoadSchema(structured.SummarySchema),
		logger:    logger,
	}
}

// Summarize returns a record with a non-empty summary and reply.
func (s *Summarizer) Summarize(ctx context.Context, text string) (SummaryRecord, error) {
	if strings.TrimSpace(text) == "" {
		observability.Fallbacks.WithLabelValues(llm.TaskSummarize, string(SourceEmptyInput)).Inc()
		return SummaryRecord{Summary: SummaryEmptyInput, Reply: ReplyEmptyInput, Source: SourceEmptyInput}, nil
	}

	raw, err := s.completer.Complete(ctx, llm.Request{
		Task:     llm.TaskSummarize,
		Template: s.template,
		Input:    text,
		Sampling: s.sampling,
	})
	if err != nil {
		return SummaryRecord{}, fmt.Errorf("summarize: %w", err)
	}

	source := SourceModel
	data, ok := structured.Parse(raw)
	if !ok {
		source = SourceRepaired
		data, ok = s.repairer.Repair(ctx, llm.TaskSummarize, raw, summaryShape, s.sampling)
	}
	if !ok {
		observability.Fallbacks.WithLabelValues(llm.TaskSummarize, string(SourceUnparseable)).Inc()
		s.logger.Warn("summary output unparseable after repair, using fallback")
		return SummaryRecord{Summary: SummaryUnparseable, Reply: ReplyUnparseable, Source: SourceUnparseable}, nil
	}

	if violations := s.schema.Validate(data); violations != nil {
		observability.SchemaViolations.WithLabelValues(s.schema.Name()).Inc()
		s.logger.Debug("summary record does not match schema", "violations", violations)
	}

	rec := SummaryRecord{
		Summary: structured.String(data, "summary"),
		Reply:   structured.String(data, "reply"),
		Source:  source,
	}
	if rec.Summary == "" {
		rec.Summary = SummaryDefault
	}
	if rec.Reply == "" {
		rec.Reply = ReplyDefault
	}
	return rec, nil
}
