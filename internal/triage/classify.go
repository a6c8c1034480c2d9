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

type Classifier struct {
	completer Completer
	repairer  *Repairer
	template  string
	sampling  llm.Sampling
	schema    *structured.Schema
	logger    *slog.Logger
}

func NewClassifier(completer Completer, repairer *Repairer, template string, sampling llm.Sampling, logger *slog.Logger) *Classifier {
	return &Classifier{
		completer: completer,
		repairer:  repairer,
		template:  template,
		sampling:  sampling,
		schema:    structured.MustLoadSchema(structured.ClassificationSchema),
		logger:    logger,
	}
}

// Classify returns a record whose category is always an allowed value. Only a
// failed primary completion is returned as an error.
func (c *Classifier) Classify(ctx context.Context, text string) (ClassificationRecord, error) {
	if strings.TrimSpace(text) == "" {
		observability.Fallbacks.WithLabelValues(llm.TaskClassify, string(SourceEmptyInput)).Inc()
		return ClassificationRecord{Category: DefaultCategory, Justification: JustificationEmptyInput, Source: SourceEmptyInput}, nil
	}

	raw, err := c.completer.Complete(ctx, llm.Request{
		Task:     llm.TaskClassify,
		Template: c.template,
		Input:    text,
		Sampling: c.sampling,
	})
	if err != nil {
		return ClassificationRecord{}, fmt.Errorf("classify: %w", err)
	}

	source := SourceModel
	data, ok := structured.Parse(raw)
	if !ok {
		source = SourceRepaired
		data, ok = c.repairer.Repair(ctx, llm.TaskClassify, raw, classificationShape, c.sampling)
	}
	if !ok {
		observability.Fallbacks.WithLabelValues(llm.TaskClassify, string(SourceUnparseable)).Inc()
		c.logger.Warn("classification output unparseable after repair, using fallback")
		return ClassificationRecord{Category: DefaultCategory, Justification: JustificationUnparseable, Source: SourceUnparseable}, nil
	}

	if violations := c.schema.Validate(data); violations != nil {
		observability.SchemaViolations.WithLabelValues(c.schema.Name()).Inc()
		c.logger.Debug("classification record does not match schema", "violations", violations)
	}

	justification := structured.String(data, "justification")
	if justification == "" {
		justification = JustificationDefault
	}
	return ClassificationRecord{
		Category:      ValidateCategory(c.logger, data["category"]),
		Justification: justification,
		Source:        source,
	}, nil
}
