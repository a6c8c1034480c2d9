package triage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mailtriage/internal/llm"
	"mailtriage/internal/observability"
	"mailtriage/internal/policy"
	"mailtriage/internal/structured"
)

// MessageSource yields messages until it returns io.EOF. An *InputError
// skips one input; any other error stops the run.
type MessageSource interface {
	Next(ctx context.Context) (Message, error)
}

type RecordSink interface {
	Emit(ctx context.Context, rec OutputRecord) error
}

type Options struct {
	Prompts       Prompts
	Classify      llm.Sampling
	Summarize     llm.Sampling
	Policy        *policy.Policy
	ParallelCalls bool
	Logger        *slog.Logger
}

type Pipeline struct {
	classifier *Classifier
	summarizer *Summarizer
	policy     *policy.Policy
	output     *structured.Schema
	parallel   bool
	logger     *slog.Logger
}

type Stats struct {
	Processed int
	Failed    int
}

func NewPipeline(completer Completer, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompts := opts.Prompts
	if prompts == (Prompts{}) {
		prompts = DefaultPrompts()
	}
	repairer := NewRepairer(completer, prompts.Repair, logger)
	return &Pipeline{
		classifier: NewClassifier(completer, repairer, prompts.Classify, opts.Classify, logger),
		summarizer: NewSummarizer(completer, repairer, prompts.Summarize, opts.Summarize, logger),
		policy:     opts.Policy,
		output:     structured.MustLoadSchema(structured.OutputSchema),
		parallel:   opts.ParallelCalls,
		logger:     logger,
	}
}

// Process builds the output record for one message. Parse and validation
// problems are absorbed into fallback values; completion failures and
// schema-invalid records are returned as errors.
func (p *Pipeline) Process(ctx context.Context, msg Message) (OutputRecord, error) {
	id := strings.TrimSpace(msg.ID)
	if id == "" {
		id = uuid.NewString()
	}

	var (
		cls ClassificationRecord
		sum SummaryRecord
	)
	if p.parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(recovered(func() error {
			var err error
			cls, err = p.classifier.Classify(gctx, msg.Body)
			return err
		}))
		g.Go(recovered(func() error {
			var err error
			sum, err = p.summarizer.Summarize(gctx, msg.Body)
			return err
		}))
		if err := g.Wait(); err != nil {
			return OutputRecord{}, err
		}
	} else {
		var err error
		if cls, err = p.classifier.Classify(ctx, msg.Body); err != nil {
			return OutputRecord{}, err
		}
		if sum, err = p.summarizer.Summarize(ctx, msg.Body); err != nil {
			return OutputRecord{}, err
		}
	}

	rec := OutputRecord{
		ID:       id,
		Category: cls.Category,
		Summary:  sum.Summary,
		Reply:    p.guardReply(id, sum.Reply),
		Action:   Route(cls.Category),
	}
	if err := p.output.ValidateValue(rec); err != nil {
		return OutputRecord{}, fmt.Errorf("output record %s: %w", id, err)
	}
	return rec, nil
}

func (p *Pipeline) guardReply(id, reply string) string {
	if p.policy == nil {
		return reply
	}
	adjusted, res := policy.Evaluate(reply, *p.policy)
	for _, flag := range res.RiskFlags {
		observability.PolicyInterventions.WithLabelValues(flag).Inc()
	}
	if !res.Allowed {
		p.logger.Warn("reply blocked by policy, using fallback reply", "id", id, "reason", res.Reason)
		return ReplyUnparseable
	}
	if strings.TrimSpace(adjusted) == "" {
		return ReplyDefault
	}
	return adjusted
}

// Run drains src into sink one message at a time. A failure on one message
// is logged and counted; the run only stops on source errors or cancellation.
func (p *Pipeline) Run(ctx context.Context, src MessageSource, sink RecordSink) (Stats, error) {
	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		msg, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			stats.Failed++
			observability.Records.WithLabelValues("failed").Inc()
			p.logger.Error("skipping unreadable input", "id", inputErr.ID, "error", inputErr.Err)
			continue
		}
		if err != nil {
			return stats, err
		}

		msg.ID = strings.TrimSpace(msg.ID)
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		p.logger.Info("processing message", "id", msg.ID, "subject", msg.Subject, "chars", len(msg.Body))
		rec, err := p.processIsolated(ctx, msg)
		if err == nil {
			err = sink.Emit(ctx, rec)
		}
		if err != nil {
			stats.Failed++
			observability.Records.WithLabelValues("failed").Inc()
			p.logger.Error("failed to process message", "id", msg.ID, "error", err)
			continue
		}
		stats.Processed++
		observability.Records.WithLabelValues(string(rec.Category)).Inc()
	}
}

func (p *Pipeline) processIsolated(ctx context.Context, msg Message) (rec OutputRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing: %v", r)
		}
	}()
	return p.Process(ctx, msg)
}

// recovered turns a panic in fn into an error. processIsolated only sees
// panics raised on the Run goroutine.
func recovered(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic while processing: %v", r)
			}
		}()
		return fn()
	}
}
