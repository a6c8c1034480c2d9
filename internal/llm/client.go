package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mailtriage/internal/observability"
	"mailtriage/internal/ratelimit"
	"mailtriage/internal/retry"
)

// Client issues completion requests against a Backend under a retry policy.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	backend Backend
	policy  retry.Policy
	logger  *slog.Logger
	limiter *ratelimit.Limiter
	rpm     int
}

func NewClient(backend Backend, policy retry.Policy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	c := &Client{backend: backend, logger: logger}
	if policy.OnRetry == nil {
		policy.OnRetry = c.logRetry
	}
	c.policy = policy
	return c
}

// WithRateLimit caps attempts against the backend at rpm per minute. Every
// attempt, retries included, takes a token.
func (c *Client) WithRateLimit(limiter *ratelimit.Limiter, rpm int) *Client {
	c.limiter = limiter
	c.rpm = rpm
	return c
}

func (c *Client) Backend() Backend {
	return c.backend
}

// Complete renders req, calls the backend and returns the extracted text.
// Invalid requests fail without a backend call.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	genReq := GenerateRequest{
		Task:     req.Task,
		Prompt:   req.Render(),
		Input:    req.Input,
		Sampling: req.Sampling,
	}
	return retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) (string, error) {
		return c.attempt(ctx, genReq, attempt)
	})
}

func (c *Client) attempt(ctx context.Context, req GenerateRequest, attempt int) (string, error) {
	name := c.backend.Name()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, name, c.rpm); err != nil {
			return "", err
		}
	}
	start := time.Now()
	resp, err := c.backend.Generate(ctx, req)
	observability.CompletionLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		var text string
		text, err = ExtractText(resp)
		if err == nil {
			observability.CompletionAttempts.WithLabelValues(name, "ok").Inc()
			c.logger.Debug("completion ok", "task", req.Task, "backend", name, "attempt", attempt, "chars", len(text))
			return text, nil
		}
	}
	outcome := "fatal"
	if IsTransient(err) {
		outcome = "transient"
	}
	observability.CompletionAttempts.WithLabelValues(name, outcome).Inc()
	return "", err
}

func (c *Client) logRetry(attempt int, delay time.Duration, err error) {
	level := slog.LevelWarn
	if errors.Is(err, ErrEmptyResponse) {
		level = slog.LevelInfo
	}
	c.logger.Log(context.Background(), level, "completion attempt failed, retrying",
		"backend", c.backend.Name(), "attempt", attempt, "delay", delay, "error", err)
}
