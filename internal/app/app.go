package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailtriage/internal/config"
	"mailtriage/internal/jmap"
	"mailtriage/internal/llm"
	"mailtriage/internal/policy"
	"mailtriage/internal/queue"
	"mailtriage/internal/ratelimit"
	"mailtriage/internal/retry"
	"mailtriage/internal/sink"
	"mailtriage/internal/source"
	"mailtriage/internal/store"
	"mailtriage/internal/triage"
)

const (
	SourceSamples  = "samples"
	SourceJSONL    = "jsonl"
	SourceRedis    = "redis"
	SourcePostgres = "postgres"
	SourceJMAP     = "jmap"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Client   *llm.Client
	Pipeline *triage.Pipeline
	Policy   *policy.Policy
	Store    *store.Store
	Queue    *queue.Queue
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend, err := selectBackend(cfg)
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(backend, retryPolicy(cfg), logger)
	if cfg.LLM.RPM > 0 {
		client.WithRateLimit(ratelimit.New(), cfg.LLM.RPM)
	}

	prompts, err := triage.LoadPrompts(cfg.LLM.PromptPath)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	var pol *policy.Policy
	if cfg.Policy.Path != "" {
		p, err := policy.Load(cfg.Policy.Path)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		pol = &p
	}

	a := &App{Config: cfg, Logger: logger, Client: client, Policy: pol}
	if cfg.Redis.URL != "" {
		q, err := queue.New(cfg.Redis.URL, cfg.Redis.InboundKey, cfg.Redis.RecordsKey)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Queue = q
	}
	if cfg.Database.DSN != "" {
		st, err := store.Open(cfg.Database.DSN)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("database: %w", err)
		}
		a.Store = st
	}

	a.Pipeline = triage.NewPipeline(client, triage.Options{
		Prompts:       prompts,
		Classify:      sampling(cfg.LLM.Classify),
		Summarize:     sampling(cfg.LLM.Summarize),
		Policy:        pol,
		ParallelCalls: cfg.Pipeline.ParallelCalls,
		Logger:        logger,
	})
	logger.Info("triage ready",
		"backend", backend.Name(),
		"model", backend.Model(),
		"parallel_calls", cfg.Pipeline.ParallelCalls,
		"policy", cfg.Policy.Path,
	)
	return a, nil
}

func selectBackend(cfg config.Config) (llm.Backend, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return llm.NewGemini(cfg.LLM.GeminiKey, cfg.LLM.GeminiURL, cfg.LLM.Model, cfg.LLM.Timeout), nil
	case "openai":
		return llm.NewOpenAI(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIURL, cfg.LLM.Model, cfg.LLM.Timeout), nil
	case "ollama":
		return llm.NewOllama(cfg.LLM.OllamaURL, cfg.LLM.Model, cfg.LLM.Timeout), nil
	case "noop":
		return llm.NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func retryPolicy(cfg config.Config) retry.Policy {
	p := retry.Default()
	if cfg.Retry.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelay > 0 {
		p.InitialDelay = cfg.Retry.InitialDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		p.MaxDelay = cfg.Retry.MaxDelay
	}
	if cfg.Retry.Multiplier > 0 {
		p.Multiplier = cfg.Retry.Multiplier
	}
	p.Jitter = cfg.Retry.Jitter
	return p
}

func sampling(s config.Sampling) llm.Sampling {
	return llm.Sampling{
		Temperature:     s.Temperature,
		TopP:            s.TopP,
		MaxOutputTokens: s.MaxOutputTokens,
	}
}

// Source builds the message source named by kind. stdin backs the jsonl
// source when no path is configured. drain makes the redis source stop once
// the inbound list is empty.
func (a *App) Source(kind string, stdin io.Reader, drain bool) (triage.MessageSource, io.Closer, error) {
	switch kind {
	case "", SourceSamples:
		return source.NewStatic(source.Samples()), nil, nil
	case SourceJSONL:
		if a.Config.Source.Path == "" || a.Config.Source.Path == "-" {
			return source.NewJSONL(stdin), nil, nil
		}
		f, err := os.Open(a.Config.Source.Path)
		if err != nil {
			return nil, nil, err
		}
		return source.NewJSONL(f), f, nil
	case SourceRedis:
		if a.Queue == nil {
			return nil, nil, errors.New("redis source requires redis.url (or TRIAGE_REDIS_URL)")
		}
		return source.NewQueue(a.Queue, a.Config.Redis.PopTimeout, drain), nil, nil
	case SourcePostgres:
		if a.Store == nil {
			return nil, nil, errors.New("postgres source requires database.dsn (or TRIAGE_DB_DSN)")
		}
		return source.NewPostgres(a.Store, a.Config.Source.Query), nil, nil
	case SourceJMAP:
		client, err := jmap.New(jmap.Config{
			URL:      a.Config.JMAP.URL,
			Username: a.Config.JMAP.Username,
			Password: a.Config.JMAP.Password,
			Limit:    a.Config.JMAP.Limit,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("jmap source: %w", err)
		}
		return source.NewJMAP(client), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q", kind)
	}
}

// Sink writes records to out and, when configured, to the redis records list.
func (a *App) Sink(out io.Writer) triage.RecordSink {
	lines := sink.NewJSONLines(out)
	if a.Queue == nil || !a.Config.Redis.PublishRecs {
		return lines
	}
	return sink.Multi{lines, sink.NewRedisList(a.Queue)}
}

func (a *App) Run(ctx context.Context, src triage.MessageSource, out triage.RecordSink) (triage.Stats, error) {
	start := time.Now()
	stats, err := a.Pipeline.Run(ctx, src, out)
	a.Logger.Info("run finished",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return stats, err
}

func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	return errors.Join(errs...)
}

func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if a.Store != nil {
			if err := a.Store.Ping(ctx); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		if a.Queue != nil {
			if err := a.Queue.Ping(ctx); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve exposes health and metrics on the configured address until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
