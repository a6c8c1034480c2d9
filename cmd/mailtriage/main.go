package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailtriage/internal/app"
	"mailtriage/internal/config"
	"mailtriage/internal/llm"
	"mailtriage/internal/observability"
)

const (
	exitOK             = 0
	exitError          = 1
	exitUsage          = 2
	exitPartialFailure = 3
)

var commands = map[string]bool{"samples": true, "batch": true, "worker": true, "doctor": true}

type streams struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], streams{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr})
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, std streams) int {
	if len(args) < 1 || !commands[args[0]] {
		usage(std.stderr)
		return exitUsage
	}
	cmd := args[0]

	logger := observability.NewLogger(std.stderr, os.Getenv("TRIAGE_LOG_LEVEL"))
	cfg, err := config.Load(os.Getenv("TRIAGE_CONFIG"))
	if err != nil {
		logger.Error("config error", "error", err)
		return exitError
	}
	logger = observability.NewLogger(std.stderr, cfg.Log.Level)
	slog.SetDefault(logger)

	switch cmd {
	case "samples":
		return runBatch(ctx, cfg, logger, app.SourceSamples, std)
	case "batch":
		kind := cfg.Source.Kind
		if kind == app.SourceSamples {
			kind = app.SourceJSONL
		}
		return runBatch(ctx, cfg, logger, kind, std)
	case "worker":
		return runWorker(ctx, cfg, logger, std)
	default:
		return doctor(ctx, cfg, std)
	}
}

func runBatch(ctx context.Context, cfg config.Config, logger *slog.Logger, kind string, std streams) int {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("app init error", "error", err)
		return exitError
	}
	defer a.Close()

	src, closer, err := a.Source(kind, std.stdin, true)
	if err != nil {
		logger.Error("source error", "source", kind, "error", err)
		return exitError
	}
	if closer != nil {
		defer closer.Close()
	}
	if cfg.HTTP.Addr != "" {
		go serve(ctx, a, logger)
	}

	stats, err := a.Run(ctx, src, a.Sink(std.stdout))
	if err != nil {
		logger.Error("run stopped", "error", err)
		return exitError
	}
	if stats.Failed > 0 {
		return exitPartialFailure
	}
	return exitOK
}

func runWorker(ctx context.Context, cfg config.Config, logger *slog.Logger, std streams) int {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("app init error", "error", err)
		return exitError
	}
	defer a.Close()

	src, _, err := a.Source(app.SourceRedis, nil, false)
	if err != nil {
		logger.Error("source error", "error", err)
		return exitError
	}
	if cfg.HTTP.Addr != "" {
		go serve(ctx, a, logger)
	}

	logger.Info("worker started", "inbound", cfg.Redis.InboundKey, "publish_records", cfg.Redis.PublishRecs)
	_, err = a.Run(ctx, src, a.Sink(std.stdout))
	if err != nil && ctx.Err() == nil {
		logger.Error("worker stopped", "error", err)
		return exitError
	}
	return exitOK
}

func serve(ctx context.Context, a *app.App, logger *slog.Logger) {
	logger.Info("http listening", "addr", a.Config.HTTP.Addr)
	if err := a.Serve(ctx); err != nil {
		logger.Error("http server error", "error", err)
	}
}

type check struct {
	name string
	fn   func() error
}

// doctor checks every configured dependency and sends one tiny completion.
func doctor(ctx context.Context, cfg config.Config, std streams) int {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg, observability.Discard())
	if err != nil {
		fmt.Fprintf(std.stdout, "app: FAIL (%v)\n", err)
		return exitError
	}
	defer a.Close()

	checks := []check{
		{"llm", func() error {
			_, err := a.Client.Complete(ctx, llm.Request{
				Task:     llm.TaskClassify,
				Template: "Reply with the single word OK. " + llm.Placeholder,
				Input:    "ping",
				Sampling: llm.Sampling{MaxOutputTokens: 8},
			})
			return err
		}},
	}
	if a.Queue != nil {
		checks = append(checks, check{"redis", func() error { return a.Queue.Ping(ctx) }})
	}
	if a.Store != nil {
		checks = append(checks, check{"database", func() error { return a.Store.Ping(ctx) }})
	}

	code := exitOK
	for _, c := range checks {
		if err := c.fn(); err != nil {
			fmt.Fprintf(std.stdout, "%s: FAIL (%v)\n", c.name, err)
			code = exitError
			continue
		}
		fmt.Fprintf(std.stdout, "%s: OK\n", c.name)
	}
	return code
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mailtriage <samples|batch|worker|doctor>")
}
