package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func noSleep(policy Policy, waits *[]time.Duration) Policy {
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return policy
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	var waits []time.Duration
	policy := noSleep(Default(), &waits)

	calls := 0
	got, err := Do(context.Background(), policy, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("expected ok after 3 calls, got %q after %d", got, calls)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Fatalf("unexpected waits: %v", waits)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	var waits []time.Duration
	policy := noSleep(Default(), &waits)

	calls := 0
	_, err := Do(context.Background(), policy, func(_ context.Context, _ int) (int, error) {
		calls++
		return 0, errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected wrapped last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(waits) != 2 {
		t.Fatalf("expected no wait after final attempt, got %v", waits)
	}
}

func TestDoStopsOnFatalError(t *testing.T) {
	fatal := errors.New("bad request")
	var waits []time.Duration
	policy := noSleep(Default(), &waits)
	policy.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	_, err := Do(context.Background(), policy, func(_ context.Context, _ int) (int, error) {
		calls++
		return 0, fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 || len(waits) != 0 {
		t.Fatalf("expected single call without waits, got %d calls, waits %v", calls, waits)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := Default()
	policy.InitialDelay = time.Hour

	_, err := Do(ctx, policy, func(_ context.Context, _ int) (int, error) {
		return 0, errFlaky
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestBackoffClamps(t *testing.T) {
	policy := Default()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := policy.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	policy := Default()
	policy.Jitter = 0.5
	for i := 0; i < 50; i++ {
		got := policy.Backoff(2)
		if got < time.Second || got > 3*time.Second {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}
