// Package ratelimit implements per-key token buckets sized in requests per minute.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

type bucket struct {
	tokens       float64
	capacity     float64
	refillPerSec float64
	lastRefill   time.Time
}

type Limiter struct {
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
}

func New() *Limiter {
	return &Limiter{
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from key's bucket. When none is left it reports how
// long until the next token. rpm <= 0 means unlimited.
func (l *Limiter) Allow(key string, rpm int) (bool, time.Duration) {
	if rpm <= 0 {
		return true, 0
	}

	now := l.now()
	capacity := float64(rpm)
	refillPerSec := capacity / 60.0

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{
			tokens:       capacity - 1,
			capacity:     capacity,
			refillPerSec: refillPerSec,
			lastRefill:   now,
		}
		return true, 0
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+(elapsed*b.refillPerSec))
		b.lastRefill = now
	}
	if b.capacity != capacity {
		b.capacity = capacity
		b.refillPerSec = refillPerSec
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	deficit := 1 - b.tokens
	wait := time.Duration(math.Ceil(deficit / b.refillPerSec * float64(time.Second)))
	return false, wait
}

// Wait blocks until key has a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string, rpm int) error {
	for {
		ok, wait := l.Allow(key, rpm)
		if ok {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
