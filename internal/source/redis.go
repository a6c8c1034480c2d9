package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"mailtriage/internal/queue"
	"mailtriage/internal/triage"
)

// Queue consumes messages from the redis inbound list. A worker queue blocks
// until a message arrives or ctx is cancelled; a draining queue reports io.EOF
// the first time a pop times out.
type Queue struct {
	queue   *queue.Queue
	timeout time.Duration
	drain   bool
}

func NewQueue(q *queue.Queue, timeout time.Duration, drain bool) *Queue {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Queue{queue: q, timeout: timeout, drain: drain}
}

func (s *Queue) Next(ctx context.Context) (triage.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return triage.Message{}, err
		}
		raw, err := s.queue.PopMessage(ctx, s.timeout)
		if errors.Is(err, redis.Nil) {
			if s.drain {
				return triage.Message{}, io.EOF
			}
			continue
		}
		if err != nil {
			return triage.Message{}, err
		}
		var msg triage.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return triage.Message{}, &triage.InputError{Err: err}
		}
		return normalize(msg), nil
	}
}
