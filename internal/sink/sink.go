// Package sink writes output records to their destinations.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"mailtriage/internal/queue"
	"mailtriage/internal/triage"
)

// JSONLines writes one record per line, keeping non-ASCII text readable.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLines(w io.Writer) *JSONLines {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLines{enc: enc}
}

func (s *JSONLines) Emit(_ context.Context, rec triage.OutputRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

// RedisList publishes records onto the queue's records list.
type RedisList struct {
	queue *queue.Queue
}

func NewRedisList(q *queue.Queue) *RedisList {
	return &RedisList{queue: q}
}

func (s *RedisList) Emit(ctx context.Context, rec triage.OutputRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.queue.PushRecord(ctx, data)
}

// Multi emits to every sink and joins their errors.
type Multi []triage.RecordSink

func (m Multi) Emit(ctx context.Context, rec triage.OutputRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
