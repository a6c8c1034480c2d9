package source

import (
	"context"

	"mailtriage/internal/jmap"
	"mailtriage/internal/store"
	"mailtriage/internal/triage"
)

// Snapshot loads a batch of messages once, on the first call, and replays it.
type Snapshot struct {
	load   func(ctx context.Context) ([]triage.Message, error)
	loaded *Static
}

// NewPostgres reads the messages selected by query.
func NewPostgres(st *store.Store, query string) *Snapshot {
	return &Snapshot{load: func(ctx context.Context) ([]triage.Message, error) {
		return st.Messages(ctx, query)
	}}
}

// NewJMAP reads the current inbox of a JMAP account.
func NewJMAP(client *jmap.Client) *Snapshot {
	return &Snapshot{load: client.Inbox}
}

func (s *Snapshot) Next(ctx context.Context) (triage.Message, error) {
	if s.loaded == nil {
		msgs, err := s.load(ctx)
		if err != nil {
			return triage.Message{}, err
		}
		for i := range msgs {
			msgs[i] = normalize(msgs[i])
		}
		s.loaded = NewStatic(msgs)
	}
	return s.loaded.Next(ctx)
}
