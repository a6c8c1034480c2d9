package triage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"mailtriage/internal/llm"
)

type reply struct {
	text string
	err  error
}

// fakeCompleter answers per task from a queue; an empty queue is an error.
type fakeCompleter struct {
	mu      sync.Mutex
	replies map[string][]reply
	byInput map[string]reply
	panicOn string
	reqs    []llm.Request
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{replies: map[string][]reply{}, byInput: map[string]reply{}}
}

func (f *fakeCompleter) on(task string, replies ...reply) *fakeCompleter {
	f.replies[task] = append(f.replies[task], replies...)
	return f
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.panicOn != "" && req.Input == f.panicOn {
		panic("backend exploded")
	}
	if r, ok := f.byInput[req.Task+"|"+req.Input]; ok {
		return r.text, r.err
	}
	queue := f.replies[req.Task]
	if len(queue) == 0 {
		return "", errors.New("no scripted reply for " + req.Task)
	}
	f.replies[req.Task] = queue[1:]
	return queue[0].text, queue[0].err
}

func (f *fakeCompleter) calls(task string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.reqs {
		if task == "" || r.Task == task {
			n++
		}
	}
	return n
}

func (f *fakeCompleter) requests(task string) []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []llm.Request
	for _, r := range f.reqs {
		if r.Task == task {
			out = append(out, r)
		}
	}
	return out
}

type sliceSource struct {
	items []any
}

func (s *sliceSource) Next(context.Context) (Message, error) {
	if len(s.items) == 0 {
		return Message{}, io.EOF
	}
	next := s.items[0]
	s.items = s.items[1:]
	switch v := next.(type) {
	case Message:
		return v, nil
	case error:
		return Message{}, v
	}
	return Message{}, errors.New("bad test item")
}

type collectSink struct {
	records []OutputRecord
	failIDs map[string]bool
}

func (c *collectSink) Emit(_ context.Context, rec OutputRecord) error {
	if c.failIDs[rec.ID] {
		return errors.New("sink unavailable")
	}
	c.records = append(c.records, rec)
	return nil
}

func okClassify(category, why string) reply {
	return reply{text: `{"category":"` + category + `","justification":"` + why + `"}`}
}

func okSummary(summary, replyText string) reply {
	return reply{text: `{"summary":"` + summary + `","reply":"` + strings.ReplaceAll(replyText, `"`, `\"`) + `"}`}
}
