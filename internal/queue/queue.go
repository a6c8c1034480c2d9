package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"mailtriage/internal/triage"
)

const (
	DefaultInboundKey = "triage:inbound"
	DefaultRecordsKey = "triage:records"
)

// Queue moves messages and records through redis lists: producers LPUSH,
// consumers BRPOP, so each list is FIFO.
type Queue struct {
	client     *redis.Client
	inboundKey string
	recordsKey string
}

func New(url, inboundKey, recordsKey string) (*Queue, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewWithClient(redis.NewClient(opt), inboundKey, recordsKey), nil
}

func NewWithClient(client *redis.Client, inboundKey, recordsKey string) *Queue {
	if inboundKey == "" {
		inboundKey = DefaultInboundKey
	}
	if recordsKey == "" {
		recordsKey = DefaultRecordsKey
	}
	return &Queue{client: client, inboundKey: inboundKey, recordsKey: recordsKey}
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) PushMessage(ctx context.Context, msg triage.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.inboundKey, data).Err()
}

// PopMessage blocks up to timeout for the next raw message payload. It
// returns redis.Nil when the wait times out.
func (q *Queue) PopMessage(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.client.BRPop(ctx, timeout, q.inboundKey).Result()
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", redis.Nil
	}
	return res[1], nil
}

func (q *Queue) PushRecord(ctx context.Context, payload []byte) error {
	return q.client.LPush(ctx, q.recordsKey, payload).Err()
}

func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.inboundKey).Result()
}

func (q *Queue) Close() error {
	return q.client.Close()
}
