package queue

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"healthtrends-server/internal/config"
)

// Message is one delivery pulled from the durable queue. Deliveries counts
// how many times the queue has handed this message to a consumer; it grows
// every time a message is reclaimed after its visibility timeout expires.
type Message struct {
	ID         string
	Body       []byte
	Deliveries int64
}

// Queue is the durable at-least-once queue the ingestion pipeline runs on.
// Enqueue is used by the gateway, ReceiveBatch/Ack by the worker. Messages
// that are received but never acked become visible again after the
// configured visibility timeout.
type Queue interface {
	Enqueue(ctx context.Context, body []byte) error
	ReceiveBatch(ctx context.Context) ([]Message, error)
	Ack(ctx context.Context, id string) error
}

// RedisQueue implements Queue on a Redis stream with a consumer group.
// XADD is enqueue, XREADGROUP with BLOCK is the long-poll receive,
// XACK+XDEL is the delete, and XAUTOCLAIM re-delivers entries whose
// consumer went away without acking.
type RedisQueue struct {
	client    *redis.Client
	logger    *zap.Logger
	stream    string
	group     string
	consumer  string
	batchSize int64
	pollWait  time.Duration
	minIdle   time.Duration
}

// NewRedisQueue creates the queue handle and makes sure the consumer group
// exists. An already-existing group is not an error.
func NewRedisQueue(client *redis.Client, cfg config.QueueConfig, wcfg config.WorkerConfig, consumer string, logger *zap.Logger) (*RedisQueue, error) {
	q := &RedisQueue{
		client:    client,
		logger:    logger,
		stream:    cfg.Stream,
		group:     cfg.Group,
		consumer:  consumer,
		batchSize: wcfg.BatchSize,
		pollWait:  wcfg.PollWait,
		minIdle:   wcfg.VisibilityTimeout,
	}

	err := client.XGroupCreateMkStream(context.Background(), q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, err
	}
	return q, nil
}

// Enqueue appends the raw payload to the stream.
func (q *RedisQueue) Enqueue(ctx context.Context, body []byte) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"body": string(body)},
	}).Err()
}

// ReceiveBatch returns up to the configured batch size of messages.
// Entries that have been pending longer than the visibility timeout are
// reclaimed first; otherwise the call long-polls for new entries.
func (q *RedisQueue) ReceiveBatch(ctx context.Context) ([]Message, error) {
	if msgs, err := q.reclaim(ctx); err != nil {
		return nil, err
	} else if len(msgs) > 0 {
		return msgs, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    q.batchSize,
		Block:    q.pollWait,
	}).Result()
	if err == redis.Nil {
		// Long poll expired with nothing to read.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for _, stream := range streams {
		for _, m := range stream.Messages {
			msgs = append(msgs, Message{ID: m.ID, Body: rawBody(m.Values), Deliveries: 1})
		}
	}
	return msgs, nil
}

// reclaim takes over pending entries whose visibility timeout has expired,
// carrying their delivery counts so the worker can spot poison messages.
func (q *RedisQueue) reclaim(ctx context.Context) ([]Message, error) {
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.minIdle,
		Start:    "0-0",
		Count:    q.batchSize,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	deliveries := make(map[string]int64, len(claimed))
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  claimed[0].ID,
		End:    claimed[len(claimed)-1].ID,
		Count:  int64(len(claimed)),
	}).Result()
	if err != nil && err != redis.Nil {
		q.logger.Warn("failed to read pending delivery counts", zap.Error(err))
	}
	for _, p := range pending {
		deliveries[p.ID] = p.RetryCount
	}

	msgs := make([]Message, 0, len(claimed))
	for _, m := range claimed {
		count := deliveries[m.ID]
		if count == 0 {
			count = 1
		}
		msgs = append(msgs, Message{ID: m.ID, Body: rawBody(m.Values), Deliveries: count})
	}
	q.logger.Info("reclaimed pending messages", zap.Int("count", len(msgs)))
	return msgs, nil
}

// Ack removes a processed message from the queue.
func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, id).Err(); err != nil {
		return err
	}
	// Acked entries have no further readers; trim them from the stream.
	return q.client.XDel(ctx, q.stream, id).Err()
}

func rawBody(values map[string]interface{}) []byte {
	if s, ok := values["body"].(string); ok {
		return []byte(s)
	}
	return nil
}
