// Package redisqueue implements the priority queue (C5): a score-ordered
// index of job ids under a namespaced key, plus a sibling DLQ map. It is
// a fast path in front of the durable store and is allowed to be lossy.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/schedora/engine/internal/core/engineerr"
)

// Queue is a Redis-backed priority queue with a dead-letter sibling map.
type Queue struct {
	client *redis.Client
	name   string
}

// New constructs a Queue bound to client, namespaced under name (the
// keys used are "schedora:queue:{name}" and "schedora:queue:{name}:dlq").
func New(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name}
}

func (q *Queue) mainKey() string { return "schedora:queue:" + q.name }
func (q *Queue) dlqKey() string  { return "schedora:queue:" + q.name + ":dlq" }

// DLQEntry is the value stored per job-id in the dead-letter map.
type DLQEntry struct {
	JobID   uuid.UUID `json:"job_id"`
	Reason  string    `json:"reason"`
	MovedAt time.Time `json:"moved_at"`
}

// Enqueue idempotently inserts or updates jobID's score to priority.
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID, priority int) error {
	err := q.client.ZAdd(ctx, q.mainKey(), redis.Z{Score: float64(priority), Member: jobID.String()}).Err()
	return wrapSideStoreErr(err)
}

// Dequeue pops the single entry with maximum score. Returns uuid.Nil,
// false, nil when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (uuid.UUID, bool, error) {
	zs, err := q.client.ZPopMax(ctx, q.mainKey(), 1).Result()
	if err != nil {
		return uuid.Nil, false, wrapSideStoreErr(err)
	}
	if len(zs) == 0 {
		return uuid.Nil, false, nil
	}
	id, err := parseMember(zs[0].Member)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// Peek returns the same selection as Dequeue without removing it.
func (q *Queue) Peek(ctx context.Context) (uuid.UUID, bool, error) {
	zs, err := q.client.ZRevRangeWithScores(ctx, q.mainKey(), 0, 0).Result()
	if err != nil {
		return uuid.Nil, false, wrapSideStoreErr(err)
	}
	if len(zs) == 0 {
		return uuid.Nil, false, nil
	}
	id, err := parseMember(zs[0].Member)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// Remove deletes jobID from the main index; ok reports whether it was
// present.
func (q *Queue) Remove(ctx context.Context, jobID uuid.UUID) (bool, error) {
	n, err := q.client.ZRem(ctx, q.mainKey(), jobID.String()).Result()
	if err != nil {
		return false, wrapSideStoreErr(err)
	}
	return n > 0, nil
}

// Length returns the number of entries in the main index.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.mainKey()).Result()
	return n, wrapSideStoreErr(err)
}

// DLQLength returns the number of entries in the DLQ.
func (q *Queue) DLQLength(ctx context.Context) (int64, error) {
	n, err := q.client.HLen(ctx, q.dlqKey()).Result()
	return n, wrapSideStoreErr(err)
}

// Purge removes every entry in the main index.
func (q *Queue) Purge(ctx context.Context) error {
	return wrapSideStoreErr(q.client.Del(ctx, q.mainKey()).Err())
}

// PurgeDLQ removes every entry in the DLQ.
func (q *Queue) PurgeDLQ(ctx context.Context) error {
	return wrapSideStoreErr(q.client.Del(ctx, q.dlqKey()).Err())
}

// MoveToDLQ writes {job_id, reason, moved_at} into the DLQ map and
// removes jobID from the main index, in one pipelined round trip.
func (q *Queue) MoveToDLQ(ctx context.Context, jobID uuid.UUID, reason string) error {
	entry := DLQEntry{JobID: jobID, Reason: reason, MovedAt: time.Now().UTC()}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.dlqKey(), jobID.String(), payload)
		pipe.ZRem(ctx, q.mainKey(), jobID.String())
		return nil
	})
	return wrapSideStoreErr(err)
}

// DLQEntries returns every entry currently in the dead-letter map.
func (q *Queue) DLQEntries(ctx context.Context) ([]DLQEntry, error) {
	raw, err := q.client.HGetAll(ctx, q.dlqKey()).Result()
	if err != nil {
		return nil, wrapSideStoreErr(err)
	}
	entries := make([]DLQEntry, 0, len(raw))
	for _, v := range raw {
		var e DLQEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseMember(member interface{}) (uuid.UUID, error) {
	s, _ := member.(string)
	return uuid.Parse(s)
}

func wrapSideStoreErr(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return errors.Join(engineerr.ErrSideStoreUnavailable, err)
}
