// Package queue is a delayed, fire-and-forget task queue on a Redis sorted set.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Task is one unit of deferred work.
type Task struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	RunAt   time.Time       `json:"run_at"`
}

// Decode unmarshals the payload into v.
func (t *Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(t.Payload, v)
}

// Enqueuer schedules a task to run after delay. There is no result channel:
// outcomes are only visible through logs and status queries.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, delay time.Duration) (*Task, error)
}

type RedisQueue struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "bizrank:tasks"
	}
	return &RedisQueue{rdb: rdb, key: key, now: time.Now}
}

func (q *RedisQueue) Enqueue(ctx context.Context, kind string, payload any, delay time.Duration) (*Task, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		raw = b
	}
	t := &Task{ID: uuid.NewString(), Kind: kind, Payload: raw, RunAt: q.now().Add(delay)}
	member, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	err = q.rdb.ZAdd(ctx, q.key, redis.Z{Score: float64(t.RunAt.UnixMilli()), Member: string(member)}).Err()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return t, nil
}

// Due claims up to n tasks whose run time has passed. A task is returned by
// exactly one caller: whoever removes it from the set owns it.
func (q *RedisQueue) Due(ctx context.Context, n int64) ([]*Task, error) {
	members, err := q.rdb.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: n,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read due tasks: %w", err)
	}

	var out []*Task
	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return out, fmt.Errorf("claim task: %w", err)
		}
		if removed == 0 {
			continue
		}
		t := &Task{}
		if err := json.Unmarshal([]byte(m), t); err != nil {
			// unreadable entries are dropped; they can never be dispatched
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Pending returns how many tasks are waiting, due or not.
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.key).Result()
}
