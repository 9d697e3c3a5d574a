package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	redisQueueKey  = "contentmod/" + JobName + "/queue"
	redisStatusKey = "contentmod/" + JobName + "/status"
)

// RedisQueue is a TaskQueue backed by a redis list, so pending batches survive restarts
type RedisQueue struct {
	Client       *redis.Client
	PollInterval time.Duration
}

var _ TaskQueue = (*RedisQueue)(nil)

func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %v", err)
	}
	return rdb, nil
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		Client:       client,
		PollInterval: 5 * time.Second,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task *Task) error {
	b, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.Client.LPush(ctx, redisQueueKey, b).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	vals, err := q.Client.BRPop(ctx, q.PollInterval, redisQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, err
	}
	// BRPOP returns the key name followed by the value
	if len(vals) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply length: %d", len(vals))
	}
	var task Task
	if err := json.Unmarshal([]byte(vals[1]), &task); err != nil {
		return nil, fmt.Errorf("decoding backfill task: %w", err)
	}
	return &task, nil
}

// RedisRuntime stores the latest backfill status as a JSON string in redis
type RedisRuntime struct {
	Client *redis.Client
}

var _ Runtime = (*RedisRuntime)(nil)

func (r *RedisRuntime) SetStatus(ctx context.Context, st *Status) error {
	b, err := encodeStatus(st)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, redisStatusKey, b, 0).Err()
}

func (r *RedisRuntime) GetStatus(ctx context.Context) (*Status, error) {
	return getRedisStatus(ctx, r.Client)
}

// Claim uses optimistic locking on the status key, so at most one of several concurrent callers (on any
// replica) wins.
func (r *RedisRuntime) Claim(ctx context.Context, st *Status, staleAfter time.Duration) (bool, error) {
	b, err := encodeStatus(st)
	if err != nil {
		return false, err
	}
	claimed := false
	err = r.Client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := getRedisStatus(ctx, tx)
		if err != nil {
			return err
		}
		if !claimable(cur, time.Now(), staleAfter) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisStatusKey, b, 0)
			return nil
		})
		if err != nil {
			return err
		}
		claimed = true
		return nil
	}, redisStatusKey)
	if errors.Is(err, redis.TxFailedErr) {
		// status changed underneath us; somebody else got there first
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func encodeStatus(st *Status) ([]byte, error) {
	s := *st
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	return json.Marshal(&s)
}

func getRedisStatus(ctx context.Context, c redis.Cmdable) (*Status, error) {
	val, err := c.Get(ctx, redisStatusKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(val, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
