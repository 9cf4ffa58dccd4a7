package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/faciam-dev/gcadmin/internal/logger"
)

// DefaultQueueKey is the Redis list jobs are pushed to.
const DefaultQueueKey = "gcadmin:actions"

// RedisDispatcher pushes jobs as JSON onto a Redis list.
type RedisDispatcher struct {
	Client *redis.Client
	Key    string
}

// NewRedisDispatcher connects to the Redis instance at dsn.
func NewRedisDispatcher(dsn, key string) (*RedisDispatcher, error) {
	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}
	return &RedisDispatcher{Client: redis.NewClient(opt), Key: key}, nil
}

func (d *RedisDispatcher) key() string {
	if d.Key == "" {
		return DefaultQueueKey
	}
	return d.Key
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.Client.LPush(ctx, d.key(), data).Err()
}

// Worker pops jobs from the list a RedisDispatcher feeds and executes them.
type Worker struct {
	Client *redis.Client
	Key    string
	Exec   Executor
	// Wait is the BRPOP timeout per poll.
	Wait time.Duration
}

func (w *Worker) key() string {
	if w.Key == "" {
		return DefaultQueueKey
	}
	return w.Key
}

// Next blocks until a job is available or the poll times out. ok is false
// on timeout.
func (w *Worker) Next(ctx context.Context) (Job, bool, error) {
	wait := w.Wait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	res, err := w.Client.BRPop(ctx, wait, w.key()).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, false, fmt.Errorf("decode job: %w", err)
	}
	return job, true, nil
}

// Run executes jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, ok, err := w.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.L.Error("action queue", "key", w.key(), "err", err)
			time.Sleep(time.Second)
			continue
		}
		if ok {
			execute(ctx, w.Exec, job)
		}
	}
}

// QueueLen returns the number of jobs waiting on the list.
func (d *RedisDispatcher) QueueLen(ctx context.Context) (int64, error) {
	return d.Client.LLen(ctx, d.key()).Result()
}
