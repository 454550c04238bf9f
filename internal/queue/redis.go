package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const claimCandidates = 10

// moveDue moves member ARGV[1] from KEYS[1] to KEYS[2] with score ARGV[2], but only while its
// score in KEYS[1] is at most ARGV[3].
var moveDue = redis.NewScript(`
local s = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not s or tonumber(s) > tonumber(ARGV[3]) then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

// RedisBroker stores jobs in Redis.
//
// Each job is a JSON string at {prefix}:job:{id}. Waiting jobs are members of the {prefix}:waiting
// sorted set scored by due time in milliseconds. Claimed jobs move to {prefix}:active scored by
// their lock deadline; retained failures live in {prefix}:failed and kept completions in
// {prefix}:completed. A worker owns a job once the move into active succeeds.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker connects to the Redis server at url (redis:// or rediss://).
func NewRedisBroker(ctx context.Context, url, prefix string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisBrokerWithClient(client, prefix), nil
}

// NewRedisBrokerWithClient wraps an existing client.
func NewRedisBrokerWithClient(client *redis.Client, prefix string) *RedisBroker {
	if prefix == "" {
		prefix = "lyrix:fetch"
	}
	return &RedisBroker{client: client, prefix: prefix}
}

func (b *RedisBroker) jobKey(id string) string { return b.prefix + ":job:" + id }
func (b *RedisBroker) waitingKey() string      { return b.prefix + ":waiting" }
func (b *RedisBroker) activeKey() string       { return b.prefix + ":active" }
func (b *RedisBroker) failedKey() string       { return b.prefix + ":failed" }
func (b *RedisBroker) completedKey() string    { return b.prefix + ":completed" }

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (b *RedisBroker) Push(ctx context.Context, job *Job) error {
	job.Status = StatusWaiting
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, b.jobKey(job.ID), data, 0)
		p.ZAdd(ctx, b.waitingKey(), &redis.Z{Score: score(job.RunAt), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}
	return nil
}

func (b *RedisBroker) Claim(ctx context.Context, now, lockUntil time.Time) (*Job, error) {
	// Expired locks first: their jobs were due before anything still waiting.
	job, err := b.claimFrom(ctx, b.activeKey(), now, lockUntil)
	if job != nil || err != nil {
		return job, err
	}
	return b.claimFrom(ctx, b.waitingKey(), now, lockUntil)
}

func (b *RedisBroker) claimFrom(ctx context.Context, key string, now, lockUntil time.Time) (*Job, error) {
	ids, err := b.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: claimCandidates,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due jobs: %w", err)
	}

	for _, id := range ids {
		moved, err := moveDue.Run(ctx, b.client, []string{key, b.activeKey()},
			id, score(lockUntil), score(now)).Int()
		if err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", id, err)
		}
		if moved == 0 {
			continue // another worker won it
		}

		job, err := b.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			b.client.ZRem(ctx, b.activeKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}

		if job.Status == StatusActive {
			job.LastError = ErrStalled.Error()
		}
		job.Status = StatusActive
		job.LockedUntil = lockUntil
		job.Attempts++
		if err := b.save(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, nil
}

func (b *RedisBroker) Complete(ctx context.Context, job *Job) error {
	if !job.KeepOnSuccess {
		return b.finish(ctx, job, func(p redis.Pipeliner) {
			p.Del(ctx, b.jobKey(job.ID))
		})
	}
	job.Status = StatusCompleted
	job.LockedUntil = time.Time{}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return b.finish(ctx, job, func(p redis.Pipeliner) {
		p.Set(ctx, b.jobKey(job.ID), data, 0)
		p.ZAdd(ctx, b.completedKey(), &redis.Z{Score: score(time.Now()), Member: job.ID})
	})
}

func (b *RedisBroker) Retry(ctx context.Context, job *Job, at time.Time, cause error) error {
	job.Status = StatusWaiting
	job.RunAt = at
	job.LockedUntil = time.Time{}
	job.LastError = causeText(cause)
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return b.finish(ctx, job, func(p redis.Pipeliner) {
		p.Set(ctx, b.jobKey(job.ID), data, 0)
		p.ZAdd(ctx, b.waitingKey(), &redis.Z{Score: score(at), Member: job.ID})
	})
}

func (b *RedisBroker) Fail(ctx context.Context, job *Job, cause error) error {
	if !job.KeepOnFailure {
		return b.finish(ctx, job, func(p redis.Pipeliner) {
			p.Del(ctx, b.jobKey(job.ID))
		})
	}
	job.Status = StatusFailed
	job.LockedUntil = time.Time{}
	job.LastError = causeText(cause)
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return b.finish(ctx, job, func(p redis.Pipeliner) {
		p.Set(ctx, b.jobKey(job.ID), data, 0)
		p.ZAdd(ctx, b.failedKey(), &redis.Z{Score: score(job.CreatedAt), Member: job.ID})
	})
}

// finish releases job from the active set and applies update in the same transaction.
func (b *RedisBroker) finish(ctx context.Context, job *Job, update func(p redis.Pipeliner)) error {
	_, err := b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, b.activeKey(), job.ID)
		update(p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBroker) Failed(ctx context.Context) ([]*Job, error) {
	ids, err := b.client.ZRange(ctx, b.failedKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := b.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (b *RedisBroker) RetryFailed(ctx context.Context, now time.Time) (int, error) {
	ids, err := b.client.ZRange(ctx, b.failedKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	n := 0
	for _, id := range ids {
		removed, err := b.client.ZRem(ctx, b.failedKey(), id).Result()
		if err != nil {
			return n, err
		}
		if removed == 0 {
			continue
		}

		job, err := b.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return n, err
		}
		job.Attempts = 0
		if err := b.Retry(ctx, job, now, errors.New(job.LastError)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func (b *RedisBroker) load(ctx context.Context, id string) (*Job, error) {
	data, err := b.client.Get(ctx, b.jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

func (b *RedisBroker) save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := b.client.Set(ctx, b.jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}
