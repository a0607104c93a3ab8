package certificates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list holding pending regeneration jobs.
const DefaultQueueKey = "certificates:regen:queue"

// RegenerationJob asks the worker to re-render a certificate. Force jobs always
// render; the rest only render when the stored assets are stale.
type RegenerationJob struct {
	CertificateID uuid.UUID `json:"certificate_id"`
	Force         bool      `json:"force"`
	Attempts      int       `json:"attempts"`
}

// RedisQueue is a FIFO of jobs on a Redis list (LPUSH / RPOP).
type RedisQueue struct {
	Rdb *redis.Client
	Key string
}

func (q *RedisQueue) key() string {
	if q.Key != "" {
		return q.Key
	}
	return DefaultQueueKey
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobs ...RegenerationJob) error {
	if len(jobs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(jobs))
	for _, j := range jobs {
		b, err := json.Marshal(j)
		if err != nil {
			return err
		}
		values = append(values, b)
	}
	if err := q.Rdb.LPush(ctx, q.key(), values...).Err(); err != nil {
		return fmt.Errorf("enqueue regeneration: %w", err)
	}
	return nil
}

// Dequeue pops up to n jobs, oldest first. Undecodable entries are dropped.
func (q *RedisQueue) Dequeue(ctx context.Context, n int) ([]RegenerationJob, error) {
	jobs := make([]RegenerationJob, 0, n)
	for len(jobs) < n {
		raw, err := q.Rdb.RPop(ctx, q.key()).Bytes()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return jobs, fmt.Errorf("dequeue regeneration: %w", err)
		}
		var j RegenerationJob
		if err := json.Unmarshal(raw, &j); err != nil || j.CertificateID == uuid.Nil {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.Rdb.LLen(ctx, q.key()).Result()
}
