// Package queue хранит события вовлечённости между API и единственным обработчиком.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/metrics"
)

var _ domain.EngagementQueue = (*RedisEngagementQueue)(nil)

const popWait = time.Second

// RedisEngagementQueue — очередь на списке Redis: LPUSH при постановке,
// BRPOP при чтении. Записи, которые нельзя разобрать в задачу, уходят
// в список <key>:dead и не останавливают обработчика.
type RedisEngagementQueue struct {
	client  *redis.Client
	key     string
	deadKey string
	now     func() time.Time
}

// NewRedisEngagementQueue создаёт очередь по ключу key.
func NewRedisEngagementQueue(client *redis.Client, key string) *RedisEngagementQueue {
	return &RedisEngagementQueue{client: client, key: key, deadKey: key + ":dead", now: time.Now}
}

// Enqueue ставит задачу в очередь. Пустой RequestedAt заполняется текущим временем.
func (q *RedisEngagementQueue) Enqueue(ctx context.Context, job domain.EngagementJob) error {
	if job.RequestedAt.IsZero() {
		job.RequestedAt = q.now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("engagement queue: marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "enqueue_engagement", q.key, start, err)
	if err != nil {
		return fmt.Errorf("engagement queue: push: %w", err)
	}
	return nil
}

// Pop блокируется до появления разбираемой задачи или отмены ctx.
func (q *RedisEngagementQueue) Pop(ctx context.Context) (domain.EngagementJob, error) {
	for {
		raw, err := q.next(ctx)
		if err != nil {
			return domain.EngagementJob{}, err
		}
		job, err := decodeJob(raw)
		if err == nil {
			return job, nil
		}
		if err := q.client.LPush(ctx, q.deadKey, raw).Err(); err != nil {
			return domain.EngagementJob{}, fmt.Errorf("engagement queue: dead-letter: %w", err)
		}
		metrics.IncDeadLetter()
	}
}

// Len возвращает число ожидающих задач.
func (q *RedisEngagementQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisEngagementQueue) next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res, err := q.client.BRPop(ctx, popWait, q.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("engagement queue: pop: %w", err)
		case len(res) != 2:
			return "", fmt.Errorf("engagement queue: unexpected BRPOP reply of %d elements", len(res))
		}
		return res[1], nil
	}
}

// decodeJob разбирает задачу. Задача без content_id считается нечитаемой:
// записать такое событие нельзя.
func decodeJob(raw string) (domain.EngagementJob, error) {
	var job domain.EngagementJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return domain.EngagementJob{}, fmt.Errorf("decode job: %w", err)
	}
	if strings.TrimSpace(job.Event.ContentID) == "" {
		return domain.EngagementJob{}, errors.New("decode job: пустой content_id")
	}
	return job, nil
}
