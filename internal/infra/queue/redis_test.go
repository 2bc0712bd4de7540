package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"atlas-feed/internal/domain"
)

func newQueue(t *testing.T) (*RedisEngagementQueue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("не удалось запустить miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisEngagementQueue(client, "jobs"), mr
}

func TestEnqueuePopFIFO(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	first := domain.EngagementJob{ID: "1", Event: domain.EngagementEvent{ContentID: "news:a", Type: domain.EngagementView}}
	second := domain.EngagementJob{ID: "2", Event: domain.EngagementEvent{ContentID: "news:b", Type: domain.EngagementClick}}
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", got.ID)
	require.Equal(t, domain.EngagementView, got.Event.Type)

	got, err = q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "news:b", got.Event.ContentID)
}

func TestPopHonorsCancel(t *testing.T) {
	q, _ := newQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.Error(t, err)
}

func TestPopMovesUnreadableJobsAside(t *testing.T) {
	q, mr := newQueue(t)
	ctx := context.Background()
	_, err := mr.Lpush("jobs", "{not json")
	require.NoError(t, err)
	_, err = mr.Lpush("jobs", `{"job_id":"x","event":{"type":"view"}}`)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, domain.EngagementJob{ID: "ok", Event: domain.EngagementEvent{ContentID: "news:a", Type: domain.EngagementView}}))

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", got.ID)
	require.False(t, got.RequestedAt.IsZero(), "Enqueue проставляет время постановки")

	dead, err := mr.List("jobs:dead")
	require.NoError(t, err)
	require.Len(t, dead, 2)
	require.Contains(t, dead, "{not json")

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
