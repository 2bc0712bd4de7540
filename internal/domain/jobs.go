package domain

import (
	"context"
	"time"
)

// EngagementEvent — взаимодействие пользователя с элементом ленты.
type EngagementEvent struct {
	ContentID string         `json:"content_id"`
	Provider  Provider       `json:"provider"`
	Topics    []Topic        `json:"topics"`
	Type      EngagementType `json:"type"`

	// TimeSpentMs — время просмотра в миллисекундах, 0 если неизвестно.
	TimeSpentMs int64 `json:"time_spent_ms,omitempty"`
}

// EngagementJob содержит событие вовлечённости, поставленное в очередь.
type EngagementJob struct {
	ID          string          `json:"job_id,omitempty"`
	Event       EngagementEvent `json:"event"`
	RequestedAt time.Time       `json:"requested_at"`
}

// EngagementQueue — очередь событий вовлечённости с единственным потребителем,
// который последовательно пишет в хранилище.
type EngagementQueue interface {
	Enqueue(ctx context.Context, job EngagementJob) error
	Pop(ctx context.Context) (EngagementJob, error)
}
