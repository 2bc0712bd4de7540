package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"atlas-feed/internal/app"
	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/config"
	applog "atlas-feed/internal/infra/log"
	"atlas-feed/internal/infra/metrics"
	"atlas-feed/internal/infra/queue"
	"atlas-feed/internal/usecase/engagement"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("worker: не указан адрес Redis (REDIS_ADDR)")
	}
	rdb, err := app.Redis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к Redis")
	}
	defer rdb.Close()

	prefStore, closeStore, err := app.Store(ctx, cfg, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось открыть хранилище настроек")
	}
	defer closeStore()

	jobs := queue.NewRedisEngagementQueue(rdb, cfg.Queues.Engagement)
	w := &jobWorker{
		log:     applog.Component(logger, "worker"),
		queue:   jobs,
		depth:   jobs,
		service: engagement.NewService(prefStore, applog.Component(logger, "engagement")),
	}

	logger.Info().Str("queue", cfg.Queues.Engagement).Msg("worker: запуск обработки очереди")
	w.Run(ctx)
	logger.Info().Msg("worker: остановлен")
}

// jobWorker — единственный потребитель очереди, последовательно пишущий историю.
type jobWorker struct {
	log     zerolog.Logger
	queue   domain.EngagementQueue
	depth   queueLen
	service *engagement.Service
}

type queueLen interface {
	Len(ctx context.Context) (int64, error)
}

func (w *jobWorker) Run(ctx context.Context) {
	w.reportDepth(ctx)
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}
		w.handle(ctx, job)
		w.reportDepth(ctx)
	}
}

// reportDepth обновляет метрику длины очереди.
func (w *jobWorker) reportDepth(ctx context.Context) {
	if w.depth == nil {
		return
	}
	n, err := w.depth.Len(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("worker: не удалось узнать длину очереди")
		}
		return
	}
	metrics.SetQueueDepth(n)
}

func (w *jobWorker) handle(ctx context.Context, job domain.EngagementJob) {
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Str("content_id", job.Event.ContentID).
		Str("type", string(job.Event.Type)).
		Logger()

	recorded, err := w.service.RecordEngagement(ctx, job.Event)
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		jobLog.Warn().Err(err).Msg("worker: некорректное событие, пропускаем")
	case err != nil:
		jobLog.Error().Err(err).Msg("worker: не удалось записать событие")
	case !recorded:
		jobLog.Debug().Msg("worker: история отключена, событие пропущено")
	default:
		jobLog.Debug().Dur("lag", time.Since(job.RequestedAt)).Msg("worker: событие записано")
	}
}
