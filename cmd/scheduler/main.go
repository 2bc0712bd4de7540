package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"atlas-feed/internal/app"
	"atlas-feed/internal/infra/cache"
	"atlas-feed/internal/infra/config"
	applog "atlas-feed/internal/infra/log"
	"atlas-feed/internal/infra/metrics"
	"atlas-feed/internal/usecase/engagement"
	"atlas-feed/internal/usecase/feed"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	rdb, err := app.Redis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}
	responses, err := app.ResponseCache(cfg, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать кэш ответов")
	}
	prefStore, closeStore, err := app.Store(ctx, cfg, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось открыть хранилище настроек")
	}
	defer closeStore()

	s := &scheduler{
		log:        applog.Component(logger, "scheduler"),
		feed:       feed.NewService(app.Providers(cfg, responses, logger), applog.Component(logger, "feed"), cfg.FeedTimeout),
		engagement: engagement.NewService(prefStore, applog.Component(logger, "engagement")),
	}
	// Несколько экземпляров планировщика не должны обучать профиль одновременно.
	if rdb != nil {
		s.locks = cache.NewRedis(rdb, "atlas:scheduler:")
	}

	doLearn, doWarm := tasksFor(cfg)
	if !doLearn {
		logger.Info().Str("store_backend", cfg.Store.Backend).Msg("scheduler: хранилище процесса-локальное, обучение профиля пропускается")
	}
	if !doWarm {
		logger.Info().Str("cache_backend", cfg.Cache.Backend).Msg("scheduler: кэш ответов процесса-локальный, прогрев пропускается")
	}
	if !doLearn && !doWarm {
		logger.Info().Msg("scheduler: нет задач для общих хранилищ, выходим")
		return
	}

	var learnC, warmC <-chan time.Time
	if doLearn {
		t := time.NewTicker(cfg.Scheduler.LearnInterval)
		defer t.Stop()
		learnC = t.C
	}
	if doWarm {
		t := time.NewTicker(cfg.Scheduler.WarmInterval)
		defer t.Stop()
		warmC = t.C
		s.warm(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case <-learnC:
			s.runOnce(ctx, "learn", cfg.Scheduler.LearnInterval, s.learn)
		case <-warmC:
			s.runOnce(ctx, "warm", cfg.Scheduler.WarmInterval, func(ctx context.Context) error {
				s.warm(ctx)
				return nil
			})
		}
	}
}

// tasksFor решает, какие задачи имеют смысл при выбранных бэкендах.
// Обучение полезно только при общем хранилище настроек, прогрев только
// при общем кэше ответов: процесс-локальные копии API их не увидит.
func tasksFor(cfg config.AppConfig) (learn, warm bool) {
	switch cfg.Store.Backend {
	case app.BackendRedis, app.BackendPostgres:
		learn = true
	}
	warm = cfg.Cache.Backend == app.BackendRedis
	return learn, warm
}

type scheduler struct {
	log        zerolog.Logger
	feed       *feed.Service
	engagement *engagement.Service
	locks      *cache.RedisCache
}

func (s *scheduler) runOnce(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	if s.locks == nil {
		if err := fn(ctx); err != nil {
			s.log.Error().Err(err).Str("task", name).Msg("scheduler: задача завершилась ошибкой")
		}
		return
	}
	// Ключ живёт чуть меньше интервала, чтобы следующий тик снова мог его занять.
	ttl := interval - interval/10
	if err := s.locks.Once(ctx, name, ttl, func() error { return fn(ctx) }); err != nil {
		s.log.Error().Err(err).Str("task", name).Msg("scheduler: задача завершилась ошибкой")
	}
}

func (s *scheduler) learn(ctx context.Context) error {
	prefs, changed, err := s.engagement.LearnPreferences(ctx)
	if err != nil {
		return err
	}
	if changed {
		s.log.Info().Interface("topics", prefs.Topics).Msg("scheduler: темы профиля обновлены")
	}
	return nil
}

// warm прогревает кэш ответов трендов.
func (s *scheduler) warm(ctx context.Context) {
	page, err := s.feed.GetTrending(ctx, 0)
	if err != nil {
		s.log.Warn().Err(err).Msg("scheduler: не удалось прогреть тренды")
		return
	}
	s.log.Debug().Int("items", page.Total).Msg("scheduler: тренды прогреты")
}
