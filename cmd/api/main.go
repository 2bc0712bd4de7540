package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"atlas-feed/internal/adapters/httpapi"
	"atlas-feed/internal/app"
	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/config"
	httpinfra "atlas-feed/internal/infra/http"
	applog "atlas-feed/internal/infra/log"
	"atlas-feed/internal/infra/metrics"
	"atlas-feed/internal/infra/queue"
	"atlas-feed/internal/usecase/engagement"
	"atlas-feed/internal/usecase/feed"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := app.Redis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	responses, err := app.ResponseCache(cfg, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось создать кэш ответов")
	}
	prefStore, closeStore, err := app.Store(ctx, cfg, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось открыть хранилище настроек")
	}
	defer closeStore()

	var jobs domain.EngagementQueue
	if rdb != nil {
		jobs = queue.NewRedisEngagementQueue(rdb, cfg.Queues.Engagement)
		logger.Info().Str("queue", cfg.Queues.Engagement).Msg("api: события вовлечённости идут через очередь")
	}

	feedService := feed.NewService(app.Providers(cfg, responses, logger), applog.Component(logger, "feed"), cfg.FeedTimeout)
	engagementService := engagement.NewService(prefStore, applog.Component(logger, "engagement"))

	server := httpinfra.NewServer(applog.Component(logger, "http"), cfg.FeedTimeout+5*time.Second)
	httpapi.New(httpapi.Deps{
		Feed:       feedService,
		Store:      prefStore,
		Engagement: engagementService,
		Queue:      jobs,
		Logger:     applog.Component(logger, "httpapi"),
	}).Mount(server.Router)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: ошибка остановки сервера")
		}
	}()

	if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("api: сервер завершился с ошибкой")
	}
	logger.Info().Msg("api: остановлен")
}
