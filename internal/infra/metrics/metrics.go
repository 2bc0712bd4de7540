package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FeedBuildSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_build_seconds",
		Help:    "Время построения ленты",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	FeedRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_requests_total",
		Help: "Количество запросов ленты по режиму и исходу",
	}, []string{"mode", "outcome"})

	ProviderFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_failures_total",
		Help: "Отказы провайдеров по виду ошибки",
	}, []string{"provider", "kind"})

	EngagementEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_events_total",
		Help: "Записанные события вовлечённости",
	}, []string{"type"})

	EngagementQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engagement_queue_depth",
		Help: "Необработанные события в очереди вовлечённости",
	})

	EngagementDeadLettersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engagement_dead_letters_total",
		Help: "Нечитаемые задачи, перенесённые из очереди вовлечённости",
	})

	ResponseCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "response_cache_total",
		Help: "Обращения к кэшу ответов провайдеров",
	}, []string{"result"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedBuildSeconds,
		FeedRequestsTotal,
		ProviderFailuresTotal,
		EngagementEventsTotal,
		EngagementQueueDepth,
		EngagementDeadLettersTotal,
		ResponseCacheTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveFeedBuild фиксирует длительность и исход построения ленты.
func ObserveFeedBuild(mode string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	FeedBuildSeconds.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	FeedRequestsTotal.WithLabelValues(mode, outcome).Inc()
}

// IncProviderFailure увеличивает счётчик отказов провайдера.
func IncProviderFailure(provider, kind string) {
	ProviderFailuresTotal.WithLabelValues(provider, kind).Inc()
}

// IncEngagement увеличивает счётчик событий вовлечённости.
func IncEngagement(kind string) {
	EngagementEventsTotal.WithLabelValues(kind).Inc()
}

// ObserveCache фиксирует попадание или промах кэша.
func ObserveCache(hit bool) {
	if hit {
		ResponseCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	ResponseCacheTotal.WithLabelValues("miss").Inc()
}

// SetQueueDepth фиксирует длину очереди вовлечённости.
func SetQueueDepth(n int64) {
	EngagementQueueDepth.Set(float64(n))
}

// IncDeadLetter учитывает задачу, ушедшую в список нечитаемых.
func IncDeadLetter() {
	EngagementDeadLettersTotal.Inc()
}
