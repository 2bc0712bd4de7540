// Package app собирает зависимости, общие для api, worker и scheduler.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"atlas-feed/internal/adapters/newsapi"
	"atlas-feed/internal/adapters/reddit"
	"atlas-feed/internal/adapters/store"
	"atlas-feed/internal/adapters/tmdb"
	"atlas-feed/internal/adapters/upstream"
	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/cache"
	"atlas-feed/internal/infra/config"
	"atlas-feed/internal/infra/db"
	applog "atlas-feed/internal/infra/log"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Redis возвращает клиента Redis или nil, если REDIS_ADDR не задан.
func Redis(ctx context.Context, cfg config.AppConfig) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// ResponseCache выбирает кэш сырых ответов по CACHE_BACKEND.
func ResponseCache(cfg config.AppConfig, rdb *redis.Client) (domain.Cache, error) {
	switch cfg.Cache.Backend {
	case "", BackendMemory:
		return cache.NewMemory(cfg.Cache.Size, maxTTL(cfg)), nil
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("CACHE_BACKEND=redis требует REDIS_ADDR")
		}
		return cache.NewRedis(rdb, "atlas:upstream:"), nil
	default:
		return nil, fmt.Errorf("неизвестный CACHE_BACKEND %q", cfg.Cache.Backend)
	}
}

func maxTTL(cfg config.AppConfig) (ttl time.Duration) {
	for _, candidate := range []time.Duration{cfg.News.CacheTTL, cfg.TMDB.CacheTTL, cfg.Reddit.CacheTTL} {
		if candidate > ttl {
			ttl = candidate
		}
	}
	return ttl
}

// Providers создаёт адаптеры всех трёх источников. Отсутствующие ключи не
// мешают старту: адаптер вернёт configuration_error при запросе.
func Providers(cfg config.AppConfig, responses domain.Cache, logger zerolog.Logger) []domain.ContentProvider {
	client := func(component string) *upstream.Client {
		return upstream.NewClient(component, cfg.Upstream.Timeout,
			upstream.WithCache(responses),
			upstream.WithLogger(applog.Component(logger, component)),
		)
	}
	return []domain.ContentProvider{
		newsapi.New(newsapi.Config{
			APIKey:   cfg.News.APIKey,
			BaseURL:  cfg.News.BaseURL,
			Country:  cfg.News.Country,
			Delay:    cfg.News.Delay,
			CacheTTL: cfg.News.CacheTTL,
		}, client("newsapi"), applog.Component(logger, "newsapi")),
		tmdb.New(tmdb.Config{
			APIKey:       cfg.TMDB.APIKey,
			BaseURL:      cfg.TMDB.BaseURL,
			ImageBaseURL: cfg.TMDB.ImageBaseURL,
			Delay:        cfg.TMDB.Delay,
			CacheTTL:     cfg.TMDB.CacheTTL,
		}, client("tmdb"), applog.Component(logger, "tmdb")),
		reddit.New(reddit.Config{
			BaseURL:   cfg.Reddit.BaseURL,
			UserAgent: cfg.Reddit.UserAgent,
			Sort:      cfg.Reddit.Sort,
			Delay:     cfg.Reddit.Delay,
			CacheTTL:  cfg.Reddit.CacheTTL,
		}, client("reddit"), applog.Component(logger, "reddit")),
	}
}

// Store открывает хранилище настроек по STORE_BACKEND. Возвращаемая функция
// освобождает ресурсы хранилища.
func Store(ctx context.Context, cfg config.AppConfig, rdb *redis.Client, logger zerolog.Logger) (domain.PreferenceStore, func(), error) {
	logger = applog.Component(logger, "store")
	switch cfg.Store.Backend {
	case "", BackendMemory:
		return store.NewMemory(), func() {}, nil
	case BackendRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("STORE_BACKEND=redis требует REDIS_ADDR")
		}
		return store.NewRedis(rdb, cfg.Store.Profile, logger), func() {}, nil
	case BackendPostgres:
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(pool, cfg.Store.Profile, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("неизвестный STORE_BACKEND %q", cfg.Store.Backend)
	}
}
