package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"atlas-feed/internal/adapters/store"
	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/cache"
	"atlas-feed/internal/infra/config"
	applog "atlas-feed/internal/infra/log"
)

func testConfig() config.AppConfig {
	var cfg config.AppConfig
	cfg.Upstream.Timeout = time.Second
	cfg.News.CacheTTL = 5 * time.Minute
	cfg.TMDB.CacheTTL = time.Hour
	cfg.Reddit.CacheTTL = 5 * time.Minute
	cfg.Reddit.UserAgent = "atlas-test"
	cfg.Store.Profile = "test"
	return cfg
}

func TestProvidersOrder(t *testing.T) {
	cfg := testConfig()
	providers := Providers(cfg, cache.NewMemory(8, time.Minute), zerolog.Nop())
	require.Len(t, providers, 3)
	for i, p := range providers {
		require.Equal(t, domain.AllProviders[i], p.Name())
	}
}

func TestMemoryBackends(t *testing.T) {
	cfg := testConfig()
	responses, err := ResponseCache(cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &cache.MemoryCache{}, responses)

	s, closeFn, err := Store(context.Background(), cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &store.Memory{}, s)
}

func TestRedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.Cache.Backend = BackendRedis
	cfg.Store.Backend = BackendRedis

	rdb, err := Redis(context.Background(), cfg)
	require.NoError(t, err)
	defer rdb.Close()

	responses, err := ResponseCache(cfg, rdb)
	require.NoError(t, err)
	require.IsType(t, &cache.RedisCache{}, responses)

	s, closeFn, err := Store(context.Background(), cfg, rdb, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &store.Redis{}, s)
}

func TestBackendErrors(t *testing.T) {
	cfg := testConfig()

	rdb, err := Redis(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, rdb)

	cfg.Cache.Backend = BackendRedis
	_, err = ResponseCache(cfg, nil)
	require.Error(t, err)

	cfg.Cache.Backend = "disk"
	_, err = ResponseCache(cfg, nil)
	require.Error(t, err)

	cfg.Store.Backend = BackendRedis
	_, _, err = Store(context.Background(), cfg, nil, zerolog.Nop())
	require.Error(t, err)

	cfg.Store.Backend = BackendPostgres
	_, _, err = Store(context.Background(), cfg, nil, zerolog.Nop())
	require.Error(t, err, "пустой PG_DSN должен давать ошибку")
}

func TestMaxTTL(t *testing.T) {
	require.Equal(t, time.Hour, maxTTL(testConfig()))
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache is read-only")
}

func TestProvidersLogThroughComponentLogger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","totalResults":0,"articles":[]}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.News.APIKey = "key"
	cfg.News.BaseURL = srv.URL

	var buf bytes.Buffer
	providers := Providers(cfg, brokenCache{}, applog.NewLoggerTo(&buf, "prod"))
	res := providers[0].FetchTrending(context.Background(), domain.FetchOptions{})
	require.True(t, res.OK, "ожидали успех: %s", res.Message)

	out := buf.String()
	require.Contains(t, out, "cache is read-only")
	require.True(t, strings.Contains(out, `"component":"newsapi"`), "ожидали поле component в логе: %s", out)
}
