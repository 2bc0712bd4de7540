package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string        `envconfig:"APP_ENV" default:"dev"`
	Port        int           `envconfig:"PORT" default:"8080"`
	MetricsAddr string        `envconfig:"METRICS_ADDR" default:":9090"`
	FeedTimeout time.Duration `envconfig:"FEED_TIMEOUT" default:"30s"`

	Upstream struct {
		Timeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s"`
	} `envconfig:""`

	News struct {
		APIKey   string        `envconfig:"NEWS_API_KEY"`
		BaseURL  string        `envconfig:"NEWS_API_BASE_URL" default:"https://newsapi.org/v2"`
		Country  string        `envconfig:"NEWS_COUNTRY" default:"us"`
		Delay    time.Duration `envconfig:"NEWS_DELAY" default:"1s"`
		CacheTTL time.Duration `envconfig:"NEWS_CACHE_TTL" default:"5m"`
	} `envconfig:""`

	TMDB struct {
		APIKey       string        `envconfig:"TMDB_API_KEY"`
		BaseURL      string        `envconfig:"TMDB_BASE_URL" default:"https://api.themoviedb.org/3"`
		ImageBaseURL string        `envconfig:"TMDB_IMAGE_BASE_URL" default:"https://image.tmdb.org/t/p"`
		Delay        time.Duration `envconfig:"TMDB_DELAY" default:"250ms"`
		CacheTTL     time.Duration `envconfig:"TMDB_CACHE_TTL" default:"1h"`
	} `envconfig:""`

	Reddit struct {
		BaseURL   string        `envconfig:"REDDIT_BASE_URL" default:"https://www.reddit.com"`
		UserAgent string        `envconfig:"REDDIT_USER_AGENT" default:"atlas-feed/1.0"`
		Sort      string        `envconfig:"REDDIT_SORT" default:"hot"`
		Delay     time.Duration `envconfig:"REDDIT_DELAY" default:"1s"`
		CacheTTL  time.Duration `envconfig:"REDDIT_CACHE_TTL" default:"5m"`
	} `envconfig:""`

	Store struct {
		Backend string `envconfig:"STORE_BACKEND" default:"memory"`
		Profile string `envconfig:"STORE_PROFILE" default:"default"`
	} `envconfig:""`

	Cache struct {
		Backend string `envconfig:"CACHE_BACKEND" default:"memory"`
		Size    int    `envconfig:"CACHE_SIZE" default:"512"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Queues struct {
		Engagement string `envconfig:"ENGAGEMENT_QUEUE_KEY" default:"atlas:engagement_jobs"`
	} `envconfig:""`

	Scheduler struct {
		LearnInterval time.Duration `envconfig:"LEARN_INTERVAL" default:"1h"`
		WarmInterval  time.Duration `envconfig:"WARM_INTERVAL" default:"5m"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения, не завершая процесс при ошибке.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
