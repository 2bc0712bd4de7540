package domain

import (
	"context"
	"time"
)

// ContentProvider адаптирует один внешний источник к каноническому контенту.
// Методы не возвращают ошибок: отказ выражается в ProviderResult.
type ContentProvider interface {
	Name() Provider
	FetchByNativeQuery(ctx context.Context, query string, opts FetchOptions) ProviderResult
	FetchTrending(ctx context.Context, opts FetchOptions) ProviderResult
	FetchByTopics(ctx context.Context, topics []Topic, opts FetchOptions) ProviderResult
	Search(ctx context.Context, query string, opts FetchOptions) ProviderResult
}

// PreferenceStore хранит настройки, историю и избранное единственного профиля.
// Ошибки чтения не пробрасываются: возвращаются значения по умолчанию.
// Сериализацию конкурентных записей обеспечивает реализация.
type PreferenceStore interface {
	Load(ctx context.Context) UserPreferences
	Save(ctx context.Context, patch PreferencesPatch) (UserPreferences, error)
	Reset(ctx context.Context) (UserPreferences, error)
	LoadHistory(ctx context.Context, limit int) []HistoryEntry
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	ClearHistory(ctx context.Context) error
	LoadFavorites(ctx context.Context) []string
	SaveFavorites(ctx context.Context, ids []string) error
}

// FeedService строит ленты.
type FeedService interface {
	GetFeed(ctx context.Context, req FeedRequest) (FeedPage, error)
	GetTrending(ctx context.Context, pageSize int) (FeedPage, error)
	Search(ctx context.Context, query string, providers []Provider, pageSize int) (FeedPage, error)
}

// FeedRequest — параметры построения персональной ленты.
type FeedRequest struct {
	Preferences UserPreferences
	Page        int
	PageSize    int
	Sort        SortStrategy
	Providers   []Provider
}

// Cache используется для простых TTL-хранилищ сырых ответов.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
