package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/metrics"
)

const maxTxRetries = 32

// kv — общая часть redis.Client и redis.Tx, которой достаточно для чтения и записи.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

var _ domain.PreferenceStore = (*Redis)(nil)

// Redis хранит профиль в трёх JSON-ключах: настройки, история и избранное.
// Изменения идут через WATCH/MULTI, поэтому конкурентные записи не теряются.
type Redis struct {
	client       *redis.Client
	prefsKey     string
	historyKey   string
	favoritesKey string
	now          func() time.Time
	log          zerolog.Logger
}

// NewRedis создаёт хранилище профиля profile.
func NewRedis(client *redis.Client, profile string, logger zerolog.Logger) *Redis {
	prefix := "atlas:" + profile + ":"
	return &Redis{
		client:       client,
		prefsKey:     prefix + "preferences",
		historyKey:   prefix + "history",
		favoritesKey: prefix + "favorites",
		now:          time.Now,
		log:          logger,
	}
}

// Load читает настройки; отсутствие или порча записи дают значения по умолчанию.
func (r *Redis) Load(ctx context.Context) domain.UserPreferences {
	prefs, err := r.readPreferences(ctx, r.client)
	if err != nil {
		r.log.Error().Err(err).Msg("store: не удалось прочитать настройки, используются значения по умолчанию")
		return domain.DefaultPreferences(r.now().UTC())
	}
	return prefs
}

// Save применяет патч в оптимистичной транзакции.
func (r *Redis) Save(ctx context.Context, patch domain.PreferencesPatch) (domain.UserPreferences, error) {
	if err := patch.Validate(); err != nil {
		return domain.UserPreferences{}, err
	}
	var updated domain.UserPreferences
	err := r.update(ctx, "save_preferences", r.prefsKey, func(tx *redis.Tx) (any, error) {
		current, err := r.readPreferences(ctx, tx)
		if err != nil {
			r.log.Error().Err(err).Msg("store: повреждённые настройки перезаписываются")
			current = domain.DefaultPreferences(r.now().UTC())
		}
		updated = current.Apply(patch, r.now().UTC())
		return updated, nil
	})
	if err != nil {
		return domain.UserPreferences{}, err
	}
	return updated, nil
}

// Reset перезаписывает настройки значениями по умолчанию.
func (r *Redis) Reset(ctx context.Context) (domain.UserPreferences, error) {
	def := domain.DefaultPreferences(r.now().UTC())
	start := time.Now()
	err := r.setJSON(ctx, r.client, r.prefsKey, def)
	metrics.ObserveNetworkRequest("redis", "reset_preferences", "preferences", start, err)
	if err != nil {
		return domain.UserPreferences{}, err
	}
	return def, nil
}

// LoadHistory возвращает последние limit записей истории.
func (r *Redis) LoadHistory(ctx context.Context, limit int) []domain.HistoryEntry {
	history, err := r.readHistory(ctx, r.client)
	if err != nil {
		r.log.Error().Err(err).Msg("store: не удалось прочитать историю")
		return []domain.HistoryEntry{}
	}
	return domain.LimitHistory(history, limit)
}

// AppendHistory ставит запись в начало истории.
func (r *Redis) AppendHistory(ctx context.Context, entry domain.HistoryEntry) error {
	return r.update(ctx, "append_history", r.historyKey, func(tx *redis.Tx) (any, error) {
		history, err := r.readHistory(ctx, tx)
		if err != nil {
			r.log.Error().Err(err).Msg("store: повреждённая история перезаписывается")
			history = nil
		}
		return domain.PrependHistory(history, entry, domain.HistoryLimit), nil
	})
}

// ClearHistory удаляет историю.
func (r *Redis) ClearHistory(ctx context.Context) error {
	start := time.Now()
	err := r.client.Del(ctx, r.historyKey).Err()
	metrics.ObserveNetworkRequest("redis", "clear_history", "history", start, err)
	if err != nil {
		return fmt.Errorf("redis store: clear history: %w", err)
	}
	return nil
}

// LoadFavorites возвращает избранное.
func (r *Redis) LoadFavorites(ctx context.Context) []string {
	var ids []string
	found, err := r.getJSON(ctx, r.client, r.favoritesKey, &ids)
	if err != nil {
		r.log.Error().Err(err).Msg("store: не удалось прочитать избранное")
		return []string{}
	}
	if !found || ids == nil {
		return []string{}
	}
	return ids
}

// SaveFavorites заменяет список избранного.
func (r *Redis) SaveFavorites(ctx context.Context, ids []string) error {
	start := time.Now()
	err := r.setJSON(ctx, r.client, r.favoritesKey, capFavorites(ids))
	metrics.ObserveNetworkRequest("redis", "save_favorites", "favorites", start, err)
	return err
}

// update читает ключ под WATCH, вычисляет новое значение и пишет его в MULTI.
// При конфликте попытка повторяется.
func (r *Redis) update(ctx context.Context, operation, key string, compute func(tx *redis.Tx) (any, error)) error {
	start := time.Now()
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = r.client.Watch(ctx, func(tx *redis.Tx) error {
			value, err := compute(tx)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("redis store: marshal %s: %w", key, err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		r.log.Debug().Str("key", key).Int("attempt", attempt+1).Msg("store: конфликт транзакции, повтор")
	}
	metrics.ObserveNetworkRequest("redis", operation, key, start, err)
	if err != nil {
		return fmt.Errorf("redis store: %s: %w", operation, err)
	}
	return nil
}

func (r *Redis) readPreferences(ctx context.Context, c kv) (domain.UserPreferences, error) {
	var prefs domain.UserPreferences
	found, err := r.getJSON(ctx, c, r.prefsKey, &prefs)
	if err != nil {
		return domain.UserPreferences{}, err
	}
	if !found {
		return domain.DefaultPreferences(r.now().UTC()), nil
	}
	return prefs.Normalize(r.now().UTC()), nil
}

func (r *Redis) readHistory(ctx context.Context, c kv) ([]domain.HistoryEntry, error) {
	var history []domain.HistoryEntry
	if _, err := r.getJSON(ctx, c, r.historyKey, &history); err != nil {
		return nil, err
	}
	if history == nil {
		history = []domain.HistoryEntry{}
	}
	return history, nil
}

func (r *Redis) getJSON(ctx context.Context, c kv, key string, v any) (bool, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis store: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("redis store: decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) setJSON(ctx context.Context, c kv, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis store: marshal %s: %w", key, err)
	}
	if err := c.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis store: set %s: %w", key, err)
	}
	return nil
}
