package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/metrics"
)

// DB — часть pgxpool.Pool, которой пользуется хранилище.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS feed_preferences (
	profile    TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS feed_favorites (
	profile    TEXT PRIMARY KEY,
	ids        JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS feed_history (
	id          BIGSERIAL PRIMARY KEY,
	profile     TEXT NOT NULL,
	content_id  TEXT NOT NULL,
	entry       JSONB NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	UNIQUE (profile, content_id)
);
CREATE INDEX IF NOT EXISTS feed_history_profile_id_idx ON feed_history (profile, id DESC);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var _ domain.PreferenceStore = (*Postgres)(nil)

// Postgres хранит профиль в трёх таблицах. История упорядочена по id:
// повторная запись элемента удаляет старую строку и вставляет новую.
type Postgres struct {
	db      DB
	profile string
	now     func() time.Time
	log     zerolog.Logger
}

// NewPostgres создаёт хранилище профиля profile.
func NewPostgres(db DB, profile string, logger zerolog.Logger) *Postgres {
	return &Postgres{db: db, profile: profile, now: time.Now, log: logger}
}

// EnsureSchema создаёт таблицы, если их нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres store: ensure schema: %w", err)
	}
	return nil
}

// Load читает настройки; при ошибке возвращает значения по умолчанию.
func (p *Postgres) Load(ctx context.Context) domain.UserPreferences {
	start := time.Now()
	prefs, err := p.readPreferences(ctx, p.db, false)
	metrics.ObserveNetworkRequest("postgres", "load_preferences", "feed_preferences", start, err)
	if err != nil {
		p.log.Error().Err(err).Msg("store: не удалось прочитать настройки, используются значения по умолчанию")
		return domain.DefaultPreferences(p.now().UTC())
	}
	return prefs
}

// Save применяет патч под блокировкой строки профиля.
func (p *Postgres) Save(ctx context.Context, patch domain.PreferencesPatch) (updated domain.UserPreferences, err error) {
	if err := patch.Validate(); err != nil {
		return domain.UserPreferences{}, err
	}
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("postgres", "save_preferences", "feed_preferences", start, err) }()

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return domain.UserPreferences{}, fmt.Errorf("postgres store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := p.readPreferences(ctx, tx, true)
	if err != nil {
		p.log.Error().Err(err).Msg("store: повреждённые настройки перезаписываются")
		current = domain.DefaultPreferences(p.now().UTC())
	}
	updated = current.Apply(patch, p.now().UTC())
	if err := p.writePreferences(ctx, tx, updated); err != nil {
		return domain.UserPreferences{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.UserPreferences{}, fmt.Errorf("postgres store: commit: %w", err)
	}
	return updated, nil
}

// Reset перезаписывает настройки значениями по умолчанию.
func (p *Postgres) Reset(ctx context.Context) (domain.UserPreferences, error) {
	def := domain.DefaultPreferences(p.now().UTC())
	start := time.Now()
	err := p.writePreferences(ctx, p.db, def)
	metrics.ObserveNetworkRequest("postgres", "reset_preferences", "feed_preferences", start, err)
	if err != nil {
		return domain.UserPreferences{}, err
	}
	return def, nil
}

// LoadHistory возвращает последние limit записей, свежие первыми.
func (p *Postgres) LoadHistory(ctx context.Context, limit int) []domain.HistoryEntry {
	if limit <= 0 || limit > domain.HistoryLimit {
		limit = domain.HistoryLimit
	}
	start := time.Now()
	history, err := p.queryHistory(ctx, limit)
	metrics.ObserveNetworkRequest("postgres", "load_history", "feed_history", start, err)
	if err != nil {
		p.log.Error().Err(err).Msg("store: не удалось прочитать историю")
		return []domain.HistoryEntry{}
	}
	return history
}

func (p *Postgres) queryHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	query, args, err := psql.Select("entry").
		From("feed_history").
		Where(sq.Eq{"profile": p.profile}).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres store: build history query: %w", err)
	}
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.HistoryEntry, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres store: scan history: %w", err)
		}
		var entry domain.HistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("postgres store: decode history: %w", err)
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate history: %w", err)
	}
	return history, nil
}

// AppendHistory переносит элемент в начало истории и обрезает её до domain.HistoryLimit.
func (p *Postgres) AppendHistory(ctx context.Context, entry domain.HistoryEntry) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("postgres", "append_history", "feed_history", start, err) }()

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("postgres store: marshal history entry: %w", err)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	del, delArgs, err := psql.Delete("feed_history").
		Where(sq.Eq{"profile": p.profile, "content_id": entry.ContentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres store: build delete: %w", err)
	}
	if _, err := tx.Exec(ctx, del, delArgs...); err != nil {
		return fmt.Errorf("postgres store: delete previous entry: %w", err)
	}

	ins, insArgs, err := psql.Insert("feed_history").
		Columns("profile", "content_id", "entry", "occurred_at").
		Values(p.profile, entry.ContentID, payload, entry.OccurredAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres store: build insert: %w", err)
	}
	if _, err := tx.Exec(ctx, ins, insArgs...); err != nil {
		return fmt.Errorf("postgres store: insert entry: %w", err)
	}

	// Подзапрос строится с плейсхолдерами "?", их пронумерует внешний запрос.
	keep := sq.Select("id").
		From("feed_history").
		Where(sq.Eq{"profile": p.profile}).
		OrderBy("id DESC").
		Limit(uint64(domain.HistoryLimit))
	keepSQL, keepArgs, err := keep.ToSql()
	if err != nil {
		return fmt.Errorf("postgres store: build trim: %w", err)
	}
	trim, trimArgs, err := psql.Delete("feed_history").
		Where(sq.Eq{"profile": p.profile}).
		Where(sq.Expr("id NOT IN ("+keepSQL+")", keepArgs...)).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres store: build trim: %w", err)
	}
	if _, err := tx.Exec(ctx, trim, trimArgs...); err != nil {
		return fmt.Errorf("postgres store: trim history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// ClearHistory удаляет историю профиля.
func (p *Postgres) ClearHistory(ctx context.Context) error {
	start := time.Now()
	query, args, err := psql.Delete("feed_history").Where(sq.Eq{"profile": p.profile}).ToSql()
	if err == nil {
		_, err = p.db.Exec(ctx, query, args...)
	}
	metrics.ObserveNetworkRequest("postgres", "clear_history", "feed_history", start, err)
	if err != nil {
		return fmt.Errorf("postgres store: clear history: %w", err)
	}
	return nil
}

// LoadFavorites возвращает избранное.
func (p *Postgres) LoadFavorites(ctx context.Context) []string {
	start := time.Now()
	ids, err := p.readFavorites(ctx)
	metrics.ObserveNetworkRequest("postgres", "load_favorites", "feed_favorites", start, err)
	if err != nil {
		p.log.Error().Err(err).Msg("store: не удалось прочитать избранное")
		return []string{}
	}
	return ids
}

func (p *Postgres) readFavorites(ctx context.Context) ([]string, error) {
	query, args, err := psql.Select("ids").From("feed_favorites").Where(sq.Eq{"profile": p.profile}).ToSql()
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := p.db.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("postgres store: read favorites: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("postgres store: decode favorites: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// SaveFavorites заменяет список избранного.
func (p *Postgres) SaveFavorites(ctx context.Context, ids []string) error {
	start := time.Now()
	payload, err := json.Marshal(capFavorites(ids))
	if err != nil {
		return fmt.Errorf("postgres store: marshal favorites: %w", err)
	}
	query, args, err := psql.Insert("feed_favorites").
		Columns("profile", "ids", "updated_at").
		Values(p.profile, payload, p.now().UTC()).
		Suffix("ON CONFLICT (profile) DO UPDATE SET ids = EXCLUDED.ids, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err == nil {
		_, err = p.db.Exec(ctx, query, args...)
	}
	metrics.ObserveNetworkRequest("postgres", "save_favorites", "feed_favorites", start, err)
	if err != nil {
		return fmt.Errorf("postgres store: save favorites: %w", err)
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *Postgres) readPreferences(ctx context.Context, q querier, forUpdate bool) (domain.UserPreferences, error) {
	builder := psql.Select("data").From("feed_preferences").Where(sq.Eq{"profile": p.profile})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return domain.UserPreferences{}, err
	}
	var raw []byte
	if err := q.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultPreferences(p.now().UTC()), nil
		}
		return domain.UserPreferences{}, fmt.Errorf("postgres store: read preferences: %w", err)
	}
	var prefs domain.UserPreferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return domain.UserPreferences{}, fmt.Errorf("postgres store: decode preferences: %w", err)
	}
	return prefs.Normalize(p.now().UTC()), nil
}

func (p *Postgres) writePreferences(ctx context.Context, q querier, prefs domain.UserPreferences) error {
	payload, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("postgres store: marshal preferences: %w", err)
	}
	query, args, err := psql.Insert("feed_preferences").
		Columns("profile", "data", "updated_at").
		Values(p.profile, payload, prefs.UpdatedAt).
		Suffix("ON CONFLICT (profile) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres store: build upsert: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres store: write preferences: %w", err)
	}
	return nil
}
