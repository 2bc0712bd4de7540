// Package store содержит реализации domain.PreferenceStore: в памяти,
// в Redis и в Postgres.
package store

import (
	"context"
	"sync"
	"time"

	"atlas-feed/internal/domain"
)

var _ domain.PreferenceStore = (*Memory)(nil)

// Memory хранит профиль в памяти процесса.
type Memory struct {
	mu        sync.Mutex
	prefs     *domain.UserPreferences
	history   []domain.HistoryEntry
	favorites []string
	now       func() time.Time
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// Load возвращает сохранённые настройки или настройки по умолчанию.
func (m *Memory) Load(context.Context) domain.UserPreferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

func (m *Memory) loadLocked() domain.UserPreferences {
	if m.prefs == nil {
		return domain.DefaultPreferences(m.now().UTC())
	}
	return clonePreferences(*m.prefs)
}

// Save применяет патч к текущим настройкам.
func (m *Memory) Save(_ context.Context, patch domain.PreferencesPatch) (domain.UserPreferences, error) {
	if err := patch.Validate(); err != nil {
		return domain.UserPreferences{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := m.loadLocked().Apply(patch, m.now().UTC())
	m.prefs = &updated
	return clonePreferences(updated), nil
}

// Reset возвращает настройки к значениям по умолчанию.
func (m *Memory) Reset(context.Context) (domain.UserPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def := domain.DefaultPreferences(m.now().UTC())
	m.prefs = &def
	return clonePreferences(def), nil
}

// LoadHistory возвращает последние limit записей, свежие первыми.
func (m *Memory) LoadHistory(_ context.Context, limit int) []domain.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := domain.LimitHistory(m.history, limit)
	out := make([]domain.HistoryEntry, len(src))
	copy(out, src)
	return out
}

// AppendHistory ставит запись в начало истории.
func (m *Memory) AppendHistory(_ context.Context, entry domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = domain.PrependHistory(m.history, entry, domain.HistoryLimit)
	return nil
}

// ClearHistory очищает историю.
func (m *Memory) ClearHistory(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
	return nil
}

// LoadFavorites возвращает идентификаторы избранного.
func (m *Memory) LoadFavorites(context.Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.favorites))
	copy(out, m.favorites)
	return out
}

// SaveFavorites заменяет список избранного.
func (m *Memory) SaveFavorites(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.favorites = capFavorites(ids)
	return nil
}

func clonePreferences(p domain.UserPreferences) domain.UserPreferences {
	p.Topics = append([]domain.Topic{}, p.Topics...)
	p.ExcludedTopics = append([]domain.Topic{}, p.ExcludedTopics...)
	p.EnabledProviders = append([]domain.Provider{}, p.EnabledProviders...)
	return p
}

func capFavorites(ids []string) []string {
	if len(ids) > domain.FavoritesLimit {
		ids = ids[:domain.FavoritesLimit]
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
