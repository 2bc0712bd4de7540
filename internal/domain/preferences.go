package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// HistoryLimit — максимальная длина истории вовлечённости.
	HistoryLimit = 1000
	// FavoritesLimit — максимальная длина списка избранного.
	FavoritesLimit = 500
	// DefaultPageSize — размер страницы по умолчанию.
	DefaultPageSize = 20
	// MaxPageSize — верхняя граница размера страницы.
	MaxPageSize = 100
)

// SortStrategy задаёт порядок элементов в ленте.
type SortStrategy string

const (
	SortDate      SortStrategy = "date"
	SortScore     SortStrategy = "score"
	SortRelevance SortStrategy = "relevance"
)

// ParseSort разбирает стратегию сортировки; пустое значение означает date.
func ParseSort(raw string) (SortStrategy, error) {
	switch s := SortStrategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return SortDate, nil
	case SortDate, SortScore, SortRelevance:
		return s, nil
	default:
		return "", NewConfigError(fmt.Sprintf("неизвестная сортировка %q", raw))
	}
}

// UserPreferences — настройки единственного профиля.
type UserPreferences struct {
	Topics           []Topic      `json:"topics"`
	ExcludedTopics   []Topic      `json:"excluded_topics"`
	EnabledProviders []Provider   `json:"enabled_providers"`
	ShowAdultContent bool         `json:"show_adult_content"`
	DefaultSort      SortStrategy `json:"default_sort"`
	PageSize         int          `json:"page_size"`
	TrackHistory     bool         `json:"track_history"`
	AutoLearn        bool         `json:"auto_learn"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// DefaultPreferences возвращает настройки по умолчанию.
func DefaultPreferences(now time.Time) UserPreferences {
	topics := make([]Topic, len(DefaultTopics))
	copy(topics, DefaultTopics)
	providers := make([]Provider, len(AllProviders))
	copy(providers, AllProviders)
	return UserPreferences{
		Topics:           topics,
		ExcludedTopics:   []Topic{},
		EnabledProviders: providers,
		DefaultSort:      SortDate,
		PageSize:         DefaultPageSize,
		TrackHistory:     true,
		AutoLearn:        true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Normalize подставляет значения по умолчанию вместо отсутствующих полей,
// чтобы старые сохранённые записи оставались читаемыми.
func (p UserPreferences) Normalize(now time.Time) UserPreferences {
	def := DefaultPreferences(now)
	if p.Topics == nil {
		p.Topics = def.Topics
	}
	if p.ExcludedTopics == nil {
		p.ExcludedTopics = def.ExcludedTopics
	}
	if p.EnabledProviders == nil {
		p.EnabledProviders = def.EnabledProviders
	}
	if p.DefaultSort == "" {
		p.DefaultSort = def.DefaultSort
	}
	if p.PageSize <= 0 {
		p.PageSize = def.PageSize
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	return p
}

// PreferencesPatch — частичное обновление настроек; nil означает «не менять».
type PreferencesPatch struct {
	Topics           *[]Topic      `json:"topics,omitempty"`
	ExcludedTopics   *[]Topic      `json:"excluded_topics,omitempty"`
	EnabledProviders *[]Provider   `json:"enabled_providers,omitempty"`
	ShowAdultContent *bool         `json:"show_adult_content,omitempty"`
	DefaultSort      *SortStrategy `json:"default_sort,omitempty"`
	PageSize         *int          `json:"page_size,omitempty"`
	TrackHistory     *bool         `json:"track_history,omitempty"`
	AutoLearn        *bool         `json:"auto_learn,omitempty"`
}

// Validate проверяет значения патча.
func (p PreferencesPatch) Validate() error {
	for _, list := range []*[]Topic{p.Topics, p.ExcludedTopics} {
		if list == nil {
			continue
		}
		for _, t := range *list {
			if !t.Valid() {
				return NewConfigError(fmt.Sprintf("неизвестная тема %q", t))
			}
		}
	}
	if p.EnabledProviders != nil {
		for _, pr := range *p.EnabledProviders {
			if !pr.Valid() {
				return NewConfigError(fmt.Sprintf("неизвестный провайдер %q", pr))
			}
		}
	}
	if p.DefaultSort != nil {
		if _, err := ParseSort(string(*p.DefaultSort)); err != nil {
			return err
		}
	}
	if p.PageSize != nil && (*p.PageSize < 1 || *p.PageSize > MaxPageSize) {
		return NewConfigError(fmt.Sprintf("page_size должен быть в диапазоне 1..%d", MaxPageSize))
	}
	return nil
}

// Apply сливает патч с текущими настройками и проставляет UpdatedAt.
func (p UserPreferences) Apply(patch PreferencesPatch, now time.Time) UserPreferences {
	if patch.Topics != nil {
		p.Topics = append([]Topic{}, (*patch.Topics)...)
	}
	if patch.ExcludedTopics != nil {
		p.ExcludedTopics = append([]Topic{}, (*patch.ExcludedTopics)...)
	}
	if patch.EnabledProviders != nil {
		p.EnabledProviders = append([]Provider{}, (*patch.EnabledProviders)...)
	}
	if patch.ShowAdultContent != nil {
		p.ShowAdultContent = *patch.ShowAdultContent
	}
	if patch.DefaultSort != nil {
		p.DefaultSort = *patch.DefaultSort
	}
	if patch.PageSize != nil {
		p.PageSize = *patch.PageSize
	}
	if patch.TrackHistory != nil {
		p.TrackHistory = *patch.TrackHistory
	}
	if patch.AutoLearn != nil {
		p.AutoLearn = *patch.AutoLearn
	}
	p.UpdatedAt = now
	return p
}

// EngagementType — вид взаимодействия с элементом.
type EngagementType string

const (
	EngagementView     EngagementType = "view"
	EngagementClick    EngagementType = "click"
	EngagementFavorite EngagementType = "favorite"
	EngagementShare    EngagementType = "share"
)

// Valid сообщает, известен ли тип взаимодействия.
func (t EngagementType) Valid() bool {
	switch t {
	case EngagementView, EngagementClick, EngagementFavorite, EngagementShare:
		return true
	}
	return false
}

// HistoryEntry — запись истории вовлечённости.
type HistoryEntry struct {
	ContentID   string         `json:"content_id"`
	Provider    Provider       `json:"provider"`
	Topics      []Topic        `json:"topics"`
	Type        EngagementType `json:"type"`
	OccurredAt  time.Time      `json:"occurred_at"`
	TimeSpentMs int64          `json:"time_spent_ms,omitempty"`
}

// PrependHistory ставит запись в начало истории, убирая прежнюю запись
// с тем же ContentID и обрезая историю до limit.
func PrependHistory(history []HistoryEntry, entry HistoryEntry, limit int) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(history)+1)
	out = append(out, entry)
	for _, h := range history {
		if h.ContentID == entry.ContentID {
			continue
		}
		out = append(out, h)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LimitHistory возвращает первые limit записей; limit <= 0 означает все.
func LimitHistory(history []HistoryEntry, limit int) []HistoryEntry {
	if limit <= 0 || limit >= len(history) {
		return history
	}
	return history[:limit]
}

// PrependFavorite добавляет id в начало избранного без повторов.
func PrependFavorite(favorites []string, id string, limit int) ([]string, bool) {
	for _, existing := range favorites {
		if existing == id {
			return favorites, false
		}
	}
	out := append([]string{id}, favorites...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, true
}

// TopicEngagement — агрегат вовлечённости по теме.
type TopicEngagement struct {
	Topic         Topic     `json:"topic"`
	Views         int       `json:"views"`
	Clicks        int       `json:"clicks"`
	Favorites     int       `json:"favorites"`
	LastEngagedAt time.Time `json:"last_engaged_at,omitempty"`
	Score         int       `json:"score"`
}

// ComputeScore считает views*1 + clicks*3 + favorites*5.
func (e TopicEngagement) ComputeScore() int {
	return e.Views + 3*e.Clicks + 5*e.Favorites
}
