// Package engagement ведёт историю взаимодействий, считает вовлечённость по
// темам и подстраивает темы профиля под неё.
package engagement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/metrics"
)

const (
	// DefaultRecommendLimit — число рекомендуемых тем по умолчанию.
	DefaultRecommendLimit = 5
	// LearnLimit — сколько тем записывается в профиль при обучении.
	LearnLimit = 10
	// minEngagedTopics — сколько тем с ненулевой вовлечённостью нужно для рекомендаций.
	minEngagedTopics = 3
)

// Service реализует оценку вовлечённости поверх domain.PreferenceStore.
type Service struct {
	store domain.PreferenceStore
	// favMu сериализует чтение-изменение-запись избранного в пределах процесса.
	favMu sync.Mutex
	now   func() time.Time
	log   zerolog.Logger
}

// NewService создаёт сервис.
func NewService(store domain.PreferenceStore, logger zerolog.Logger) *Service {
	return &Service{store: store, now: time.Now, log: logger}
}

// Preferences возвращает текущие настройки.
func (s *Service) Preferences(ctx context.Context) domain.UserPreferences {
	return s.store.Load(ctx)
}

// RecordEngagement записывает событие в историю. Если история отключена,
// событие пропускается и возвращается false.
func (s *Service) RecordEngagement(ctx context.Context, ev domain.EngagementEvent) (bool, error) {
	if err := ValidateEvent(ev); err != nil {
		return false, err
	}
	prefs := s.store.Load(ctx)
	if !prefs.TrackHistory {
		return false, nil
	}
	entry := domain.HistoryEntry{
		ContentID:   ev.ContentID,
		Provider:    ev.Provider,
		Topics:      validTopics(ev.Topics),
		Type:        ev.Type,
		OccurredAt:  s.now().UTC(),
		TimeSpentMs: ev.TimeSpentMs,
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		return false, fmt.Errorf("запись истории: %w", err)
	}
	metrics.IncEngagement(string(ev.Type))
	return true, nil
}

// ValidateEvent проверяет событие до записи или постановки в очередь.
func ValidateEvent(ev domain.EngagementEvent) error {
	if strings.TrimSpace(ev.ContentID) == "" {
		return domain.NewConfigError("пустой content_id")
	}
	if !ev.Type.Valid() {
		return domain.NewConfigError(fmt.Sprintf("неизвестный тип взаимодействия %q", ev.Type))
	}
	if ev.Provider != "" && !ev.Provider.Valid() {
		return domain.NewConfigError(fmt.Sprintf("неизвестный провайдер %q", ev.Provider))
	}
	return nil
}

// ComputeTopicEngagement сворачивает историю в агрегаты по всем темам,
// отсортированные по убыванию оценки; при равенстве сохраняется порядок таксономии.
func (s *Service) ComputeTopicEngagement(ctx context.Context) []domain.TopicEngagement {
	return Aggregate(s.store.LoadHistory(ctx, 0))
}

// Aggregate — чистая часть ComputeTopicEngagement.
func Aggregate(history []domain.HistoryEntry) []domain.TopicEngagement {
	index := make(map[domain.Topic]int, len(domain.AllTopics))
	out := make([]domain.TopicEngagement, len(domain.AllTopics))
	for i, t := range domain.AllTopics {
		index[t] = i
		out[i] = domain.TopicEngagement{Topic: t}
	}
	for _, entry := range history {
		for _, t := range entry.Topics {
			i, ok := index[t]
			if !ok {
				continue
			}
			agg := &out[i]
			switch entry.Type {
			case domain.EngagementView:
				agg.Views++
			case domain.EngagementClick:
				agg.Clicks++
			case domain.EngagementFavorite:
				agg.Favorites++
			}
			if entry.OccurredAt.After(agg.LastEngagedAt) {
				agg.LastEngagedAt = entry.OccurredAt
			}
		}
	}
	for i := range out {
		out[i].Score = out[i].ComputeScore()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// RecommendTopics возвращает до limit тем с наибольшей вовлечённостью.
// Если вовлечённость есть меньше чем у трёх тем, возвращаются темы по умолчанию,
// дополненные темами таксономии, когда limit больше их числа.
func (s *Service) RecommendTopics(ctx context.Context, limit int) []domain.Topic {
	return Recommend(s.ComputeTopicEngagement(ctx), limit)
}

// Recommend — чистая часть RecommendTopics.
func Recommend(engagement []domain.TopicEngagement, limit int) []domain.Topic {
	if limit <= 0 {
		limit = DefaultRecommendLimit
	}
	engaged := make([]domain.Topic, 0, len(engagement))
	for _, e := range engagement {
		if e.Score > 0 {
			engaged = append(engaged, e.Topic)
		}
	}
	if len(engaged) < minEngagedTopics {
		return fallbackTopics(limit)
	}
	if len(engaged) > limit {
		engaged = engaged[:limit]
	}
	return engaged
}

func fallbackTopics(limit int) []domain.Topic {
	out := make([]domain.Topic, 0, limit)
	for _, t := range domain.DefaultTopics {
		if len(out) == limit {
			return out
		}
		out = append(out, t)
	}
	for _, t := range domain.AllTopics {
		if len(out) == limit {
			break
		}
		if !domain.ContainsTopic(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// LearnPreferences заменяет темы профиля рекомендованными, если включено
// обучение и вовлечённость накоплена хотя бы по трём темам. Второе значение
// сообщает, были ли настройки изменены.
func (s *Service) LearnPreferences(ctx context.Context) (domain.UserPreferences, bool, error) {
	prefs := s.store.Load(ctx)
	if !prefs.AutoLearn {
		return prefs, false, nil
	}
	engagement := s.ComputeTopicEngagement(ctx)
	var engaged int
	for _, e := range engagement {
		if e.Score > 0 {
			engaged++
		}
	}
	if engaged < minEngagedTopics {
		s.log.Debug().Int("engaged_topics", engaged).Msg("engagement: недостаточно истории для обучения")
		return prefs, false, nil
	}
	topics := Recommend(engagement, LearnLimit)
	updated, err := s.store.Save(ctx, domain.PreferencesPatch{Topics: &topics})
	if err != nil {
		return prefs, false, fmt.Errorf("сохранение выученных тем: %w", err)
	}
	s.log.Info().Interface("topics", topics).Msg("engagement: темы профиля обновлены по истории")
	return updated, true, nil
}

// History возвращает последние limit записей истории.
func (s *Service) History(ctx context.Context, limit int) []domain.HistoryEntry {
	return s.store.LoadHistory(ctx, limit)
}

// ClearHistory очищает историю.
func (s *Service) ClearHistory(ctx context.Context) error {
	return s.store.ClearHistory(ctx)
}

// Favorites возвращает избранное, новые первыми.
func (s *Service) Favorites(ctx context.Context) []string {
	return s.store.LoadFavorites(ctx)
}

// IsFavorite сообщает, есть ли id в избранном.
func (s *Service) IsFavorite(ctx context.Context, id string) bool {
	for _, fav := range s.store.LoadFavorites(ctx) {
		if fav == id {
			return true
		}
	}
	return false
}

// FavoriteSource описывает элемент, добавляемый в избранное. Если провайдер
// известен, добавление записывается в историю как favorite.
type FavoriteSource struct {
	Provider domain.Provider `json:"provider"`
	Topics   []domain.Topic  `json:"topics"`
}

// AddFavorite добавляет id в начало избранного. Возвращает false, если id уже там.
func (s *Service) AddFavorite(ctx context.Context, id string, src FavoriteSource) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, domain.NewConfigError("пустой content_id")
	}
	s.favMu.Lock()
	favorites, added := domain.PrependFavorite(s.store.LoadFavorites(ctx), id, domain.FavoritesLimit)
	if added {
		if err := s.store.SaveFavorites(ctx, favorites); err != nil {
			s.favMu.Unlock()
			return false, fmt.Errorf("сохранение избранного: %w", err)
		}
	}
	s.favMu.Unlock()

	if added && src.Provider != "" {
		_, err := s.RecordEngagement(ctx, domain.EngagementEvent{
			ContentID: id,
			Provider:  src.Provider,
			Topics:    src.Topics,
			Type:      domain.EngagementFavorite,
		})
		if err != nil {
			return true, err
		}
	}
	return added, nil
}

// RemoveFavorite убирает id из избранного.
func (s *Service) RemoveFavorite(ctx context.Context, id string) error {
	s.favMu.Lock()
	defer s.favMu.Unlock()
	current := s.store.LoadFavorites(ctx)
	filtered := make([]string, 0, len(current))
	for _, fav := range current {
		if fav != id {
			filtered = append(filtered, fav)
		}
	}
	if len(filtered) == len(current) {
		return nil
	}
	if err := s.store.SaveFavorites(ctx, filtered); err != nil {
		return fmt.Errorf("сохранение избранного: %w", err)
	}
	return nil
}

// ToggleFavorite переключает id и возвращает новое состояние.
func (s *Service) ToggleFavorite(ctx context.Context, id string, src FavoriteSource) (bool, error) {
	if s.IsFavorite(ctx, id) {
		return false, s.RemoveFavorite(ctx, id)
	}
	if _, err := s.AddFavorite(ctx, id, src); err != nil {
		return false, err
	}
	return true, nil
}

func validTopics(topics []domain.Topic) []domain.Topic {
	out := make([]domain.Topic, 0, len(topics))
	for _, t := range topics {
		if t.Valid() && !domain.ContainsTopic(out, t) {
			out = append(out, t)
		}
	}
	return out
}
