// Package ranker содержит чистые этапы агрегации ленты: дедупликацию,
// сортировку, чередование провайдеров и сводную статистику.
package ranker

import (
	"sort"

	"atlas-feed/internal/domain"
)

// Deduplicate оставляет первое вхождение каждого ID, сохраняя порядок.
// Вызывающий передаёт элементы в порядке диспетчеризации провайдеров,
// поэтому при совпадении побеждает более ранний провайдер.
func Deduplicate(items []domain.Content) []domain.Content {
	seen := make(map[string]struct{}, len(items))
	out := make([]domain.Content, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Sort упорядочивает копию items по стратегии. Сортировка стабильная.
func Sort(items []domain.Content, strategy domain.SortStrategy) []domain.Content {
	out := make([]domain.Content, len(items))
	copy(out, items)
	switch strategy {
	case domain.SortScore:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	case domain.SortRelevance:
		sort.SliceStable(out, func(i, j int) bool { return relevance(out[i]) > relevance(out[j]) })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	}
	return out
}

// relevance складывает оценку с временем публикации в секундах, делённым на 1e9.
func relevance(c domain.Content) float64 {
	return c.Score() + float64(c.PublishedAt.Unix())/1e9
}

// Interleave раскладывает элементы по провайдерам и выдаёт их по кругу
// в порядке domain.InterleavePriority. Исчерпанные провайдеры пропускаются,
// порядок внутри провайдера сохраняется.
func Interleave(items []domain.Content) []domain.Content {
	buckets := make(map[domain.Provider][]domain.Content, len(domain.InterleavePriority))
	var other []domain.Content
	for _, item := range items {
		if !item.Provider.Valid() {
			other = append(other, item)
			continue
		}
		buckets[item.Provider] = append(buckets[item.Provider], item)
	}

	out := make([]domain.Content, 0, len(items))
	for round := 0; len(out) < len(items)-len(other); round++ {
		for _, p := range domain.InterleavePriority {
			if round < len(buckets[p]) {
				out = append(out, buckets[p][round])
			}
		}
	}
	return append(out, other...)
}

// Apply прогоняет элементы через дедупликацию и сортировку; при сортировке
// по дате провайдеры чередуются.
func Apply(items []domain.Content, strategy domain.SortStrategy) []domain.Content {
	out := Sort(Deduplicate(items), strategy)
	if strategy == domain.SortDate || strategy == "" {
		out = Interleave(out)
	}
	return out
}

// Stats — сводка по набору элементов.
type Stats struct {
	Total        int                     `json:"total"`
	ByProvider   map[domain.Provider]int `json:"by_provider"`
	ByTopic      map[domain.Topic]int    `json:"by_topic"`
	WithImages   int                     `json:"with_images"`
	AverageScore float64                 `json:"average_score"`
}

// ComputeStats считает элементы по провайдерам и темам, число элементов
// с изображениями и среднюю оценку среди элементов, у которых она есть.
func ComputeStats(items []domain.Content) Stats {
	stats := Stats{
		Total:      len(items),
		ByProvider: make(map[domain.Provider]int),
		ByTopic:    make(map[domain.Topic]int),
	}
	var scored int
	var sum float64
	for _, item := range items {
		stats.ByProvider[item.Provider]++
		for _, t := range item.Topics {
			stats.ByTopic[t]++
		}
		if item.HasImage() {
			stats.WithImages++
		}
		if item.EngagementScore != nil {
			scored++
			sum += *item.EngagementScore
		}
	}
	if scored > 0 {
		stats.AverageScore = sum / float64(scored)
	}
	return stats
}
