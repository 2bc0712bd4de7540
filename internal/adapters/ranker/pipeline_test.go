package ranker

import (
	"strings"
	"testing"
	"time"

	"atlas-feed/internal/domain"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func item(p domain.Provider, local string, age time.Duration, score *float64) domain.Content {
	return domain.Content{
		ID:              domain.ContentID(p, local),
		Provider:        p,
		Title:           local,
		PublishedAt:     base.Add(-age),
		Topics:          []domain.Topic{domain.TopicTechnology},
		PrimaryTopic:    domain.TopicTechnology,
		EngagementScore: score,
	}
}

func ids(items []domain.Content) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return strings.Join(out, ",")
}

func TestDeduplicateKeepsFirstAndIsIdempotent(t *testing.T) {
	first := item(domain.ProviderNews, "a", 0, nil)
	first.Title = "first"
	dup := item(domain.ProviderNews, "a", time.Hour, nil)
	dup.Title = "second"
	items := []domain.Content{first, item(domain.ProviderSocial, "b", 0, nil), dup, item(domain.ProviderMedia, "c", 0, nil)}

	once := Deduplicate(items)
	if ids(once) != "news:a,social:b,media-catalog:c" {
		t.Fatalf("неожиданный порядок %s", ids(once))
	}
	if once[0].Title != "first" {
		t.Fatalf("ожидали первое вхождение")
	}
	twice := Deduplicate(once)
	if ids(twice) != ids(once) {
		t.Fatalf("дедупликация должна быть идемпотентной: %s != %s", ids(twice), ids(once))
	}
}

func TestSortByDateIsMonotonic(t *testing.T) {
	items := []domain.Content{
		item(domain.ProviderNews, "old", 3*time.Hour, nil),
		item(domain.ProviderNews, "new", 0, nil),
		item(domain.ProviderNews, "mid", time.Hour, nil),
	}
	sorted := Sort(items, domain.SortDate)
	for i := 1; i < len(sorted); i++ {
		if sorted[i].PublishedAt.After(sorted[i-1].PublishedAt) {
			t.Fatalf("нарушена монотонность по дате: %s", ids(sorted))
		}
	}
	if ids(items) != "news:old,news:new,news:mid" {
		t.Fatalf("исходный срез не должен меняться")
	}
}

func TestSortByScoreTreatsNilAsZero(t *testing.T) {
	items := []domain.Content{
		item(domain.ProviderNews, "none", 0, nil),
		item(domain.ProviderSocial, "low", 0, domain.FloatPtr(5)),
		item(domain.ProviderMedia, "high", 0, domain.FloatPtr(80)),
		item(domain.ProviderSocial, "neg", 0, domain.FloatPtr(-3)),
		item(domain.ProviderNews, "none2", 0, nil),
	}
	sorted := Sort(items, domain.SortScore)
	want := "media-catalog:high,social:low,news:none,news:none2,social:neg"
	if ids(sorted) != want {
		t.Fatalf("ожидали %s, получили %s", want, ids(sorted))
	}
}

func TestSortByRelevance(t *testing.T) {
	items := []domain.Content{
		item(domain.ProviderNews, "older", time.Hour, domain.FloatPtr(10)),
		item(domain.ProviderNews, "newer", 0, domain.FloatPtr(10)),
		item(domain.ProviderNews, "best", 24*time.Hour, domain.FloatPtr(11)),
	}
	sorted := Sort(items, domain.SortRelevance)
	if ids(sorted) != "news:best,news:newer,news:older" {
		t.Fatalf("неожиданный порядок %s", ids(sorted))
	}
}

func TestInterleaveFairness(t *testing.T) {
	var items []domain.Content
	for i := 0; i < 3; i++ {
		items = append(items, item(domain.ProviderNews, string(rune('a'+i)), 0, nil))
	}
	for i := 0; i < 5; i++ {
		items = append(items, item(domain.ProviderSocial, string(rune('a'+i)), 0, nil))
	}
	got := Interleave(items)
	want := "social:a,news:a,social:b,news:b,social:c,news:c,social:d,social:e"
	if ids(got) != want {
		t.Fatalf("ожидали %s, получили %s", want, ids(got))
	}
}

func TestInterleaveAllProviders(t *testing.T) {
	items := []domain.Content{
		item(domain.ProviderMedia, "m1", 0, nil),
		item(domain.ProviderNews, "n1", 0, nil),
		item(domain.ProviderMedia, "m2", 0, nil),
		item(domain.ProviderSocial, "s1", 0, nil),
	}
	got := Interleave(items)
	want := "social:s1,news:n1,media-catalog:m1,media-catalog:m2"
	if ids(got) != want {
		t.Fatalf("ожидали %s, получили %s", want, ids(got))
	}
	if len(Interleave(nil)) != 0 {
		t.Fatalf("пустой вход должен давать пустой выход")
	}
}

func TestApplyOnlyInterleavesDate(t *testing.T) {
	items := []domain.Content{
		item(domain.ProviderNews, "n1", 0, domain.FloatPtr(1)),
		item(domain.ProviderNews, "n2", time.Minute, domain.FloatPtr(2)),
		item(domain.ProviderSocial, "s1", time.Hour, domain.FloatPtr(3)),
	}
	if got := ids(Apply(items, domain.SortDate)); got != "social:s1,news:n1,news:n2" {
		t.Fatalf("ожидали чередование, получили %s", got)
	}
	if got := ids(Apply(items, domain.SortScore)); got != "social:s1,news:n2,news:n1" {
		t.Fatalf("ожидали сортировку по оценке, получили %s", got)
	}
}

func TestComputeStats(t *testing.T) {
	withImage := item(domain.ProviderMedia, "m", 0, domain.FloatPtr(80))
	withImage.ImageURL = "https://img.example/m.jpg"
	withImage.Topics = []domain.Topic{domain.TopicMovies, domain.TopicScience}
	items := []domain.Content{
		withImage,
		item(domain.ProviderSocial, "s", 0, domain.FloatPtr(20)),
		item(domain.ProviderNews, "n", 0, nil),
	}
	stats := ComputeStats(items)
	if stats.Total != 3 || stats.WithImages != 1 {
		t.Fatalf("неожиданные итоги %+v", stats)
	}
	if stats.ByProvider[domain.ProviderSocial] != 1 || stats.ByTopic[domain.TopicTechnology] != 2 || stats.ByTopic[domain.TopicScience] != 1 {
		t.Fatalf("неожиданная раскладка %+v", stats)
	}
	if stats.AverageScore != 50 {
		t.Fatalf("ожидали среднюю оценку 50, получили %v", stats.AverageScore)
	}
}
