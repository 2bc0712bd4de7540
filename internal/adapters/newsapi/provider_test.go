package newsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"atlas-feed/internal/adapters/upstream"
	"atlas-feed/internal/domain"
)

const headlinesBody = `{
  "status": "ok",
  "totalResults": 3,
  "articles": [
    {"source": {"id": null, "name": "BBC"}, "author": "Jane", "title": "Chips <b>shortage</b> ends",
     "description": "<p>Good news &amp; more</p>", "url": "https://bbc.example/chips",
     "urlToImage": "https://img.example/chips.jpg", "publishedAt": "2024-05-01T10:00:00Z", "content": "body"},
    {"source": {"id": null, "name": "CNN"}, "author": null, "title": "[Removed]", "url": "https://removed.example",
     "publishedAt": "2024-05-01T09:00:00Z"},
    {"source": {"id": null, "name": "CNN"}, "author": null, "title": "", "url": "https://empty.example",
     "publishedAt": "2024-05-01T09:00:00Z"}
  ]
}`

type fakeNewsAPI struct {
	mu         sync.Mutex
	categories []string
	failFor    map[string]string
}

func (f *fakeNewsAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			t.Errorf("ожидали ключ в заголовке")
		}
		category := r.URL.Query().Get("category")
		f.mu.Lock()
		f.categories = append(f.categories, category)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if body, ok := f.failFor[category]; ok {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(body))
			return
		}
		_, _ = w.Write([]byte(strings.ReplaceAll(headlinesBody, "chips", "chips-"+category)))
	}
}

func newProvider(baseURL, key string) *Provider {
	client := upstream.NewClient("newsapi", time.Second)
	return New(Config{APIKey: key, BaseURL: baseURL}, client, zerolog.Nop())
}

func TestFetchByNativeQueryTransforms(t *testing.T) {
	fake := &fakeNewsAPI{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	res := newProvider(srv.URL, "key").FetchByNativeQuery(context.Background(), "technology", domain.FetchOptions{Limit: 5})
	if !res.OK {
		t.Fatalf("ожидали успех, получили %s: %s", res.Kind, res.Message)
	}
	if len(res.Items) != 1 {
		t.Fatalf("ожидали 1 статью после фильтрации, получили %d", len(res.Items))
	}
	item := res.Items[0]
	if err := item.Validate(); err != nil {
		t.Fatalf("некорректный элемент: %v", err)
	}
	if item.PrimaryTopic != domain.TopicTechnology {
		t.Fatalf("ожидали technology, получили %s", item.PrimaryTopic)
	}
	if item.Title != "Chips shortage ends" {
		t.Fatalf("ожидали заголовок без разметки, получили %q", item.Title)
	}
	if item.Description != "Good news & more" {
		t.Fatalf("ожидали описание без разметки, получили %q", item.Description)
	}
	if item.EngagementScore != nil {
		t.Fatalf("у новостей нет оценки вовлечённости")
	}
	ext, ok := item.Extension.(domain.NewsExtension)
	if !ok || ext.SourceSite != "BBC" || ext.Category != "technology" {
		t.Fatalf("неожиданное расширение %#v", item.Extension)
	}
	if item.ID != domain.ContentID(domain.ProviderNews, ArticleID(item.SourceURL)) {
		t.Fatalf("id должен зависеть только от адреса статьи: %s", item.ID)
	}
}

func TestFetchByTopicsPartialFailure(t *testing.T) {
	fake := &fakeNewsAPI{failFor: map[string]string{
		"science": `{"status":"error","code":"rateLimited","message":"too many requests"}`,
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	topics := []domain.Topic{domain.TopicTechnology, domain.TopicScience, domain.TopicAnime}
	res := newProvider(srv.URL, "key").FetchByTopics(context.Background(), topics, domain.FetchOptions{Limit: 7})
	if !res.OK {
		t.Fatalf("ожидали частичный успех, получили %s", res.Kind)
	}
	if len(fake.categories) != 2 || fake.categories[0] != "technology" || fake.categories[1] != "science" {
		t.Fatalf("ожидали последовательный обход technology, science; получили %v", fake.categories)
	}
	if !strings.Contains(res.Message, "science") || !strings.Contains(res.Message, "too many requests") {
		t.Fatalf("ожидали диагностику по science, получили %q", res.Message)
	}
}

func TestFetchByTopicsAllFailedClassifies(t *testing.T) {
	fake := &fakeNewsAPI{failFor: map[string]string{
		"general": `{"status":"error","code":"rateLimited","message":"too many requests"}`,
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	res := newProvider(srv.URL, "key").FetchByTopics(context.Background(), []domain.Topic{domain.TopicGaming}, domain.FetchOptions{})
	if res.OK {
		t.Fatalf("ожидали отказ")
	}
	if res.Kind != domain.KindRateLimited {
		t.Fatalf("ожидали rate_limited, получили %s", res.Kind)
	}
	if len(fake.categories) != 1 || fake.categories[0] != "general" {
		t.Fatalf("ожидали запасную рубрику general, получили %v", fake.categories)
	}
}

func TestMissingKeyIsConfigurationError(t *testing.T) {
	res := newProvider("http://127.0.0.1:1", "").FetchTrending(context.Background(), domain.FetchOptions{})
	if res.OK || res.Kind != domain.KindConfiguration {
		t.Fatalf("ожидали configuration_error, получили %+v", res)
	}
}

func TestEmptyTopicsIsConfigurationError(t *testing.T) {
	res := newProvider("http://127.0.0.1:1", "key").FetchByTopics(context.Background(), nil, domain.FetchOptions{})
	if res.OK || res.Kind != domain.KindConfiguration {
		t.Fatalf("ожидали configuration_error, получили %+v", res)
	}
}

func TestInvalidKeyClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid"}`))
	}))
	defer srv.Close()

	res := newProvider(srv.URL, "key").FetchTrending(context.Background(), domain.FetchOptions{})
	if res.OK || res.Kind != domain.KindConfiguration {
		t.Fatalf("ожидали configuration_error, получили %+v", res)
	}
}

func TestMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ok", "articles": [`))
	}))
	defer srv.Close()

	res := newProvider(srv.URL, "key").FetchTrending(context.Background(), domain.FetchOptions{})
	if res.OK || res.Kind != domain.KindMalformedResponse {
		t.Fatalf("ожидали malformed_response, получили %+v", res)
	}
}

func TestSearchUsesEverything(t *testing.T) {
	var path, q string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		q = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(headlinesBody))
	}))
	defer srv.Close()

	res := newProvider(srv.URL, "key").Search(context.Background(), "chips", domain.FetchOptions{})
	if !res.OK || len(res.Items) != 1 {
		t.Fatalf("ожидали 1 результат, получили %+v", res)
	}
	if path != "/everything" || q != "chips" {
		t.Fatalf("ожидали /everything?q=chips, получили %s?q=%s", path, q)
	}
	if res.Items[0].PrimaryTopic != domain.TopicWorld {
		t.Fatalf("результаты поиска относятся к world")
	}
}

func TestCategories(t *testing.T) {
	got := Categories([]domain.Topic{domain.TopicWorld, domain.TopicBusiness, domain.TopicWorld})
	if len(got) != 2 || got[0] != "general" || got[1] != "business" {
		t.Fatalf("ожидали [general business], получили %v", got)
	}
}
