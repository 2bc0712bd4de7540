package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/cache"
)

func item(id string) domain.Content {
	return domain.Content{
		ID:           id,
		Provider:     domain.ProviderNews,
		Title:        id,
		Topics:       []domain.Topic{domain.TopicWorld},
		PrimaryTopic: domain.TopicWorld,
		Extension:    domain.NewsExtension{Category: "general"},
	}
}

func TestSequentialPartialSuccess(t *testing.T) {
	res := Sequential(context.Background(), domain.ProviderNews, NewLimiter(0), []string{"a", "b", "c"}, func(_ context.Context, s string) ([]domain.Content, error) {
		if s == "b" {
			return nil, Errorf(domain.KindRateLimited, "slow down")
		}
		return []domain.Content{item("news:" + s)}, nil
	})
	if !res.OK {
		t.Fatalf("ожидали успех при частичном отказе")
	}
	if len(res.Items) != 2 {
		t.Fatalf("ожидали 2 элемента, получили %d", len(res.Items))
	}
	if !strings.Contains(res.Message, "b: slow down") {
		t.Fatalf("ожидали диагностику по b, получили %q", res.Message)
	}
}

func TestSequentialAllFailedKeepsFirstKind(t *testing.T) {
	res := Sequential(context.Background(), domain.ProviderSocial, NewLimiter(0), []string{"x", "y"}, func(_ context.Context, s string) ([]domain.Content, error) {
		if s == "x" {
			return nil, Errorf(domain.KindNotFound, "r/x not found")
		}
		return nil, Errorf(domain.KindForbidden, "r/y is private")
	})
	if res.OK {
		t.Fatalf("ожидали отказ")
	}
	if res.Kind != domain.KindNotFound {
		t.Fatalf("ожидали not_found, получили %s", res.Kind)
	}
	if !strings.Contains(res.Message, "x:") || !strings.Contains(res.Message, "y:") {
		t.Fatalf("ожидали обе диагностики: %q", res.Message)
	}
}

func TestInvalidItemsAreDropped(t *testing.T) {
	broken := item("news:broken")
	broken.PrimaryTopic = domain.TopicArt
	foreign := item("social:x")

	res := Single(context.Background(), domain.ProviderNews, "general", func(context.Context, string) ([]domain.Content, error) {
		return []domain.Content{item("news:ok"), broken, foreign}, nil
	})
	if !res.OK || len(res.Items) != 1 || res.Items[0].ID != "news:ok" {
		t.Fatalf("ожидали только news:ok, получили %+v", res.Items)
	}
	if !strings.Contains(res.Message, "news:broken") || !strings.Contains(res.Message, "social:x") {
		t.Fatalf("ожидали причины отбрасывания в диагностике, получили %q", res.Message)
	}

	seq := Sequential(context.Background(), domain.ProviderNews, NewLimiter(0), []string{"a"}, func(context.Context, string) ([]domain.Content, error) {
		return []domain.Content{broken}, nil
	})
	if !seq.OK || len(seq.Items) != 0 || !strings.Contains(seq.Message, "a: отброшено") {
		t.Fatalf("ожидали пустой успех с диагностикой, получили %+v", seq)
	}
}

func TestSequentialEmptySubjects(t *testing.T) {
	res := Sequential(context.Background(), domain.ProviderNews, NewLimiter(0), nil, nil)
	if res.OK || res.Kind != domain.KindConfiguration {
		t.Fatalf("ожидали configuration_error, получили %+v", res)
	}
}

func TestSequentialDelaysBetweenCalls(t *testing.T) {
	var calls []time.Time
	limiter := NewLimiter(30 * time.Millisecond)
	Sequential(context.Background(), domain.ProviderNews, limiter, []string{"a", "b", "c"}, func(context.Context, string) ([]domain.Content, error) {
		calls = append(calls, time.Now())
		return nil, nil
	})
	if len(calls) != 3 {
		t.Fatalf("ожидали 3 вызова, получили %d", len(calls))
	}
	if gap := calls[2].Sub(calls[0]); gap < 50*time.Millisecond {
		t.Fatalf("ожидали паузу между вызовами, получили %v", gap)
	}
}

func TestSequentialCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Sequential(ctx, domain.ProviderMedia, NewLimiter(0), []string{"movie", "tv"}, func(context.Context, string) ([]domain.Content, error) {
		t.Fatalf("вызов после отмены")
		return nil, nil
	})
	if res.OK || res.Kind != domain.KindTimeout {
		t.Fatalf("ожидали timeout, получили %+v", res)
	}
}

func TestClientCachesSuccessfulResponses(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("User-Agent") != "atlas-test" {
			t.Errorf("ожидали User-Agent, получили %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("test", time.Second, WithCache(cache.NewMemory(8, time.Hour)), WithUserAgent("atlas-test"))
	req := Request{Operation: "get", URL: srv.URL + "/x?key=secret", CacheKey: "x", CacheTTL: time.Minute}
	for i := 0; i < 3; i++ {
		resp, err := c.Get(context.Background(), req)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if !resp.OK() {
			t.Fatalf("ожидали 200, получили %d", resp.Status)
		}
		if i > 0 && !resp.Cached {
			t.Fatalf("ожидали ответ из кэша на %d-м вызове", i+1)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("ожидали один запрос к провайдеру, получили %d", hits)
	}
}

func TestClientTransportTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient("test", 50*time.Millisecond)
	_, err := c.Get(context.Background(), Request{URL: srv.URL})
	if err == nil {
		t.Fatalf("ожидали ошибку таймаута")
	}
	if KindOf(err) != domain.KindTimeout {
		t.Fatalf("ожидали timeout, получили %s (%v)", KindOf(err), err)
	}
}

func TestDecodeJSONRejectsHTML(t *testing.T) {
	var v map[string]any
	err := DecodeJSON(Response{Status: 200, ContentType: "text/html", Body: []byte("<html>")}, &v)
	var uerr *Error
	if !errors.As(err, &uerr) || uerr.Kind != domain.KindMalformedResponse {
		t.Fatalf("ожидали malformed_response, получили %v", err)
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText("<p>Breaking &amp; <b>bold</b></p>")
	if got != "Breaking & bold" {
		t.Fatalf("неожиданный текст %q", got)
	}
	if Truncate("привет", 3) != "при" {
		t.Fatalf("обрезка должна работать по рунам")
	}
}
