package tmdb

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

const movieBody = `{"page":1,"results":[
  {"id":603,"media_type":"movie","title":"The Matrix","overview":"Neo wakes up","poster_path":"/m.jpg","backdrop_path":"/b.jpg",
   "release_date":"1999-03-31","vote_average":8.24,"vote_count":100,"popularity":50.5,"genre_ids":[28,878]},
  {"id":604,"media_type":"movie","title":"","genre_ids":[]},
  {"id":605,"media_type":"movie","title":"Adult","adult":true,"genre_ids":[18]}
],"total_pages":1,"total_results":3}`

const tvBody = `{"page":1,"results":[
  {"id":1399,"media_type":"tv","name":"Dragons","overview":"","poster_path":"/d.jpg","first_air_date":"2011-04-17",
   "vote_average":8.45,"genre_ids":[10765,18]}
]}`

const allBody = `{"page":1,"results":[
  {"id":1,"media_type":"person","name":"Somebody"},
  {"id":2,"media_type":"tv","name":"Show","genre_ids":[16],"vote_average":7}
]}`

type fakeTMDB struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeTMDB) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json;charset=utf-8")
		if r.URL.Query().Get("api_key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status_code":7,"status_message":"Invalid API key"}`))
			return
		}
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		f.mu.Unlock()
		switch {
		case strings.HasPrefix(r.URL.Path, "/trending/movie"), r.URL.Path == "/search/movie":
			_, _ = w.Write([]byte(movieBody))
		case strings.HasPrefix(r.URL.Path, "/trending/tv"):
			_, _ = w.Write([]byte(tvBody))
		case strings.HasPrefix(r.URL.Path, "/trending/all"):
			_, _ = w.Write([]byte(allBody))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status_code":34,"status_message":"The resource you requested could not be found."}`))
		}
	}
}

func newProvider(baseURL, key string) *Provider {
	return New(Config{APIKey: key, BaseURL: baseURL}, upstream.NewClient("tmdb", time.Second), zerolog.Nop())
}

func TestMediaTypes(t *testing.T) {
	tests := []struct {
		name   string
		topics []domain.Topic
		want   []string
	}{
		{name: "movies only", topics: []domain.Topic{domain.TopicMovies}, want: []string{"movie"}},
		{name: "anime is tv", topics: []domain.Topic{domain.TopicAnime}, want: []string{"tv"}},
		{name: "entertainment both", topics: []domain.Topic{domain.TopicEntertainment}, want: []string{"movie", "tv"}},
		{name: "unrelated falls back to movies", topics: []domain.Topic{domain.TopicFood}, want: []string{"movie"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MediaTypes(tt.topics)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("MediaTypes(%v) = %v, want %v", tt.topics, got, tt.want)
			}
		})
	}
}

func TestFetchByTopicsMoviesAndTV(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	res := newProvider(srv.URL, "key").FetchByTopics(context.Background(), []domain.Topic{domain.TopicEntertainment}, domain.FetchOptions{Page: 2})
	if !res.OK {
		t.Fatalf("ожидали успех, получили %s: %s", res.Kind, res.Message)
	}
	if len(fake.paths) != 2 || fake.paths[0] != "/trending/movie/week" || fake.paths[1] != "/trending/tv/week" {
		t.Fatalf("неожиданные запросы %v", fake.paths)
	}
	if len(res.Items) != 2 {
		t.Fatalf("ожидали фильм и сериал, получили %d", len(res.Items))
	}

	movie := res.Items[0]
	if movie.ID != "media-catalog:movie:603" {
		t.Fatalf("неожиданный id %s", movie.ID)
	}
	if movie.Score() != 82 {
		t.Fatalf("ожидали оценку 82, получили %v", movie.Score())
	}
	if movie.PrimaryTopic != domain.TopicMovies || !domain.ContainsTopic(movie.Topics, domain.TopicScience) {
		t.Fatalf("неожиданные темы %v / %s", movie.Topics, movie.PrimaryTopic)
	}
	if movie.ThumbnailURL != "https://image.tmdb.org/t/p/w200/m.jpg" || len(movie.ImageURLs) != 2 {
		t.Fatalf("неожиданные изображения %q %v", movie.ThumbnailURL, movie.ImageURLs)
	}
	if !movie.PublishedAt.Equal(time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("ожидали дату релиза, получили %v", movie.PublishedAt)
	}

	show := res.Items[1]
	if show.PrimaryTopic != domain.TopicTVShows || show.Topics[0] != domain.TopicTVShows {
		t.Fatalf("сериал должен начинаться с tv_shows: %v", show.Topics)
	}
	ext, ok := show.Extension.(domain.MediaExtension)
	if !ok || ext.MediaType != "tv" || ext.GenreNames[0] != "Sci-Fi & Fantasy" {
		t.Fatalf("неожиданное расширение %#v", show.Extension)
	}
	for _, item := range res.Items {
		if err := item.Validate(); err != nil {
			t.Fatalf("некорректный элемент: %v", err)
		}
	}
}

func TestIncludeAdult(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	res := newProvider(srv.URL, "key").FetchByNativeQuery(context.Background(), "movie", domain.FetchOptions{IncludeAdult: true})
	if !res.OK || len(res.Items) != 2 {
		t.Fatalf("ожидали 2 фильма с учётом adult, получили %+v", res)
	}
}

func TestTrendingSkipsPeople(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	res := newProvider(srv.URL, "key").FetchTrending(context.Background(), domain.FetchOptions{})
	if !res.OK || len(res.Items) != 1 {
		t.Fatalf("ожидали один сериал, получили %+v", res)
	}
	if fake.paths[0] != "/trending/all/day" {
		t.Fatalf("ожидали дневные тренды, получили %s", fake.paths[0])
	}
	if !domain.ContainsTopic(res.Items[0].Topics, domain.TopicAnime) {
		t.Fatalf("анимация должна давать anime: %v", res.Items[0].Topics)
	}
}

func TestStatusClassification(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	res := newProvider(srv.URL, "wrong").FetchTrending(context.Background(), domain.FetchOptions{})
	if res.OK || res.Kind != domain.KindConfiguration || !strings.Contains(res.Message, "Invalid API key") {
		t.Fatalf("ожидали configuration_error, получили %+v", res)
	}

	missing := newProvider("", "").FetchByTopics(context.Background(), []domain.Topic{domain.TopicMovies}, domain.FetchOptions{})
	if missing.OK || missing.Kind != domain.KindConfiguration {
		t.Fatalf("ожидали configuration_error без ключа, получили %+v", missing)
	}

	bad := newProvider(srv.URL, "key").FetchByNativeQuery(context.Background(), "person", domain.FetchOptions{})
	if bad.OK || bad.Kind != domain.KindConfiguration {
		t.Fatalf("ожидали configuration_error для неизвестного типа, получили %+v", bad)
	}
}

func TestSearch(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	res := newProvider(srv.URL, "key").Search(context.Background(), "matrix", domain.FetchOptions{})
	if !res.OK || len(res.Items) != 1 || res.Items[0].Title != "The Matrix" {
		t.Fatalf("ожидали The Matrix, получили %+v", res)
	}
}
