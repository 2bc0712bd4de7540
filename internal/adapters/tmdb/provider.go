// Package tmdb адаптирует каталог фильмов и сериалов TMDB к каноническому контенту.
package tmdb

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"atlas-feed/internal/adapters/upstream"
	"atlas-feed/internal/domain"
)

const (
	defaultBaseURL      = "https://api.themoviedb.org/3"
	defaultImageBaseURL = "https://image.tmdb.org/t/p"
	siteURL             = "https://www.themoviedb.org"
	sourceName          = "TMDB"

	sizeThumbnail = "w200"
	sizePoster    = "w500"
	sizeBackdrop  = "w1280"
)

var _ domain.ContentProvider = (*Provider)(nil)

// Config описывает подключение к TMDB.
type Config struct {
	APIKey       string
	BaseURL      string
	ImageBaseURL string
	Delay        time.Duration
	CacheTTL     time.Duration
}

// Provider реализует domain.ContentProvider для медиакаталога.
type Provider struct {
	cfg     Config
	client  *upstream.Client
	limiter *rate.Limiter
	now     func() time.Time
	log     zerolog.Logger
}

// New создаёт адаптер.
func New(cfg Config, client *upstream.Client, logger zerolog.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = defaultImageBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.ImageBaseURL = strings.TrimRight(cfg.ImageBaseURL, "/")
	return &Provider{
		cfg:     cfg,
		client:  client,
		limiter: upstream.NewLimiter(cfg.Delay),
		now:     time.Now,
		log:     logger,
	}
}

// Name возвращает идентификатор провайдера.
func (p *Provider) Name() domain.Provider { return domain.ProviderMedia }

// FetchByNativeQuery загружает недельные тренды для типа movie, tv или all.
func (p *Provider) FetchByNativeQuery(ctx context.Context, mediaType string, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	switch mediaType {
	case domain.MediaTypeMovie, domain.MediaTypeTV, domain.MediaTypeAll:
	default:
		return domain.Failed(domain.ProviderMedia, domain.KindConfiguration, fmt.Sprintf("неизвестный тип медиа %q", mediaType), 0)
	}
	return upstream.Single(ctx, domain.ProviderMedia, mediaType, p.trendingFunc("week", opts))
}

// FetchTrending загружает дневные тренды по всем типам.
func (p *Provider) FetchTrending(ctx context.Context, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	return upstream.Single(ctx, domain.ProviderMedia, domain.MediaTypeAll, p.trendingFunc("day", opts))
}

// FetchByTopics загружает фильмы и/или сериалы в зависимости от тем.
func (p *Provider) FetchByTopics(ctx context.Context, topics []domain.Topic, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	if len(topics) == 0 {
		return domain.Failed(domain.ProviderMedia, domain.KindConfiguration, "пустой список тем", 0)
	}
	return upstream.Sequential(ctx, domain.ProviderMedia, p.limiter, MediaTypes(topics), p.trendingFunc("week", opts))
}

// Search ищет фильмы по названию.
func (p *Provider) Search(ctx context.Context, query string, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Failed(domain.ProviderMedia, domain.KindConfiguration, "пустой поисковый запрос", 0)
	}
	return upstream.Single(ctx, domain.ProviderMedia, query, func(ctx context.Context, q string) ([]domain.Content, error) {
		params := url.Values{}
		params.Set("query", q)
		params.Set("page", strconv.Itoa(page(opts)))
		return p.fetch(ctx, "search_movie", "/search/movie", params, domain.MediaTypeMovie, opts)
	})
}

// MediaTypes определяет, какие тренды запрашивать: movie, если среди тем есть
// movies/entertainment/science или нет ни кинотем, ни сериальных; tv — для
// tv_shows/entertainment/anime.
func MediaTypes(topics []domain.Topic) []string {
	var wantsMovies, wantsTV bool
	for _, t := range topics {
		for _, s := range domain.SubjectsForTopic(domain.ProviderMedia, t) {
			switch s {
			case domain.MediaTypeMovie:
				wantsMovies = true
			case domain.MediaTypeTV:
				wantsTV = true
			}
		}
	}
	var out []string
	if wantsMovies || !wantsTV {
		out = append(out, domain.MediaTypeMovie)
	}
	if wantsTV {
		out = append(out, domain.MediaTypeTV)
	}
	return out
}

func (p *Provider) precheck() (domain.ProviderResult, bool) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return domain.Failed(domain.ProviderMedia, domain.KindConfiguration, "TMDB_API_KEY не задан", 0), false
	}
	return domain.ProviderResult{}, true
}

func (p *Provider) trendingFunc(window string, opts domain.FetchOptions) upstream.FetchFunc {
	return func(ctx context.Context, mediaType string) ([]domain.Content, error) {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page(opts)))
		return p.fetch(ctx, "trending", "/trending/"+mediaType+"/"+window, params, mediaType, opts)
	}
}

func (p *Provider) fetch(ctx context.Context, operation, path string, params url.Values, mediaType string, opts domain.FetchOptions) ([]domain.Content, error) {
	cacheKey := path + "?" + params.Encode()
	withKey := url.Values{}
	for k, v := range params {
		withKey[k] = v
	}
	withKey.Set("api_key", p.cfg.APIKey)

	resp, err := p.client.Get(ctx, upstream.Request{
		Operation: operation,
		Target:    mediaType,
		URL:       p.cfg.BaseURL + path + "?" + withKey.Encode(),
		CacheKey:  cacheKey,
		CacheTTL:  p.cfg.CacheTTL,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		var apiErr errorResponse
		msg := fmt.Sprintf("unexpected status %d", resp.Status)
		if upstream.DecodeJSON(resp, &apiErr) == nil && apiErr.StatusMessage != "" {
			msg = apiErr.StatusMessage
		}
		return nil, upstream.Errorf(upstream.StatusKind(resp.Status), "tmdb: %s", msg)
	}

	var body listResponse
	if err := upstream.DecodeJSON(resp, &body); err != nil {
		return nil, err
	}

	fetchedAt := p.now().UTC()
	items := make([]domain.Content, 0, len(body.Results))
	for _, r := range body.Results {
		if r.Adult && !opts.IncludeAdult {
			continue
		}
		item, ok := p.transform(r, mediaType, fetchedAt)
		if !ok {
			continue
		}
		items = append(items, item)
		if opts.Limit > 0 && len(items) >= opts.Limit {
			break
		}
	}
	p.log.Debug().Str("media_type", mediaType).Int("items", len(items)).Bool("cached", resp.Cached).Msg("tmdb: получены элементы")
	return items, nil
}

func (p *Provider) transform(r result, requested string, fetchedAt time.Time) (domain.Content, bool) {
	mediaType := r.MediaType
	if mediaType == "" {
		mediaType = requested
	}
	if mediaType == domain.MediaTypeAll || mediaType == "" {
		mediaType = domain.MediaTypeMovie
		if r.Name != "" {
			mediaType = domain.MediaTypeTV
		}
	}
	if mediaType != domain.MediaTypeMovie && mediaType != domain.MediaTypeTV {
		return domain.Content{}, false
	}

	title, releaseDate := r.Title, r.ReleaseDate
	if mediaType == domain.MediaTypeTV {
		title, releaseDate = r.Name, r.FirstAirDate
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Content{}, false
	}

	topics := domain.TopicsForGenres(r.GenreIDs)
	primary := topics[0]
	if mediaType == domain.MediaTypeTV {
		if !domain.ContainsTopic(topics, domain.TopicTVShows) {
			topics = append([]domain.Topic{domain.TopicTVShows}, topics...)
		}
		primary = domain.TopicTVShows
	}

	publishedAt := fetchedAt
	if releaseDate != "" {
		if d, err := time.Parse("2006-01-02", releaseDate); err == nil {
			publishedAt = d.UTC()
		}
	}

	genreNames := make([]string, 0, len(r.GenreIDs))
	for _, id := range r.GenreIDs {
		genreNames = append(genreNames, domain.GenreName(id))
	}

	poster := p.imageURL(r.PosterPath, sizePoster)
	backdrop := p.imageURL(r.BackdropPath, sizeBackdrop)
	images := make([]string, 0, 2)
	for _, u := range []string{poster, backdrop} {
		if u != "" {
			images = append(images, u)
		}
	}

	localID := mediaType + ":" + strconv.FormatInt(r.ID, 10)
	overview := upstream.PlainText(r.Overview)
	return domain.Content{
		ID:              domain.ContentID(domain.ProviderMedia, localID),
		Provider:        domain.ProviderMedia,
		ProviderID:      strconv.FormatInt(r.ID, 10),
		SourceName:      sourceName,
		SourceURL:       fmt.Sprintf("%s/%s/%d", siteURL, mediaType, r.ID),
		Title:           title,
		Description:     overview,
		Body:            overview,
		ThumbnailURL:    p.imageURL(r.PosterPath, sizeThumbnail),
		ImageURL:        poster,
		ImageURLs:       images,
		PublishedAt:     publishedAt,
		FetchedAt:       fetchedAt,
		Topics:          topics,
		PrimaryTopic:    primary,
		EngagementScore: domain.FloatPtr(math.Round(r.VoteAverage * 10)),
		Extension: domain.MediaExtension{
			MediaType:   mediaType,
			Rating:      r.VoteAverage,
			ReleaseDate: releaseDate,
			GenreIDs:    append([]int{}, r.GenreIDs...),
			GenreNames:  genreNames,
			Popularity:  r.Popularity,
			VoteCount:   r.VoteCount,
			BackdropURL: backdrop,
		},
	}, true
}

func (p *Provider) imageURL(path, size string) string {
	if path == "" {
		return ""
	}
	return p.cfg.ImageBaseURL + "/" + size + path
}

func page(opts domain.FetchOptions) int {
	if opts.Page <= 0 {
		return 1
	}
	return opts.Page
}

type listResponse struct {
	Page         int      `json:"page"`
	Results      []result `json:"results"`
	TotalPages   int      `json:"total_pages"`
	TotalResults int      `json:"total_results"`
}

type result struct {
	ID           int64   `json:"id"`
	MediaType    string  `json:"media_type"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int     `json:"vote_count"`
	Popularity   float64 `json:"popularity"`
	GenreIDs     []int   `json:"genre_ids"`
	Adult        bool    `json:"adult"`
}

type errorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}
