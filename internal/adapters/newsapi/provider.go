// Package newsapi адаптирует NewsAPI (заголовки по рубрикам и поиск) к каноническому контенту.
package newsapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
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
	defaultBaseURL  = "https://newsapi.org/v2"
	defaultPageSize = 20
	maxPageSize     = 100
	trendingSize    = 10
	sourceName      = "NewsAPI"
)

var _ domain.ContentProvider = (*Provider)(nil)

// Config описывает подключение к NewsAPI.
type Config struct {
	APIKey   string
	BaseURL  string
	Country  string
	Delay    time.Duration
	CacheTTL time.Duration
}

// Provider реализует domain.ContentProvider для новостей.
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
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	return &Provider{
		cfg:     cfg,
		client:  client,
		limiter: upstream.NewLimiter(cfg.Delay),
		now:     time.Now,
		log:     logger,
	}
}

// Name возвращает идентификатор провайдера.
func (p *Provider) Name() domain.Provider { return domain.ProviderNews }

// FetchByNativeQuery загружает заголовки одной рубрики.
func (p *Provider) FetchByNativeQuery(ctx context.Context, category string, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if !isCategory(category) {
		return domain.Failed(domain.ProviderNews, domain.KindConfiguration, fmt.Sprintf("неизвестная рубрика %q", category), 0)
	}
	return upstream.Single(ctx, domain.ProviderNews, category, p.headlinesFunc(opts))
}

// FetchTrending загружает общие главные новости.
func (p *Provider) FetchTrending(ctx context.Context, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	if opts.Limit <= 0 {
		opts.Limit = trendingSize
	}
	return upstream.Single(ctx, domain.ProviderNews, "general", p.headlinesFunc(opts))
}

// FetchByTopics обходит рубрики, соответствующие темам. Если ни одна тема
// не покрывается рубриками, берётся general.
func (p *Provider) FetchByTopics(ctx context.Context, topics []domain.Topic, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	if len(topics) == 0 {
		return domain.Failed(domain.ProviderNews, domain.KindConfiguration, "пустой список тем", 0)
	}
	categories := Categories(topics)
	return upstream.Sequential(ctx, domain.ProviderNews, p.limiter, categories, p.headlinesFunc(opts))
}

// Search ищет статьи по запросу, свежие первыми.
func (p *Provider) Search(ctx context.Context, query string, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Failed(domain.ProviderNews, domain.KindConfiguration, "пустой поисковый запрос", 0)
	}
	return upstream.Single(ctx, domain.ProviderNews, query, func(ctx context.Context, q string) ([]domain.Content, error) {
		params := url.Values{}
		params.Set("q", q)
		params.Set("sortBy", "publishedAt")
		params.Set("pageSize", strconv.Itoa(pageSize(opts)))
		params.Set("page", strconv.Itoa(page(opts)))
		return p.fetch(ctx, "everything", "/everything", params, "general")
	})
}

// Categories переводит темы в уникальные рубрики с сохранением порядка.
func Categories(topics []domain.Topic) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range topics {
		for _, c := range domain.SubjectsForTopic(domain.ProviderNews, t) {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = []string{"general"}
	}
	return out
}

func (p *Provider) precheck() (domain.ProviderResult, bool) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return domain.Failed(domain.ProviderNews, domain.KindConfiguration, "NEWS_API_KEY не задан", 0), false
	}
	return domain.ProviderResult{}, true
}

func (p *Provider) headlinesFunc(opts domain.FetchOptions) upstream.FetchFunc {
	return func(ctx context.Context, category string) ([]domain.Content, error) {
		params := url.Values{}
		params.Set("category", category)
		params.Set("country", p.cfg.Country)
		params.Set("pageSize", strconv.Itoa(pageSize(opts)))
		params.Set("page", strconv.Itoa(page(opts)))
		return p.fetch(ctx, "top_headlines", "/top-headlines", params, category)
	}
}

func (p *Provider) fetch(ctx context.Context, operation, path string, params url.Values, category string) ([]domain.Content, error) {
	query := params.Encode()
	header := http.Header{}
	header.Set("X-Api-Key", p.cfg.APIKey)
	resp, err := p.client.Get(ctx, upstream.Request{
		Operation: operation,
		Target:    category,
		URL:       p.cfg.BaseURL + path + "?" + query,
		Header:    header,
		CacheKey:  path + "?" + query,
		CacheTTL:  p.cfg.CacheTTL,
	})
	if err != nil {
		return nil, err
	}

	var body response
	if decodeErr := upstream.DecodeJSON(resp, &body); decodeErr != nil {
		if !resp.OK() {
			return nil, upstream.Errorf(upstream.StatusKind(resp.Status), "newsapi: unexpected status %d", resp.Status)
		}
		return nil, decodeErr
	}
	if !resp.OK() || body.Status != "ok" {
		return nil, classify(resp.Status, body)
	}

	fetchedAt := p.now().UTC()
	items := make([]domain.Content, 0, len(body.Articles))
	for _, a := range body.Articles {
		item, ok := transform(a, category, fetchedAt)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	p.log.Debug().Str("category", category).Int("items", len(items)).Bool("cached", resp.Cached).Msg("newsapi: получены статьи")
	return items, nil
}

func classify(status int, body response) error {
	msg := body.Message
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", status)
	}
	kind := upstream.StatusKind(status)
	switch body.Code {
	case "apiKeyMissing", "apiKeyInvalid", "apiKeyDisabled", "parametersMissing", "parameterInvalid", "sourcesTooMany":
		kind = domain.KindConfiguration
	case "apiKeyExhausted", "rateLimited":
		kind = domain.KindRateLimited
	case "sourceDoesNotExist":
		kind = domain.KindNotFound
	case "unexpectedError":
		kind = domain.KindUpstream
	}
	if status >= 200 && status < 300 && body.Code == "" {
		kind = domain.KindUpstream
	}
	return upstream.Errorf(kind, "newsapi: %s", msg)
}

func transform(a article, category string, fetchedAt time.Time) (domain.Content, bool) {
	title := upstream.PlainText(a.Title)
	if title == "" || title == "[Removed]" {
		return domain.Content{}, false
	}
	topic := domain.MapNewsCategory(category)
	publishedAt, err := time.Parse(time.RFC3339, a.PublishedAt)
	if err != nil {
		publishedAt = fetchedAt
	}
	key := a.URL
	if key == "" {
		key = title
	}
	item := domain.Content{
		ID:           domain.ContentID(domain.ProviderNews, ArticleID(key)),
		Provider:     domain.ProviderNews,
		ProviderID:   a.URL,
		SourceName:   sourceName,
		SourceURL:    a.URL,
		Title:        title,
		Description:  upstream.PlainText(a.Description),
		Body:         upstream.PlainText(a.Content),
		ThumbnailURL: a.URLToImage,
		ImageURL:     a.URLToImage,
		ImageURLs:    []string{},
		Author:       strings.TrimSpace(a.Author),
		PublishedAt:  publishedAt.UTC(),
		FetchedAt:    fetchedAt,
		Topics:       []domain.Topic{topic},
		PrimaryTopic: topic,
		Extension: domain.NewsExtension{
			Category:   category,
			SourceSite: a.Source.Name,
		},
	}
	if a.URLToImage != "" {
		item.ImageURLs = []string{a.URLToImage}
	}
	return item, true
}

// ArticleID — стабильный идентификатор статьи по её адресу.
func ArticleID(articleURL string) string {
	sum := sha256.Sum256([]byte(articleURL))
	return hex.EncodeToString(sum[:8])
}

func isCategory(category string) bool {
	for _, c := range domain.NewsCategories {
		if c == category {
			return true
		}
	}
	return false
}

func pageSize(opts domain.FetchOptions) int {
	switch {
	case opts.Limit <= 0:
		return defaultPageSize
	case opts.Limit > maxPageSize:
		return maxPageSize
	default:
		return opts.Limit
	}
}

func page(opts domain.FetchOptions) int {
	if opts.Page <= 0 {
		return 1
	}
	return opts.Page
}

type response struct {
	Status       string    `json:"status"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	TotalResults int       `json:"totalResults"`
	Articles     []article `json:"articles"`
}

type article struct {
	Source struct {
		ID   *string `json:"id"`
		Name string  `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}
