// Package reddit адаптирует публичные листинги сообществ Reddit к каноническому контенту.
package reddit

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"atlas-feed/internal/adapters/upstream"
	"atlas-feed/internal/domain"
)

const (
	defaultBaseURL  = "https://www.reddit.com"
	siteURL         = "https://www.reddit.com"
	sourceName      = "Reddit"
	defaultLimit    = 25
	maxLimit        = 100
	trendingLimit   = 15
	perTopic        = 2
	maxCommunities  = 6
	descriptionSize = 300
)

var imageURLPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)

var placeholderThumbnails = map[string]struct{}{
	"":        {},
	"self":    {},
	"default": {},
	"nsfw":    {},
	"spoiler": {},
}

var _ domain.ContentProvider = (*Provider)(nil)

// Config описывает подключение к Reddit.
type Config struct {
	BaseURL   string
	UserAgent string
	// Sort — сортировка листингов сообществ: hot, new, top, rising.
	Sort     string
	Delay    time.Duration
	CacheTTL time.Duration
}

// Provider реализует domain.ContentProvider для соцсети.
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
	if cfg.Sort == "" {
		cfg.Sort = "hot"
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
func (p *Provider) Name() domain.Provider { return domain.ProviderSocial }

// FetchByNativeQuery загружает листинг одного сообщества.
func (p *Provider) FetchByNativeQuery(ctx context.Context, subreddit string, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	subreddit = strings.TrimPrefix(strings.TrimSpace(subreddit), "r/")
	if subreddit == "" {
		return domain.Failed(domain.ProviderSocial, domain.KindConfiguration, "пустое имя сообщества", 0)
	}
	return upstream.Single(ctx, domain.ProviderSocial, subreddit, p.listingFunc(opts))
}

// FetchTrending загружает r/popular.
func (p *Provider) FetchTrending(ctx context.Context, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	if opts.Limit <= 0 {
		opts.Limit = trendingLimit
	}
	return upstream.Single(ctx, domain.ProviderSocial, "popular", func(ctx context.Context, _ string) ([]domain.Content, error) {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit(opts)))
		params.Set("raw_json", "1")
		return p.fetch(ctx, fetchSpec{
			operation: "trending",
			target:    "popular",
			path:      "/r/popular/hot.json",
			params:    params,
			cacheTTL:  p.cfg.CacheTTL,
			opts:      opts,
		})
	})
}

// FetchByTopics обходит сообщества, подобранные по темам.
func (p *Provider) FetchByTopics(ctx context.Context, topics []domain.Topic, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	if len(topics) == 0 {
		return domain.Failed(domain.ProviderSocial, domain.KindConfiguration, "пустой список тем", 0)
	}
	return upstream.Sequential(ctx, domain.ProviderSocial, p.limiter, Subreddits(topics), p.listingFunc(opts))
}

// Search ищет посты за неделю по релевантности.
func (p *Provider) Search(ctx context.Context, query string, opts domain.FetchOptions) domain.ProviderResult {
	if res, ok := p.precheck(); !ok {
		return res
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Failed(domain.ProviderSocial, domain.KindConfiguration, "пустой поисковый запрос", 0)
	}
	return upstream.Single(ctx, domain.ProviderSocial, query, func(ctx context.Context, q string) ([]domain.Content, error) {
		params := url.Values{}
		params.Set("q", q)
		params.Set("sort", "relevance")
		params.Set("t", "week")
		params.Set("limit", strconv.Itoa(limit(opts)))
		params.Set("raw_json", "1")
		params.Set("type", "link")
		return p.fetch(ctx, fetchSpec{
			operation: "search",
			target:    "search",
			path:      "/search.json",
			params:    params,
			opts:      opts,
		})
	})
}

// Subreddits подбирает сообщества для тем: первые два на тему, без повторов,
// не больше шести. Если темы не дали сообществ, берутся сообщества по умолчанию.
func Subreddits(topics []domain.Topic) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range topics {
		communities := domain.SubjectsForTopic(domain.ProviderSocial, t)
		if len(communities) > perTopic {
			communities = communities[:perTopic]
		}
		for _, c := range communities {
			key := strings.ToLower(c)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = append(out, domain.DefaultCommunities...)
	}
	if len(out) > maxCommunities {
		out = out[:maxCommunities]
	}
	return out
}

func (p *Provider) precheck() (domain.ProviderResult, bool) {
	if strings.TrimSpace(p.cfg.UserAgent) == "" {
		return domain.Failed(domain.ProviderSocial, domain.KindConfiguration, "REDDIT_USER_AGENT не задан", 0), false
	}
	return domain.ProviderResult{}, true
}

func (p *Provider) listingFunc(opts domain.FetchOptions) upstream.FetchFunc {
	return func(ctx context.Context, subreddit string) ([]domain.Content, error) {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit(opts)))
		params.Set("raw_json", "1")
		if p.cfg.Sort == "top" {
			params.Set("t", "day")
		}
		return p.fetch(ctx, fetchSpec{
			operation: "listing",
			target:    subreddit,
			subreddit: subreddit,
			path:      "/r/" + url.PathEscape(subreddit) + "/" + p.cfg.Sort + ".json",
			params:    params,
			dropPins:  true,
			opts:      opts,
		})
	}
}

type fetchSpec struct {
	operation string
	target    string
	// subreddit задаёт тему всех постов листинга; пустой — тема по сообществу поста.
	subreddit string
	path      string
	params    url.Values
	cacheTTL  time.Duration
	dropPins  bool
	opts      domain.FetchOptions
}

func (p *Provider) fetch(ctx context.Context, spec fetchSpec) ([]domain.Content, error) {
	query := spec.params.Encode()
	req := upstream.Request{
		Operation: spec.operation,
		Target:    spec.target,
		URL:       p.cfg.BaseURL + spec.path + "?" + query,
		Header:    http.Header{"User-Agent": []string{p.cfg.UserAgent}},
	}
	if spec.cacheTTL > 0 {
		req.CacheKey = spec.path + "?" + query
		req.CacheTTL = spec.cacheTTL
	}
	resp, err := p.client.Get(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, classify(resp.Status, spec.subreddit)
	}

	var body listing
	if err := upstream.DecodeJSON(resp, &body); err != nil {
		return nil, err
	}

	fetchedAt := p.now().UTC()
	items := make([]domain.Content, 0, len(body.Data.Children))
	for _, child := range body.Data.Children {
		data := child.Data
		if spec.dropPins && data.Stickied {
			continue
		}
		if data.Over18 && !spec.opts.IncludeAdult {
			continue
		}
		item, ok := transform(data, spec.subreddit, fetchedAt)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	p.log.Debug().Str("target", spec.target).Int("items", len(items)).Bool("cached", resp.Cached).Msg("reddit: получены посты")
	return items, nil
}

func classify(status int, subreddit string) error {
	kind := upstream.StatusKind(status)
	switch {
	case status == http.StatusNotFound && subreddit != "":
		return upstream.Errorf(kind, "r/%s not found", subreddit)
	case status == http.StatusForbidden && subreddit != "":
		return upstream.Errorf(kind, "r/%s is private or quarantined", subreddit)
	case status == http.StatusUnauthorized:
		// Reddit отвечает 401 на заблокированный User-Agent.
		return upstream.Errorf(domain.KindForbidden, "reddit: unauthorized (status %d)", status)
	default:
		return upstream.Errorf(kind, "reddit: unexpected status %d", status)
	}
}

func transform(data post, subreddit string, fetchedAt time.Time) (domain.Content, bool) {
	title := strings.TrimSpace(data.Title)
	if title == "" || title == "[removed]" || title == "[deleted]" {
		return domain.Content{}, false
	}
	if subreddit == "" {
		subreddit = data.Subreddit
	}
	topic := domain.MapCommunity(subreddit)

	image := extractImage(data)
	images := galleryImages(data)
	if len(images) == 0 && image != "" {
		images = []string{image}
	}
	if images == nil {
		images = []string{}
	}

	var flair string
	if data.LinkFlairText != nil {
		flair = *data.LinkFlairText
	}

	return domain.Content{
		ID:              domain.ContentID(domain.ProviderSocial, data.ID),
		Provider:        domain.ProviderSocial,
		ProviderID:      data.ID,
		SourceName:      sourceName,
		SourceURL:       siteURL + data.Permalink,
		Title:           title,
		Description:     upstream.Truncate(data.Selftext, descriptionSize),
		Body:            data.Selftext,
		ThumbnailURL:    image,
		ImageURL:        image,
		ImageURLs:       images,
		Author:          data.Author,
		PublishedAt:     time.Unix(int64(data.CreatedUTC), 0).UTC(),
		FetchedAt:       fetchedAt,
		Topics:          []domain.Topic{topic},
		PrimaryTopic:    topic,
		EngagementScore: domain.FloatPtr(float64(data.Score)),
		CommentCount:    domain.IntPtr(data.NumComments),
		Extension: domain.SocialExtension{
			Subreddit:   data.Subreddit,
			SubredditID: data.SubredditID,
			Upvotes:     data.Ups,
			Downvotes:   data.Downs,
			UpvoteRatio: data.UpvoteRatio,
			NSFW:        data.Over18,
			Spoiler:     data.Spoiler,
			Flair:       flair,
			PostType:    postType(data),
			Permalink:   data.Permalink,
		},
	}, true
}

func postType(p post) domain.PostType {
	switch {
	case p.IsSelf:
		return domain.PostTypeText
	case p.IsVideo:
		return domain.PostTypeVideo
	case p.IsGallery:
		return domain.PostTypeGallery
	case p.PostHint == "image" || imageURLPattern.MatchString(p.URL):
		return domain.PostTypeImage
	default:
		return domain.PostTypeLink
	}
}

func extractImage(p post) string {
	if p.Preview != nil && len(p.Preview.Images) > 0 && p.Preview.Images[0].Source.URL != "" {
		return unescapeAmp(p.Preview.Images[0].Source.URL)
	}
	if _, placeholder := placeholderThumbnails[p.Thumbnail]; !placeholder {
		return p.Thumbnail
	}
	if imageURLPattern.MatchString(p.URL) {
		return p.URL
	}
	return ""
}

func galleryImages(p post) []string {
	if !p.IsGallery || p.MediaMetadata == nil || p.GalleryData == nil {
		return nil
	}
	var out []string
	for _, item := range p.GalleryData.Items {
		media, ok := p.MediaMetadata[item.MediaID]
		if !ok || media.S.U == "" {
			continue
		}
		out = append(out, unescapeAmp(media.S.U))
	}
	return out
}

func unescapeAmp(s string) string {
	return strings.ReplaceAll(s, "&amp;", "&")
}

func limit(opts domain.FetchOptions) int {
	switch {
	case opts.Limit <= 0:
		return defaultLimit
	case opts.Limit > maxLimit:
		return maxLimit
	default:
		return opts.Limit
	}
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    *string `json:"after"`
		Children []struct {
			Kind string `json:"kind"`
			Data post   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Selftext      string  `json:"selftext"`
	Author        string  `json:"author"`
	Subreddit     string  `json:"subreddit"`
	SubredditID   string  `json:"subreddit_id"`
	Score         int     `json:"score"`
	Ups           int     `json:"ups"`
	Downs         int     `json:"downs"`
	UpvoteRatio   float64 `json:"upvote_ratio"`
	NumComments   int     `json:"num_comments"`
	CreatedUTC    float64 `json:"created_utc"`
	Permalink     string  `json:"permalink"`
	URL           string  `json:"url"`
	Thumbnail     string  `json:"thumbnail"`
	IsVideo       bool    `json:"is_video"`
	IsGallery     bool    `json:"is_gallery"`
	IsSelf        bool    `json:"is_self"`
	Over18        bool    `json:"over_18"`
	Spoiler       bool    `json:"spoiler"`
	Stickied      bool    `json:"stickied"`
	LinkFlairText *string `json:"link_flair_text"`
	PostHint      string  `json:"post_hint"`
	Preview       *struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
	GalleryData *struct {
		Items []struct {
			MediaID string `json:"media_id"`
		} `json:"items"`
	} `json:"gallery_data"`
	MediaMetadata map[string]struct {
		S struct {
			U string `json:"u"`
		} `json:"s"`
	} `json:"media_metadata"`
}
