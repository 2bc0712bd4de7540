package domain

import (
	"fmt"
	"strings"
	"time"
)

// Provider идентифицирует источник контента.
type Provider string

const (
	ProviderNews   Provider = "news"
	ProviderMedia  Provider = "media-catalog"
	ProviderSocial Provider = "social"
)

// AllProviders в порядке диспетчеризации. При дедупликации побеждает
// элемент провайдера, стоящего раньше.
var AllProviders = []Provider{ProviderNews, ProviderMedia, ProviderSocial}

// InterleavePriority — порядок чередования при сортировке по дате.
var InterleavePriority = []Provider{ProviderSocial, ProviderNews, ProviderMedia}

// Valid сообщает, известен ли провайдер.
func (p Provider) Valid() bool {
	for _, candidate := range AllProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProvider разбирает провайдера из пользовательского ввода.
func ParseProvider(raw string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", NewConfigError(fmt.Sprintf("неизвестный провайдер %q", raw))
	}
	return p, nil
}

// ContentID строит глобальный идентификатор "<provider>:<localId>".
func ContentID(p Provider, localID string) string {
	return string(p) + ":" + localID
}

// Content — канонический элемент ленты.
type Content struct {
	ID           string    `json:"id"`
	Provider     Provider  `json:"provider"`
	ProviderID   string    `json:"provider_id"`
	SourceName   string    `json:"source_name"`
	SourceURL    string    `json:"source_url"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Body         string    `json:"body,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	ImageURLs    []string  `json:"image_urls"`
	Author       string    `json:"author,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	FetchedAt    time.Time `json:"fetched_at"`
	Topics       []Topic   `json:"topics"`
	PrimaryTopic Topic     `json:"primary_topic"`
	// EngagementScore и CommentCount отсутствуют, если провайдер их не сообщает.
	EngagementScore *float64  `json:"engagement_score,omitempty"`
	CommentCount    *int      `json:"comment_count,omitempty"`
	Extension       Extension `json:"extension"`
}

// Score возвращает оценку вовлечённости, отсутствие считается нулём.
func (c Content) Score() float64 {
	if c.EngagementScore == nil {
		return 0
	}
	return *c.EngagementScore
}

// HasImage сообщает, есть ли у элемента хоть одно изображение.
func (c Content) HasImage() bool {
	return c.ImageURL != "" || c.ThumbnailURL != "" || len(c.ImageURLs) > 0
}

// Validate проверяет инварианты канонического элемента.
func (c Content) Validate() error {
	if !c.Provider.Valid() {
		return fmt.Errorf("content %s: неизвестный провайдер %q", c.ID, c.Provider)
	}
	if !strings.HasPrefix(c.ID, string(c.Provider)+":") {
		return fmt.Errorf("content %s: id не соответствует провайдеру", c.ID)
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("content %s: пустой заголовок", c.ID)
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("content %s: нет тем", c.ID)
	}
	if !ContainsTopic(c.Topics, c.PrimaryTopic) {
		return fmt.Errorf("content %s: основная тема %q вне списка тем", c.ID, c.PrimaryTopic)
	}
	if c.Extension == nil || c.Extension.Provider() != c.Provider {
		return fmt.Errorf("content %s: расширение не соответствует провайдеру", c.ID)
	}
	return nil
}

// Extension — провайдер-специфичная часть элемента. Набор реализаций закрыт:
// NewsExtension, MediaExtension, SocialExtension.
type Extension interface {
	Provider() Provider
	isExtension()
}

// NewsExtension — поля новостной статьи.
type NewsExtension struct {
	Category   string `json:"category"`
	SourceSite string `json:"source_site"`
}

func (NewsExtension) Provider() Provider { return ProviderNews }
func (NewsExtension) isExtension()       {}

// MediaExtension — поля фильма или сериала.
type MediaExtension struct {
	MediaType   string   `json:"media_type"`
	Rating      float64  `json:"rating"`
	ReleaseDate string   `json:"release_date,omitempty"`
	GenreIDs    []int    `json:"genre_ids"`
	GenreNames  []string `json:"genre_names"`
	Popularity  float64  `json:"popularity"`
	VoteCount   int      `json:"vote_count"`
	BackdropURL string   `json:"backdrop_url,omitempty"`
}

func (MediaExtension) Provider() Provider { return ProviderMedia }
func (MediaExtension) isExtension()       {}

// PostType — тип поста в соцсети.
type PostType string

const (
	PostTypeLink    PostType = "link"
	PostTypeText    PostType = "text"
	PostTypeImage   PostType = "image"
	PostTypeVideo   PostType = "video"
	PostTypeGallery PostType = "gallery"
)

// SocialExtension — поля поста сообщества.
type SocialExtension struct {
	Subreddit   string   `json:"subreddit"`
	SubredditID string   `json:"subreddit_id"`
	Upvotes     int      `json:"upvotes"`
	Downvotes   int      `json:"downvotes"`
	UpvoteRatio float64  `json:"upvote_ratio"`
	NSFW        bool     `json:"nsfw"`
	Spoiler     bool     `json:"spoiler"`
	Flair       string   `json:"flair,omitempty"`
	PostType    PostType `json:"post_type"`
	Permalink   string   `json:"permalink"`
}

func (SocialExtension) Provider() Provider { return ProviderSocial }
func (SocialExtension) isExtension()       {}

// FloatPtr возвращает указатель на значение.
func FloatPtr(v float64) *float64 { return &v }

// IntPtr возвращает указатель на значение.
func IntPtr(v int) *int { return &v }
