// Package feed собирает ленту: параллельно опрашивает провайдеров, объединяет
// их результаты и прогоняет через конвейер агрегации.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"atlas-feed/internal/adapters/ranker"
	"atlas-feed/internal/adapters/upstream"
	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/metrics"
)

const (
	trendingPageSize  = 30
	trendingNewsLimit = 10
	trendingPostLimit = 15
)

// Service реализует domain.FeedService поверх набора провайдеров.
type Service struct {
	providers map[domain.Provider]domain.ContentProvider
	timeout   time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

var _ domain.FeedService = (*Service)(nil)

// NewService создаёт сервис ленты. timeout ограничивает сбор одной ленты целиком;
// ноль отключает ограничение.
func NewService(providers []domain.ContentProvider, logger zerolog.Logger, timeout time.Duration) *Service {
	byName := make(map[domain.Provider]domain.ContentProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{providers: byName, timeout: timeout, now: time.Now, log: logger}
}

// GetFeed строит персональную ленту по настройкам.
func (s *Service) GetFeed(ctx context.Context, req domain.FeedRequest) (page domain.FeedPage, err error) {
	start := time.Now()
	defer func() { metrics.ObserveFeedBuild("personal", start, err) }()

	q, err := s.resolve(req)
	if err != nil {
		return domain.FeedPage{}, err
	}

	results := s.dispatch(ctx, q.providers, func(ctx context.Context, p domain.ContentProvider) domain.ProviderResult {
		return p.FetchByTopics(ctx, q.topics, shareFor(p.Name(), q.page, q.pageSize, q.includeAdult))
	})
	if allFailed(results) {
		return domain.FeedPage{}, domain.NewFeedError(results)
	}

	items := dropExcluded(collect(results), q.excluded)
	items = ranker.Apply(items, q.sort)
	pageItems, hasMore := Paginate(items, q.page, q.pageSize)

	s.log.Debug().
		Int("total", len(items)).
		Int("page", q.page).
		Int("page_size", q.pageSize).
		Str("sort", string(q.sort)).
		Msg("feed: лента собрана")

	return domain.FeedPage{
		Items:     pageItems,
		Total:     len(items),
		Page:      q.page,
		PageSize:  q.pageSize,
		HasMore:   hasMore,
		FetchedAt: s.now().UTC(),
		Providers: statuses(results),
	}, nil
}

// GetTrending собирает тренды всех провайдеров, отсортированные по оценке.
func (s *Service) GetTrending(ctx context.Context, pageSize int) (page domain.FeedPage, err error) {
	start := time.Now()
	defer func() { metrics.ObserveFeedBuild("trending", start, err) }()

	if pageSize <= 0 {
		pageSize = trendingPageSize
	}
	pageSize = clamp(pageSize)

	results := s.dispatch(ctx, s.registered(), func(ctx context.Context, p domain.ContentProvider) domain.ProviderResult {
		opts := domain.FetchOptions{Page: 1}
		switch p.Name() {
		case domain.ProviderNews:
			opts.Limit = trendingNewsLimit
		case domain.ProviderSocial:
			opts.Limit = trendingPostLimit
		}
		return p.FetchTrending(ctx, opts)
	})
	if allFailed(results) {
		return domain.FeedPage{}, domain.NewFeedError(results)
	}

	items := ranker.Sort(ranker.Deduplicate(collect(results)), domain.SortScore)
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	return domain.FeedPage{
		Items:     items,
		Total:     len(items),
		Page:      1,
		PageSize:  pageSize,
		FetchedAt: s.now().UTC(),
		Providers: statuses(results),
	}, nil
}

// Search ищет query у выбранных провайдеров (пустой список означает всех)
// и возвращает первую страницу, отсортированную по релевантности.
func (s *Service) Search(ctx context.Context, query string, providers []domain.Provider, pageSize int) (page domain.FeedPage, err error) {
	start := time.Now()
	defer func() { metrics.ObserveFeedBuild("search", start, err) }()

	query = strings.TrimSpace(query)
	if query == "" {
		return domain.FeedPage{}, domain.NewConfigError("пустой поисковый запрос")
	}
	if pageSize <= 0 {
		pageSize = domain.DefaultPageSize
	}
	pageSize = clamp(pageSize)

	selected := s.registered()
	if len(providers) > 0 {
		selected = intersect(providers, selected)
	}
	if len(selected) == 0 {
		return domain.FeedPage{}, domain.NewConfigError("нет доступных провайдеров для поиска")
	}

	limit := upstream.Share(pageSize, len(selected))
	results := s.dispatch(ctx, selected, func(ctx context.Context, p domain.ContentProvider) domain.ProviderResult {
		return p.Search(ctx, query, domain.FetchOptions{Limit: limit, Page: 1})
	})
	if allFailed(results) {
		return domain.FeedPage{}, domain.NewFeedError(results)
	}

	items := ranker.Apply(collect(results), domain.SortRelevance)
	pageItems, hasMore := Paginate(items, 1, pageSize)
	return domain.FeedPage{
		Items:     pageItems,
		Total:     len(items),
		Page:      1,
		PageSize:  pageSize,
		HasMore:   hasMore,
		FetchedAt: s.now().UTC(),
		Providers: statuses(results),
	}, nil
}

// Paginate возвращает срез [(page-1)*pageSize, page*pageSize) и признак
// наличия следующей страницы.
func Paginate(items []domain.Content, page, pageSize int) ([]domain.Content, bool) {
	if page < 1 || pageSize < 1 {
		return []domain.Content{}, false
	}
	total := len(items)
	from := (page - 1) * pageSize
	if from >= total {
		return []domain.Content{}, false
	}
	to := from + pageSize
	if to > total {
		to = total
	}
	out := make([]domain.Content, to-from)
	copy(out, items[from:to])
	return out, page*pageSize < total
}

type feedQuery struct {
	page         int
	pageSize     int
	sort         domain.SortStrategy
	topics       []domain.Topic
	excluded     []domain.Topic
	providers    []domain.Provider
	includeAdult bool
}

func (s *Service) resolve(req domain.FeedRequest) (feedQuery, error) {
	prefs := req.Preferences
	if req.Page < 1 {
		return feedQuery{}, domain.NewConfigError(fmt.Sprintf("номер страницы должен быть не меньше 1, получено %d", req.Page))
	}
	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = prefs.PageSize
	}
	if pageSize == 0 {
		pageSize = domain.DefaultPageSize
	}

	sortStrategy := req.Sort
	if sortStrategy == "" {
		sortStrategy = prefs.DefaultSort
	}
	sortStrategy, err := domain.ParseSort(string(sortStrategy))
	if err != nil {
		return feedQuery{}, err
	}

	topics := prefs.Topics
	if len(topics) == 0 {
		topics = domain.DefaultTopics
	}
	topics = domain.ExcludeTopics(topics, prefs.ExcludedTopics)
	if len(topics) == 0 {
		return feedQuery{}, domain.NewConfigError("после исключений не осталось тем")
	}

	enabled := prefs.EnabledProviders
	if enabled == nil {
		enabled = domain.AllProviders
	}
	providers := intersect(enabled, domain.AllProviders)
	if len(req.Providers) > 0 {
		providers = intersect(req.Providers, providers)
	}
	if len(providers) == 0 {
		return feedQuery{}, domain.NewConfigError("не выбрано ни одного провайдера")
	}

	return feedQuery{
		page:         req.Page,
		pageSize:     clamp(pageSize),
		sort:         sortStrategy,
		topics:       topics,
		excluded:     prefs.ExcludedTopics,
		providers:    providers,
		includeAdult: prefs.ShowAdultContent,
	}, nil
}

// dispatch опрашивает провайдеров параллельно и дожидается всех. Результаты
// лежат в порядке providers; провайдер без адаптера даёт configuration_error.
func (s *Service) dispatch(ctx context.Context, providers []domain.Provider, call func(context.Context, domain.ContentProvider) domain.ProviderResult) []domain.ProviderResult {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	results := make([]domain.ProviderResult, len(providers))
	var g errgroup.Group
	for i, name := range providers {
		adapter, ok := s.providers[name]
		if !ok {
			results[i] = domain.Failed(name, domain.KindConfiguration, "провайдер не подключён", 0)
			continue
		}
		g.Go(func() error {
			results[i] = call(ctx, adapter)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.OK {
			if r.Message != "" {
				s.log.Info().Str("provider", string(r.Provider)).Str("diagnostic", r.Message).Msg("feed: частичный отказ провайдера")
			}
			continue
		}
		metrics.IncProviderFailure(string(r.Provider), string(r.Kind))
		s.log.Warn().
			Str("provider", string(r.Provider)).
			Str("kind", string(r.Kind)).
			Str("error", r.Message).
			Dur("took", r.Duration).
			Msg("feed: провайдер не вернул данные")
	}
	return results
}

func (s *Service) registered() []domain.Provider {
	out := make([]domain.Provider, 0, len(s.providers))
	for _, p := range domain.AllProviders {
		if _, ok := s.providers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// shareFor делит страницу между провайдерами: новостям треть, соцсети
// половина, каталогу номер страницы.
func shareFor(p domain.Provider, page, pageSize int, includeAdult bool) domain.FetchOptions {
	opts := domain.FetchOptions{IncludeAdult: includeAdult}
	switch p {
	case domain.ProviderNews:
		opts.Limit = upstream.Share(pageSize, 3)
	case domain.ProviderSocial:
		opts.Limit = upstream.Share(pageSize, 2)
	case domain.ProviderMedia:
		opts.Page = page
	}
	return opts
}

func allFailed(results []domain.ProviderResult) bool {
	for _, r := range results {
		if r.OK {
			return false
		}
	}
	return true
}

func collect(results []domain.ProviderResult) []domain.Content {
	var n int
	for _, r := range results {
		n += len(r.Items)
	}
	items := make([]domain.Content, 0, n)
	for _, r := range results {
		items = append(items, r.Items...)
	}
	return items
}

func statuses(results []domain.ProviderResult) []domain.ProviderStatus {
	out := make([]domain.ProviderStatus, 0, len(results))
	for _, r := range results {
		out = append(out, r.Status())
	}
	return out
}

func dropExcluded(items []domain.Content, excluded []domain.Topic) []domain.Content {
	if len(excluded) == 0 {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if intersects(item.Topics, excluded) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func intersects(a, b []domain.Topic) bool {
	for _, t := range a {
		if domain.ContainsTopic(b, t) {
			return true
		}
	}
	return false
}

// intersect оставляет элементы order, присутствующие в want, в порядке order.
func intersect(want, order []domain.Provider) []domain.Provider {
	out := make([]domain.Provider, 0, len(order))
	for _, p := range order {
		for _, w := range want {
			if w == p {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func clamp(pageSize int) int {
	switch {
	case pageSize < 1:
		return 1
	case pageSize > domain.MaxPageSize:
		return domain.MaxPageSize
	default:
		return pageSize
	}
}
