// Package httpapi публикует ленту, настройки и вовлечённость через HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"atlas-feed/internal/adapters/ranker"
	"atlas-feed/internal/domain"
	httpinfra "atlas-feed/internal/infra/http"
	"atlas-feed/internal/usecase/engagement"
)

const (
	defaultHistoryLimit = 50
	maxBodyBytes        = 1 << 20
)

// Deps — зависимости обработчиков. Queue может быть nil: тогда события
// вовлечённости записываются синхронно.
type Deps struct {
	Feed       domain.FeedService
	Store      domain.PreferenceStore
	Engagement *engagement.Service
	Queue      domain.EngagementQueue
	Logger     zerolog.Logger
}

// Handler обслуживает /api/v1.
type Handler struct {
	feed       domain.FeedService
	store      domain.PreferenceStore
	engagement *engagement.Service
	queue      domain.EngagementQueue
	now        func() time.Time
	log        zerolog.Logger
}

// New создаёт обработчик.
func New(deps Deps) *Handler {
	return &Handler{
		feed:       deps.Feed,
		store:      deps.Store,
		engagement: deps.Engagement,
		queue:      deps.Queue,
		now:        time.Now,
		log:        deps.Logger,
	}
}

// Mount регистрирует маршруты на роутере.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpinfra.WriteJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/feed", h.getFeed)
		api.Get("/trending", h.getTrending)
		api.Get("/search", h.search)

		api.Get("/preferences", h.getPreferences)
		api.Patch("/preferences", h.patchPreferences)
		api.Delete("/preferences", h.resetPreferences)
		api.Post("/preferences/learn", h.learn)

		api.Post("/engagement", h.postEngagement)
		api.Get("/history", h.getHistory)
		api.Delete("/history", h.clearHistory)

		api.Get("/topics", h.getTopics)
		api.Get("/topics/engagement", h.getTopicEngagement)
		api.Get("/topics/recommended", h.getRecommended)

		api.Get("/favorites", h.getFavorites)
		api.Put("/favorites/{id}", h.putFavorite)
		api.Delete("/favorites/{id}", h.deleteFavorite)
		api.Post("/favorites/{id}/toggle", h.toggleFavorite)
	})
}

type feedResponse struct {
	domain.FeedPage
	Stats ranker.Stats `json:"stats"`
}

func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	pageSize, err := intParam(q.Get("page_size"), 0)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	var sort domain.SortStrategy
	if raw := q.Get("sort"); raw != "" {
		if sort, err = domain.ParseSort(raw); err != nil {
			h.writeErr(w, r, err)
			return
		}
	}
	providers, err := providersParam(q.Get("providers"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	prefs := h.store.Load(r.Context())
	if raw := q.Get("topics"); strings.TrimSpace(raw) != "" {
		topics, err := domain.ParseTopics(strings.Split(raw, ","))
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		if len(topics) > 0 {
			prefs.Topics = topics
		}
	}

	feed, err := h.feed.GetFeed(r.Context(), domain.FeedRequest{
		Preferences: prefs,
		Page:        page,
		PageSize:    pageSize,
		Sort:        sort,
		Providers:   providers,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, feedResponse{FeedPage: feed, Stats: ranker.ComputeStats(feed.Items)})
}

func (h *Handler) getTrending(w http.ResponseWriter, r *http.Request) {
	pageSize, err := intParam(r.URL.Query().Get("page_size"), 0)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	feed, err := h.feed.GetTrending(r.Context(), pageSize)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, feedResponse{FeedPage: feed, Stats: ranker.ComputeStats(feed.Items)})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providers, err := providersParam(q.Get("providers"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	pageSize, err := intParam(q.Get("page_size"), 0)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	feed, err := h.feed.Search(r.Context(), q.Get("q"), providers, pageSize)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, feedResponse{FeedPage: feed, Stats: ranker.ComputeStats(feed.Items)})
}

func (h *Handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, h.store.Load(r.Context()))
}

func (h *Handler) patchPreferences(w http.ResponseWriter, r *http.Request) {
	var patch domain.PreferencesPatch
	if err := decodeBody(r, &patch, false); err != nil {
		h.writeErr(w, r, err)
		return
	}
	prefs, err := h.store.Save(r.Context(), patch)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, prefs)
}

func (h *Handler) resetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.store.Reset(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, prefs)
}

func (h *Handler) learn(w http.ResponseWriter, r *http.Request) {
	prefs, changed, err := h.engagement.LearnPreferences(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, map[string]any{"updated": changed, "preferences": prefs})
}

func (h *Handler) postEngagement(w http.ResponseWriter, r *http.Request) {
	var ev domain.EngagementEvent
	if err := decodeBody(r, &ev, false); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := engagement.ValidateEvent(ev); err != nil {
		h.writeErr(w, r, err)
		return
	}

	if h.queue != nil {
		job := domain.EngagementJob{ID: uuid.NewString(), Event: ev, RequestedAt: h.now().UTC()}
		if err := h.queue.Enqueue(r.Context(), job); err != nil {
			h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("httpapi: не удалось поставить событие в очередь")
			httpinfra.WriteError(w, http.StatusServiceUnavailable, "очередь недоступна")
			return
		}
		httpinfra.WriteJSONStatus(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
		return
	}

	recorded, err := h.engagement.RecordEngagement(r.Context(), ev)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, map[string]bool{"recorded": recorded})
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), defaultHistoryLimit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	history := h.engagement.History(r.Context(), limit)
	if history == nil {
		history = []domain.HistoryEntry{}
	}
	httpinfra.WriteJSON(w, map[string]any{"history": history})
}

func (h *Handler) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.engagement.ClearHistory(r.Context()); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type topicView struct {
	Topic domain.Topic `json:"topic"`
	domain.TopicMeta
}

func (h *Handler) getTopics(w http.ResponseWriter, r *http.Request) {
	out := make([]topicView, 0, len(domain.AllTopics))
	for _, t := range domain.AllTopics {
		out = append(out, topicView{Topic: t, TopicMeta: t.Meta()})
	}
	httpinfra.WriteJSON(w, map[string]any{"topics": out})
}

func (h *Handler) getTopicEngagement(w http.ResponseWriter, r *http.Request) {
	httpinfra.WriteJSON(w, map[string]any{"engagement": h.engagement.ComputeTopicEngagement(r.Context())})
}

func (h *Handler) getRecommended(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), engagement.DefaultRecommendLimit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, map[string]any{"topics": h.engagement.RecommendTopics(r.Context(), limit)})
}

func (h *Handler) getFavorites(w http.ResponseWriter, r *http.Request) {
	favorites := h.engagement.Favorites(r.Context())
	if favorites == nil {
		favorites = []string{}
	}
	httpinfra.WriteJSON(w, map[string]any{"favorites": favorites})
}

func (h *Handler) putFavorite(w http.ResponseWriter, r *http.Request) {
	var src engagement.FavoriteSource
	if err := decodeBody(r, &src, true); err != nil {
		h.writeErr(w, r, err)
		return
	}
	added, err := h.engagement.AddFavorite(r.Context(), chi.URLParam(r, "id"), src)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	httpinfra.WriteJSONStatus(w, status, map[string]bool{"added": added})
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	var src engagement.FavoriteSource
	if err := decodeBody(r, &src, true); err != nil {
		h.writeErr(w, r, err)
		return
	}
	on, err := h.engagement.ToggleFavorite(r.Context(), chi.URLParam(r, "id"), src)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, map[string]bool{"favorite": on})
}

func (h *Handler) deleteFavorite(w http.ResponseWriter, r *http.Request) {
	if err := h.engagement.RemoveFavorite(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feedErrorResponse struct {
	Error     string                  `json:"error"`
	Kind      domain.ErrorKind        `json:"kind"`
	Providers []domain.ProviderStatus `json:"providers"`
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var feedErr *domain.FeedError
	var cfgErr *domain.ConfigError
	switch {
	case errors.As(err, &feedErr):
		h.log.Warn().Err(err).Str("kind", string(feedErr.Kind)).Str("path", r.URL.Path).Msg("httpapi: все провайдеры отказали")
		httpinfra.WriteJSONStatus(w, http.StatusServiceUnavailable, feedErrorResponse{
			Error:     domain.ErrAllProvidersFailed.Error(),
			Kind:      feedErr.Kind,
			Providers: feedErr.Providers,
		})
	case errors.As(err, &cfgErr):
		httpinfra.WriteError(w, http.StatusBadRequest, cfgErr.Reason)
	case errors.Is(err, domain.ErrConfiguration):
		httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("httpapi: внутренняя ошибка")
		httpinfra.WriteError(w, http.StatusInternalServerError, "внутренняя ошибка")
	}
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewConfigError("ожидали целое число, получили " + strconv.Quote(raw))
	}
	return v, nil
}

func providersParam(raw string) ([]domain.Provider, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []domain.Provider
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := domain.ParseProvider(part)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// decodeBody разбирает JSON тело запроса. При optional пустое тело допустимо.
func decodeBody(r *http.Request, dst any, optional bool) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewConfigError("некорректное тело запроса: " + err.Error())
	}
	return nil
}
