// Package upstream содержит общий HTTP-транспорт адаптеров провайдеров:
// GET с контекстом, кэш сырых ответов, метрики и последовательный обход
// нативных запросов с задержкой между вызовами.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"atlas-feed/internal/domain"
	"atlas-feed/internal/infra/metrics"
)

const maxBodyBytes = 8 << 20

// Client выполняет GET-запросы к одному провайдеру.
type Client struct {
	http      *http.Client
	component string
	userAgent string
	cache     domain.Cache
	log       zerolog.Logger
}

// Option настраивает Client.
type Option func(*Client)

// WithCache включает кэширование успешных ответов.
func WithCache(cache domain.Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithUserAgent задаёт заголовок User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger задаёт логгер.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// NewClient создаёт клиента провайдера component.
func NewClient(component string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		http:      &http.Client{Timeout: timeout},
		component: component,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request описывает один GET.
type Request struct {
	Operation string
	Target    string
	URL       string
	Header    http.Header
	// CacheKey пустой — ответ не кэшируется. Ключ не должен содержать секретов.
	CacheKey string
	CacheTTL time.Duration
}

// Response — ответ провайдера целиком.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	Cached      bool
}

// OK сообщает, что статус 2xx.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Get выполняет запрос. Ошибка возвращается только для сбоев транспорта;
// статус ответа классифицирует вызывающий адаптер.
func (c *Client) Get(ctx context.Context, req Request) (Response, error) {
	if c.cache != nil && req.CacheKey != "" {
		if body, ok := c.cache.Get(ctx, c.component+":"+req.CacheKey); ok {
			metrics.ObserveCache(true)
			return Response{Status: http.StatusOK, ContentType: "application/json", Body: body, Cached: true}, nil
		}
		metrics.ObserveCache(false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return Response{}, Errorf(domain.KindConfiguration, "%s: build request: %v", c.component, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest(c.component, req.Operation, req.Target, start, err)
		return Response{}, Errorf(domain.ClassifyTransportError(err), "%s: do request: %v", c.component, redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ObserveNetworkRequest(c.component, req.Operation, req.Target, start, err)
		return Response{}, Errorf(domain.ClassifyTransportError(err), "%s: read response: %v", c.component, err)
	}
	out := Response{Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: body}
	var statusErr error
	if !out.OK() {
		statusErr = fmt.Errorf("status %d", resp.StatusCode)
	}
	metrics.ObserveNetworkRequest(c.component, req.Operation, req.Target, start, statusErr)

	if out.OK() && c.cache != nil && req.CacheKey != "" && req.CacheTTL > 0 {
		if err := c.cache.Set(ctx, c.component+":"+req.CacheKey, body, req.CacheTTL); err != nil {
			c.log.Warn().Err(err).Str("key", req.CacheKey).Msg("upstream: не удалось сохранить ответ в кэш")
		}
	}
	return out, nil
}

// redact убирает query-строку из ошибок url.Error, чтобы ключи API не попадали в логи.
func redact(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, "?"); i >= 0 {
		end := strings.IndexAny(msg[i:], "\": ")
		if end < 0 {
			return msg[:i]
		}
		return msg[:i] + msg[i+end:]
	}
	return msg
}
