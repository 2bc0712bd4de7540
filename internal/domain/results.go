package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorKind классифицирует отказ провайдера.
type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration_error"
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindRateLimited       ErrorKind = "rate_limited"
	KindUpstream          ErrorKind = "upstream_error"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindTimeout           ErrorKind = "timeout"
)

var (
	// ErrConfiguration — запрос или окружение некорректны, повтор не поможет.
	ErrConfiguration = errors.New("configuration error")
	// ErrAllProvidersFailed — ни один провайдер не вернул данные.
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// ConfigError описывает некорректные параметры запроса или настройки.
type ConfigError struct {
	Reason string
}

// NewConfigError создаёт ошибку конфигурации.
func NewConfigError(reason string) *ConfigError {
	return &ConfigError{Reason: reason}
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Reason }

// Is позволяет сравнивать через errors.Is(err, ErrConfiguration).
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// ProviderError — отказ провайдера как значение с классификацией.
type ProviderError struct {
	Provider Provider
	Kind     ErrorKind
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// FetchOptions задаёт долю запроса, которая принадлежит одному вызову провайдера.
type FetchOptions struct {
	Limit        int
	Page         int
	IncludeAdult bool
}

// ProviderResult — итог одного вызова провайдера. Создаётся только через
// Succeeded или Failed, поэтому успех и ошибка не бывают заданы одновременно.
type ProviderResult struct {
	Provider Provider
	OK       bool
	Items    []Content
	Kind     ErrorKind
	// Message на успехе содержит диагностику частичных отказов.
	Message  string
	Duration time.Duration
}

// Succeeded строит успешный результат.
func Succeeded(p Provider, items []Content, diagnostic string, took time.Duration) ProviderResult {
	if items == nil {
		items = []Content{}
	}
	return ProviderResult{Provider: p, OK: true, Items: items, Message: diagnostic, Duration: took}
}

// Failed строит неуспешный результат.
func Failed(p Provider, kind ErrorKind, message string, took time.Duration) ProviderResult {
	return ProviderResult{Provider: p, Kind: kind, Message: message, Duration: took}
}

// Err возвращает ошибку для неуспешного результата и nil для успешного.
func (r ProviderResult) Err() error {
	if r.OK {
		return nil
	}
	return &ProviderError{Provider: r.Provider, Kind: r.Kind, Message: r.Message}
}

// Status сворачивает результат в статус для ответа.
func (r ProviderResult) Status() ProviderStatus {
	status := ProviderStatus{
		Provider:   r.Provider,
		OK:         r.OK,
		Count:      len(r.Items),
		DurationMs: r.Duration.Milliseconds(),
	}
	if !r.OK {
		status.Kind = r.Kind
	}
	if r.Message != "" {
		status.Error = r.Message
	}
	return status
}

// ProviderStatus — видимое вызывающему состояние провайдера.
type ProviderStatus struct {
	Provider   Provider  `json:"provider"`
	OK         bool      `json:"ok"`
	Count      int       `json:"count"`
	Kind       ErrorKind `json:"kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// FeedPage — страница агрегированной ленты.
type FeedPage struct {
	Items     []Content        `json:"items"`
	Total     int              `json:"total"`
	Page      int              `json:"page"`
	PageSize  int              `json:"page_size"`
	HasMore   bool             `json:"has_more"`
	FetchedAt time.Time        `json:"fetched_at"`
	Providers []ProviderStatus `json:"providers"`
}

// FeedError возвращается, когда все провайдеры отказали.
type FeedError struct {
	Kind      ErrorKind
	Providers []ProviderStatus
	err       error
}

// NewFeedError собирает ошибку из неуспешных результатов.
func NewFeedError(results []ProviderResult) *FeedError {
	errs := make([]error, 0, len(results))
	statuses := make([]ProviderStatus, 0, len(results))
	kind := KindUpstream
	for i, r := range results {
		statuses = append(statuses, r.Status())
		if err := r.Err(); err != nil {
			errs = append(errs, err)
		}
		if i == 0 {
			kind = r.Kind
		} else if r.Kind != kind {
			kind = KindUpstream
		}
	}
	return &FeedError{Kind: kind, Providers: statuses, err: errors.Join(errs...)}
}

func (e *FeedError) Error() string {
	if e.err == nil {
		return ErrAllProvidersFailed.Error()
	}
	return ErrAllProvidersFailed.Error() + ": " + strings.ReplaceAll(e.err.Error(), "\n", "; ")
}

// Unwrap раскрывает исходные ошибки провайдеров и ErrAllProvidersFailed.
func (e *FeedError) Unwrap() []error {
	return []error{ErrAllProvidersFailed, e.err}
}

// ClassifyTransportError относит ошибку транспорта к timeout или upstream_error.
func ClassifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUpstream
}
