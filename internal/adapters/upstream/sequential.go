package upstream

import (
	"context"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"atlas-feed/internal/domain"
)

// NewLimiter возвращает ограничитель «один вызов раз в delay». Нулевая задержка
// отключает ограничение.
func NewLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// FetchFunc выполняет один нативный запрос.
type FetchFunc func(ctx context.Context, subject string) ([]domain.Content, error)

// Sequential обходит subjects по очереди, выдерживая паузу limiter между вызовами.
// Хотя бы один успех даёт успешный результат с объединением элементов и
// диагностикой по отказавшим запросам. Если отказали все, вид ошибки берётся
// у первого отказа.
func Sequential(ctx context.Context, provider domain.Provider, limiter *rate.Limiter, subjects []string, fetch FetchFunc) domain.ProviderResult {
	start := time.Now()
	if len(subjects) == 0 {
		return domain.Failed(provider, domain.KindConfiguration, "нет нативных запросов для выборки", time.Since(start))
	}

	var (
		items     []domain.Content
		failures  []string
		notes     []string
		firstKind domain.ErrorKind
		succeeded bool
	)
	fail := func(subject string, err error) {
		if firstKind == "" {
			firstKind = KindOf(err)
		}
		failures = append(failures, subject+": "+err.Error())
	}

	for i, subject := range subjects {
		if err := limiter.Wait(ctx); err != nil {
			for _, rest := range subjects[i:] {
				fail(rest, Errorf(domain.KindTimeout, "%v", ctxErr(ctx, err)))
			}
			break
		}
		got, err := fetch(ctx, subject)
		if err != nil {
			fail(subject, err)
			continue
		}
		succeeded = true
		got, rejected := keepValid(got)
		if rejected != "" {
			notes = append(notes, subject+": отброшено: "+rejected)
		}
		items = append(items, got...)
	}

	diagnostic := strings.Join(append(failures, notes...), "; ")
	if !succeeded {
		return domain.Failed(provider, firstKind, diagnostic, time.Since(start))
	}
	return domain.Succeeded(provider, items, diagnostic, time.Since(start))
}

// Single оборачивает один нативный запрос в ProviderResult.
func Single(ctx context.Context, provider domain.Provider, subject string, fetch FetchFunc) domain.ProviderResult {
	start := time.Now()
	items, err := fetch(ctx, subject)
	if err != nil {
		return domain.Failed(provider, KindOf(err), err.Error(), time.Since(start))
	}
	items, rejected := keepValid(items)
	if rejected != "" {
		rejected = "отброшено: " + rejected
	}
	return domain.Succeeded(provider, items, rejected, time.Since(start))
}

// keepValid отбрасывает элементы, нарушающие инварианты domain.Content,
// и возвращает причины через "; ".
func keepValid(items []domain.Content) ([]domain.Content, string) {
	valid := make([]domain.Content, 0, len(items))
	var reasons []string
	for _, it := range items {
		if err := it.Validate(); err != nil {
			reasons = append(reasons, err.Error())
			continue
		}
		valid = append(valid, it)
	}
	return valid, strings.Join(reasons, "; ")
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Share возвращает ceil(total/parts), но не меньше 1.
func Share(total, parts int) int {
	if parts <= 0 || total <= 0 {
		return 1
	}
	return int(math.Ceil(float64(total) / float64(parts)))
}
