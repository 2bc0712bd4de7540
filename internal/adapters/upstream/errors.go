package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"atlas-feed/internal/domain"
)

// Error — классифицированный отказ одного нативного запроса.
type Error struct {
	Kind    domain.ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Errorf создаёт классифицированную ошибку.
func Errorf(kind domain.ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf извлекает вид ошибки; неклассифицированные ошибки разбираются как транспортные.
func KindOf(err error) domain.ErrorKind {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Kind
	}
	return domain.ClassifyTransportError(err)
}

// DecodeJSON разбирает тело ответа. Не-JSON тело считается malformed_response.
func DecodeJSON(resp Response, v any) error {
	ct := strings.ToLower(resp.ContentType)
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "javascript") {
		return Errorf(domain.KindMalformedResponse, "unexpected content type %q", resp.ContentType)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return Errorf(domain.KindMalformedResponse, "decode response: %v", err)
	}
	return nil
}

// StatusKind — типовая классификация HTTP-статуса.
func StatusKind(status int) domain.ErrorKind {
	switch {
	case status == 401:
		return domain.KindConfiguration
	case status == 403:
		return domain.KindForbidden
	case status == 404:
		return domain.KindNotFound
	case status == 429:
		return domain.KindRateLimited
	case status == 408 || status == 504:
		return domain.KindTimeout
	default:
		return domain.KindUpstream
	}
}
