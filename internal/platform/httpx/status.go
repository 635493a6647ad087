package httpx

import (
	"fmt"
	"net/http"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

// StatusError is returned for any non-2xx response. It matches the domain
// sentinels through errors.Is so callers can branch without inspecting codes.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Is maps well-known status codes onto domain errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.Code == http.StatusNotFound
	case domain.ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case domain.ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	}
	return false
}

// checkStatus returns nil for 2xx codes and a *StatusError otherwise. The body
// is truncated so a misbehaving server cannot blow up log lines.
func checkStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &StatusError{Code: code, Body: string(body)}
}
