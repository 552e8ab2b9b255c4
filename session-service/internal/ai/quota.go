package ai

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var retryDelayPattern = regexp.MustCompile(`"retryDelay"\s*:\s*"(\d+)s"`)

// ParseRetryAfter извлекает задержку из заголовка Retry-After (секунды) или из
// поля "retryDelay":"Ns" в теле ошибки.
func ParseRetryAfter(header, body string) time.Duration {
	if h := strings.TrimSpace(header); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if at, err := http.ParseTime(h); err == nil {
			if d := time.Until(at); d > 0 {
				return d.Round(time.Second)
			}
		}
	}
	if m := retryDelayPattern.FindStringSubmatch(body); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

type retryHintKey struct{}

// retryHint запоминает Retry-After последнего ответа 429 в рамках одного запроса.
type retryHint struct {
	mu     sync.Mutex
	header string
}

func (h *retryHint) set(v string) {
	h.mu.Lock()
	h.header = v
	h.mu.Unlock()
}

func (h *retryHint) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.header
}

func withRetryHint(ctx context.Context) (context.Context, *retryHint) {
	h := &retryHint{}
	return context.WithValue(ctx, retryHintKey{}, h), h
}

// retryAfterTransport передает заголовок Retry-After ответа 429 в retryHint из контекста,
// так как SDK не сохраняет заголовки в ошибке.
type retryAfterTransport struct {
	base http.RoundTripper
}

func (t retryAfterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, err
	}
	if h, ok := req.Context().Value(retryHintKey{}).(*retryHint); ok {
		h.set(resp.Header.Get("Retry-After"))
	}
	return resp, nil
}
