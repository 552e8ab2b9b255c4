// Package ratelimit - допуск операций по скользящему окну.
// Основное хранилище общее (Redis); при его ошибке используется окно в памяти процесса.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"mestrai-server/shared/interfaces"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultLimit  = 20
)

var (
	limitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_rate_limited_total",
		Help: "Operations rejected by the sliding window limiter.",
	})
	fallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_rate_store_fallback_total",
		Help: "Checks served by the in-memory window because the shared store failed.",
	})
)

// Key-хелперы для известных операций.
func ChatKey(participantID, campaignID string) string { return "chat:" + participantID + ":" + campaignID }
func ImageKey(campaignID string) string              { return "image:" + campaignID }

// Limiter проверяет и регистрирует операции.
type Limiter struct {
	store  interfaces.RateStore
	limit  int
	window time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	windows map[string][]time.Time
}

// Option настраивает Limiter.
type Option func(*Limiter)

func WithStore(store interfaces.RateStore) Option { return func(l *Limiter) { l.store = store } }
func WithClock(now func() time.Time) Option       { return func(l *Limiter) { l.now = now } }
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) { l.logger = logger.Named("RateLimiter") }
}

// New создает Limiter. limit <= 0 и window <= 0 заменяются значениями по умолчанию.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		logger:  zap.NewNop(),
		windows: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsLimited возвращает true, если в окне уже limit операций; иначе регистрирует текущую.
// Отклоненная операция не регистрируется.
func (l *Limiter) IsLimited(ctx context.Context, key string) bool {
	if l.store != nil {
		allowed, err := l.store.Allow(ctx, key, l.limit, l.window)
		if err == nil {
			if !allowed {
				limitedTotal.Inc()
			}
			return !allowed
		}
		fallbackTotal.Inc()
		l.logger.Warn("Rate store failed, using in-memory window", zap.String("key", key), zap.Error(err))
	}
	limited := l.checkInMemory(key)
	if limited {
		limitedTotal.Inc()
	}
	return limited
}

func (l *Limiter) checkInMemory(key string) bool {
	now := l.now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.windows[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if !ts.Before(windowStart) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.windows[key] = kept
		return true
	}
	l.windows[key] = append(kept, now)
	return false
}
