// Package invoker обращается к ранжированному списку моделей с откатом на следующую
// и запоминает, какая модель последней ответила для каждого ключа.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"mestrai-server/session-service/internal/ai"
	"mestrai-server/shared/models"
	"mestrai-server/shared/tracing"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_invoker_attempts_total",
			Help: "Attempts per narrative target by outcome.",
		},
		[]string{"target", "outcome"},
	)
	exhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_invoker_exhausted_total",
			Help: "Invocations where every target failed.",
		},
	)
)

// StickyState хранит индекс последней успешной цели по ключу.
type StickyState struct {
	mu      sync.Mutex
	indexes map[string]int
}

func NewStickyState() *StickyState {
	return &StickyState{indexes: make(map[string]int)}
}

// Get возвращает сохраненный индекс (0, если ключа нет).
func (s *StickyState) Get(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexes[key]
}

func (s *StickyState) Set(key string, index int) {
	s.mu.Lock()
	s.indexes[key] = index
	s.mu.Unlock()
}

func (s *StickyState) Reset(key string) {
	s.Set(key, 0)
}

// SleepFunc ждет d или отмены контекста.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option настраивает Invoker.
type Option func(*Invoker)

// WithMinDelay задает базовую паузу между попытками: перед попыткой i ждем minDelay*(i-start).
func WithMinDelay(d time.Duration) Option {
	return func(inv *Invoker) { inv.minDelay = d }
}

func WithSleep(fn SleepFunc) Option {
	return func(inv *Invoker) { inv.sleep = fn }
}

func WithState(state *StickyState) Option {
	return func(inv *Invoker) { inv.state = state }
}

func WithLogger(logger *zap.Logger) Option {
	return func(inv *Invoker) { inv.logger = logger.Named("ModelInvoker") }
}

// Invoker - вызов моделей с откатом.
type Invoker struct {
	targets  []ai.Target
	state    *StickyState
	minDelay time.Duration
	sleep    SleepFunc
	logger   *zap.Logger
}

// New создает Invoker. Порядок targets задает приоритет.
func New(targets []ai.Target, opts ...Option) *Invoker {
	inv := &Invoker{
		targets: targets,
		state:   NewStickyState(),
		sleep:   sleepCtx,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// State возвращает общее состояние закрепленных индексов.
func (inv *Invoker) State() *StickyState { return inv.state }

// Invoke пробует цели, начиная с закрепленной для key.
// Ошибка квоты и отмена контекста прерывают перебор сразу; иные ошибки переводят к следующей цели.
// После успеха индекс закрепляется, после исчерпания списка сбрасывается в 0.
func (inv *Invoker) Invoke(ctx context.Context, key string, req ai.Request) (*ai.Reply, error) {
	if len(inv.targets) == 0 {
		return nil, fmt.Errorf("%w: no narrative targets configured", models.ErrTransientProvider)
	}
	start := clampIndex(inv.state.Get(key), len(inv.targets))
	tracer := tracing.Tracer("mestrai/invoker")

	var lastErr error
	for i := start; i < len(inv.targets); i++ {
		target := inv.targets[i]
		if i > start && inv.minDelay > 0 {
			if err := inv.sleep(ctx, inv.minDelay*time.Duration(i-start)); err != nil {
				return nil, err
			}
		}

		attemptCtx, span := tracer.Start(ctx, "invoker.attempt")
		span.SetAttributes(
			attribute.String("invoker.key", key),
			attribute.String("invoker.target", target.Name()),
			attribute.Int("invoker.index", i),
		)
		reply, err := target.Complete(attemptCtx, req)
		if err == nil {
			span.End()
			attemptsTotal.WithLabelValues(target.Name(), "success").Inc()
			inv.state.Set(key, i)
			if reply.Model == "" {
				reply.Model = target.Name()
			}
			return reply, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()

		if errors.Is(err, models.ErrQuotaExceeded) {
			attemptsTotal.WithLabelValues(target.Name(), "quota").Inc()
			inv.logger.Warn("Quota exceeded, aborting fallback", zap.String("key", key), zap.String("target", target.Name()), zap.Error(err))
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			attemptsTotal.WithLabelValues(target.Name(), "canceled").Inc()
			return nil, ctxErr
		}
		attemptsTotal.WithLabelValues(target.Name(), "error").Inc()
		inv.logger.Warn("Target failed, trying next", zap.String("key", key), zap.String("target", target.Name()), zap.Error(err))
		lastErr = err
	}

	exhaustedTotal.Inc()
	inv.state.Reset(key)
	if errors.Is(lastErr, models.ErrTransientProvider) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: all targets failed: %v", models.ErrTransientProvider, lastErr)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
