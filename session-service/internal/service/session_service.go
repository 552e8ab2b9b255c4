// Package service ведет сессию кампании: принимает ходы, вызывает модель,
// исполняет структурированные действия и продвигает очередь хода.
package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"mestrai-server/session-service/internal/ai"
	"mestrai-server/session-service/internal/imagegen"
	"mestrai-server/session-service/internal/rules"
	"mestrai-server/session-service/internal/turns"
	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

// State - состояние оркестратора сессии.
type State string

const (
	StateIdle             State = "IDLE"
	StateAwaitingModel    State = "AWAITING_MODEL"
	StateExecutingActions State = "EXECUTING_ACTIONS"
	StateAdvancing        State = "ADVANCING"
	StatePaused           State = "PAUSED"
)

const (
	// DefaultMaxContinuationDepth - глубина, дальше которой повторный вызов модели не выполняется.
	DefaultMaxContinuationDepth = 2
	DefaultExchangeTimeout      = 2 * time.Minute
	// MaxInputRunes ограничивает длину хода игрока.
	MaxInputRunes = 4000
)

// Тексты, которые видят игроки.
const (
	WaitingNotice      = "[SISTEMA] Mesa em espera."
	LevelUpNotice      = "[SISTEMA] Evolucao rara ativada. O mestre vai narrar a mudanca."
	ImageToolResult    = "Image displayed successfully."
	DefaultDeathCause  = "O corpo nao aguentou os ferimentos."
	DefaultWorldFuture = "A historia segue sem o heroi, deixando ecos do que poderia ter sido."

	quotaPauseNotice     = "[SISTEMA] Conexao com a IA interrompida. Limite de uso atingido."
	transientPauseNotice = "[SISTEMA] Conexao com a IA interrompida. Tente novamente."

	deathContentFormat = "## ☠️ VOCÊ MORREU \n\n%s\n\n### O Futuro do Mundo:\n%s"
	deathImageFormat   = "%s. Iconic image of the hero's death, grave, or the aftermath. Melancholic, cinematic."
	rollNoticeFormat   = "[ROLAGEM] %s."
)

// ModelInvoker - вызов ранжированного списка моделей.
type ModelInvoker interface {
	Invoke(ctx context.Context, key string, req ai.Request) (*ai.Reply, error)
}

// RateLimiter - решение о допуске операции.
type RateLimiter interface {
	IsLimited(ctx context.Context, key string) bool
}

// Dependencies - коллабораторы оркестратора.
type Dependencies struct {
	Events      interfaces.SessionEventLog
	Characters  interfaces.CharacterRepository
	Campaigns   interfaces.CampaignRepository
	Invoker     ModelInvoker
	Limiter     RateLimiter
	Illustrator imagegen.Illustrator
	Roller      rules.Roller
	Scheduler   *turns.Scheduler
	Budget      ai.Budget
	Logger      *zap.Logger
}

// PendingRoll - проверка, ожидающая броска участника.
type PendingRoll struct {
	ParticipantID string                 `json:"participant_id"`
	CallID        string                 `json:"call_id"`
	Challenge     models.RequestRollArgs `json:"challenge"`
}

// Snapshot - текущее состояние сессии для клиентов.
type Snapshot struct {
	CampaignID      string            `json:"campaign_id"`
	State           State             `json:"state"`
	PendingRoll     *PendingRoll      `json:"pending_roll,omitempty"`
	HasPendingInput bool              `json:"has_pending_input"`
	Round           *models.TurnRound `json:"round,omitempty"`
}

type options struct {
	maxDepth        int
	exchangeTimeout time.Duration
	seed            func() int
	now             func() time.Time
}

// Option настраивает оркестраторы реестра.
type Option func(*options)

func WithMaxContinuationDepth(depth int) Option {
	return func(o *options) { o.maxDepth = depth }
}

func WithExchangeTimeout(d time.Duration) Option {
	return func(o *options) { o.exchangeTimeout = d }
}

// WithSeedSource задает источник зерна иллюстраций.
func WithSeedSource(fn func() int) Option {
	return func(o *options) { o.seed = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Registry держит по одному оркестратору на кампанию.
type Registry struct {
	deps Dependencies
	opts options

	mu       sync.Mutex
	sessions map[string]*Orchestrator
}

// NewRegistry создает реестр. Пустые Roller, Scheduler и Logger заменяются значениями по умолчанию.
func NewRegistry(deps Dependencies, opts ...Option) *Registry {
	o := options{
		maxDepth:        DefaultMaxContinuationDepth,
		exchangeTimeout: DefaultExchangeTimeout,
		seed:            func() int { return rand.IntN(imagegen.MaxSeed) },
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxDepth < 0 {
		o.maxDepth = 0
	}
	if deps.Roller == nil {
		deps.Roller = rules.NewRandomRoller(0)
	}
	if deps.Scheduler == nil {
		deps.Scheduler = turns.NewScheduler(0)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{
		deps:     deps,
		opts:     o,
		sessions: make(map[string]*Orchestrator),
	}
}

// Session возвращает оркестратор кампании, создавая его при первом обращении.
// Новый оркестратор восстанавливает ожидающий бросок по журналу.
func (r *Registry) Session(ctx context.Context, campaignID string) (*Orchestrator, error) {
	if campaignID == "" {
		return nil, fmt.Errorf("%w: empty campaign id", models.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.sessions[campaignID]; ok {
		return o, nil
	}

	events, err := r.deps.Events.List(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session log %s: %w", campaignID, err)
	}
	o := newOrchestrator(campaignID, r.deps, r.opts)
	o.pendingRoll = RestorePendingRoll(events)
	r.sessions[campaignID] = o
	return o, nil
}
