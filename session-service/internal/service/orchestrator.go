package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"mestrai-server/session-service/internal/ai"
	"mestrai-server/session-service/internal/ratelimit"
	"mestrai-server/session-service/internal/rules"
	"mestrai-server/session-service/internal/turns"
	"mestrai-server/shared/models"
)

// Orchestrator ведет одну кампанию. Обмен с моделью в каждый момент один;
// конкурентные операции получают ErrExchangeInProgress.
type Orchestrator struct {
	campaignID string
	deps       Dependencies
	opts       options
	logger     *zap.Logger

	mu          sync.Mutex
	state       State
	pendingRoll *PendingRoll
	pending     *pendingExchange
}

// pendingExchange - шаг, на котором обмен был прерван; Retry повторяет его.
type pendingExchange struct {
	actorID  string
	step     step
	narrated bool
}

func newOrchestrator(campaignID string, deps Dependencies, opts options) *Orchestrator {
	return &Orchestrator{
		campaignID: campaignID,
		deps:       deps,
		opts:       opts,
		logger:     deps.Logger.Named("SessionOrchestrator").With(zap.String("campaign_id", campaignID)),
		state:      StateIdle,
	}
}

// Submit принимает ход участника и проводит обмен с моделью.
func (o *Orchestrator) Submit(ctx context.Context, participantID, text string) error {
	text = strings.TrimSpace(text)
	if participantID == "" || text == "" {
		return fmt.Errorf("%w: empty action", models.ErrValidation)
	}
	if utf8.RuneCountInString(text) > MaxInputRunes {
		return fmt.Errorf("%w: action longer than %d characters", models.ErrValidation, MaxInputRunes)
	}
	if err := o.checkReady(); err != nil {
		return err
	}

	sc, err := o.loadScene(ctx, participantID)
	if err != nil {
		return err
	}
	if err := o.claim(); err != nil {
		return err
	}

	events, err := o.deps.Events.List(ctx, o.campaignID)
	if err != nil {
		o.release()
		return fmt.Errorf("failed to load session log: %w", err)
	}
	round := turns.Fold(events)
	if !round.Active() {
		o.release()
		return fmt.Errorf("%w: no active round", models.ErrTurnViolation)
	}
	// Окно лимита расходуют только заявки, прошедшие проверку очереди.
	if err := turns.CheckSubmission(round, participantID); err != nil {
		o.release()
		o.logger.Info("Submission rejected by turn gate", zap.String("participant_id", participantID), zap.Error(err))
		return err
	}
	if o.deps.Limiter != nil && o.deps.Limiter.IsLimited(ctx, ratelimit.ChatKey(participantID, o.campaignID)) {
		o.release()
		return models.ErrRateLimited
	}

	content := ai.FormatPlayerInput(sc.character.Name, text)
	ev, err := turns.ActionEvent(o.campaignID, round, participantID, sc.character.Name, content, text, nil)
	if err != nil {
		o.release()
		return err
	}
	eventID, err := o.deps.Events.AppendGuarded(ctx, ev, turns.ActionGuard(round.RoundID, participantID))
	if err != nil {
		o.release()
		if errors.Is(err, models.ErrTurnViolation) {
			o.logger.Info("Submission rejected by turn gate", zap.String("participant_id", participantID), zap.Error(err))
			return err
		}
		return fmt.Errorf("failed to record action: %w", err)
	}
	o.logger.Info("Action recorded", zap.String("participant_id", participantID), zap.String("event_id", eventID))

	return o.runExchange(ctx, newExchange(sc, participantID, false), step{input: content, inputEventID: eventID})
}

// SubmitRoll разрешает ожидающую проверку. manual = nil означает бросок сервера.
// Результат возвращается и тогда, когда последующий вызов модели не удался.
func (o *Orchestrator) SubmitRoll(ctx context.Context, participantID string, manual *int) (*rules.RollResult, error) {
	o.mu.Lock()
	pr := o.pendingRoll
	o.mu.Unlock()
	if pr == nil || pr.ParticipantID != participantID {
		return nil, models.ErrNoPendingRoll
	}
	if err := o.checkState(); err != nil {
		return nil, err
	}

	sc, err := o.loadScene(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if err := o.claim(); err != nil {
		return nil, err
	}

	var natural int
	if manual != nil {
		natural = *manual
	} else {
		natural = o.deps.Roller.RollD20()
	}
	challenge := pr.Challenge
	result := rules.ClassifyRoll(rules.RollInput{
		Attribute:          challenge.Attribute,
		AttributeValue:     sc.character.State.Attributes[challenge.Attribute],
		ProfessionRelevant: challenge.ProfessionRelevant,
		Difficulty:         challenge.Difficulty,
		HealthTier:         sc.character.State.Health.Tier,
		NaturalRoll:        natural,
		Impossible:         challenge.Impossible,
		ImpossibleReason:   challenge.ImpossibleReason,
	})

	notice := models.RollNoticePayload{
		PlayerID:   participantID,
		PlayerName: sc.character.Name,
		Attribute:  string(challenge.Attribute),
		Outcome:    string(result.Outcome),
		Label:      result.Label,
		CallID:     pr.CallID,
	}
	if !result.Skipped {
		notice.NaturalRoll = &result.NaturalRoll
		notice.Total = &result.Total
	}
	if _, err := o.appendEvent(ctx, models.SessionEvent{
		Kind:    models.EventKindSystemNotice,
		Role:    models.RoleSystem,
		Content: fmt.Sprintf(rollNoticeFormat, result.Label),
		ActorID: &participantID,
	}, notice); err != nil {
		o.release()
		return nil, err
	}
	rollsTotal.WithLabelValues(string(result.Outcome)).Inc()

	o.mu.Lock()
	o.pendingRoll = nil
	o.mu.Unlock()

	var value any = result.Total
	if result.Skipped {
		value = result.Message
	}
	args, _ := json.Marshal(challenge)
	err = o.runExchange(ctx, newExchange(sc, participantID, false), step{
		toolResponse: &ai.ToolResponse{CallID: pr.CallID, Name: models.ToolRequestRoll, Args: args, Result: value},
	})
	return &result, err
}

// Retry снимает паузу и повторяет прерванный шаг обмена.
// Повторить может автор прерванного хода или владелец кампании.
func (o *Orchestrator) Retry(ctx context.Context, participantID string) error {
	campaign, err := o.deps.Campaigns.GetByID(ctx, o.campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}

	o.mu.Lock()
	if o.state != StatePaused {
		o.mu.Unlock()
		return fmt.Errorf("%w: session is not paused", models.ErrValidation)
	}
	p := o.pending
	if p != nil && p.actorID != participantID && campaign.OwnerID != participantID {
		o.mu.Unlock()
		return models.ErrForbidden
	}
	if p == nil {
		o.state = StateIdle
		o.mu.Unlock()
		o.logger.Info("Session resumed without pending input", zap.String("participant_id", participantID))
		return nil
	}
	o.state = StateAwaitingModel
	o.mu.Unlock()

	sc, err := o.loadScene(ctx, p.actorID)
	if err != nil {
		o.setState(StatePaused)
		return err
	}
	o.logger.Info("Retrying interrupted exchange",
		zap.String("participant_id", participantID), zap.String("actor_id", p.actorID), zap.Int("depth", p.step.depth))
	return o.runExchange(ctx, newExchange(sc, p.actorID, p.narrated), p.step)
}

// StartRound открывает раунд. Только владелец активной кампании.
func (o *Orchestrator) StartRound(ctx context.Context, initiatorID string) (*models.TurnRound, error) {
	campaign, err := o.deps.Campaigns.GetByID(ctx, o.campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign.OwnerID != initiatorID {
		return nil, fmt.Errorf("%w: only the campaign owner starts rounds", models.ErrForbidden)
	}
	if campaign.Status != models.CampaignActive {
		return nil, fmt.Errorf("%w: %s", models.ErrCampaignInactive, WaitingNotice)
	}
	return o.startRound(ctx, campaign)
}

// Snapshot возвращает состояние сессии и свернутый раунд.
func (o *Orchestrator) Snapshot(ctx context.Context) (*Snapshot, error) {
	events, err := o.deps.Events.List(ctx, o.campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session log: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	snap := &Snapshot{
		CampaignID:      o.campaignID,
		State:           o.state,
		HasPendingInput: o.pending != nil,
		Round:           turns.Fold(events),
	}
	if o.pendingRoll != nil {
		pr := *o.pendingRoll
		snap.PendingRoll = &pr
	}
	return snap, nil
}

// State возвращает текущее состояние.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) checkState() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateIdle:
		return nil
	case StatePaused:
		return models.ErrSessionPaused
	default:
		return models.ErrExchangeInProgress
	}
}

// checkReady дополнительно запрещает новый ход, пока ждут бросок.
func (o *Orchestrator) checkReady() error {
	if err := o.checkState(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pendingRoll != nil {
		return fmt.Errorf("%w: awaiting roll from %s", models.ErrExchangeInProgress, o.pendingRoll.ParticipantID)
	}
	return nil
}

// claim занимает сессию под обмен.
func (o *Orchestrator) claim() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateIdle:
		o.state = StateAwaitingModel
		return nil
	case StatePaused:
		return models.ErrSessionPaused
	default:
		return models.ErrExchangeInProgress
	}
}

func (o *Orchestrator) release() {
	o.setState(StateIdle)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) hasPendingRoll() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pendingRoll != nil
}
