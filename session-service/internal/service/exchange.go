package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mestrai-server/session-service/internal/ai"
	"mestrai-server/session-service/internal/toolparse"
	"mestrai-server/shared/models"
)

// step - один вызов модели в конвейере обмена.
// depth = 0 у исходного ввода; продолжение после действия идет на depth+1.
type step struct {
	depth        int
	input        string
	inputEventID string
	toolResponse *ai.ToolResponse
}

// exchange - состояние одного обмена от ввода до продвижения хода.
type exchange struct {
	scene    *scene
	actorID  string
	narrated bool
	died     bool
	// halted останавливает конвейер: ждем бросок или персонаж погиб.
	halted            bool
	executed          map[string]bool
	imageFingerprints map[string]bool
}

func newExchange(sc *scene, actorID string, narrated bool) *exchange {
	return &exchange{
		scene:             sc,
		actorID:           actorID,
		narrated:          narrated,
		executed:          make(map[string]bool),
		imageFingerprints: make(map[string]bool),
	}
}

// runExchange проводит конвейер шагов. Сессия должна быть занята claim.
// Ошибка модели переводит сессию в PAUSED с сохранением шага.
func (o *Orchestrator) runExchange(ctx context.Context, ex *exchange, first step) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.exchangeTimeout)
	defer cancel()
	started := time.Now()

	queue := []step{first}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]

		o.setState(StateAwaitingModel)
		reply, err := o.invoke(ctx, ex, s)
		if err != nil {
			o.pause(ctx, ex, s, err)
			exchangesTotal.WithLabelValues("paused").Inc()
			return err
		}

		o.setState(StateExecutingActions)
		next, err := o.handleReply(ctx, ex, s, reply)
		if err != nil {
			o.release()
			exchangesTotal.WithLabelValues("error").Inc()
			return err
		}
		if ex.halted {
			if len(queue)+len(next) > 0 {
				o.logger.Info("Exchange halted, dropping queued continuations", zap.Int("dropped", len(queue)+len(next)))
			}
			break
		}
		queue = append(queue, next...)
	}

	o.mu.Lock()
	o.pending = nil
	o.state = StateAdvancing
	o.mu.Unlock()

	if err := o.advanceAfterExchange(ctx, ex); err != nil {
		o.logger.Error("Failed to advance turn after exchange", zap.String("actor_id", ex.actorID), zap.Error(err))
	}
	o.release()
	exchangeDuration.Observe(time.Since(started).Seconds())
	exchangesTotal.WithLabelValues("completed").Inc()
	return nil
}

// invoke собирает запрос из журнала и вызывает модели.
func (o *Orchestrator) invoke(ctx context.Context, ex *exchange, s step) (*ai.Reply, error) {
	events, err := o.deps.Events.List(ctx, o.campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session log: %w", err)
	}

	system := ai.BuildSystemPrompt(ai.PromptContext{
		Campaign:  *ex.scene.campaign,
		Character: *ex.scene.character,
		Roster:    ex.scene.roster,
	})
	history := o.deps.Budget.Trim(system, ai.HistoryFromEvents(events, s.inputEventID))
	req := ai.NewRequest(system, history)
	req.Input = s.input
	req.ToolResponse = s.toolResponse

	o.logger.Debug("Invoking narrative model",
		zap.Int("depth", s.depth), zap.Int("history", len(history)), zap.Bool("tool_response", s.toolResponse != nil))
	return o.deps.Invoker.Invoke(ctx, invokerKey(o.campaignID), req)
}

func invokerKey(campaignID string) string { return "chat:" + campaignID }

// handleReply записывает повествование и исполняет действия по порядку.
// Возвращает продолжения, разрешенные ограничением глубины.
func (o *Orchestrator) handleReply(ctx context.Context, ex *exchange, s step, reply *ai.Reply) ([]step, error) {
	parsed := toolparse.Parse(reply.Text, reply.Calls)
	for _, d := range parsed.Dropped {
		toolActionsTotal.WithLabelValues(d.Kind, "dropped").Inc()
		o.logger.Warn("Tool action dropped",
			zap.String("source", string(d.Source)), zap.String("kind", d.Kind), zap.String("reason", d.Reason))
	}

	switch {
	case parsed.HasKind(models.ToolGenerateImage):
		if parsed.Narrative != "" {
			o.logger.Debug("Narrative discarded in favor of illustration", zap.Int("depth", s.depth))
		}
	case parsed.Narrative != "":
		actor := ex.actorID
		if _, err := o.appendEvent(ctx, models.SessionEvent{
			Kind:    models.EventKindNarrative,
			Role:    models.RoleModel,
			Content: parsed.Narrative,
			ActorID: &actor,
		}, nil); err != nil {
			return nil, err
		}
		ex.narrated = true
	}

	var next []step
	for _, action := range parsed.Actions {
		if ex.halted {
			toolActionsTotal.WithLabelValues(string(action.Kind), "skipped").Inc()
			o.logger.Info("Tool action skipped after halt", zap.String("kind", string(action.Kind)))
			continue
		}
		if ex.executed[action.CorrelationID] {
			toolActionsTotal.WithLabelValues(string(action.Kind), "duplicate").Inc()
			continue
		}
		ex.executed[action.CorrelationID] = true

		cont, err := o.execute(ctx, ex, action)
		if err != nil {
			toolActionsTotal.WithLabelValues(string(action.Kind), "error").Inc()
			return nil, err
		}
		toolActionsTotal.WithLabelValues(string(action.Kind), "executed").Inc()
		if cont == nil {
			continue
		}
		if s.depth >= o.opts.maxDepth {
			o.logger.Info("Continuation depth reached, not re-invoking",
				zap.String("kind", string(action.Kind)), zap.Int("depth", s.depth))
			continue
		}
		cont.depth = s.depth + 1
		next = append(next, *cont)
	}
	return next, nil
}

// pause сохраняет прерванный шаг и сообщает столу о паузе.
func (o *Orchestrator) pause(ctx context.Context, ex *exchange, s step, cause error) {
	o.mu.Lock()
	o.state = StatePaused
	o.pending = &pendingExchange{actorID: ex.actorID, step: s, narrated: ex.narrated}
	o.mu.Unlock()
	pausesTotal.Inc()

	notice := transientPauseNotice
	if errors.Is(cause, models.ErrQuotaExceeded) {
		notice = quotaPauseNotice
	}
	o.logger.Warn("Session paused", zap.String("actor_id", ex.actorID), zap.Int("depth", s.depth), zap.Error(cause))

	noticeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := o.appendEvent(noticeCtx, models.SessionEvent{
		Kind:    models.EventKindSystemNotice,
		Role:    models.RoleSystem,
		Content: notice,
	}, nil); err != nil {
		o.logger.Error("Failed to record pause notice", zap.Error(err))
	}
}
