package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mestrai-server/session-service/internal/ai"
	"mestrai-server/session-service/internal/imagegen"
	"mestrai-server/session-service/internal/ratelimit"
	"mestrai-server/session-service/internal/rules"
	"mestrai-server/session-service/internal/toolparse"
	"mestrai-server/shared/models"
)

// execute исполняет одно действие. Ненулевой step - запрошенное продолжение.
func (o *Orchestrator) execute(ctx context.Context, ex *exchange, action models.ToolAction) (*step, error) {
	log := o.logger.With(zap.String("kind", string(action.Kind)), zap.String("correlation_id", action.CorrelationID))

	switch args := action.Args.(type) {
	case models.RequestRollArgs:
		return nil, o.requestRoll(ctx, ex, action, args, log)
	case models.DamageArgs:
		return nil, o.applyDamage(ctx, ex, action, args, log)
	case models.RestArgs:
		return nil, o.applyRest(ctx, ex, action, args, log)
	case models.ImageArgs:
		return o.generateImage(ctx, ex, action, args, log)
	case models.GameOverArgs:
		return nil, o.deathSequence(ctx, ex, args.Cause, args.WorldFuture)
	case models.UpdateCharacterArgs:
		return nil, o.updateCharacter(ctx, ex, action, args, log)
	case models.LevelUpArgs:
		if err := o.recordAction(ctx, ex, action, false); err != nil {
			return nil, err
		}
		_, err := o.appendEvent(ctx, models.SessionEvent{
			Kind:    models.EventKindSystemNotice,
			Role:    models.RoleSystem,
			Content: LevelUpNotice,
		}, nil)
		return nil, err
	default:
		log.Warn("Unsupported tool action", zap.String("args_type", fmt.Sprintf("%T", action.Args)))
		return nil, nil
	}
}

// requestRoll приостанавливает обмен до броска автора хода.
func (o *Orchestrator) requestRoll(ctx context.Context, ex *exchange, action models.ToolAction, args models.RequestRollArgs, log *zap.Logger) error {
	if o.hasPendingRoll() {
		log.Info("Roll already pending, request ignored")
		return nil
	}
	if err := o.recordAction(ctx, ex, action, true); err != nil {
		return err
	}

	o.mu.Lock()
	o.pendingRoll = &PendingRoll{ParticipantID: ex.actorID, CallID: action.CorrelationID, Challenge: args}
	o.mu.Unlock()
	ex.halted = true
	log.Info("Roll requested",
		zap.String("participant_id", ex.actorID), zap.String("attribute", string(args.Attribute)),
		zap.String("difficulty", string(args.Difficulty)), zap.Bool("impossible", args.Impossible))
	return nil
}

func (o *Orchestrator) applyDamage(ctx context.Context, ex *exchange, action models.ToolAction, args models.DamageArgs, log *zap.Logger) error {
	char := ex.scene.character
	if char.Dead() {
		log.Info("Damage ignored for dead character")
		return nil
	}
	prev := char.State.Health.Tier
	char.State = rules.ApplyDamage(char.State, args.Severity)
	if err := o.saveCharacter(ctx, char); err != nil {
		return err
	}
	if err := o.recordAction(ctx, ex, action, false); err != nil {
		return err
	}
	log.Info("Damage applied",
		zap.String("severity", string(args.Severity)), zap.String("from", string(prev)), zap.String("to", string(char.State.Health.Tier)))

	if char.State.Health.Tier == models.TierDead {
		return o.deathSequence(ctx, ex, DefaultDeathCause, DefaultWorldFuture)
	}
	return nil
}

func (o *Orchestrator) applyRest(ctx context.Context, ex *exchange, action models.ToolAction, args models.RestArgs, log *zap.Logger) error {
	char := ex.scene.character
	prev := char.State.Health.Tier
	char.State = rules.ApplyRest(char.State, args.Kind)
	if prev == models.TierDead {
		// LONG поднимает DEAD до CRITICAL; IsDead и запись о гибели остаются.
		log.Warn("Rest applied to dead character",
			zap.String("rest", string(args.Kind)), zap.String("to", string(char.State.Health.Tier)))
	}
	if err := o.saveCharacter(ctx, char); err != nil {
		return err
	}
	log.Info("Rest applied",
		zap.String("rest", string(args.Kind)), zap.String("from", string(prev)), zap.String("to", string(char.State.Health.Tier)))
	return o.recordAction(ctx, ex, action, false)
}

// updateCharacter меняет только профессию и инвентарь.
func (o *Orchestrator) updateCharacter(ctx context.Context, ex *exchange, action models.ToolAction, args models.UpdateCharacterArgs, log *zap.Logger) error {
	char := ex.scene.character
	changed := false
	if args.Profession != nil && strings.TrimSpace(*args.Profession) != "" {
		char.Profession = strings.TrimSpace(*args.Profession)
		changed = true
	}
	if args.HasInventory {
		char.State.Inventory = rules.NormalizeItems(args.Inventory)
		changed = true
	}
	if !changed {
		log.Debug("Character update without changes")
		return nil
	}
	if err := o.saveCharacter(ctx, char); err != nil {
		return err
	}
	log.Info("Character updated", zap.String("profession", char.Profession), zap.Int("items", len(char.State.Inventory)))
	return o.recordAction(ctx, ex, action, false)
}

// generateImage записывает иллюстрацию и просит модель продолжить.
// Повтор по correlation id или отпечатку промпта пропускается без продолжения.
func (o *Orchestrator) generateImage(ctx context.Context, ex *exchange, action models.ToolAction, args models.ImageArgs, log *zap.Logger) (*step, error) {
	fingerprint := action.Fingerprint
	if fingerprint == "" {
		fingerprint = toolparse.ImageFingerprint(args.Prompt)
	}
	if ex.imageFingerprints[fingerprint] {
		log.Debug("Illustration already produced in this exchange")
		return nil, nil
	}
	recorded, err := o.imageRecorded(ctx, action.CorrelationID, fingerprint, args.Prompt)
	if err != nil {
		return nil, err
	}
	if recorded {
		log.Debug("Illustration already recorded")
		return nil, nil
	}
	ex.imageFingerprints[fingerprint] = true

	payload := models.ImagePayload{
		SourceCallID: action.CorrelationID,
		Prompt:       args.Prompt,
		Fingerprint:  fingerprint,
	}
	o.illustrate(ctx, ex.scene, ex.scene.campaign.VisualStyle+". "+args.Prompt, &payload)
	actor := ex.actorID
	if _, err := o.appendEvent(ctx, models.SessionEvent{
		Kind:    models.EventKindImage,
		Role:    models.RoleSystem,
		ActorID: &actor,
	}, payload); err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(args)
	return &step{toolResponse: &ai.ToolResponse{
		CallID: action.CorrelationID,
		Name:   models.ToolGenerateImage,
		Args:   raw,
		Result: ImageToolResult,
	}}, nil
}

// imageRecorded ищет в журнале иллюстрацию с тем же вызовом, отпечатком или промптом.
func (o *Orchestrator) imageRecorded(ctx context.Context, callID, fingerprint, prompt string) (bool, error) {
	events, err := o.deps.Events.List(ctx, o.campaignID)
	if err != nil {
		return false, fmt.Errorf("failed to load session log: %w", err)
	}
	for _, ev := range events {
		if ev.Kind != models.EventKindImage {
			continue
		}
		var p models.ImagePayload
		if err := ev.DecodePayload(&p); err != nil {
			continue
		}
		if (callID != "" && p.SourceCallID == callID) || p.Fingerprint == fingerprint || (prompt != "" && p.Prompt == prompt) {
			return true, nil
		}
	}
	return false, nil
}

// illustrate заполняет payload адресом иллюстрации или помечает заглушку.
// Сбой иллюстрации сессию не прерывает.
func (o *Orchestrator) illustrate(ctx context.Context, sc *scene, prompt string, payload *models.ImagePayload) {
	payload.Seed = o.opts.seed()
	placeholder := func(reason string, err error) {
		payload.Placeholder = true
		payload.Retryable = true
		imagesTotal.WithLabelValues("placeholder").Inc()
		o.logger.Warn("Illustration replaced by placeholder", zap.String("reason", reason), zap.Error(err))
	}

	if o.deps.Illustrator == nil {
		placeholder("no illustrator configured", nil)
		return
	}
	if o.deps.Limiter != nil && o.deps.Limiter.IsLimited(ctx, ratelimit.ImageKey(o.campaignID)) {
		placeholder("rate limited", models.ErrRateLimited)
		return
	}

	res, err := o.deps.Illustrator.Illustrate(ctx, imagegen.Request{
		Prompt:   prompt,
		Seed:     payload.Seed,
		Width:    imagegen.DefaultWidth,
		Height:   imagegen.DefaultHeight,
		Audience: sc.audience(),
	})
	if err != nil {
		placeholder("generation failed", err)
		return
	}
	payload.ImageURL = res.URL
	payload.Model = res.Model
	imagesTotal.WithLabelValues("generated").Inc()
}

// recordAction оставляет в журнале след исполненного или ожидающего действия.
func (o *Orchestrator) recordAction(ctx context.Context, ex *exchange, action models.ToolAction, pending bool) error {
	args, err := json.Marshal(action.Args)
	if err != nil {
		return fmt.Errorf("failed to marshal %s args: %w", action.Kind, err)
	}
	actor := ex.actorID
	_, err = o.appendEvent(ctx, models.SessionEvent{
		Kind:    models.EventKindToolActionRecord,
		Role:    models.RoleSystem,
		Content: string(action.Kind),
		ActorID: &actor,
	}, models.ToolRecordPayload{
		Kind:          action.Kind,
		CorrelationID: action.CorrelationID,
		Fingerprint:   action.Fingerprint,
		Args:          args,
		PlayerID:      ex.actorID,
		Pending:       pending,
	})
	return err
}
