package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mestrai-server/session-service/internal/toolparse"
	"mestrai-server/shared/models"
)

// deathSequence фиксирует гибель персонажа автора хода. Повторно не выполняется.
func (o *Orchestrator) deathSequence(ctx context.Context, ex *exchange, cause, future string) error {
	char := ex.scene.character
	if char.IsDead {
		return nil
	}
	cause = strings.TrimSpace(cause)
	if cause == "" {
		cause = DefaultDeathCause
	}
	future = strings.TrimSpace(future)
	if future == "" {
		future = DefaultWorldFuture
	}

	actor := ex.actorID
	if _, err := o.appendEvent(ctx, models.SessionEvent{
		Kind:    models.EventKindDeath,
		Role:    models.RoleModel,
		Content: fmt.Sprintf(deathContentFormat, cause, future),
		ActorID: &actor,
	}, models.DeathPayload{PlayerID: actor, Cause: cause, WorldFuture: future}); err != nil {
		return err
	}

	now := o.opts.now().UTC()
	char.IsDead = true
	char.State.Health = models.Health{Tier: models.TierDead}
	char.DeathCause = &cause
	char.DeathWorldFuture = &future
	char.DeathAt = &now
	if err := o.saveCharacter(ctx, char); err != nil {
		return err
	}

	prompt := fmt.Sprintf(deathImageFormat, ex.scene.campaign.VisualStyle)
	payload := models.ImagePayload{Prompt: prompt, Fingerprint: toolparse.ImageFingerprint(prompt)}
	o.illustrate(ctx, ex.scene, prompt, &payload)
	if _, err := o.appendEvent(ctx, models.SessionEvent{
		Kind:    models.EventKindImage,
		Role:    models.RoleSystem,
		ActorID: &actor,
	}, payload); err != nil {
		return err
	}

	ex.died = true
	ex.halted = true
	deathsTotal.Inc()
	o.logger.Info("Character died", zap.String("participant_id", actor), zap.String("cause", cause))
	return nil
}
