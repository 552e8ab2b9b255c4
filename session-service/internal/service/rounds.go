package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mestrai-server/session-service/internal/turns"
	"mestrai-server/shared/models"
)

// advanceAfterExchange передает ход, если автор обмена все еще текущий и обмен завершен:
// нет ожидающего броска и есть повествование (или персонаж погиб).
func (o *Orchestrator) advanceAfterExchange(ctx context.Context, ex *exchange) error {
	if o.hasPendingRoll() {
		return nil
	}
	if !ex.narrated && !ex.died {
		o.logger.Debug("Exchange produced no narrative, turn kept", zap.String("actor_id", ex.actorID))
		return nil
	}

	events, err := o.deps.Events.List(ctx, o.campaignID)
	if err != nil {
		return fmt.Errorf("failed to load session log: %w", err)
	}
	round := turns.Fold(events)
	if current, ok := round.Current(); !ok || current != ex.actorID {
		return nil
	}

	ev, err := turns.Advance(o.campaignID, round)
	if err != nil {
		return err
	}
	if _, err := o.deps.Events.AppendGuarded(ctx, ev, turns.AdvanceGuard(round.RoundID, round.CurrentIndex)); err != nil {
		if errors.Is(err, models.ErrTurnViolation) {
			o.logger.Info("Turn already advanced elsewhere", zap.String("round_id", round.RoundID))
			return nil
		}
		return fmt.Errorf("failed to advance turn: %w", err)
	}
	o.logger.Info("Turn advanced",
		zap.String("round_id", round.RoundID), zap.String("action", string(ev.Action)), zap.Int("from_index", round.CurrentIndex))

	if ev.Action == models.TurnActionEnd {
		roundsTotal.WithLabelValues("ended").Inc()
		return o.autoStartRound(ctx)
	}
	return nil
}

// autoStartRound открывает следующий раунд от имени владельца, пока кампания активна.
func (o *Orchestrator) autoStartRound(ctx context.Context) error {
	campaign, err := o.deps.Campaigns.GetByID(ctx, o.campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign.Status != models.CampaignActive {
		return nil
	}
	if _, err := o.startRound(ctx, campaign); err != nil {
		if errors.Is(err, models.ErrNoParticipants) || errors.Is(err, models.ErrRoundActive) {
			o.logger.Info("Next round not started", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

func (o *Orchestrator) startRound(ctx context.Context, campaign *models.Campaign) (*models.TurnRound, error) {
	candidates, err := o.candidates(ctx)
	if err != nil {
		return nil, err
	}
	events, err := o.deps.Events.List(ctx, o.campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session log: %w", err)
	}

	ev, err := o.deps.Scheduler.StartRound(o.campaignID, events, candidates)
	if err != nil {
		return nil, err
	}
	owner := campaign.OwnerID
	ev.ActorID = &owner
	if _, err := o.deps.Events.AppendGuarded(ctx, ev, turns.StartGuard()); err != nil {
		if errors.Is(err, models.ErrRoundActive) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to start round: %w", err)
	}
	roundsTotal.WithLabelValues("started").Inc()

	events, err = o.deps.Events.List(ctx, o.campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session log: %w", err)
	}
	round := turns.Fold(events)
	o.logger.Info("Round started", zap.String("round_id", round.RoundID), zap.Strings("order", round.Order))
	return round, nil
}

// RestorePendingRoll находит в журнале запрос броска, на который еще не ответили.
func RestorePendingRoll(events []models.SessionEvent) *PendingRoll {
	var pending *PendingRoll
	for _, ev := range events {
		switch ev.Kind {
		case models.EventKindToolActionRecord:
			var p models.ToolRecordPayload
			if err := ev.DecodePayload(&p); err != nil || p.Kind != models.ToolRequestRoll || !p.Pending {
				continue
			}
			var challenge models.RequestRollArgs
			if err := json.Unmarshal(p.Args, &challenge); err != nil {
				continue
			}
			pending = &PendingRoll{ParticipantID: p.PlayerID, CallID: p.CorrelationID, Challenge: challenge}
		case models.EventKindSystemNotice:
			if pending == nil || ev.Action != models.TurnActionNone {
				continue
			}
			var n models.RollNoticePayload
			if err := ev.DecodePayload(&n); err == nil && n.CallID == pending.CallID {
				pending = nil
			}
		case models.EventKindDeath:
			if pending != nil && ev.Actor() == pending.ParticipantID {
				pending = nil
			}
		}
	}
	return pending
}
