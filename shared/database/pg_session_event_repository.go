package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

var _ interfaces.SessionEventLog = (*pgSessionEventRepository)(nil)

const (
	lockCampaignQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

	listSessionEventsQuery = `
SELECT id, campaign_id, kind, role, action, content, payload, actor_id, sequence_time
FROM session_events
WHERE campaign_id = $1
ORDER BY sequence_time, seq`

	lastSequenceTimeQuery = `
SELECT sequence_time FROM session_events
WHERE campaign_id = $1
ORDER BY sequence_time DESC, seq DESC
LIMIT 1`

	insertSessionEventQuery = `
INSERT INTO session_events (id, campaign_id, kind, role, action, content, payload, actor_id, sequence_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

type pgSessionEventRepository struct {
	db     interfaces.TxBeginner
	logger *zap.Logger
}

// NewPgSessionEventRepository создает журнал поверх PostgreSQL.
// Запись идет под транзакционной advisory-блокировкой кампании.
func NewPgSessionEventRepository(db interfaces.TxBeginner, logger *zap.Logger) interfaces.SessionEventLog {
	return &pgSessionEventRepository{
		db:     db,
		logger: logger.Named("PgSessionEventRepo"),
	}
}

func (r *pgSessionEventRepository) Append(ctx context.Context, event models.SessionEvent) (string, error) {
	return r.AppendGuarded(ctx, event, nil)
}

func (r *pgSessionEventRepository) AppendGuarded(ctx context.Context, event models.SessionEvent, guard interfaces.AppendGuard) (id string, err error) {
	log := r.logger.With(zap.String("campaign_id", event.CampaignID))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error("Failed to rollback session event transaction", zap.Error(rbErr))
			}
		}
	}()

	if _, err = tx.Exec(ctx, lockCampaignQuery, event.CampaignID); err != nil {
		return "", fmt.Errorf("failed to lock campaign %s: %w", event.CampaignID, err)
	}

	now := time.Now()
	if guard != nil {
		var history []models.SessionEvent
		history, err = listEvents(ctx, tx, event.CampaignID)
		if err != nil {
			return "", err
		}
		if err = guard(history); err != nil {
			return "", err
		}
		if n := len(history); n > 0 && now.Before(history[n-1].SequenceTime) {
			now = history[n-1].SequenceTime
		}
	} else {
		var last time.Time
		err = tx.QueryRow(ctx, lastSequenceTimeQuery, event.CampaignID).Scan(&last)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			err = nil
		case err != nil:
			return "", fmt.Errorf("failed to read last sequence time: %w", err)
		case now.Before(last):
			now = last
		}
	}

	if err = prepareEvent(&event, now); err != nil {
		return "", err
	}
	if _, err = tx.Exec(ctx, insertSessionEventQuery,
		event.ID, event.CampaignID, event.Kind, event.Role, event.Action,
		event.Content, nullableJSON(event.Payload), event.ActorID, event.SequenceTime,
	); err != nil {
		log.Error("Failed to insert session event", zap.Error(err))
		return "", fmt.Errorf("failed to insert session event: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit session event: %w", err)
	}

	log.Debug("Session event appended", zap.String("event_id", event.ID), zap.String("kind", string(event.Kind)))
	return event.ID, nil
}

func (r *pgSessionEventRepository) List(ctx context.Context, campaignID string) ([]models.SessionEvent, error) {
	events, err := listEvents(ctx, r.db, campaignID)
	if err != nil {
		r.logger.Error("Failed to list session events", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, err
	}
	return events, nil
}

func listEvents(ctx context.Context, q interfaces.DBTX, campaignID string) ([]models.SessionEvent, error) {
	var events []models.SessionEvent
	if err := pgxscan.Select(ctx, q, &events, listSessionEventsQuery, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list session events for campaign %s: %w", campaignID, err)
	}
	if events == nil {
		events = []models.SessionEvent{}
	}
	return events, nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
