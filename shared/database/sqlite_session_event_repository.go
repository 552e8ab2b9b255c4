package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

var _ interfaces.SessionEventLog = (*SqliteSessionEventRepository)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_events (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    id            TEXT NOT NULL UNIQUE,
    campaign_id   TEXT NOT NULL,
    kind          TEXT NOT NULL,
    role          TEXT NOT NULL,
    action        TEXT NOT NULL DEFAULT '',
    content       TEXT NOT NULL DEFAULT '',
    payload       TEXT,
    actor_id      TEXT,
    sequence_nano INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_events_campaign_order ON session_events (campaign_id, sequence_nano, seq);`

const (
	sqliteListEventsQuery = `
SELECT id, campaign_id, kind, role, action, content, payload, actor_id, sequence_nano
FROM session_events WHERE campaign_id = ? ORDER BY sequence_nano, seq`

	sqliteInsertEventQuery = `
INSERT INTO session_events (id, campaign_id, kind, role, action, content, payload, actor_id, sequence_nano)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

type sqliteEventRow struct {
	ID           string  `db:"id"`
	CampaignID   string  `db:"campaign_id"`
	Kind         string  `db:"kind"`
	Role         string  `db:"role"`
	Action       string  `db:"action"`
	Content      string  `db:"content"`
	Payload      *string `db:"payload"`
	ActorID      *string `db:"actor_id"`
	SequenceNano int64   `db:"sequence_nano"`
}

func (r sqliteEventRow) toModel() models.SessionEvent {
	ev := models.SessionEvent{
		ID:           r.ID,
		CampaignID:   r.CampaignID,
		Kind:         models.EventKind(r.Kind),
		Role:         models.EventRole(r.Role),
		Action:       models.TurnAction(r.Action),
		Content:      r.Content,
		ActorID:      r.ActorID,
		SequenceTime: time.Unix(0, r.SequenceNano).UTC(),
	}
	if r.Payload != nil {
		ev.Payload = json.RawMessage(*r.Payload)
	}
	return ev
}

// SqliteSessionEventRepository - журнал в файле SQLite для локальной разработки.
// Одно соединение делает запись однописательной, транзакция охватывает проверку и вставку.
type SqliteSessionEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSqliteSessionEventRepository открывает (и при необходимости создает) файл журнала.
func OpenSqliteSessionEventRepository(ctx context.Context, path string, logger *zap.Logger) (*SqliteSessionEventRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return &SqliteSessionEventRepository{db: db, logger: logger.Named("SqliteSessionEventRepo")}, nil
}

func (r *SqliteSessionEventRepository) Close() error { return r.db.Close() }

func (r *SqliteSessionEventRepository) Append(ctx context.Context, event models.SessionEvent) (string, error) {
	return r.AppendGuarded(ctx, event, nil)
}

func (r *SqliteSessionEventRepository) AppendGuarded(ctx context.Context, event models.SessionEvent, guard interfaces.AppendGuard) (id string, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin sqlite transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to rollback sqlite transaction", zap.Error(rbErr))
			}
		}
	}()

	var history []models.SessionEvent
	history, err = r.list(ctx, tx, event.CampaignID)
	if err != nil {
		return "", err
	}
	if guard != nil {
		if err = guard(history); err != nil {
			return "", err
		}
	}

	now := time.Now()
	if n := len(history); n > 0 && now.Before(history[n-1].SequenceTime) {
		now = history[n-1].SequenceTime
	}
	if err = prepareEvent(&event, now); err != nil {
		return "", err
	}

	var payload *string
	if len(event.Payload) > 0 {
		s := string(event.Payload)
		payload = &s
	}
	if _, err = tx.ExecContext(ctx, sqliteInsertEventQuery,
		event.ID, event.CampaignID, string(event.Kind), string(event.Role), string(event.Action),
		event.Content, payload, event.ActorID, event.SequenceTime.UnixNano(),
	); err != nil {
		return "", fmt.Errorf("failed to insert session event: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit session event: %w", err)
	}
	return event.ID, nil
}

func (r *SqliteSessionEventRepository) List(ctx context.Context, campaignID string) ([]models.SessionEvent, error) {
	return r.list(ctx, r.db, campaignID)
}

func (r *SqliteSessionEventRepository) list(ctx context.Context, q sqlscan.Querier, campaignID string) ([]models.SessionEvent, error) {
	var rows []sqliteEventRow
	if err := sqlscan.Select(ctx, q, &rows, sqliteListEventsQuery, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list session events: %w", err)
	}
	events := make([]models.SessionEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toModel())
	}
	return events, nil
}
