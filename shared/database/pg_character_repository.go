package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

var _ interfaces.CharacterRepository = (*pgCharacterRepository)(nil)

const (
	characterColumns = `campaign_id, participant_id, name, appearance, backstory, profession, state,
       is_dead, death_cause, death_world_future, death_at, updated_at`

	getCharacterQuery = `SELECT ` + characterColumns + `
FROM characters WHERE campaign_id = $1 AND participant_id = $2`

	listCharactersQuery = `SELECT ` + characterColumns + `
FROM characters WHERE campaign_id = $1 ORDER BY name`

	upsertCharacterQuery = `
INSERT INTO characters (campaign_id, participant_id, name, appearance, backstory, profession, state,
                        is_dead, death_cause, death_world_future, death_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (campaign_id, participant_id) DO UPDATE SET
    name = EXCLUDED.name,
    appearance = EXCLUDED.appearance,
    backstory = EXCLUDED.backstory,
    profession = EXCLUDED.profession,
    state = EXCLUDED.state,
    is_dead = EXCLUDED.is_dead,
    death_cause = EXCLUDED.death_cause,
    death_world_future = EXCLUDED.death_world_future,
    death_at = EXCLUDED.death_at,
    updated_at = EXCLUDED.updated_at`
)

type pgCharacterRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

func NewPgCharacterRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.CharacterRepository {
	return &pgCharacterRepository{db: db, logger: logger.Named("PgCharacterRepo")}
}

func (r *pgCharacterRepository) Get(ctx context.Context, campaignID, participantID string) (*models.Character, error) {
	var character models.Character
	if err := pgxscan.Get(ctx, r.db, &character, getCharacterQuery, campaignID, participantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get character", zap.String("campaign_id", campaignID), zap.String("participant_id", participantID), zap.Error(err))
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return &character, nil
}

func (r *pgCharacterRepository) Save(ctx context.Context, c *models.Character) error {
	state, err := json.Marshal(c.State)
	if err != nil {
		return fmt.Errorf("failed to marshal character state: %w", err)
	}
	c.UpdatedAt = time.Now().UTC()
	if _, err := r.db.Exec(ctx, upsertCharacterQuery,
		c.CampaignID, c.ParticipantID, c.Name, c.Appearance, c.Backstory, c.Profession, string(state),
		c.IsDead, c.DeathCause, c.DeathWorldFuture, c.DeathAt, c.UpdatedAt,
	); err != nil {
		r.logger.Error("Failed to save character", zap.String("campaign_id", c.CampaignID), zap.String("participant_id", c.ParticipantID), zap.Error(err))
		return fmt.Errorf("failed to save character: %w", err)
	}
	return nil
}

func (r *pgCharacterRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*models.Character, error) {
	var characters []*models.Character
	if err := pgxscan.Select(ctx, r.db, &characters, listCharactersQuery, campaignID); err != nil {
		r.logger.Error("Failed to list characters", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return characters, nil
}
