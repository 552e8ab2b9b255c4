package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

var _ interfaces.CampaignRepository = (*PgCampaignRepository)(nil)

const (
	getCampaignQuery = `
SELECT id, owner_id, title, world_history, genre, tone, magic, tech, visual_style, status, created_at
FROM campaigns WHERE id = $1`

	listParticipantsQuery = `
SELECT campaign_id, participant_id, name, status
FROM campaign_participants
WHERE campaign_id = $1 AND ($2::text = '' OR status = $2::text)
ORDER BY name`

	upsertCampaignQuery = `
INSERT INTO campaigns (id, owner_id, title, world_history, genre, tone, magic, tech, visual_style, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title,
    world_history = EXCLUDED.world_history,
    genre = EXCLUDED.genre,
    tone = EXCLUDED.tone,
    magic = EXCLUDED.magic,
    tech = EXCLUDED.tech,
    visual_style = EXCLUDED.visual_style,
    status = EXCLUDED.status`

	upsertParticipantQuery = `
INSERT INTO campaign_participants (campaign_id, participant_id, name, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (campaign_id, participant_id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status`
)

// PgCampaignRepository читает кампании и состав стола. Запись нужна CLI и тестам.
type PgCampaignRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

func NewPgCampaignRepository(db interfaces.DBTX, logger *zap.Logger) *PgCampaignRepository {
	return &PgCampaignRepository{db: db, logger: logger.Named("PgCampaignRepo")}
}

func (r *PgCampaignRepository) GetByID(ctx context.Context, campaignID string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := pgxscan.Get(ctx, r.db, &campaign, getCampaignQuery, campaignID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get campaign", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &campaign, nil
}

// ListParticipants возвращает участников; пустой status - всех.
func (r *PgCampaignRepository) ListParticipants(ctx context.Context, campaignID string, status models.ParticipantStatus) ([]models.Participant, error) {
	var participants []models.Participant
	if err := pgxscan.Select(ctx, r.db, &participants, listParticipantsQuery, campaignID, string(status)); err != nil {
		r.logger.Error("Failed to list participants", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}

func (r *PgCampaignRepository) SaveCampaign(ctx context.Context, c *models.Campaign) error {
	if _, err := r.db.Exec(ctx, upsertCampaignQuery,
		c.ID, c.OwnerID, c.Title, c.WorldHistory, c.Genre, c.Tone, c.Magic, c.Tech, c.VisualStyle, c.Status,
	); err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}
	return nil
}

func (r *PgCampaignRepository) SaveParticipant(ctx context.Context, p models.Participant) error {
	if _, err := r.db.Exec(ctx, upsertParticipantQuery, p.CampaignID, p.ID, p.Name, p.Status); err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	return nil
}
