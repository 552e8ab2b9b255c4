package interfaces

import (
	"context"

	"mestrai-server/shared/models"
)

// CharacterRepository хранит персонажей участников.
type CharacterRepository interface {
	// Get возвращает models.ErrNotFound, если персонажа нет.
	Get(ctx context.Context, campaignID, participantID string) (*models.Character, error)

	// Save создает или обновляет персонажа целиком.
	Save(ctx context.Context, character *models.Character) error

	// ListByCampaign возвращает персонажей кампании.
	ListByCampaign(ctx context.Context, campaignID string) ([]*models.Character, error)
}

// CampaignRepository дает доступ к кампаниям и составу участников.
type CampaignRepository interface {
	GetByID(ctx context.Context, campaignID string) (*models.Campaign, error)
	ListParticipants(ctx context.Context, campaignID string, status models.ParticipantStatus) ([]models.Participant, error)
}
