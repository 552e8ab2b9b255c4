package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mestrai-server/session-service/internal/rules"
	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

// RegisterCharacterInput - анкета персонажа в том виде, в каком ее прислал клиент.
type RegisterCharacterInput struct {
	CampaignID    string
	ParticipantID string
	Name          string
	Appearance    string
	Backstory     string
	Profession    string
	Attributes    map[string]any
	Inventory     []any
}

// CharacterService принимает анкеты и нормализует их.
type CharacterService struct {
	characters interfaces.CharacterRepository
	campaigns  interfaces.CampaignRepository
	now        func() time.Time
	logger     *zap.Logger
}

func NewCharacterService(characters interfaces.CharacterRepository, campaigns interfaces.CampaignRepository, logger *zap.Logger) *CharacterService {
	return &CharacterService{
		characters: characters,
		campaigns:  campaigns,
		now:        time.Now,
		logger:     logger.Named("CharacterService"),
	}
}

// Register создает персонажа. Погибшего можно заменить новым, живого - нет.
func (s *CharacterService) Register(ctx context.Context, in RegisterCharacterInput) (*models.Character, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.CampaignID == "" || in.ParticipantID == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: campaign, participant and name are required", models.ErrValidation)
	}

	if _, err := s.campaigns.GetByID(ctx, in.CampaignID); err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	participants, err := s.campaigns.ListParticipants(ctx, in.CampaignID, models.ParticipantAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	if !containsParticipant(participants, in.ParticipantID) {
		return nil, fmt.Errorf("%w: participant is not accepted in this campaign", models.ErrForbidden)
	}

	existing, err := s.characters.Get(ctx, in.CampaignID, in.ParticipantID)
	switch {
	case err == nil && !existing.Dead():
		return nil, models.ErrCharacterExists
	case err != nil && !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("failed to load character: %w", err)
	}

	char := &models.Character{
		CampaignID:    in.CampaignID,
		ParticipantID: in.ParticipantID,
		Name:          in.Name,
		Appearance:    strings.TrimSpace(in.Appearance),
		Backstory:     strings.TrimSpace(in.Backstory),
		Profession:    strings.TrimSpace(in.Profession),
		State:         rules.NewCharacterState(rules.NormalizeRawAttributes(in.Attributes), rules.NormalizeInventory(in.Inventory)),
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.characters.Save(ctx, char); err != nil {
		return nil, fmt.Errorf("failed to save character: %w", err)
	}
	s.logger.Info("Character registered",
		zap.String("campaign_id", in.CampaignID), zap.String("participant_id", in.ParticipantID),
		zap.Any("attributes", char.State.Attributes))
	return char, nil
}

func containsParticipant(ps []models.Participant, id string) bool {
	for _, p := range ps {
		if p.ID == id {
			return true
		}
	}
	return false
}
