package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mestrai-server/session-service/internal/turns"
	"mestrai-server/shared/models"
)

// scene - контекст одного обмена: кампания, персонаж автора хода и состав стола.
type scene struct {
	campaign     *models.Campaign
	character    *models.Character
	participants []models.Participant
	roster       []string
}

// audience - число игроков для выбора модели иллюстраций.
func (sc *scene) audience() int {
	if len(sc.participants) == 0 {
		return 1
	}
	return len(sc.participants)
}

// loadScene проверяет, что участник может действовать, и собирает контекст.
func (o *Orchestrator) loadScene(ctx context.Context, participantID string) (*scene, error) {
	campaign, err := o.deps.Campaigns.GetByID(ctx, o.campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign.Status != models.CampaignActive {
		return nil, fmt.Errorf("%w: %s", models.ErrCampaignInactive, WaitingNotice)
	}

	participants, err := o.deps.Campaigns.ListParticipants(ctx, o.campaignID, models.ParticipantAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	if !containsParticipant(participants, participantID) {
		return nil, fmt.Errorf("%w: participant is not accepted in this campaign", models.ErrForbidden)
	}

	character, err := o.deps.Characters.Get(ctx, o.campaignID, participantID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: participant has no character", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load character: %w", err)
	}
	if character.Dead() {
		return nil, models.ErrTerminalState
	}

	roster, err := o.roster(ctx, participants)
	if err != nil {
		return nil, err
	}
	return &scene{campaign: campaign, character: character, participants: participants, roster: roster}, nil
}

// roster - имена персонажей принятых участников; без персонажа берется имя участника.
func (o *Orchestrator) roster(ctx context.Context, participants []models.Participant) ([]string, error) {
	chars, err := o.charactersByParticipant(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		if c, ok := chars[p.ID]; ok && c.Name != "" {
			names = append(names, c.Name)
			continue
		}
		names = append(names, p.Name)
	}
	return names, nil
}

func (o *Orchestrator) charactersByParticipant(ctx context.Context) (map[string]*models.Character, error) {
	list, err := o.deps.Characters.ListByCampaign(ctx, o.campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	byID := make(map[string]*models.Character, len(list))
	for _, c := range list {
		byID[c.ParticipantID] = c
	}
	return byID, nil
}

// candidates - живые персонажи принятых участников, ранжированные по DESTREZA.
func (o *Orchestrator) candidates(ctx context.Context) ([]turns.Candidate, error) {
	participants, err := o.deps.Campaigns.ListParticipants(ctx, o.campaignID, models.ParticipantAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	chars, err := o.charactersByParticipant(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]turns.Candidate, 0, len(participants))
	for _, p := range participants {
		c, ok := chars[p.ID]
		if !ok || c.Dead() {
			continue
		}
		name := c.Name
		if name == "" {
			name = p.Name
		}
		out = append(out, turns.Candidate{ID: p.ID, Name: name, RankKey: c.State.Attributes[turns.RankAttribute]})
	}
	return out, nil
}

// appendEvent записывает событие кампании с payload, сериализованным в JSON.
func (o *Orchestrator) appendEvent(ctx context.Context, ev models.SessionEvent, payload any) (string, error) {
	ev.CampaignID = o.campaignID
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s payload: %w", ev.Kind, err)
		}
		ev.Payload = raw
	}
	id, err := o.deps.Events.Append(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("failed to append %s event: %w", ev.Kind, err)
	}
	return id, nil
}

// saveCharacter сохраняет персонажа сцены.
func (o *Orchestrator) saveCharacter(ctx context.Context, c *models.Character) error {
	c.UpdatedAt = o.opts.now().UTC()
	if err := o.deps.Characters.Save(ctx, c); err != nil {
		return fmt.Errorf("failed to save character %s: %w", c.ParticipantID, err)
	}
	return nil
}
