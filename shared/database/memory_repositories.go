package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

var (
	_ interfaces.CharacterRepository = (*MemoryCharacterRepository)(nil)
	_ interfaces.CampaignRepository  = (*MemoryCampaignRepository)(nil)
)

// MemoryCharacterRepository хранит копии персонажей в памяти.
type MemoryCharacterRepository struct {
	mu         sync.RWMutex
	characters map[string]map[string]models.Character
}

func NewMemoryCharacterRepository() *MemoryCharacterRepository {
	return &MemoryCharacterRepository{characters: make(map[string]map[string]models.Character)}
}

func (r *MemoryCharacterRepository) Get(_ context.Context, campaignID, participantID string) (*models.Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.characters[campaignID][participantID]
	if !ok {
		return nil, models.ErrNotFound
	}
	c.State = c.State.Clone()
	return &c, nil
}

func (r *MemoryCharacterRepository) Save(_ context.Context, character *models.Character) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.characters[character.CampaignID] == nil {
		r.characters[character.CampaignID] = make(map[string]models.Character)
	}
	character.UpdatedAt = time.Now().UTC()
	stored := *character
	stored.State = character.State.Clone()
	r.characters[character.CampaignID][character.ParticipantID] = stored
	return nil
}

func (r *MemoryCharacterRepository) ListByCampaign(_ context.Context, campaignID string) ([]*models.Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Character, 0, len(r.characters[campaignID]))
	for _, c := range r.characters[campaignID] {
		c.State = c.State.Clone()
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MemoryCampaignRepository хранит кампании и участников в памяти.
type MemoryCampaignRepository struct {
	mu           sync.RWMutex
	campaigns    map[string]models.Campaign
	participants map[string][]models.Participant
}

func NewMemoryCampaignRepository() *MemoryCampaignRepository {
	return &MemoryCampaignRepository{
		campaigns:    make(map[string]models.Campaign),
		participants: make(map[string][]models.Participant),
	}
}

func (r *MemoryCampaignRepository) GetByID(_ context.Context, campaignID string) (*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (r *MemoryCampaignRepository) ListParticipants(_ context.Context, campaignID string, status models.ParticipantStatus) ([]models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Participant, 0, len(r.participants[campaignID]))
	for _, p := range r.participants[campaignID] {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryCampaignRepository) SaveCampaign(_ context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = *c
	return nil
}

// SetStatus меняет статус кампании.
func (r *MemoryCampaignRepository) SetStatus(campaignID string, status models.CampaignStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[campaignID]; ok {
		c.Status = status
		r.campaigns[campaignID] = c
	}
}

func (r *MemoryCampaignRepository) SaveParticipant(_ context.Context, p models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.participants[p.CampaignID]
	for i := range list {
		if list[i].ID == p.ID {
			list[i] = p
			return nil
		}
	}
	r.participants[p.CampaignID] = append(list, p)
	return nil
}
