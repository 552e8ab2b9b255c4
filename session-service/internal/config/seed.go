package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"mestrai-server/shared/models"
)

// SeedParticipant - участник кампании в файле SEED_FILE.
type SeedParticipant struct {
	ID     string                   `yaml:"id"`
	Name   string                   `yaml:"name"`
	Status models.ParticipantStatus `yaml:"status"`
}

// SeedCampaign - кампания в файле SEED_FILE.
type SeedCampaign struct {
	ID           string                `yaml:"id"`
	OwnerID      string                `yaml:"owner_id"`
	Title        string                `yaml:"title"`
	WorldHistory string                `yaml:"world_history"`
	Genre        string                `yaml:"genre"`
	Tone         string                `yaml:"tone"`
	Magic        string                `yaml:"magic"`
	Tech         string                `yaml:"tech"`
	VisualStyle  string                `yaml:"visual_style"`
	Status       models.CampaignStatus `yaml:"status"`
	Participants []SeedParticipant     `yaml:"participants"`
}

type seedFile struct {
	Campaigns []SeedCampaign `yaml:"campaigns"`
}

// LoadSeed читает кампании из YAML. Пустой путь - пустой список.
func LoadSeed(path string) ([]SeedCampaign, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	var file seedFile
	if err := cleanenv.ReadConfig(path, &file); err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	for i := range file.Campaigns {
		c := &file.Campaigns[i]
		if c.ID == "" || c.OwnerID == "" {
			return nil, fmt.Errorf("seed campaign %d needs id and owner_id", i)
		}
		if c.Status == "" {
			c.Status = models.CampaignActive
		}
		for j := range c.Participants {
			if c.Participants[j].Status == "" {
				c.Participants[j].Status = models.ParticipantAccepted
			}
		}
	}
	return file.Campaigns, nil
}

// Campaign переводит запись файла в модель.
func (s SeedCampaign) Campaign() *models.Campaign {
	return &models.Campaign{
		ID:           s.ID,
		OwnerID:      s.OwnerID,
		Title:        s.Title,
		WorldHistory: s.WorldHistory,
		Genre:        s.Genre,
		Tone:         s.Tone,
		Magic:        s.Magic,
		Tech:         s.Tech,
		VisualStyle:  s.VisualStyle,
		Status:       s.Status,
	}
}
