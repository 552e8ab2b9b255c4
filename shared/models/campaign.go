package models

import "time"

// CampaignStatus - статус стола.
type CampaignStatus string

const (
	CampaignWaiting  CampaignStatus = "waiting_for_players"
	CampaignActive   CampaignStatus = "active"
	CampaignPaused   CampaignStatus = "paused"
	CampaignArchived CampaignStatus = "archived"
)

// Campaign - контекст мира, в котором идет сессия.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	OwnerID      string         `json:"owner_id" db:"owner_id"`
	Title        string         `json:"title" db:"title"`
	WorldHistory string         `json:"world_history" db:"world_history"`
	Genre        string         `json:"genre" db:"genre"`
	Tone         string         `json:"tone" db:"tone"`
	Magic        string         `json:"magic" db:"magic"`
	Tech         string         `json:"tech" db:"tech"`
	VisualStyle  string         `json:"visual_style" db:"visual_style"`
	Status       CampaignStatus `json:"status" db:"status"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// ParticipantStatus - статус участия игрока.
type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantAccepted ParticipantStatus = "accepted"
	ParticipantBanned   ParticipantStatus = "banned"
)

// Participant - игрок кампании.
type Participant struct {
	CampaignID string            `json:"campaign_id" db:"campaign_id"`
	ID         string            `json:"id" db:"participant_id"`
	Name       string            `json:"name" db:"name"`
	Status     ParticipantStatus `json:"status" db:"status"`
}
