package models

import (
	"encoding/json"
	"time"
)

// EventKind - тип записи в журнале сессии.
type EventKind string

const (
	EventKindNarrative        EventKind = "narrative"
	EventKindSystemNotice     EventKind = "system_notice"
	EventKindToolActionRecord EventKind = "tool_action_record"
	EventKindImage            EventKind = "image"
	EventKindDeath            EventKind = "death"
)

// Valid сообщает, относится ли тип к известным.
func (k EventKind) Valid() bool {
	switch k {
	case EventKindNarrative, EventKindSystemNotice, EventKindToolActionRecord, EventKindImage, EventKindDeath:
		return true
	}
	return false
}

// EventRole - автор записи с точки зрения диалога с моделью.
type EventRole string

const (
	RoleUser   EventRole = "user"
	RoleModel  EventRole = "model"
	RoleSystem EventRole = "system"
)

// TurnAction - служебное действие раунда, хранимое в событии.
type TurnAction string

const (
	TurnActionNone    TurnAction = ""
	TurnActionStart   TurnAction = "turn_start"
	TurnActionSubmit  TurnAction = "turn_action"
	TurnActionAdvance TurnAction = "turn_advance"
	TurnActionEnd     TurnAction = "turn_end"
)

// SessionEvent - неизменяемая запись журнала кампании.
// Журнал - единственный источник истины для раундов и повествования.
type SessionEvent struct {
	ID           string          `json:"id" db:"id"`
	CampaignID   string          `json:"campaign_id" db:"campaign_id"`
	Kind         EventKind       `json:"kind" db:"kind"`
	Role         EventRole       `json:"role" db:"role"`
	Action       TurnAction      `json:"action,omitempty" db:"action"`
	Content      string          `json:"content" db:"content"`
	Payload      json.RawMessage `json:"payload,omitempty" db:"payload"`
	ActorID      *string         `json:"actor_id,omitempty" db:"actor_id"`
	SequenceTime time.Time       `json:"sequence_time" db:"sequence_time"`
}

// DecodePayload разбирает Payload в dst. Пустой payload не является ошибкой.
func (e SessionEvent) DecodePayload(dst any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, dst)
}

// Actor возвращает ActorID или пустую строку.
func (e SessionEvent) Actor() string {
	if e.ActorID == nil {
		return ""
	}
	return *e.ActorID
}

// TurnPayload - поля служебных событий раунда.
type TurnPayload struct {
	TurnID       string   `json:"turn_id"`
	Order        []string `json:"order,omitempty"`
	OrderNames   []string `json:"order_names,omitempty"`
	CurrentIndex *int     `json:"current_index,omitempty"`
	PlayerID     string   `json:"player_id,omitempty"`
	PlayerName   string   `json:"player_name,omitempty"`
	Text         string   `json:"text,omitempty"`
	Roll         *int     `json:"roll,omitempty"`
	DexKey       string   `json:"dex_key,omitempty"`
}

// RollNoticePayload сопровождает system_notice с результатом броска.
type RollNoticePayload struct {
	PlayerID    string `json:"player_id"`
	PlayerName  string `json:"player_name,omitempty"`
	Attribute   string `json:"attribute"`
	NaturalRoll *int   `json:"natural_roll,omitempty"`
	Total       *int   `json:"total,omitempty"`
	Outcome     string `json:"outcome"`
	Label       string `json:"label"`
	CallID      string `json:"call_id,omitempty"`
}

// ImagePayload - метаданные события с иллюстрацией.
type ImagePayload struct {
	ImageURL     string `json:"image_url,omitempty"`
	SourceCallID string `json:"source_call_id,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Model        string `json:"model,omitempty"`
	Seed         int    `json:"seed"`
	Placeholder  bool   `json:"placeholder,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
}

// ToolRecordPayload - след исполненного (или ожидающего) инструмента.
type ToolRecordPayload struct {
	Kind          ToolKind        `json:"kind"`
	CorrelationID string          `json:"correlation_id"`
	Fingerprint   string          `json:"fingerprint,omitempty"`
	Args          json.RawMessage `json:"args,omitempty"`
	PlayerID      string          `json:"player_id,omitempty"`
	Pending       bool            `json:"pending,omitempty"`
}

// DeathPayload - причина гибели и судьба мира.
type DeathPayload struct {
	PlayerID    string `json:"player_id"`
	Cause       string `json:"cause"`
	WorldFuture string `json:"world_future"`
}
