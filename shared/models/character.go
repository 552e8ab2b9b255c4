package models

import "time"

// Attribute - одно из четырех фиксированных измерений персонажа.
type Attribute string

const (
	AttrVigor    Attribute = "VIGOR"
	AttrDestreza Attribute = "DESTREZA"
	AttrMente    Attribute = "MENTE"
	AttrPresenca Attribute = "PRESENÇA"
)

// AttributeOrder - фиксированный порядок измерений; по нему разрешаются ничьи.
var AttributeOrder = [4]Attribute{AttrVigor, AttrDestreza, AttrMente, AttrPresenca}

const (
	AttributeMin   = 0
	AttributeMax   = 5
	AttributeTotal = 10
)

// Attributes хранит значения по каждому измерению.
type Attributes map[Attribute]int

// Sum возвращает сумму четырех измерений.
func (a Attributes) Sum() int {
	total := 0
	for _, attr := range AttributeOrder {
		total += a[attr]
	}
	return total
}

// HealthTier - ступень здоровья.
type HealthTier string

const (
	TierHealthy  HealthTier = "HEALTHY"
	TierInjured  HealthTier = "INJURED"
	TierCritical HealthTier = "CRITICAL"
	TierDead     HealthTier = "DEAD"
)

// HealthLadder - порядок деградации здоровья.
var HealthLadder = [4]HealthTier{TierHealthy, TierInjured, TierCritical, TierDead}

// Health - ступень и счетчик легких ран.
type Health struct {
	Tier               HealthTier `json:"tier"`
	LightDamageCounter int        `json:"lightDamageCounter"`
}

// ItemType - вид предмета инвентаря.
type ItemType string

const (
	ItemConsumable ItemType = "consumable"
	ItemEquipment  ItemType = "equipment"
)

type InventoryItem struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     ItemType `json:"type"`
	Quantity int      `json:"quantity"`
}

// CharacterState - игровое состояние персонажа.
type CharacterState struct {
	Attributes Attributes      `json:"attributes"`
	Health     Health          `json:"health"`
	Inventory  []InventoryItem `json:"inventory"`
}

// Clone возвращает глубокую копию.
func (s CharacterState) Clone() CharacterState {
	next := CharacterState{
		Attributes: make(Attributes, len(s.Attributes)),
		Health:     s.Health,
		Inventory:  make([]InventoryItem, len(s.Inventory)),
	}
	for k, v := range s.Attributes {
		next.Attributes[k] = v
	}
	copy(next.Inventory, s.Inventory)
	return next
}

// Character - персонаж участника в кампании.
type Character struct {
	CampaignID       string         `json:"campaign_id" db:"campaign_id"`
	ParticipantID    string         `json:"participant_id" db:"participant_id"`
	Name             string         `json:"name" db:"name"`
	Appearance       string         `json:"appearance" db:"appearance"`
	Backstory        string         `json:"backstory" db:"backstory"`
	Profession       string         `json:"profession" db:"profession"`
	State            CharacterState `json:"state" db:"state"`
	IsDead           bool           `json:"is_dead" db:"is_dead"`
	DeathCause       *string        `json:"death_cause,omitempty" db:"death_cause"`
	DeathWorldFuture *string        `json:"death_world_future,omitempty" db:"death_world_future"`
	DeathAt          *time.Time     `json:"death_at,omitempty" db:"death_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// Dead сообщает, считается ли персонаж погибшим.
func (c *Character) Dead() bool {
	return c.IsDead || c.State.Health.Tier == TierDead
}
