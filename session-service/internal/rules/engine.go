// Package rules - детерминированный движок правил: атрибуты, броски, здоровье.
// Все функции чистые и тотальные: числа вне диапазона зажимаются, а не отклоняются.
package rules

import (
	"mestrai-server/shared/models"
)

// Outcome - именованный исход броска.
type Outcome string

const (
	OutcomeCriticalFailure Outcome = "CRITICAL_FAILURE"
	OutcomeCriticalSuccess Outcome = "CRITICAL_SUCCESS"
	OutcomeMajorFailure    Outcome = "MAJOR_FAILURE"
	OutcomeMinorFailure    Outcome = "MINOR_FAILURE"
	OutcomeCostlySuccess   Outcome = "COSTLY_SUCCESS"
	OutcomeFullSuccess     Outcome = "FULL_SUCCESS"
	OutcomeImpossible      Outcome = "IMPOSSIBLE"
)

// DefaultImpossibleMessage показывается, когда причина невозможности не указана.
const DefaultImpossibleMessage = "Boa tentativa, mas nem o mestre consegue dobrar a realidade desse jeito."

var healthPenalty = map[models.HealthTier]int{
	models.TierHealthy:  0,
	models.TierInjured:  2,
	models.TierCritical: 5,
	models.TierDead:     999,
}

var difficultyPenalty = map[models.Difficulty]int{
	models.DifficultyNormal:   0,
	models.DifficultyHard:     2,
	models.DifficultyVeryHard: 5,
}

// RollInput - параметры проверки.
type RollInput struct {
	Attribute          models.Attribute
	AttributeValue     int
	ProfessionRelevant bool
	Difficulty         models.Difficulty
	HealthTier         models.HealthTier
	NaturalRoll        int
	Impossible         bool
	ImpossibleReason   string
}

// RollResult - исход проверки. Для IMPOSSIBLE бросок не выполняется (Skipped).
type RollResult struct {
	Skipped     bool    `json:"skipped"`
	NaturalRoll int     `json:"natural_roll,omitempty"`
	Total       int     `json:"total,omitempty"`
	Outcome     Outcome `json:"outcome"`
	Label       string  `json:"label"`
	Message     string  `json:"message,omitempty"`
}

// NormalizeAttributes приводит атрибуты к [0,5] с суммой ровно 10.
// Лишнее снимается с наибольшего значения, недостающее добавляется к наибольшему из тех, что ниже 5;
// ничьи решаются фиксированным порядком измерений.
func NormalizeAttributes(raw models.Attributes) models.Attributes {
	out := make(models.Attributes, len(models.AttributeOrder))
	for _, attr := range models.AttributeOrder {
		out[attr] = clamp(raw[attr], models.AttributeMin, models.AttributeMax)
	}

	total := out.Sum()
	for total > models.AttributeTotal {
		target, ok := highest(out, func(v int) bool { return v > models.AttributeMin })
		if !ok {
			break
		}
		out[target]--
		total--
	}
	for total < models.AttributeTotal {
		target, ok := highest(out, func(v int) bool { return v < models.AttributeMax })
		if !ok {
			break
		}
		out[target]++
		total++
	}
	return out
}

// ClassifyRoll вычисляет итог и исход проверки.
func ClassifyRoll(in RollInput) RollResult {
	if in.Impossible {
		msg := in.ImpossibleReason
		if msg == "" {
			msg = DefaultImpossibleMessage
		}
		return RollResult{Skipped: true, Outcome: OutcomeImpossible, Label: DefaultLabel(OutcomeImpossible), Message: msg}
	}

	natural := clamp(in.NaturalRoll, 1, 20)
	switch natural {
	case 1:
		return newResult(natural, 1, OutcomeCriticalFailure)
	case 20:
		return newResult(natural, 20, OutcomeCriticalSuccess)
	}

	attributeBonus := (clamp(in.AttributeValue, models.AttributeMin, models.AttributeMax) + 1) / 2
	professionBonus := 0
	if in.ProfessionRelevant {
		professionBonus = 2
	}
	total := natural + attributeBonus + professionBonus - healthPenalty[in.HealthTier] - difficultyPenalty[in.Difficulty]

	switch {
	case total <= 5:
		return newResult(natural, total, OutcomeMajorFailure)
	case total <= 10:
		return newResult(natural, total, OutcomeMinorFailure)
	case total <= 15:
		return newResult(natural, total, OutcomeCostlySuccess)
	default:
		return newResult(natural, total, OutcomeFullSuccess)
	}
}

// ApplyDamage применяет урон. DEAD не меняется.
// LIGHT копит счетчик и на третьей ране опускает ступень; HEAVY опускает ступень сразу.
func ApplyDamage(state models.CharacterState, severity models.DamageSeverity) models.CharacterState {
	next := state.Clone()
	if next.Health.Tier == models.TierDead {
		return next
	}

	if severity == models.DamageHeavy {
		next.Health.LightDamageCounter = 0
		next.Health.Tier = downgrade(next.Health.Tier)
		return next
	}

	next.Health.LightDamageCounter = clamp(next.Health.LightDamageCounter+1, 0, 3)
	if next.Health.LightDamageCounter >= 3 {
		next.Health.LightDamageCounter = 0
		next.Health.Tier = downgrade(next.Health.Tier)
	}
	return next
}

// ApplyRest применяет отдых. SHORT сбрасывает счетчик, LONG также поднимает ступень на одну.
// LONG поднимает и DEAD до CRITICAL; вызывающий код обязан это учитывать.
func ApplyRest(state models.CharacterState, kind models.RestKind) models.CharacterState {
	next := state.Clone()
	next.Health.LightDamageCounter = 0
	if kind == models.RestLong {
		next.Health.Tier = upgrade(next.Health.Tier)
	}
	return next
}

// NewCharacterState - стартовое состояние персонажа после ввода анкеты.
func NewCharacterState(attrs models.Attributes, inventory []models.InventoryItem) models.CharacterState {
	if inventory == nil {
		inventory = []models.InventoryItem{}
	}
	return models.CharacterState{
		Attributes: NormalizeAttributes(attrs),
		Health:     models.Health{Tier: models.TierHealthy},
		Inventory:  inventory,
	}
}

func newResult(natural, total int, outcome Outcome) RollResult {
	return RollResult{NaturalRoll: natural, Total: total, Outcome: outcome, Label: DefaultLabel(outcome)}
}

func ladderIndex(tier models.HealthTier) int {
	for i, t := range models.HealthLadder {
		if t == tier {
			return i
		}
	}
	return -1
}

func downgrade(tier models.HealthTier) models.HealthTier {
	i := ladderIndex(tier)
	if i == -1 || i == len(models.HealthLadder)-1 {
		return tier
	}
	return models.HealthLadder[i+1]
}

func upgrade(tier models.HealthTier) models.HealthTier {
	i := ladderIndex(tier)
	if i <= 0 {
		return tier
	}
	return models.HealthLadder[i-1]
}

func highest(attrs models.Attributes, pred func(int) bool) (models.Attribute, bool) {
	var best models.Attribute
	bestValue, found := 0, false
	for _, attr := range models.AttributeOrder {
		v := attrs[attr]
		if !pred(v) {
			continue
		}
		if !found || v > bestValue {
			best, bestValue, found = attr, v, true
		}
	}
	return best, found
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
