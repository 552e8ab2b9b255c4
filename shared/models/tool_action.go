package models

// ToolKind - вид структурированного действия, извлеченного из ответа модели.
type ToolKind string

const (
	ToolRequestRoll     ToolKind = "request_roll"
	ToolApplyDamage     ToolKind = "apply_damage"
	ToolApplyRest       ToolKind = "apply_rest"
	ToolGenerateImage   ToolKind = "generate_image"
	ToolTriggerGameOver ToolKind = "trigger_game_over"
	ToolUpdateCharacter ToolKind = "update_character"
	ToolTriggerLevelUp  ToolKind = "trigger_levelup"
)

// Difficulty - сложность проверки.
type Difficulty string

const (
	DifficultyNormal   Difficulty = "NORMAL"
	DifficultyHard     Difficulty = "HARD"
	DifficultyVeryHard Difficulty = "VERY_HARD"
)

// DamageSeverity - тяжесть урона.
type DamageSeverity string

const (
	DamageLight DamageSeverity = "LIGHT"
	DamageHeavy DamageSeverity = "HEAVY"
)

// RestKind - вид отдыха.
type RestKind string

const (
	RestShort RestKind = "SHORT"
	RestLong  RestKind = "LONG"
)

// RawToolCall - структурированный вызов в том виде, в каком его вернул провайдер.
type RawToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolArgs - типизированные аргументы действия (закрытое объединение).
type ToolArgs interface {
	ToolKind() ToolKind
}

type RequestRollArgs struct {
	Attribute          Attribute  `json:"attribute"`
	ProfessionRelevant bool       `json:"is_profession_relevant"`
	Difficulty         Difficulty `json:"difficulty"`
	Impossible         bool       `json:"is_impossible,omitempty"`
	ImpossibleReason   string     `json:"impossible_reason,omitempty"`
}

func (RequestRollArgs) ToolKind() ToolKind { return ToolRequestRoll }

type DamageArgs struct {
	Severity DamageSeverity `json:"type"`
}

func (DamageArgs) ToolKind() ToolKind { return ToolApplyDamage }

type RestArgs struct {
	Kind RestKind `json:"type"`
}

func (RestArgs) ToolKind() ToolKind { return ToolApplyRest }

type ImageArgs struct {
	Prompt string `json:"prompt"`
}

func (ImageArgs) ToolKind() ToolKind { return ToolGenerateImage }

type GameOverArgs struct {
	Cause       string `json:"causeOfDeath"`
	WorldFuture string `json:"worldFuture"`
}

func (GameOverArgs) ToolKind() ToolKind { return ToolTriggerGameOver }

// UpdateCharacterArgs меняет только профессию и инвентарь.
type UpdateCharacterArgs struct {
	Profession *string         `json:"profession,omitempty"`
	Inventory  []InventoryItem `json:"inventory,omitempty"`
	// HasInventory отличает пустой список от отсутствующего поля.
	HasInventory bool `json:"-"`
}

func (UpdateCharacterArgs) ToolKind() ToolKind { return ToolUpdateCharacter }

type LevelUpArgs struct{}

func (LevelUpArgs) ToolKind() ToolKind { return ToolTriggerLevelUp }

// ToolAction - действие, готовое к исполнению оркестратором.
type ToolAction struct {
	Kind          ToolKind
	CorrelationID string
	Fingerprint   string
	Args          ToolArgs
}
