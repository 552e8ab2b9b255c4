package schemas

import "mestrai-server/shared/models"

// ToolDefinition - описание инструмента, которое отправляется модели вместе с запросом.
type ToolDefinition struct {
	Name        models.ToolKind
	Description string
	Parameters  map[string]interface{}
}

// GetToolDefinitions возвращает схемы всех действий, которые модель может запросить.
// Схемы совместимы с полем function.parameters OpenAI-подобных API.
func GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        models.ToolRequestRoll,
			Description: "Request a dice roll from the player.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"attribute": map[string]interface{}{
						"type": "string",
						"enum": attributeNames(),
					},
					"is_profession_relevant": map[string]interface{}{"type": "boolean"},
					"difficulty": map[string]interface{}{
						"type": "string",
						"enum": []string{string(models.DifficultyNormal), string(models.DifficultyHard), string(models.DifficultyVeryHard)},
					},
					"is_impossible":     map[string]interface{}{"type": "boolean"},
					"impossible_reason": map[string]interface{}{"type": "string"},
				},
				"required": []string{"attribute", "is_profession_relevant", "difficulty"},
			},
		},
		{
			Name:        models.ToolApplyDamage,
			Description: "Apply light or heavy damage to the character.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"type": map[string]interface{}{
						"type": "string",
						"enum": []string{string(models.DamageLight), string(models.DamageHeavy)},
					},
				},
				"required": []string{"type"},
			},
		},
		{
			Name:        models.ToolApplyRest,
			Description: "Let the character rest. SHORT clears light wounds, LONG also recovers one health step.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"type": map[string]interface{}{
						"type": "string",
						"enum": []string{string(models.RestShort), string(models.RestLong)},
					},
				},
				"required": []string{"type"},
			},
		},
		{
			Name:        models.ToolGenerateImage,
			Description: "Generate an image prompt for the story.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt": map[string]interface{}{"type": "string"},
				},
				"required": []string{"prompt"},
			},
		},
		{
			Name:        models.ToolTriggerGameOver,
			Description: "Trigger a game over when the player dies.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"causeOfDeath": map[string]interface{}{"type": "string"},
					"worldFuture":  map[string]interface{}{"type": "string"},
				},
				"required": []string{"causeOfDeath", "worldFuture"},
			},
		},
		{
			Name:        models.ToolUpdateCharacter,
			Description: "Update character fields like profession or inventory when the story changes.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"profession": map[string]interface{}{"type": "string"},
					"inventory": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"id":   map[string]interface{}{"type": "string"},
								"name": map[string]interface{}{"type": "string"},
								"type": map[string]interface{}{
									"type": "string",
									"enum": []string{string(models.ItemConsumable), string(models.ItemEquipment)},
								},
								"quantity": map[string]interface{}{"type": "number"},
							},
						},
					},
				},
				"required": []string{},
			},
		},
		{
			Name:        models.ToolTriggerLevelUp,
			Description: "Mark a rare character evolution after a major story arc.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
				"required":   []string{},
			},
		},
	}
}

func attributeNames() []string {
	names := make([]string, 0, len(models.AttributeOrder))
	for _, a := range models.AttributeOrder {
		names = append(names, string(a))
	}
	return names
}
