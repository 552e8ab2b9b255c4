package toolparse

import (
	"fmt"
	"strings"

	"mestrai-server/session-service/internal/rules"
	"mestrai-server/shared/models"
)

// decodeArgs проверяет форму аргументов и строит типизированное значение.
// Все, что не проходит проверку, отбрасывается здесь и дальше не передается.
func decodeArgs(kind models.ToolKind, args map[string]any) (models.ToolArgs, error) {
	switch kind {
	case models.ToolRequestRoll:
		return decodeRoll(args)
	case models.ToolApplyDamage:
		sev, err := enumArg(args, "type", string(models.DamageLight), string(models.DamageLight), string(models.DamageHeavy))
		if err != nil {
			return nil, err
		}
		return models.DamageArgs{Severity: models.DamageSeverity(sev)}, nil
	case models.ToolApplyRest:
		rest, err := enumArg(args, "type", string(models.RestShort), string(models.RestShort), string(models.RestLong))
		if err != nil {
			return nil, err
		}
		return models.RestArgs{Kind: models.RestKind(rest)}, nil
	case models.ToolGenerateImage:
		prompt := strings.TrimSpace(stringArg(args, "prompt"))
		if prompt == "" {
			return nil, fmt.Errorf("%w: generate_image requires prompt", models.ErrParse)
		}
		return models.ImageArgs{Prompt: prompt}, nil
	case models.ToolTriggerGameOver:
		return models.GameOverArgs{
			Cause:       strings.TrimSpace(stringArg(args, "causeOfDeath", "cause_of_death", "cause")),
			WorldFuture: strings.TrimSpace(stringArg(args, "worldFuture", "world_future", "future")),
		}, nil
	case models.ToolUpdateCharacter:
		return decodeUpdate(args)
	case models.ToolTriggerLevelUp:
		return models.LevelUpArgs{}, nil
	}
	return nil, fmt.Errorf("%w: unknown action %q", models.ErrParse, kind)
}

func decodeRoll(args map[string]any) (models.ToolArgs, error) {
	attr, ok := rules.ParseAttribute(stringArg(args, "attribute"))
	if !ok {
		return nil, fmt.Errorf("%w: request_roll has invalid attribute %v", models.ErrParse, args["attribute"])
	}
	diff, err := enumArg(args, "difficulty", string(models.DifficultyNormal),
		string(models.DifficultyNormal), string(models.DifficultyHard), string(models.DifficultyVeryHard))
	if err != nil {
		return nil, err
	}
	relevant, err := boolArg(args, "is_profession_relevant")
	if err != nil {
		return nil, err
	}
	impossible, err := boolArg(args, "is_impossible")
	if err != nil {
		return nil, err
	}
	return models.RequestRollArgs{
		Attribute:          attr,
		ProfessionRelevant: relevant,
		Difficulty:         models.Difficulty(diff),
		Impossible:         impossible,
		ImpossibleReason:   strings.TrimSpace(stringArg(args, "impossible_reason")),
	}, nil
}

func decodeUpdate(args map[string]any) (models.ToolArgs, error) {
	var out models.UpdateCharacterArgs
	if p := strings.TrimSpace(stringArg(args, "profession")); p != "" {
		out.Profession = &p
	}
	if raw, present := args["inventory"]; present {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: update_character inventory must be a list", models.ErrParse)
		}
		out.Inventory = rules.NormalizeInventory(list)
		out.HasInventory = true
	}
	if out.Profession == nil && !out.HasInventory {
		return nil, fmt.Errorf("%w: update_character has nothing to update", models.ErrParse)
	}
	return out, nil
}

func stringArg(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := args[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// enumArg возвращает значение в верхнем регистре; отсутствие поля дает def, неизвестное значение - ошибку.
func enumArg(args map[string]any, key, def string, allowed ...string) (string, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", models.ErrParse, key)
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return def, nil
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s has unsupported value %q", models.ErrParse, key, s)
}

func boolArg(args map[string]any, key string) (bool, error) {
	switch v := args[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "sim", "1":
			return true, nil
		case "false", "no", "nao", "não", "0", "":
			return false, nil
		}
	case float64:
		return v != 0, nil
	}
	return false, fmt.Errorf("%w: %s must be a boolean", models.ErrParse, key)
}
