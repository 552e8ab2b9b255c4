package rules

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"mestrai-server/shared/models"
)

// NormalizeRawAttributes принимает нестрогую карту атрибутов (ответ модели, форма анкеты)
// и возвращает корректный набор. Ключи без учета регистра, PRESENCA без седили допускается,
// числа могут прийти строкой с запятой.
func NormalizeRawAttributes(raw map[string]any) models.Attributes {
	attrs := make(models.Attributes, len(models.AttributeOrder))
	for key, value := range raw {
		attr, ok := ParseAttribute(key)
		if !ok {
			continue
		}
		if n, ok := coerceNumber(value); ok {
			attrs[attr] = clamp(int(math.Floor(n)), models.AttributeMin, models.AttributeMax)
		}
	}
	return NormalizeAttributes(attrs)
}

// ParseAttribute распознает имя атрибута.
func ParseAttribute(name string) (models.Attribute, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "VIGOR":
		return models.AttrVigor, true
	case "DESTREZA":
		return models.AttrDestreza, true
	case "MENTE":
		return models.AttrMente, true
	case "PRESENÇA", "PRESENCA":
		return models.AttrPresenca, true
	}
	return "", false
}

// NormalizeInventory приводит нестрогий список предметов к каноничному виду.
// Строка становится снаряжением в одном экземпляре, объект без имени отбрасывается.
func NormalizeInventory(raw []any) []models.InventoryItem {
	items := make([]models.InventoryItem, 0, len(raw))
	for _, entry := range raw {
		switch v := entry.(type) {
		case string:
			name := strings.TrimSpace(v)
			if name == "" {
				continue
			}
			items = append(items, models.InventoryItem{
				ID:       uuid.NewString(),
				Name:     name,
				Type:     models.ItemEquipment,
				Quantity: 1,
			})
		case map[string]any:
			if item, ok := normalizeItem(v); ok {
				items = append(items, item)
			}
		}
	}
	return items
}

// NormalizeItems чистит уже типизированные предметы (пустые ID, неизвестный тип, отрицательное количество).
func NormalizeItems(items []models.InventoryItem) []models.InventoryItem {
	out := make([]models.InventoryItem, 0, len(items))
	for _, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			continue
		}
		if strings.TrimSpace(it.ID) == "" {
			it.ID = uuid.NewString()
		}
		if it.Type != models.ItemConsumable {
			it.Type = models.ItemEquipment
		}
		if it.Quantity < 0 {
			it.Quantity = 0
		}
		out = append(out, it)
	}
	return out
}

func normalizeItem(m map[string]any) (models.InventoryItem, bool) {
	name, _ := m["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return models.InventoryItem{}, false
	}
	item := models.InventoryItem{Name: name, Type: models.ItemEquipment, Quantity: 1}
	if id, ok := m["id"].(string); ok && strings.TrimSpace(id) != "" {
		item.ID = id
	} else {
		item.ID = uuid.NewString()
	}
	if t, _ := m["type"].(string); t == string(models.ItemConsumable) {
		item.Type = models.ItemConsumable
	}
	if q, ok := coerceNumber(m["quantity"]); ok {
		item.Quantity = int(math.Max(0, math.Floor(q)))
	}
	return item, true
}

func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(n), ",", ".", 1), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
