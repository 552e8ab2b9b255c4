package handler

import (
	"mestrai-server/session-service/internal/rules"
	"mestrai-server/session-service/internal/service"
	"mestrai-server/shared/models"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

type registerCharacterRequest struct {
	Name       string         `json:"name" validate:"required,max=80"`
	Appearance string         `json:"appearance" validate:"max=2000"`
	Backstory  string         `json:"backstory" validate:"max=4000"`
	Profession string         `json:"profession" validate:"max=80"`
	Attributes map[string]any `json:"attributes"`
	Inventory  []any          `json:"inventory" validate:"max=50"`
}

type submitActionRequest struct {
	Content string `json:"content" validate:"required"`
}

type submitRollRequest struct {
	// Value - ручной бросок d20; пусто - бросает сервер.
	Value *int `json:"value,omitempty" validate:"omitempty,min=1,max=20"`
}

type rollResponse struct {
	Result *rules.RollResult `json:"result"`
	// Notice заполняется, если бросок записан, но продолжение повествования прервано.
	Notice string `json:"notice,omitempty"`
}

type sessionResponse struct {
	*service.Snapshot
}

type eventsResponse struct {
	Events []models.SessionEvent `json:"events"`
}
