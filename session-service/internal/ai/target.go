// Package ai содержит клиентов моделей повествования, сборку системного промпта
// и обрезку истории под бюджет токенов.
package ai

import (
	"context"
	"encoding/json"
	"errors"

	"mestrai-server/shared/models"
	"mestrai-server/shared/schemas"
)

// Роли сообщений в истории, отправляемой модели.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Default sampling, совпадает для всех целей.
const DefaultTemperature = 0.8

// ErrEmptyReply - модель не вернула ни текста, ни вызовов.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Message - одна реплика истории.
type Message struct {
	Role    string
	Content string
}

// ToolResponse - синтетический вызов инструмента и его результат, добавляемые в конец истории
// при повторном обращении к модели после исполнения действия.
type ToolResponse struct {
	CallID string
	Name   models.ToolKind
	Args   json.RawMessage
	Result any
}

// Request - полный запрос к цели.
type Request struct {
	System       string
	History      []Message
	Input        string
	ToolResponse *ToolResponse
	Tools        []schemas.ToolDefinition
	Temperature  float32
}

// Reply - ответ модели: текст и структурированные вызовы.
type Reply struct {
	Text  string
	Calls []models.RawToolCall
	Model string
}

// Target - одна модель в ранжированном списке.
// Ошибка квоты должна оборачивать models.ErrQuotaExceeded (см. models.QuotaError).
type Target interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Reply, error)
}

// NewRequest собирает запрос со стандартными инструментами и температурой.
func NewRequest(system string, history []Message) Request {
	return Request{
		System:      system,
		History:     history,
		Tools:       schemas.GetToolDefinitions(),
		Temperature: DefaultTemperature,
	}
}

func (r ToolResponse) callID() string {
	if r.CallID != "" {
		return r.CallID
	}
	return "call_" + string(r.Name)
}

func (r ToolResponse) argsJSON() string {
	if len(r.Args) == 0 {
		return "{}"
	}
	return string(r.Args)
}

func (r ToolResponse) resultJSON() string {
	result := r.Result
	if result == nil {
		result = ""
	}
	b, err := json.Marshal(result)
	if err != nil {
		return `""`
	}
	return string(b)
}
