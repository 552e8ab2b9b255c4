package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"mestrai-server/shared/models"
)

// OllamaTarget - локальная цель через нативный API Ollama.
type OllamaTarget struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOllamaTarget создает клиента Ollama. baseURL указывается без суффикса /v1.
func NewOllamaTarget(baseURL, model string, timeout time.Duration, logger *zap.Logger) (*OllamaTarget, error) {
	ollamaBaseURL := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url %q: %w", ollamaBaseURL, err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaTarget{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: timeout}),
		model:   model,
		timeout: timeout,
		logger:  logger.Named("OllamaTarget").With(zap.String("model", model)),
	}, nil
}

func (t *OllamaTarget) Name() string { return "ollama/" + t.model }

func (t *OllamaTarget) Complete(ctx context.Context, req Request) (*Reply, error) {
	tools, err := ollamaTools(req)
	if err != nil {
		return nil, err
	}
	stream := false
	chatReq := &api.ChatRequest{
		Model:    t.model,
		Messages: ollamaMessages(req),
		Stream:   &stream,
		Tools:    tools,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
		},
	}

	requestCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	var resp api.ChatResponse
	err = t.client.Chat(requestCtx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(start)
	if err != nil {
		aiRequestsTotal.WithLabelValues(t.Name(), "error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var statusErr api.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
			return nil, &models.QuotaError{RetryAfter: ParseRetryAfter("", statusErr.ErrorMessage), Err: err}
		}
		t.logger.Warn("Ollama chat failed", zap.Duration("duration", duration), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", models.ErrTransientProvider, t.Name(), err)
	}
	aiRequestDuration.WithLabelValues(t.Name()).Observe(duration.Seconds())
	observeUsage(t.Name(), resp.PromptEvalCount, resp.EvalCount)

	reply := &Reply{Text: resp.Message.Content, Model: t.Name()}
	for _, call := range resp.Message.ToolCalls {
		args, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			continue
		}
		reply.Calls = append(reply.Calls, models.RawToolCall{Name: call.Function.Name, Arguments: string(args)})
	}
	if strings.TrimSpace(reply.Text) == "" && len(reply.Calls) == 0 {
		aiRequestsTotal.WithLabelValues(t.Name(), "error_empty_response").Inc()
		return nil, fmt.Errorf("%w: %s", ErrEmptyReply, t.Name())
	}
	aiRequestsTotal.WithLabelValues(t.Name(), "success").Inc()
	return reply, nil
}

func ollamaMessages(req Request) []api.Message {
	messages := make([]api.Message, 0, len(req.History)+3)
	messages = append(messages, api.Message{Role: "system", Content: req.System})
	for _, m := range req.History {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}
	if tr := req.ToolResponse; tr != nil {
		// Нативный API не связывает ответ инструмента с ID вызова, поэтому вызов описывается текстом.
		messages = append(messages,
			api.Message{Role: RoleAssistant, Content: fmt.Sprintf("[tool_call %s %s]", tr.Name, tr.argsJSON())},
			api.Message{Role: "tool", Content: tr.resultJSON()},
		)
		return messages
	}
	if strings.TrimSpace(req.Input) != "" {
		messages = append(messages, api.Message{Role: RoleUser, Content: req.Input})
	}
	return messages
}

// ollamaTools переводит описания инструментов в api.Tools через JSON, форма схемы у них общая.
func ollamaTools(req Request) (api.Tools, error) {
	if len(req.Tools) == 0 {
		return nil, nil
	}
	wire := make([]map[string]interface{}, 0, len(req.Tools))
	for _, def := range req.Tools {
		wire = append(wire, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        string(def.Name),
				"description": def.Description,
				"parameters":  def.Parameters,
			},
		})
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal tools: %w", err)
	}
	var tools api.Tools
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, fmt.Errorf("convert tools for ollama: %w", err)
	}
	return tools, nil
}
