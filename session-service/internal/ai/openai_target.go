package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"mestrai-server/shared/models"
)

// GroqBaseURL - OpenAI-совместимый эндпоинт Groq.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIConfig - параметры OpenAI-совместимой цели.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAITarget - цель на базе go-openai (Groq, OpenAI, любой совместимый сервер).
type OpenAITarget struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

// NewOpenAITarget создает цель для одной модели.
func NewOpenAITarget(cfg OpenAIConfig, logger *zap.Logger) *OpenAITarget {
	openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}
	openaiConfig.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: retryAfterTransport{},
	}
	return &OpenAITarget{
		client: openaigo.NewClientWithConfig(openaiConfig),
		model:  cfg.Model,
		logger: logger.Named("OpenAITarget").With(zap.String("model", cfg.Model)),
	}
}

func (t *OpenAITarget) Name() string { return t.model }

// Complete отправляет запрос и возвращает текст и вызовы инструментов.
func (t *OpenAITarget) Complete(ctx context.Context, req Request) (*Reply, error) {
	ctx, hint := withRetryHint(ctx)

	request := openaigo.ChatCompletionRequest{
		Model:       t.model,
		Messages:    t.buildMessages(req),
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		request.Tools = make([]openaigo.Tool, 0, len(req.Tools))
		for _, def := range req.Tools {
			request.Tools = append(request.Tools, openaigo.Tool{
				Type: openaigo.ToolTypeFunction,
				Function: &openaigo.FunctionDefinition{
					Name:        string(def.Name),
					Description: def.Description,
					Parameters:  def.Parameters,
				},
			})
		}
		request.ToolChoice = "auto"
	}

	start := time.Now()
	resp, err := t.client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	if err != nil {
		aiRequestsTotal.WithLabelValues(t.model, "error").Inc()
		t.logger.Warn("Chat completion failed", zap.Duration("duration", duration), zap.Error(err))
		return nil, t.classify(err, hint.get())
	}
	aiRequestDuration.WithLabelValues(t.model).Observe(duration.Seconds())
	observeUsage(t.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		aiRequestsTotal.WithLabelValues(t.model, "error_empty_response").Inc()
		return nil, fmt.Errorf("%w: %s", ErrEmptyReply, t.model)
	}
	msg := resp.Choices[0].Message
	reply := &Reply{Text: msg.Content, Model: t.model}
	for _, call := range msg.ToolCalls {
		reply.Calls = append(reply.Calls, models.RawToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	if strings.TrimSpace(reply.Text) == "" && len(reply.Calls) == 0 {
		aiRequestsTotal.WithLabelValues(t.model, "error_empty_response").Inc()
		return nil, fmt.Errorf("%w: %s", ErrEmptyReply, t.model)
	}

	aiRequestsTotal.WithLabelValues(t.model, "success").Inc()
	t.logger.Debug("Chat completion received",
		zap.Duration("duration", duration),
		zap.Int("text_len", len(reply.Text)),
		zap.Int("tool_calls", len(reply.Calls)),
	)
	return reply, nil
}

func (t *OpenAITarget) buildMessages(req Request) []openaigo.ChatCompletionMessage {
	messages := make([]openaigo.ChatCompletionMessage, 0, len(req.History)+3)
	messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleSystem, Content: req.System})
	for _, m := range req.History {
		role := openaigo.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openaigo.ChatMessageRoleAssistant
		}
		messages = append(messages, openaigo.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	if tr := req.ToolResponse; tr != nil {
		id := tr.callID()
		messages = append(messages,
			openaigo.ChatCompletionMessage{
				Role: openaigo.ChatMessageRoleAssistant,
				ToolCalls: []openaigo.ToolCall{{
					ID:   id,
					Type: openaigo.ToolTypeFunction,
					Function: openaigo.FunctionCall{
						Name:      string(tr.Name),
						Arguments: tr.argsJSON(),
					},
				}},
			},
			openaigo.ChatCompletionMessage{
				Role:       openaigo.ChatMessageRoleTool,
				ToolCallID: id,
				Content:    tr.resultJSON(),
			},
		)
		return messages
	}
	if strings.TrimSpace(req.Input) != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleUser, Content: req.Input})
	}
	return messages
}

// classify переводит ошибку SDK в ошибки домена: 429 - квота, остальное - временный сбой.
func (t *OpenAITarget) classify(err error, retryHeader string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status := 0
	var apiErr *openaigo.APIError
	var reqErr *openaigo.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests {
		return &models.QuotaError{RetryAfter: ParseRetryAfter(retryHeader, err.Error()), Err: err}
	}
	return fmt.Errorf("%w: %s: %v", models.ErrTransientProvider, t.model, err)
}
