// Package imagegen получает URL иллюстрации у Pollinations, перебирая модели по нагрузке.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://gen.pollinations.ai/image/"
	DefaultWidth   = 768
	DefaultHeight  = 512
	// MaxSeed - сид берется из [0, MaxSeed).
	MaxSeed = 9999
)

// ErrGenerationFailed - ни одна модель не вернула изображение.
var ErrGenerationFailed = errors.New("image generation failed")

var imageRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "session_image_requests_total",
		Help: "Illustration requests per model by status.",
	},
	[]string{"model", "status"},
)

// Request - параметры иллюстрации. Audience - число пользователей, от него зависит цепочка моделей.
type Request struct {
	Prompt   string
	Seed     int
	Width    int
	Height   int
	Audience int
}

// Result - проверенный URL изображения.
type Result struct {
	URL         string
	Model       string
	ContentType string
}

// Illustrator выдает URL иллюстрации.
type Illustrator interface {
	Illustrate(ctx context.Context, req Request) (*Result, error)
}

// ModelChain возвращает модели в порядке попыток для заданной аудитории.
func ModelChain(audience int) []string {
	switch {
	case audience < 5:
		return []string{"klein-large"}
	case audience <= 10:
		return []string{"klein", "klein-large"}
	case audience <= 500:
		return []string{"turbo", "klein", "klein-large"}
	default:
		return []string{"flux", "zimage", "turbo", "klein", "klein-large"}
	}
}

// Pollinations - клиент генератора.
type Pollinations struct {
	baseURL string
	key     string
	client  *http.Client
	logger  *zap.Logger
}

// NewPollinations создает клиента. Пустой baseURL означает DefaultBaseURL.
func NewPollinations(baseURL, key string, timeout time.Duration, logger *zap.Logger) *Pollinations {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Pollinations{
		baseURL: baseURL,
		key:     key,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("Pollinations"),
	}
}

// BuildURL собирает адрес изображения для модели.
func (p *Pollinations) BuildURL(req Request, model string) string {
	params := url.Values{}
	params.Set("model", model)
	if p.key != "" {
		params.Set("key", p.key)
	}
	if req.Width > 0 {
		params.Set("width", strconv.Itoa(req.Width))
	}
	if req.Height > 0 {
		params.Set("height", strconv.Itoa(req.Height))
	}
	params.Set("seed", strconv.Itoa(req.Seed))
	return p.baseURL + url.PathEscape(req.Prompt) + "?" + params.Encode()
}

// Illustrate перебирает модели цепочки, пока одна не ответит 2xx.
// Возвращаемый URL не содержит ключа доступа.
func (p *Pollinations) Illustrate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrGenerationFailed)
	}
	if req.Width == 0 {
		req.Width = DefaultWidth
	}
	if req.Height == 0 {
		req.Height = DefaultHeight
	}

	var lastErr error
	for _, model := range ModelChain(req.Audience) {
		contentType, err := p.fetch(ctx, p.BuildURL(req, model))
		if err == nil {
			imageRequestsTotal.WithLabelValues(model, "success").Inc()
			public := *p
			public.key = ""
			return &Result{URL: public.BuildURL(req, model), Model: model, ContentType: contentType}, nil
		}
		imageRequestsTotal.WithLabelValues(model, "error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("Image model failed", zap.String("model", model), zap.Error(err))
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}

func (p *Pollinations) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return contentType, nil
}
