// Package handler - HTTP и WebSocket API сессии кампании.
package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mestrai-server/session-service/internal/service"
	"mestrai-server/session-service/internal/ws"
	"mestrai-server/shared/interfaces"
	sharedMiddleware "mestrai-server/shared/middleware"
	"mestrai-server/shared/models"
)

// SessionHandler обрабатывает HTTP запросы сессии.
type SessionHandler struct {
	sessions   *service.Registry
	characters *service.CharacterService
	campaigns  interfaces.CampaignRepository
	events     interfaces.SessionEventLog
	hub        *ws.Hub
	jwtSecret  string
	logger     *zap.Logger
}

func NewSessionHandler(
	sessions *service.Registry,
	characters *service.CharacterService,
	campaigns interfaces.CampaignRepository,
	events interfaces.SessionEventLog,
	hub *ws.Hub,
	jwtSecret string,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions:   sessions,
		characters: characters,
		campaigns:  campaigns,
		events:     events,
		hub:        hub,
		jwtSecret:  jwtSecret,
		logger:     logger.Named("SessionHandler"),
	}
}

// requestValidator подключает validator к echo.Context.Validate.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return nil
}

// NewEcho создает echo с валидатором, логированием запросов и маршрутами.
func (h *SessionHandler) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(sharedMiddleware.EchoZapLogger(h.logger))
	h.RegisterRoutes(e)
	return e
}

// RegisterRoutes регистрирует маршруты сервиса.
func (h *SessionHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	auth := sharedMiddleware.JWTAuthMiddleware(h.jwtSecret)

	campaigns := e.Group("/api/v1/campaigns/:id", auth)
	{
		campaigns.POST("/characters", h.registerCharacter)
		campaigns.POST("/rounds", h.startRound)
		campaigns.POST("/actions", h.submitAction)
		campaigns.POST("/rolls", h.submitRoll)
		campaigns.POST("/retry", h.retry)
		campaigns.GET("/session", h.getSession)
		campaigns.GET("/events", h.listEvents)
	}

	e.GET("/ws/campaigns/:id", h.serveWS, auth)
}

func (h *SessionHandler) registerCharacter(c echo.Context) error {
	var req registerCharacterRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	char, err := h.characters.Register(c.Request().Context(), service.RegisterCharacterInput{
		CampaignID:    c.Param("id"),
		ParticipantID: sharedMiddleware.ParticipantID(c),
		Name:          req.Name,
		Appearance:    req.Appearance,
		Backstory:     req.Backstory,
		Profession:    req.Profession,
		Attributes:    req.Attributes,
		Inventory:     req.Inventory,
	})
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, char)
}

func (h *SessionHandler) startRound(c echo.Context) error {
	sess, err := h.sessions.Session(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	round, err := sess.StartRound(c.Request().Context(), sharedMiddleware.ParticipantID(c))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, round)
}

func (h *SessionHandler) submitAction(c echo.Context) error {
	var req submitActionRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	// Обмен с моделью не прерывается, если клиент отключился.
	ctx := context.WithoutCancel(c.Request().Context())
	sess, err := h.sessions.Session(ctx, c.Param("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	if err := sess.Submit(ctx, sharedMiddleware.ParticipantID(c), req.Content); err != nil {
		return h.handleServiceError(c, err)
	}
	return h.respondSnapshot(c, sess)
}

func (h *SessionHandler) submitRoll(c echo.Context) error {
	var req submitRollRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := context.WithoutCancel(c.Request().Context())
	sess, err := h.sessions.Session(ctx, c.Param("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	result, err := sess.SubmitRoll(ctx, sharedMiddleware.ParticipantID(c), req.Value)
	if err != nil && result == nil {
		return h.handleServiceError(c, err)
	}
	resp := rollResponse{Result: result}
	if err != nil {
		h.logger.Warn("Roll recorded but narration interrupted",
			zap.String("campaign_id", c.Param("id")), zap.Error(err))
		resp.Notice = errorMessage(err)
		return c.JSON(http.StatusAccepted, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) retry(c echo.Context) error {
	ctx := context.WithoutCancel(c.Request().Context())
	sess, err := h.sessions.Session(ctx, c.Param("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	if err := sess.Retry(ctx, sharedMiddleware.ParticipantID(c)); err != nil {
		return h.handleServiceError(c, err)
	}
	return h.respondSnapshot(c, sess)
}

func (h *SessionHandler) getSession(c echo.Context) error {
	if err := h.authorize(c); err != nil {
		return h.handleServiceError(c, err)
	}
	sess, err := h.sessions.Session(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return h.respondSnapshot(c, sess)
}

func (h *SessionHandler) listEvents(c echo.Context) error {
	if err := h.authorize(c); err != nil {
		return h.handleServiceError(c, err)
	}
	events, err := h.events.List(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}
	if events == nil {
		events = []models.SessionEvent{}
	}
	return c.JSON(http.StatusOK, eventsResponse{Events: events})
}

func (h *SessionHandler) serveWS(c echo.Context) error {
	if err := h.authorize(c); err != nil {
		return h.handleServiceError(c, err)
	}
	if err := h.hub.Serve(c.Response(), c.Request(), c.Param("id"), sharedMiddleware.ParticipantID(c)); err != nil {
		// Ответ уже отправлен upgrader'ом или соединение закрыто.
		h.logger.Warn("WebSocket session failed", zap.String("campaign_id", c.Param("id")), zap.Error(err))
	}
	return nil
}

func (h *SessionHandler) respondSnapshot(c echo.Context, sess *service.Orchestrator) error {
	snap, err := sess.Snapshot(c.Request().Context())
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, sessionResponse{Snapshot: snap})
}

// authorize пропускает владельца кампании и принятых участников.
func (h *SessionHandler) authorize(c echo.Context) error {
	ctx := c.Request().Context()
	campaignID := c.Param("id")
	participantID := sharedMiddleware.ParticipantID(c)

	campaign, err := h.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.OwnerID == participantID {
		return nil
	}
	participants, err := h.campaigns.ListParticipants(ctx, campaignID, models.ParticipantAccepted)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p.ID == participantID {
			return nil
		}
	}
	return models.ErrForbidden
}

// bind разбирает и проверяет тело; ошибка уже несет статус 400.
func (h *SessionHandler) bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func (h *SessionHandler) handleServiceError(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		if d, ok := models.RetryAfterOf(err); ok {
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Session request failed",
			zap.String("campaign_id", c.Param("id")), zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, APIError{Message: errorMessage(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrParse),
		errors.Is(err, models.ErrNoParticipants):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrTurnViolation), errors.Is(err, models.ErrTerminalState),
		errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrCampaignInactive):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNoPendingRoll):
		return http.StatusNotFound
	case errors.Is(err, models.ErrExchangeInProgress), errors.Is(err, models.ErrRoundActive),
		errors.Is(err, models.ErrCharacterExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrSessionPaused):
		return http.StatusLocked
	case errors.Is(err, models.ErrQuotaExceeded), errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrTransientProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage - текст для игрока. Внутренние ошибки не раскрываются.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrQuotaExceeded):
		return service.QuotaMessage(err)
	case errors.Is(err, models.ErrRateLimited):
		return "Muitas acoes em pouco tempo. Aguarde um instante."
	case errors.Is(err, models.ErrTransientProvider):
		return "Conexao com a IA interrompida. Tente novamente."
	case errors.Is(err, models.ErrSessionPaused):
		return "A mesa esta pausada. Use tentar novamente."
	case errors.Is(err, models.ErrCampaignInactive):
		return service.WaitingNotice
	case statusFor(err) == http.StatusInternalServerError:
		return "Internal server error"
	default:
		return err.Error()
	}
}
