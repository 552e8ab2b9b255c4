package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// quietPaths логируются на уровне Debug: их дергают пробы и Prometheus.
var quietPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// EchoZapLogger возвращает middleware для Echo, которое логирует запросы с помощью zap.
// Участник и кампания добавляются в поля, если они известны после обработки.
func EchoZapLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			res := c.Response()

			err := next(c)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("remote_ip", c.RealIP()),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
			}
			if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			if id := ParticipantID(c); id != "" {
				fields = append(fields, zap.String("participant_id", id))
			}
			if id := c.Param("id"); id != "" {
				fields = append(fields, zap.String("campaign_id", id))
			}

			if err != nil {
				// Статус выставит обработчик ошибок Echo; здесь берем его из HTTPError.
				if he, ok := err.(*echo.HTTPError); ok && he.Code < http.StatusInternalServerError {
					log.Warn("Request rejected", append(fields, zap.Int("code", he.Code), zap.Error(err))...)
					return err
				}
				log.Error("Handler error", append(fields, zap.Error(err))...)
				return err
			}

			n := res.Status
			switch {
			case n >= http.StatusInternalServerError:
				log.Error("Server error", fields...)
			case n >= http.StatusBadRequest:
				log.Warn("Client error", fields...)
			default:
				if _, quiet := quietPaths[c.Path()]; quiet {
					log.Debug("Success", fields...)
				} else {
					log.Info("Success", fields...)
				}
			}
			return nil
		}
	}
}
