package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"mestrai-server/shared/models"
)

// ParticipantIDKey - ключ контекста Echo с ID участника из claim "sub".
const ParticipantIDKey = "participant_id"

// JWTAuthMiddleware создает middleware для проверки JWT access токена с использованием Echo.
// Токен берется из заголовка Authorization, а для WebSocket - из query-параметра token.
func JWTAuthMiddleware(secretKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := extractToken(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			claims, err := ParseToken(tokenString, secretKey)
			if err != nil {
				c.Logger().Errorf("JWT parsing/validation error: %v", err)
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					return echo.NewHTTPError(http.StatusUnauthorized, "Token has expired")
				case errors.Is(err, jwt.ErrTokenMalformed):
					return echo.NewHTTPError(http.StatusUnauthorized, "Token is malformed")
				case errors.Is(err, jwt.ErrTokenSignatureInvalid):
					return echo.NewHTTPError(http.StatusUnauthorized, "Token signature is invalid")
				default:
					return echo.NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("Token validation failed: %v", err))
				}
			}

			c.Set(ParticipantIDKey, claims.ParticipantID())
			return next(c)
		}
	}
}

// ParseToken проверяет подпись и срок действия и требует идентификатор участника.
func ParseToken(tokenString, secretKey string) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}
	if strings.TrimSpace(claims.ParticipantID()) == "" {
		return nil, errors.New("participant id (sub) missing")
	}
	return claims, nil
}

// ParticipantID возвращает ID участника, сохраненный JWTAuthMiddleware.
func ParticipantID(c echo.Context) string {
	id, _ := c.Get(ParticipantIDKey).(string)
	return id
}

func extractToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if q := c.QueryParam("token"); q != "" {
			return q, nil
		}
		return "", errors.New("Authorization header missing")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("Invalid Authorization header format")
	}
	return parts[1], nil
}

// GenerateTestJWT создает тестовый JWT токен.
// ВАЖНО: Эта функция предназначена ТОЛЬКО для использования в тестах.
func GenerateTestJWT(participantID, secretKey string, validityDuration time.Duration) (string, error) {
	now := time.Now()
	claims := &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign test JWT: %w", err)
	}
	return tokenString, nil
}
