package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mestrai-server/shared/models"
)

const testSecret = "secret"

func newTestEcho(logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.Use(EchoZapLogger(logger))
	e.GET("/campaigns/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, ParticipantID(c))
	}, JWTAuthMiddleware(testSecret))
	return e
}

func serve(e *echo.Echo, target, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthMiddleware(t *testing.T) {
	e := newTestEcho(zap.NewNop())
	token, err := GenerateTestJWT("p1", testSecret, time.Hour)
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		rec := serve(e, "/campaigns/c1", "Bearer "+token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "p1", rec.Body.String())
	})
	t.Run("query token for websocket", func(t *testing.T) {
		rec := serve(e, "/campaigns/c1?token="+token, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "p1", rec.Body.String())
	})
	t.Run("missing", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(e, "/campaigns/c1", "").Code)
	})
	t.Run("bad format", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(e, "/campaigns/c1", "Token "+token).Code)
	})
	t.Run("wrong secret", func(t *testing.T) {
		other, err := GenerateTestJWT("p1", "other", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(e, "/campaigns/c1", "Bearer "+other).Code)
	})
	t.Run("expired", func(t *testing.T) {
		expired, err := GenerateTestJWT("p1", testSecret, -time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(e, "/campaigns/c1", "Bearer "+expired).Code)
	})
}

func TestParseToken_LegacyUserID(t *testing.T) {
	claims := &models.Claims{
		UserID:           "legacy-7",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	parsed, err := ParseToken(signed, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "legacy-7", parsed.ParticipantID())
}

func TestParseToken_RejectsEmptySubject(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.Claims{}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ParseToken(signed, testSecret)
	assert.Error(t, err)
}

func TestEchoZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e := newTestEcho(zap.New(core))
	token, err := GenerateTestJWT("p1", testSecret, time.Hour)
	require.NoError(t, err)

	serve(e, "/campaigns/c1", "Bearer "+token)
	entries := logs.FilterMessage("Success").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "p1", fields["participant_id"])
	assert.Equal(t, "c1", fields["campaign_id"])
	assert.EqualValues(t, http.StatusOK, fields["status"])

	serve(e, "/campaigns/c1", "")
	assert.Equal(t, 1, logs.FilterMessage("Request rejected").Len())
}
