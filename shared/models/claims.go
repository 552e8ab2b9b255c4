package models

import "github.com/golang-jwt/jwt/v5"

// Claims - поля JWT, выпущенного внешним сервисом идентификации.
// Участник определяется через Subject; UserID оставлен для токенов старого формата.
type Claims struct {
	UserID string   `json:"user_id,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// ParticipantID возвращает идентификатор участника из токена.
func (c *Claims) ParticipantID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}
