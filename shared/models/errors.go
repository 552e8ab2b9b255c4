package models

import (
	"errors"
	"fmt"
	"time"
)

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound = errors.New("resource not found")

	// Authentication Errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Session taxonomy
	ErrValidation         = errors.New("invalid submission")
	ErrTurnViolation      = errors.New("not this participant's turn")
	ErrParse              = errors.New("malformed tool segment")
	ErrQuotaExceeded      = errors.New("narrative provider quota exceeded")
	ErrTransientProvider  = errors.New("narrative provider unavailable")
	ErrTerminalState      = errors.New("character is dead")
	ErrSessionPaused      = errors.New("session is paused")
	ErrExchangeInProgress = errors.New("an exchange is already in progress")
	ErrCampaignInactive   = errors.New("campaign is not active")
	ErrRateLimited        = errors.New("rate limit exceeded")

	// Turn scheduling
	ErrRoundActive    = errors.New("a round is already active")
	ErrNoParticipants = errors.New("no accepted participants")
	ErrNoPendingRoll  = errors.New("no pending roll for this participant")

	// Character intake
	ErrCharacterExists = errors.New("participant already has a living character")
)

// QuotaError - ошибка квоты провайдера с необязательной задержкой до повтора.
type QuotaError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *QuotaError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s): %v", ErrQuotaExceeded, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrQuotaExceeded, e.Err)
}

func (e *QuotaError) Unwrap() []error {
	return []error{ErrQuotaExceeded, e.Err}
}

// RetryAfterOf извлекает задержку из цепочки ошибок, если она известна.
func RetryAfterOf(err error) (time.Duration, bool) {
	var qe *QuotaError
	if errors.As(err, &qe) && qe.RetryAfter > 0 {
		return qe.RetryAfter, true
	}
	return 0, false
}
