package database

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"mestrai-server/shared/models"
)

// NewEventID возвращает монотонный ULID: лексикографический порядок совпадает с порядком выдачи.
func NewEventID() string {
	return ulid.Make().String()
}

// prepareEvent проверяет событие и заполняет ID и SequenceTime.
func prepareEvent(ev *models.SessionEvent, now time.Time) error {
	if ev.CampaignID == "" {
		return fmt.Errorf("%w: session event without campaign id", models.ErrValidation)
	}
	if !ev.Kind.Valid() {
		return fmt.Errorf("%w: unknown event kind %q", models.ErrValidation, ev.Kind)
	}
	if ev.Role == "" {
		ev.Role = models.RoleSystem
	}
	if ev.ID == "" {
		ev.ID = NewEventID()
	}
	if ev.SequenceTime.IsZero() {
		ev.SequenceTime = now.UTC()
	}
	return nil
}
