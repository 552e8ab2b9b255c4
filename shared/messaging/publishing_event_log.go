package messaging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mestrai-server/shared/database"
	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

var _ interfaces.SessionEventLog = (*PublishingEventLog)(nil)

// PublishingEventLog публикует каждое записанное событие после успешной записи.
// Ошибка публикации не отменяет запись: журнал остается источником истины.
type PublishingEventLog struct {
	interfaces.SessionEventLog
	publisher interfaces.SessionEventPublisher
	logger    *zap.Logger
}

func NewPublishingEventLog(log interfaces.SessionEventLog, publisher interfaces.SessionEventPublisher, logger *zap.Logger) *PublishingEventLog {
	return &PublishingEventLog{SessionEventLog: log, publisher: publisher, logger: logger.Named("PublishingEventLog")}
}

func (l *PublishingEventLog) Append(ctx context.Context, event models.SessionEvent) (string, error) {
	return l.AppendGuarded(ctx, event, nil)
}

func (l *PublishingEventLog) AppendGuarded(ctx context.Context, event models.SessionEvent, guard interfaces.AppendGuard) (string, error) {
	if event.ID == "" {
		event.ID = database.NewEventID()
	}
	id, err := l.SessionEventLog.AppendGuarded(ctx, event, guard)
	if err != nil {
		return "", err
	}

	event.ID = id
	if event.Role == "" {
		event.Role = models.RoleSystem
	}
	if event.SequenceTime.IsZero() {
		event.SequenceTime = time.Now().UTC()
	}
	if err := l.publisher.PublishSessionEvent(ctx, event); err != nil {
		l.logger.Warn("Session event stored but not published",
			zap.String("campaign_id", event.CampaignID), zap.String("event_id", id), zap.Error(err))
	}
	return id, nil
}
