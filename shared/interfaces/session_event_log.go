package interfaces

import (
	"context"

	"mestrai-server/shared/models"
)

// AppendGuard проверяет историю кампании непосредственно перед записью.
// Ненулевая ошибка отменяет запись; журнал при этом не меняется.
type AppendGuard func(history []models.SessionEvent) error

// SessionEventLog - журнал событий кампании, только на добавление.
type SessionEventLog interface {
	// Append записывает событие и возвращает его ID.
	// Пустые ID и SequenceTime заполняются реализацией.
	Append(ctx context.Context, event models.SessionEvent) (string, error)

	// AppendGuarded записывает событие под блокировкой кампании после успешной проверки guard.
	// Проверка и запись атомарны относительно других AppendGuarded той же кампании.
	AppendGuarded(ctx context.Context, event models.SessionEvent, guard AppendGuard) (string, error)

	// List возвращает все события кампании в порядке SequenceTime.
	List(ctx context.Context, campaignID string) ([]models.SessionEvent, error)
}

// SessionEventSubscriber доставляет новые события кампании (at-least-once).
type SessionEventSubscriber interface {
	// Subscribe возвращает канал, закрываемый при отмене ctx.
	Subscribe(ctx context.Context, campaignID string) (<-chan models.SessionEvent, error)
}

// SessionEventPublisher уведомляет подписчиков о записанном событии.
type SessionEventPublisher interface {
	PublishSessionEvent(ctx context.Context, event models.SessionEvent) error
}
