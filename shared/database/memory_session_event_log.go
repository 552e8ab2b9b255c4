package database

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

var (
	_ interfaces.SessionEventLog        = (*MemorySessionEventLog)(nil)
	_ interfaces.SessionEventSubscriber = (*MemorySessionEventLog)(nil)
)

const subscriberBuffer = 64

// MemorySessionEventLog - журнал в памяти процесса (тесты, одиночный инстанс).
// Также раздает новые события локальным подписчикам.
type MemorySessionEventLog struct {
	mu          sync.Mutex
	events      map[string][]models.SessionEvent
	subscribers map[string]map[chan models.SessionEvent]struct{}
	now         func() time.Time
	logger      *zap.Logger
}

func NewMemorySessionEventLog(logger *zap.Logger) *MemorySessionEventLog {
	return &MemorySessionEventLog{
		events:      make(map[string][]models.SessionEvent),
		subscribers: make(map[string]map[chan models.SessionEvent]struct{}),
		now:         time.Now,
		logger:      logger.Named("MemorySessionEventLog"),
	}
}

func (l *MemorySessionEventLog) Append(ctx context.Context, event models.SessionEvent) (string, error) {
	return l.AppendGuarded(ctx, event, nil)
}

func (l *MemorySessionEventLog) AppendGuarded(ctx context.Context, event models.SessionEvent, guard interfaces.AppendGuard) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.events[event.CampaignID]
	if guard != nil {
		if err := guard(append([]models.SessionEvent(nil), history...)); err != nil {
			return "", err
		}
	}

	now := l.now()
	// Время не убывает внутри кампании, даже если часы отстают.
	if n := len(history); n > 0 && now.Before(history[n-1].SequenceTime) {
		now = history[n-1].SequenceTime
	}
	if err := prepareEvent(&event, now); err != nil {
		return "", err
	}
	l.events[event.CampaignID] = append(history, event)

	for ch := range l.subscribers[event.CampaignID] {
		select {
		case ch <- event:
		default:
			l.logger.Warn("Subscriber buffer full, dropping event",
				zap.String("campaign_id", event.CampaignID), zap.String("event_id", event.ID))
		}
	}
	return event.ID, nil
}

func (l *MemorySessionEventLog) List(ctx context.Context, campaignID string) ([]models.SessionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.SessionEvent(nil), l.events[campaignID]...), nil
}

// Subscribe возвращает канал новых событий кампании; канал закрывается при отмене ctx.
func (l *MemorySessionEventLog) Subscribe(ctx context.Context, campaignID string) (<-chan models.SessionEvent, error) {
	ch := make(chan models.SessionEvent, subscriberBuffer)

	l.mu.Lock()
	if l.subscribers[campaignID] == nil {
		l.subscribers[campaignID] = make(map[chan models.SessionEvent]struct{})
	}
	l.subscribers[campaignID][ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subscribers[campaignID], ch)
		if len(l.subscribers[campaignID]) == 0 {
			delete(l.subscribers, campaignID)
		}
		l.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
