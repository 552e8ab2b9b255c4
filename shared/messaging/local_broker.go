package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

var (
	_ interfaces.SessionEventPublisher  = (*LocalBroker)(nil)
	_ interfaces.SessionEventSubscriber = (*LocalBroker)(nil)
)

const localSubscriberBuffer = 64

// LocalBroker раздает события подписчикам того же процесса.
// Используется вместо RabbitMQ, когда экземпляр сервиса один.
type LocalBroker struct {
	mu          sync.Mutex
	subscribers map[string]map[chan models.SessionEvent]struct{}
	logger      *zap.Logger
}

func NewLocalBroker(logger *zap.Logger) *LocalBroker {
	return &LocalBroker{
		subscribers: make(map[string]map[chan models.SessionEvent]struct{}),
		logger:      logger.Named("LocalBroker"),
	}
}

// PublishSessionEvent не блокируется: медленный подписчик теряет событие.
func (b *LocalBroker) PublishSessionEvent(_ context.Context, event models.SessionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[event.CampaignID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("Subscriber buffer full, dropping event",
				zap.String("campaign_id", event.CampaignID), zap.String("event_id", event.ID))
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, campaignID string) (<-chan models.SessionEvent, error) {
	ch := make(chan models.SessionEvent, localSubscriberBuffer)

	b.mu.Lock()
	if b.subscribers[campaignID] == nil {
		b.subscribers[campaignID] = make(map[chan models.SessionEvent]struct{})
	}
	b.subscribers[campaignID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers[campaignID], ch)
		if len(b.subscribers[campaignID]) == 0 {
			delete(b.subscribers, campaignID)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
