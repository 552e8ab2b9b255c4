package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

var _ interfaces.SessionEventSubscriber = (*RabbitMQSessionEventSubscriber)(nil)

// RabbitMQSessionEventSubscriber получает события кампании через временную очередь.
// Доставка at-least-once; повторы отсекаются по ID события.
type RabbitMQSessionEventSubscriber struct {
	conn   *amqp091.Connection
	logger *zap.Logger
}

func NewRabbitMQSessionEventSubscriber(conn *amqp091.Connection, logger *zap.Logger) (*RabbitMQSessionEventSubscriber, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection is nil")
	}
	return &RabbitMQSessionEventSubscriber{conn: conn, logger: logger.Named("SessionEventSubscriber")}, nil
}

// Subscribe объявляет эксклюзивную очередь, привязанную к кампании.
// Канал результата закрывается при отмене ctx или закрытии канала брокера.
func (s *RabbitMQSessionEventSubscriber) Subscribe(ctx context.Context, campaignID string) (<-chan models.SessionEvent, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareSessionExchange(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	q, err := ch.QueueDeclare(
		"",    // имя генерирует брокер
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, campaignID, SessionEventsExchangeName, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to bind queue '%s': %w", q.Name, err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	log := s.logger.With(zap.String("campaign_id", campaignID), zap.String("queue", q.Name))
	out := make(chan models.SessionEvent, dedupeWindow/16)
	go func() {
		defer close(out)
		defer func() { _ = ch.Close() }()

		seen := newRecentIDs(dedupeWindow)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warn("Delivery channel closed")
					return
				}
				var event models.SessionEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					log.Error("Failed to unmarshal session event", zap.Error(err))
					continue
				}
				if !seen.add(event.ID) {
					log.Debug("Duplicate session event skipped", zap.String("event_id", event.ID))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	log.Info("Subscribed to session events")
	return out, nil
}

// recentIDs - ограниченное множество последних ID.
type recentIDs struct {
	set  map[string]struct{}
	ring []string
	next int
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{set: make(map[string]struct{}, size), ring: make([]string, size)}
}

// add возвращает false, если ID уже встречался.
func (r *recentIDs) add(id string) bool {
	if id == "" {
		return true
	}
	if _, ok := r.set[id]; ok {
		return false
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.set, old)
	}
	r.ring[r.next] = id
	r.next = (r.next + 1) % len(r.ring)
	r.set[id] = struct{}{}
	return true
}
