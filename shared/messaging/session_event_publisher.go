package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

var _ interfaces.SessionEventPublisher = (*RabbitMQSessionEventPublisher)(nil)

// RabbitMQSessionEventPublisher рассылает записанные события другим инстансам.
type RabbitMQSessionEventPublisher struct {
	mu           sync.Mutex
	ch           *amqp091.Channel
	logger       *zap.Logger
	exchangeName string
}

// NewRabbitMQSessionEventPublisher открывает канал и объявляет exchange событий.
func NewRabbitMQSessionEventPublisher(conn *amqp091.Connection, logger *zap.Logger) (*RabbitMQSessionEventPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("Failed to open a channel for session events", zap.Error(err))
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := declareSessionExchange(ch); err != nil {
		_ = ch.Close()
		logger.Error("Failed to declare session events exchange", zap.String("exchange", SessionEventsExchangeName), zap.Error(err))
		return nil, err
	}

	logger.Info("Session events exchange declared", zap.String("exchange", SessionEventsExchangeName))
	return &RabbitMQSessionEventPublisher{
		ch:           ch,
		logger:       logger.Named("SessionEventPublisher"),
		exchangeName: SessionEventsExchangeName,
	}, nil
}

func declareSessionExchange(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		SessionEventsExchangeName,
		sessionEventsExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange '%s': %w", SessionEventsExchangeName, err)
	}
	return nil
}

// PublishSessionEvent публикует событие с routing key = ID кампании.
func (p *RabbitMQSessionEventPublisher) PublishSessionEvent(ctx context.Context, event models.SessionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		p.exchangeName,
		event.CampaignID,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			MessageId:   event.ID,
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish session event", zap.String("event_id", event.ID), zap.Error(err))
		return fmt.Errorf("failed to publish session event: %w", err)
	}

	p.logger.Debug("Session event published",
		zap.String("campaign_id", event.CampaignID), zap.String("event_id", event.ID), zap.String("kind", string(event.Kind)))
	return nil
}

// Close закрывает канал RabbitMQ.
func (p *RabbitMQSessionEventPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}
