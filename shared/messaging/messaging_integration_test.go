//go:build integration

package messaging_test

import (
	"context"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"

	"mestrai-server/shared/messaging"
	"mestrai-server/shared/models"
)

func TestSessionEventsThroughRabbitMQ(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping messaging integration test in short mode.")
	}
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err, "Failed to start rabbitmq container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)
	conn, err := amqp091.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	logger := zap.NewNop()
	sub, err := messaging.NewRabbitMQSessionEventSubscriber(conn, logger)
	require.NoError(t, err)
	pub, err := messaging.NewRabbitMQSessionEventPublisher(conn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := sub.Subscribe(subCtx, "c1")
	require.NoError(t, err)

	first := models.SessionEvent{ID: "01A", CampaignID: "c1", Kind: models.EventKindNarrative, Content: "um"}
	require.NoError(t, pub.PublishSessionEvent(ctx, models.SessionEvent{ID: "01X", CampaignID: "c2", Kind: models.EventKindNarrative}))
	require.NoError(t, pub.PublishSessionEvent(ctx, first))
	require.NoError(t, pub.PublishSessionEvent(ctx, first))
	require.NoError(t, pub.PublishSessionEvent(ctx, models.SessionEvent{ID: "01B", CampaignID: "c1", Kind: models.EventKindNarrative, Content: "dois"}))

	var got []string
	timeout := time.After(10 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.ID)
		case <-timeout:
			t.Fatalf("received only %v", got)
		}
	}
	require.Equal(t, []string{"01A", "01B"}, got)
}
