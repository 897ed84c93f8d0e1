package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/services"
)

func newTestTopic(t *testing.T, ordered bool) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	topic.EnableMessageOrdering = ordered
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubOrderPublisherPublishesMessage(t *testing.T) {
	srv, topic := newTestTopic(t, false)

	publisher, err := NewPubSubOrderPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderPublisher: %v", err)
	}

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:        services.OrderEventCreated,
		OrderID:     "65f1c0a2b3d4e5f60718293a",
		OrderNumber: "GV-20250506-0001",
		UserID:      "65f1c0a2b3d4e5f60718293b",
		Status:      domain.OrderStatusPending,
		OccurredAt:  occurred,
	}
	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload orderEventPayload
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.OrderNumber != event.OrderNumber || !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["eventType"]; attr != services.OrderEventCreated {
		t.Fatalf("expected event type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["status"]; attr != string(domain.OrderStatusPending) {
		t.Fatalf("expected status attribute, got %q", attr)
	}
	if messages[0].OrderingKey != "" {
		t.Fatalf("expected no ordering key on unordered topic, got %q", messages[0].OrderingKey)
	}
}

func TestPubSubOrderPublisherUsesOrderingKey(t *testing.T) {
	srv, topic := newTestTopic(t, true)

	publisher, err := NewPubSubOrderPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderPublisher: %v", err)
	}
	event := services.OrderEvent{
		Type:    services.OrderEventStatusChanged,
		OrderID: "order-1",
		Status:  domain.OrderStatusShipped,
	}
	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 || messages[0].OrderingKey != "order-1" {
		t.Fatalf("expected message keyed by order id, got %#v", messages)
	}
	if _, ok := messages[0].Attributes["userId"]; ok {
		t.Fatalf("empty user id must not become an attribute")
	}
}

func TestNewPubSubOrderPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
