package app

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/wirebuddy/ledger-service/internal/domain"
)

const consumerTimeout = 15 * time.Second

// GatewayEventHandler applies processor notifications. PaymentService implements it.
type GatewayEventHandler interface {
	HandleGatewayEvent(ctx context.Context, event domain.GatewayEvent) error
}

// ModelEventHandler reloads a model artifact named by an event. ModelService implements it.
type ModelEventHandler interface {
	HandleModelUpdated(ctx context.Context, event domain.ModelUpdatedEvent) error
}

// EventConsumer turns broker deliveries into service calls. Returning false from a
// handler asks the broker to redeliver.
type EventConsumer struct {
	gateway GatewayEventHandler
	models  ModelEventHandler
}

func NewEventConsumer(gateway GatewayEventHandler, models ModelEventHandler) *EventConsumer {
	return &EventConsumer{gateway: gateway, models: models}
}

// HandleGatewayMessage re-verifies the payment or payout a webhook reported. Malformed
// payloads are acknowledged and dropped; processing errors are retried.
func (c *EventConsumer) HandleGatewayMessage(body []byte) bool {
	var event domain.GatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=event_consumer msg=\"failed to unmarshal gateway event\" err=%v", err)
		return true
	}
	event.Reference = strings.TrimSpace(event.Reference)
	if event.Reference == "" {
		log.Printf("level=warn component=event_consumer event=%s msg=\"gateway event without reference; dropping\"", event.Event)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	if err := c.gateway.HandleGatewayEvent(ctx, event); err != nil {
		log.Printf("level=error component=event_consumer event=%s reference=%s err=%v msg=\"gateway event processing failed\"", event.Event, event.Reference, err)
		return false
	}
	return true
}

// HandleModelMessage reloads a retrained model published by another instance.
func (c *EventConsumer) HandleModelMessage(body []byte) bool {
	var event domain.ModelUpdatedEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Kind == "" {
		log.Printf("level=warn component=event_consumer msg=\"invalid model update event; dropping\" err=%v", err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), consumerTimeout)
	defer cancel()

	if err := c.models.HandleModelUpdated(ctx, event); err != nil {
		// The registry keeps serving the current model; the next update will try again.
		log.Printf("level=error component=event_consumer kind=%s version=%s err=%v msg=\"model reload failed\"", event.Kind, event.Version, err)
	}
	return true
}
