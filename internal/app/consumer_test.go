package app

import (
	"context"
	"errors"
	"testing"

	"github.com/wirebuddy/ledger-service/internal/domain"
)

type gatewayHandlerStub struct {
	events []domain.GatewayEvent
	err    error
}

func (s *gatewayHandlerStub) HandleGatewayEvent(ctx context.Context, event domain.GatewayEvent) error {
	s.events = append(s.events, event)
	return s.err
}

type modelHandlerStub struct {
	events []domain.ModelUpdatedEvent
	err    error
}

func (s *modelHandlerStub) HandleModelUpdated(ctx context.Context, event domain.ModelUpdatedEvent) error {
	s.events = append(s.events, event)
	return s.err
}

func TestEventConsumer_HandleGatewayMessage(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		handlerErr error
		wantAck    bool
		wantCalls  int
	}{
		{name: "malformed", body: "{", wantAck: true},
		{name: "missing reference", body: `{"event":"charge.success","reference":"  "}`, wantAck: true},
		{name: "processed", body: `{"event":"charge.success","reference":" ref-1 "}`, wantAck: true, wantCalls: 1},
		{name: "processing error", body: `{"event":"transfer.failed","reference":"ref-2"}`, handlerErr: errors.New("db down"), wantAck: false, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &gatewayHandlerStub{err: tt.handlerErr}
			consumer := NewEventConsumer(gateway, &modelHandlerStub{})
			if got := consumer.HandleGatewayMessage([]byte(tt.body)); got != tt.wantAck {
				t.Fatalf("expected ack=%t, got %t", tt.wantAck, got)
			}
			if len(gateway.events) != tt.wantCalls {
				t.Fatalf("expected %d handler calls, got %d", tt.wantCalls, len(gateway.events))
			}
			if tt.wantCalls > 0 && gateway.events[0].Reference != "ref-1" && gateway.events[0].Reference != "ref-2" {
				t.Fatalf("expected trimmed reference, got %q", gateway.events[0].Reference)
			}
		})
	}
}

func TestEventConsumer_HandleModelMessageAlwaysAcks(t *testing.T) {
	models := &modelHandlerStub{err: errors.New("artifact missing")}
	consumer := NewEventConsumer(&gatewayHandlerStub{}, models)

	if !consumer.HandleModelMessage([]byte(`{"kind":"fraud","version":"fraud-v2"}`)) {
		t.Fatal("expected reload failures to be acknowledged")
	}
	if !consumer.HandleModelMessage([]byte(`{"version":"fraud-v2"}`)) {
		t.Fatal("expected events without kind to be acknowledged")
	}
	if len(models.events) != 1 || models.events[0].Version != "fraud-v2" {
		t.Fatalf("unexpected handler calls %+v", models.events)
	}
}
