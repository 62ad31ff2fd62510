package app

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

func TestEventBus_EmitEntryPublishesEveryRow(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	bus := NewEventBus(publisher, "test.events", nil)

	bus.EmitEntry(context.Background(), &domain.LedgerEntry{
		ReferenceID: "ref-1",
		Account:     domain.Account{AccountNumber: "0241111111", Balance: decimal.NewFromInt(40)},
		Rows: []domain.Transaction{
			{AccountNumber: "0241111111", Type: domain.TxTransferOut, Amount: decimal.NewFromInt(-10), ReferenceID: "ref-1"},
			{AccountNumber: "0242222222", Type: domain.TxTransferIn, Amount: decimal.NewFromInt(10), ReferenceID: "ref-1"},
		},
	})

	if got := publisher.count(RoutingLedgerRecorded); got != 2 {
		t.Fatalf("expected 2 ledger events, got %d", got)
	}
	sender := publisher.events[0].body.(domain.LedgerEvent)
	recipient := publisher.events[1].body.(domain.LedgerEvent)
	if !sender.Balance.Equal(decimal.NewFromInt(40)) || !recipient.Balance.IsZero() {
		t.Fatalf("unexpected balances %s / %s", sender.Balance, recipient.Balance)
	}
}

func TestGatewayEventForwarder_RoutesByEventKind(t *testing.T) {
	publisher := &recordingPublisher{}
	forwarder := NewGatewayEventForwarder(publisher, "test.events")

	for _, event := range []string{"charge.success", "transfer.success", "transfer.reversed"} {
		if err := forwarder.HandleGatewayEvent(context.Background(), domain.GatewayEvent{Event: event, Reference: "ref"}); err != nil {
			t.Fatalf("forward %s: %v", event, err)
		}
	}
	if publisher.count(RoutingGatewayCharge) != 1 || publisher.count(RoutingGatewayTransfer) != 2 {
		t.Fatalf("unexpected routing %+v", publisher.events)
	}

	publisher.err = errors.New("broker down")
	if err := forwarder.HandleGatewayEvent(context.Background(), domain.GatewayEvent{Event: "charge.success", Reference: "ref"}); err == nil {
		t.Fatal("expected publish failures to be returned")
	}
}
