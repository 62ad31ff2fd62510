package app

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/metrics"
	"github.com/wirebuddy/ledger-service/pkg/rabbitmq"
)

// Routing keys on the events exchange.
const (
	RoutingLedgerRecorded  = "ledger.transaction.recorded"
	RoutingFlagged         = "risk.transaction.flagged"
	RoutingModelUpdated    = "risk.model.updated"
	RoutingGatewayCharge   = "gateway.charge.updated"
	RoutingGatewayTransfer = "gateway.transfer.updated"
	RoutingReconciliation  = "gateway.reconciliation.required"
)

const publishTimeout = 5 * time.Second

// EventBus publishes service events onto a single exchange. Publish failures are logged
// and counted but never returned: events are notifications, not part of a ledger commit.
type EventBus struct {
	publisher rabbitmq.Publisher
	exchange  string
	metrics   *metrics.Collector
}

func NewEventBus(publisher rabbitmq.Publisher, exchange string, collector *metrics.Collector) *EventBus {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	return &EventBus{publisher: publisher, exchange: exchange, metrics: collector}
}

// Emit publishes body under routingKey using a context detached from the caller's
// cancellation, so a request that ends right after commit still gets its event out.
func (b *EventBus) Emit(ctx context.Context, routingKey string, body interface{}) {
	if b == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := b.publisher.Publish(pubCtx, b.exchange, routingKey, body)
	b.metrics.ObserveEvent(routingKey, err)
	if err != nil {
		log.Printf("level=warn component=event_bus routing_key=%s err=%v msg=\"event publish failed\"", routingKey, err)
	}
}

// EmitEntry publishes one ledger event per row of a committed entry. Only the entry's own
// account carries a balance; counterparty rows report zero.
func (b *EventBus) EmitEntry(ctx context.Context, entry *domain.LedgerEntry) {
	if b == nil || entry == nil {
		return
	}
	for _, row := range entry.Rows {
		balance := decimal.Zero
		if row.AccountNumber == entry.Account.AccountNumber {
			balance = entry.Account.Balance
		}
		b.Emit(ctx, RoutingLedgerRecorded, domain.LedgerEvent{
			ReferenceID:   row.ReferenceID,
			AccountNumber: row.AccountNumber,
			Type:          row.Type,
			Amount:        row.Amount,
			Balance:       balance,
			OccurredAt:    row.CreatedAt,
		})
	}
}

// GatewayEventForwarder queues webhook notifications for the gateway consumer. Unlike
// EventBus it reports publish failures, so the webhook can ask the processor to retry.
type GatewayEventForwarder struct {
	publisher rabbitmq.Publisher
	exchange  string
}

func NewGatewayEventForwarder(publisher rabbitmq.Publisher, exchange string) *GatewayEventForwarder {
	return &GatewayEventForwarder{publisher: publisher, exchange: exchange}
}

func (f *GatewayEventForwarder) HandleGatewayEvent(ctx context.Context, event domain.GatewayEvent) error {
	routingKey := RoutingGatewayCharge
	if event.IsTransfer() {
		routingKey = RoutingGatewayTransfer
	}
	return f.publisher.Publish(ctx, f.exchange, routingKey, event)
}
