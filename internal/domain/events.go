package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GatewayEvent is the message forwarded from the payment processor webhook.
type GatewayEvent struct {
	Event      string    `json:"event"`
	Reference  string    `json:"reference"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// IsTransfer reports whether the event concerns an outbound disbursement.
func (e GatewayEvent) IsTransfer() bool {
	return strings.HasPrefix(e.Event, "transfer.")
}

// LedgerEvent is published after every committed ledger unit of work.
type LedgerEvent struct {
	ReferenceID   string          `json:"reference_id"`
	AccountNumber string          `json:"account_number"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// FlaggedEvent is published when the fraud scorer enqueues a review item.
type FlaggedEvent struct {
	FlagID        string          `json:"flag_id"`
	ReferenceID   string          `json:"reference_id"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Score         float64         `json:"score"`
	ModelVersion  string          `json:"model_version"`
	FlaggedAt     time.Time       `json:"flagged_at"`
}

// ReconciliationEvent asks operations to settle a payout the processor completed after the
// debit was refunded locally.
type ReconciliationEvent struct {
	Reference     string          `json:"reference"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	DetectedAt    time.Time       `json:"detected_at"`
}

// ModelUpdatedEvent tells other instances to reload a model artifact.
type ModelUpdatedEvent struct {
	Kind      string    `json:"kind"`
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
