package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway statuses as stored on payment and disbursement records.
const (
	PaymentPending  = "pending"
	PaymentSuccess  = "success"
	PaymentFailed   = "failed"
	PaymentReversed = "reversed"
)

// NormalizeGatewayStatus folds processor-specific status strings onto the stored set.
// Unknown values are kept lower-cased so nothing reported by the processor is lost.
func NormalizeGatewayStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	switch status {
	case "success", "successful", "completed":
		return PaymentSuccess
	case "failed", "failure", "abandoned", "rejected":
		return PaymentFailed
	case "reversed", "refunded":
		return PaymentReversed
	case "", "pending", "ongoing", "processing", "queued", "otp", "send_otp":
		return PaymentPending
	default:
		return status
	}
}

// PaymentRecord mirrors an inbound gateway charge. It maps to the `payments` table.
type PaymentRecord struct {
	Reference     string          `json:"reference"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// CreditedAt is set once the account has been credited and never cleared.
	CreditedAt *time.Time `json:"credited_at,omitempty"`
}

// DisbursementRecord mirrors an outbound gateway transfer. It maps to the `disbursements` table.
type DisbursementRecord struct {
	Reference     string          `json:"reference"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Recipient     string          `json:"recipient"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// RefundedAt is set once the debit has been returned and never cleared.
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
}

// InitiateDepositRequest is the DTO for starting a gateway deposit.
type InitiateDepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

// InitiateDepositResponse carries the checkout URL the customer must visit.
type InitiateDepositResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// InitiateWithdrawalRequest is the DTO for a mobile-money withdrawal.
type InitiateWithdrawalRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	MobileNumber string          `json:"mobile_number"`
}

// PaymentSettlement is the outcome of applying a verified gateway status.
type PaymentSettlement struct {
	PreviousStatus string
	Status         string
	Applied        bool
	Entry          *LedgerEntry

	// NeedsReconciliation is set when the processor reports a payout as successful after
	// the debit was already refunded. The customer holds both the payout and the refund.
	NeedsReconciliation bool
}
