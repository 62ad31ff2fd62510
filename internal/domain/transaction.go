/**
 * @description
 * This file defines the core ledger models for the ledger-service. These structs
 * represent the append-only transaction rows written by the ledger and the DTOs the
 * API layer accepts for balance-affecting operations.
 *
 * @notes
 * - Amounts are `decimal.Decimal` values with two fractional digits. A transaction's
 *   amount is signed: positive credits the owning account, negative debits it.
 * - A transfer produces two rows (Transfer Out / Transfer In) sharing one reference id
 *   and one timestamp.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType names the business reason for a ledger row.
type TransactionType string

const (
	TxDeposit             TransactionType = "Deposit"
	TxWithdrawal          TransactionType = "Withdrawal"
	TxTransferIn          TransactionType = "Transfer In"
	TxTransferOut         TransactionType = "Transfer Out"
	TxSavingsContribution TransactionType = "Savings Contribution"
	TxSavingsWithdrawal   TransactionType = "Savings Withdrawal"
	TxWithdrawalReversal  TransactionType = "Withdrawal Reversal"
)

// IsFraudScored reports whether rows of this type go through the fraud scorer.
func (t TransactionType) IsFraudScored() bool {
	return t == TxWithdrawal || t == TxTransferOut
}

// Transaction is an immutable ledger entry. It maps to the `transactions` table.
type Transaction struct {
	ID            int64           `json:"id"`
	AccountNumber string          `json:"account_number"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ReferenceID   string          `json:"reference_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Category      string          `json:"category,omitempty"`
}

// AmountRequest is the DTO for deposit and withdrawal API requests.
// Description is optional; the ledger falls back to DefaultDescription.
type AmountRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// TransferRequest is the DTO for account-to-account transfers.
type TransferRequest struct {
	RecipientAccountNumber string          `json:"recipient_account_number"`
	Amount                 decimal.Decimal `json:"amount"`
}

// LedgerReceipt is returned by every successful ledger operation.
type LedgerReceipt struct {
	ReferenceID string          `json:"reference_id"`
	Balance     decimal.Decimal `json:"balance"`
	Flagged     bool            `json:"flagged"`
}

// LedgerEntry carries the rows written by one ledger unit of work together with the
// post-commit account snapshot, so callers can score and publish without re-reading.
type LedgerEntry struct {
	ReferenceID string
	Account     Account
	Rows        []Transaction
}

// PrimaryRow returns the row written against the acting account.
func (e *LedgerEntry) PrimaryRow() *Transaction {
	for i := range e.Rows {
		if e.Rows[i].AccountNumber == e.Account.AccountNumber {
			return &e.Rows[i]
		}
	}
	if len(e.Rows) == 0 {
		return nil
	}
	return &e.Rows[0]
}

// TransactionCategory is the categorizer output stored per transaction row.
type TransactionCategory struct {
	TransactionID int64   `json:"transaction_id"`
	Category      string  `json:"category"`
	Confidence    float64 `json:"confidence"`
	ModelVersion  string  `json:"model_version"`
}

// LabeledDescription is a training sample for the categorizer.
type LabeledDescription struct {
	Description string
	Category    string
}

// DefaultDescription is the row text used when the caller supplies none.
func DefaultDescription(t TransactionType) string {
	switch t {
	case TxDeposit:
		return "Deposit made"
	case TxWithdrawal:
		return "Withdrawal made"
	default:
		return string(t)
	}
}

// Descriptions written on ledger rows.
func TransferOutDescription(recipient string) string { return "To: " + recipient }
func TransferInDescription(sender string) string    { return "From: " + sender }
func GoalContributionDescription(goalID int64) string {
	return fmt.Sprintf("Contribution to goal ID: %d", goalID)
}
func GoalWithdrawalDescription(goalID int64) string {
	return fmt.Sprintf("Withdrawal from goal ID: %d", goalID)
}
func MobileMoneyDescription(number string) string { return "MoMo to " + number }
func ReversalDescription(reference string) string  { return "Reversal of " + reference }
