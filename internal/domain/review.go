package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FlagStatus is the review state of a flagged transaction.
// pending -> confirmed and pending -> approved are the only transitions; both are terminal.
type FlagStatus string

const (
	FlagPending   FlagStatus = "pending"
	FlagConfirmed FlagStatus = "confirmed"
	FlagApproved  FlagStatus = "approved"
)

// Valid reports whether the status is one of the known review states.
func (s FlagStatus) Valid() bool {
	switch s {
	case FlagPending, FlagConfirmed, FlagApproved:
		return true
	}
	return false
}

// FlaggedTransaction is a review-queue entry created by the fraud scorer.
type FlaggedTransaction struct {
	ID            string     `json:"id"`
	ReferenceID   string     `json:"reference_id"`
	TransactionID int64      `json:"transaction_id"`
	AccountNumber string     `json:"account_number"`
	Score         float64    `json:"score"`
	ModelVersion  string     `json:"model_version"`
	Status        FlagStatus `json:"status"`
	FlaggedAt     time.Time  `json:"flagged_at"`
	ReviewedBy    *string    `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
}

// FlagFilter narrows a review-queue listing. Zero values disable a filter.
type FlagFilter struct {
	Status    FlagStatus
	MinAmount decimal.Decimal
}

// FlaggedTransactionView joins a flag with its transaction and owning account for display.
type FlaggedTransactionView struct {
	FlaggedTransaction
	TransactionType TransactionType `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	TransactionAt   time.Time       `json:"transaction_at"`
	AccountName     string          `json:"account_name"`
	AccountActive   bool            `json:"account_active"`
}

// ScanResult summarises a bulk fraud scan.
type ScanResult struct {
	Scanned int `json:"scanned"`
	Skipped int `json:"skipped"`
	Flagged int `json:"flagged"`
}

// ScanCandidate is a recent transaction row with the owning account snapshot needed for scoring.
type ScanCandidate struct {
	Transaction Transaction
	Account     Account
	HasFlag     bool
}
