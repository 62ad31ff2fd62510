/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the ledger-service. Balance-affecting operations
 * are exposed as whole units of work (`Apply*`, `Settle*`) so that every implementation
 * can guarantee all-or-nothing semantics: either every write of the unit commits or none
 * of them do.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Money amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrDuplicateAccount      = errors.New("account number or username already registered")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientGoalFunds = errors.New("insufficient funds in goal")
	ErrRecipientNotFound     = errors.New("recipient not found")
	ErrRecipientFrozen       = errors.New("recipient account is frozen")
	ErrGoalNotFound          = errors.New("savings goal not found")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrFlagNotFound          = errors.New("flagged transaction not found")
	ErrFlagNotPending        = errors.New("flagged transaction already reviewed")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrDuplicatePayment      = errors.New("payment reference already exists")
	ErrStoreConflict         = errors.New("store conflict")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindAccount(ctx context.Context, accountNumber string) (*domain.Account, error)
	FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	UpdateProfile(ctx context.Context, accountNumber string, update domain.ProfileUpdate) (*domain.Account, error)
	UpdatePINHash(ctx context.Context, accountNumber string, pinHash string) error
	SetAccountActive(ctx context.Context, accountNumber string, active bool) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	SearchAccounts(ctx context.Context, query string) ([]domain.Account, error)
	SystemStats(ctx context.Context) (*domain.SystemStats, error)
	CreditFeatures(ctx context.Context, accountNumber string) (*domain.CreditFeatures, error)

	// Ledger units of work
	ApplyDeposit(ctx context.Context, params MovementParams) (*domain.LedgerEntry, error)
	ApplyWithdrawal(ctx context.Context, params MovementParams) (*domain.LedgerEntry, error)
	ApplyTransfer(ctx context.Context, params TransferParams) (*domain.LedgerEntry, error)
	ApplyGoalContribution(ctx context.Context, params GoalMovementParams) (*domain.LedgerEntry, error)
	ApplyGoalWithdrawal(ctx context.Context, params GoalMovementParams) (*domain.LedgerEntry, error)

	// Transaction history methods
	ListTransactions(ctx context.Context, accountNumber string, limit int) ([]domain.Transaction, error)
	FindTransactionByReference(ctx context.Context, accountNumber string, referenceID string) (*domain.Transaction, error)
	ListRecentTransactions(ctx context.Context, limit int) ([]domain.ScanCandidate, error)
	ListDebitsSince(ctx context.Context, since time.Time) ([]domain.Transaction, error)
	ListLabeledDescriptions(ctx context.Context, since time.Time) ([]domain.LabeledDescription, error)
	SaveTransactionCategory(ctx context.Context, category domain.TransactionCategory) error

	// Savings goal methods
	CreateGoal(ctx context.Context, goal *domain.SavingsGoal) error
	ListGoals(ctx context.Context, accountNumber string) ([]domain.SavingsGoal, error)
	FindGoal(ctx context.Context, accountNumber string, goalID int64) (*domain.SavingsGoal, error)
	DeleteGoal(ctx context.Context, accountNumber string, goalID int64) (bool, error)
	ListGoalContributions(ctx context.Context, goalID int64) ([]domain.GoalContribution, error)

	// Review queue methods
	CreateFlag(ctx context.Context, flag *domain.FlaggedTransaction) (bool, error)
	ListFlags(ctx context.Context, filter domain.FlagFilter) ([]domain.FlaggedTransactionView, error)
	FindFlag(ctx context.Context, flagID string) (*domain.FlaggedTransaction, error)
	TransitionFlag(ctx context.Context, flagID string, status domain.FlagStatus, reviewer string, at time.Time) (*domain.FlaggedTransaction, error)
	DeleteFlag(ctx context.Context, flagID string) (bool, error)

	// Payment gateway mirror methods
	CreatePayment(ctx context.Context, payment *domain.PaymentRecord) error
	FindPayment(ctx context.Context, reference string) (*domain.PaymentRecord, error)
	SettlePayment(ctx context.Context, params SettleParams) (*domain.PaymentSettlement, error)
	ApplyDisbursement(ctx context.Context, params DisbursementParams) (*domain.LedgerEntry, error)
	FindDisbursement(ctx context.Context, reference string) (*domain.DisbursementRecord, error)
	SettleDisbursement(ctx context.Context, params SettleParams) (*domain.PaymentSettlement, error)
}

// MovementParams describes a single-account deposit or withdrawal.
type MovementParams struct {
	AccountNumber string
	Amount        decimal.Decimal
	Description   string
	ReferenceID   string
	At            time.Time
}

// TransferParams describes an account-to-account transfer.
type TransferParams struct {
	SenderAccountNumber    string
	RecipientAccountNumber string
	Amount                 decimal.Decimal
	ReferenceID            string
	At                     time.Time
}

// GoalMovementParams describes a contribution to, or withdrawal from, a savings goal.
type GoalMovementParams struct {
	AccountNumber string
	GoalID        int64
	Amount        decimal.Decimal
	ReferenceID   string
	At            time.Time
}

// DisbursementParams describes the local half of an outbound gateway transfer.
type DisbursementParams struct {
	AccountNumber string
	Amount        decimal.Decimal
	Method        string
	Recipient     string
	Reference     string
	ReferenceID   string
	At            time.Time
}

// SettleParams applies a gateway-observed status to a payment or disbursement.
// Amount is the processor-confirmed amount; zero means the recorded amount is used.
// ReferenceID is the ledger reference used if the settlement moves money.
type SettleParams struct {
	Reference   string
	Status      string
	Amount      decimal.Decimal
	ReferenceID string
	At          time.Time
}
