/**
 * @description
 * This file contains the `LedgerService`, which owns every balance-affecting operation
 * a customer can trigger directly: deposits, withdrawals, transfers and savings goal
 * movements. Each operation is validated here, executed as one atomic store unit of
 * work (retried on transient conflicts), and then handed to the risk pipeline and the
 * event bus once committed.
 *
 * @dependencies
 * - github.com/google/uuid: reference ids shared by every row of a unit of work.
 * - github.com/shopspring/decimal: money amounts.
 * - internal/store, internal/risk, internal/metrics.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/metrics"
	"github.com/wirebuddy/ledger-service/internal/risk"
	"github.com/wirebuddy/ledger-service/internal/store"
)

// LedgerService provides the core money movement logic.
type LedgerService struct {
	repo     store.Repository
	retrier  store.Retrier
	pipeline *RiskPipeline
	events   *EventBus
	metrics  *metrics.Collector
	now      func() time.Time
	newRef   func() string
}

func NewLedgerService(repo store.Repository, retrier store.Retrier, pipeline *RiskPipeline, events *EventBus, collector *metrics.Collector) *LedgerService {
	return &LedgerService{
		repo:     repo,
		retrier:  retrier,
		pipeline: pipeline,
		events:   events,
		metrics:  collector,
		now:      time.Now,
		newRef:   uuid.NewString,
	}
}

// normalizeAmount rounds to cents and rejects anything that is not strictly positive.
func normalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	rounded := amount.Round(2)
	if !rounded.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return rounded, nil
}

// commit runs one unit of work under the retry policy and, once it has committed, feeds
// the entry to the risk pipeline and publishes it.
func (s *LedgerService) commit(ctx context.Context, op string, unit func(ctx context.Context) (*domain.LedgerEntry, error)) (*domain.LedgerReceipt, error) {
	started := time.Now()

	retrier := s.retrier
	retrier.OnRetry = func(attempt int, err error) {
		s.metrics.StoreRetry(op)
		log.Printf("level=warn component=ledger op=%s attempt=%d err=%v msg=\"store conflict; retrying\"", op, attempt, err)
	}

	var entry *domain.LedgerEntry
	err := retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		entry, err = unit(ctx)
		return err
	})
	s.metrics.ObserveLedgerOp(op, started, err)
	if err != nil {
		return nil, err
	}

	flagged := s.pipeline.Process(ctx, entry)
	s.events.EmitEntry(ctx, entry)

	log.Printf("level=info component=ledger op=%s reference_id=%s account=%s balance=%s flagged=%t msg=\"ledger unit committed\"",
		op, entry.ReferenceID, entry.Account.AccountNumber, entry.Account.Balance.StringFixed(2), flagged)
	return &domain.LedgerReceipt{
		ReferenceID: entry.ReferenceID,
		Balance:     entry.Account.Balance,
		Flagged:     flagged,
	}, nil
}

// Deposit credits the account and records a Deposit row.
func (s *LedgerService) Deposit(ctx context.Context, accountNumber string, req domain.AmountRequest) (*domain.LedgerReceipt, error) {
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	params := store.MovementParams{
		AccountNumber: accountNumber,
		Amount:        amount,
		Description:   describe(req.Description, domain.TxDeposit),
		ReferenceID:   s.newRef(),
		At:            s.now().UTC(),
	}
	return s.commit(ctx, "deposit", func(ctx context.Context) (*domain.LedgerEntry, error) {
		return s.repo.ApplyDeposit(ctx, params)
	})
}

// Withdraw debits the account if the balance covers the amount.
func (s *LedgerService) Withdraw(ctx context.Context, accountNumber string, req domain.AmountRequest) (*domain.LedgerReceipt, error) {
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	params := store.MovementParams{
		AccountNumber: accountNumber,
		Amount:        amount,
		Description:   describe(req.Description, domain.TxWithdrawal),
		ReferenceID:   s.newRef(),
		At:            s.now().UTC(),
	}
	return s.commit(ctx, "withdraw", func(ctx context.Context) (*domain.LedgerEntry, error) {
		return s.repo.ApplyWithdrawal(ctx, params)
	})
}

// Transfer moves money between two accounts. Both rows share one reference id and timestamp.
func (s *LedgerService) Transfer(ctx context.Context, senderAccountNumber string, req domain.TransferRequest) (*domain.LedgerReceipt, error) {
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	recipient := strings.TrimSpace(req.RecipientAccountNumber)
	if recipient == senderAccountNumber {
		return nil, ErrSelfTransferNotAllowed
	}
	params := store.TransferParams{
		SenderAccountNumber:    senderAccountNumber,
		RecipientAccountNumber: recipient,
		Amount:                 amount,
		ReferenceID:            s.newRef(),
		At:                     s.now().UTC(),
	}
	return s.commit(ctx, "transfer", func(ctx context.Context) (*domain.LedgerEntry, error) {
		return s.repo.ApplyTransfer(ctx, params)
	})
}

func (s *LedgerService) ContributeToGoal(ctx context.Context, accountNumber string, goalID int64, req domain.GoalAmountRequest) (*domain.LedgerReceipt, error) {
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	params := store.GoalMovementParams{
		AccountNumber: accountNumber,
		GoalID:        goalID,
		Amount:        amount,
		ReferenceID:   s.newRef(),
		At:            s.now().UTC(),
	}
	return s.commit(ctx, "goal_contribute", func(ctx context.Context) (*domain.LedgerEntry, error) {
		return s.repo.ApplyGoalContribution(ctx, params)
	})
}

func (s *LedgerService) WithdrawFromGoal(ctx context.Context, accountNumber string, goalID int64, req domain.GoalAmountRequest) (*domain.LedgerReceipt, error) {
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	params := store.GoalMovementParams{
		AccountNumber: accountNumber,
		GoalID:        goalID,
		Amount:        amount,
		ReferenceID:   s.newRef(),
		At:            s.now().UTC(),
	}
	return s.commit(ctx, "goal_withdraw", func(ctx context.Context) (*domain.LedgerEntry, error) {
		return s.repo.ApplyGoalWithdrawal(ctx, params)
	})
}

func describe(description string, t domain.TransactionType) string {
	if trimmed := strings.TrimSpace(description); trimmed != "" {
		return trimmed
	}
	return domain.DefaultDescription(t)
}

// Account returns the current account, including its balance.
func (s *LedgerService) Account(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.repo.FindAccount(ctx, accountNumber)
}

// History returns the newest rows first. A non-positive limit returns everything.
func (s *LedgerService) History(ctx context.Context, accountNumber string, limit int) ([]domain.Transaction, error) {
	if _, err := s.repo.FindAccount(ctx, accountNumber); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, accountNumber, limit)
}

func (s *LedgerService) TransactionByReference(ctx context.Context, accountNumber, referenceID string) (*domain.Transaction, error) {
	return s.repo.FindTransactionByReference(ctx, accountNumber, strings.TrimSpace(referenceID))
}

func (s *LedgerService) CreateGoal(ctx context.Context, accountNumber string, req domain.CreateGoalRequest) (*domain.SavingsGoal, error) {
	name := strings.TrimSpace(req.Name)
	target := req.TargetAmount.Round(2)
	if name == "" || !target.IsPositive() || req.TargetDate.IsZero() {
		return nil, ErrInvalidGoal
	}
	if _, err := s.repo.FindAccount(ctx, accountNumber); err != nil {
		return nil, err
	}
	goal := &domain.SavingsGoal{
		AccountNumber: accountNumber,
		Name:          name,
		TargetAmount:  target,
		CurrentAmount: decimal.Zero,
		TargetDate:    req.TargetDate.UTC(),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.CreateGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return goal, nil
}

func (s *LedgerService) ListGoals(ctx context.Context, accountNumber string) ([]domain.SavingsGoal, error) {
	return s.repo.ListGoals(ctx, accountNumber)
}

func (s *LedgerService) Goal(ctx context.Context, accountNumber string, goalID int64) (*domain.SavingsGoal, error) {
	return s.repo.FindGoal(ctx, accountNumber, goalID)
}

// DeleteGoal removes a goal and its history. Any money still in the goal stays with it;
// callers are expected to withdraw first.
func (s *LedgerService) DeleteGoal(ctx context.Context, accountNumber string, goalID int64) error {
	deleted, err := s.repo.DeleteGoal(ctx, accountNumber, goalID)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrGoalNotFound
	}
	return nil
}

// Forecast projects when a goal will be reached from its contribution history.
func (s *LedgerService) Forecast(ctx context.Context, accountNumber string, goalID int64) (*risk.Forecast, error) {
	goal, err := s.repo.FindGoal(ctx, accountNumber, goalID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListGoalContributions(ctx, goal.ID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	forecast := risk.ForecastGoal(*goal, history, s.now().UTC())
	return &forecast, nil
}
