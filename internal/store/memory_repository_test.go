package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

func seedAccount(t *testing.T, repo *MemoryRepository, number, username string, balance string, active bool) {
	t.Helper()
	err := repo.CreateAccount(context.Background(), &domain.Account{
		AccountNumber: number,
		Name:          "Holder " + number,
		Username:      username,
		Balance:       decimal.RequireFromString(balance),
		IsActive:      active,
	})
	if err != nil {
		t.Fatalf("seed account %s: %v", number, err)
	}
}

func TestMemoryRepository_CreateAccountRejectsDuplicates(t *testing.T) {
	repo := NewMemoryRepository()
	seedAccount(t, repo, "0241234567", "ama", "0", true)

	err := repo.CreateAccount(context.Background(), &domain.Account{AccountNumber: "0241234567", Username: "other"})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount for number, got %v", err)
	}
	err = repo.CreateAccount(context.Background(), &domain.Account{AccountNumber: "0209999999", Username: "AMA"})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount for username, got %v", err)
	}
}

func TestMemoryRepository_TransferWritesBalancedRows(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedAccount(t, repo, "0241111111", "kofi", "500.00", true)
	seedAccount(t, repo, "0242222222", "esi", "20.00", true)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entry, err := repo.ApplyTransfer(ctx, TransferParams{
		SenderAccountNumber:    "0241111111",
		RecipientAccountNumber: "0242222222",
		Amount:                 decimal.RequireFromString("120.50"),
		ReferenceID:            "ref-1",
		At:                     at,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entry.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(entry.Rows))
	}
	sum := entry.Rows[0].Amount.Add(entry.Rows[1].Amount)
	if !sum.IsZero() {
		t.Fatalf("expected rows to sum to zero, got %s", sum)
	}
	if entry.Rows[0].ReferenceID != entry.Rows[1].ReferenceID || !entry.Rows[0].CreatedAt.Equal(entry.Rows[1].CreatedAt) {
		t.Fatal("expected rows to share reference id and timestamp")
	}
	if entry.Rows[0].Type != domain.TxTransferOut || entry.Rows[0].Description != "To: 0242222222" {
		t.Fatalf("unexpected sender row: %+v", entry.Rows[0])
	}

	sender, _ := repo.FindAccount(ctx, "0241111111")
	recipient, _ := repo.FindAccount(ctx, "0242222222")
	if !sender.Balance.Equal(decimal.RequireFromString("379.50")) {
		t.Fatalf("unexpected sender balance %s", sender.Balance)
	}
	if !recipient.Balance.Equal(decimal.RequireFromString("140.50")) {
		t.Fatalf("unexpected recipient balance %s", recipient.Balance)
	}
}

func TestMemoryRepository_TransferFailuresLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		recipient string
		amount    string
		wantErr   error
	}{
		{name: "recipient missing", recipient: "0249999999", amount: "10", wantErr: ErrRecipientNotFound},
		{name: "recipient frozen", recipient: "0243333333", amount: "10", wantErr: ErrRecipientFrozen},
		{name: "insufficient funds", recipient: "0242222222", amount: "500.01", wantErr: ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryRepository()
			seedAccount(t, repo, "0241111111", "kofi", "500.00", true)
			seedAccount(t, repo, "0242222222", "esi", "0", true)
			seedAccount(t, repo, "0243333333", "yaw", "0", false)

			_, err := repo.ApplyTransfer(ctx, TransferParams{
				SenderAccountNumber:    "0241111111",
				RecipientAccountNumber: tt.recipient,
				Amount:                 decimal.RequireFromString(tt.amount),
				ReferenceID:            "ref",
				At:                     time.Now(),
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			sender, _ := repo.FindAccount(ctx, "0241111111")
			if !sender.Balance.Equal(decimal.RequireFromString("500.00")) {
				t.Fatalf("sender balance changed to %s", sender.Balance)
			}
			rows, _ := repo.ListTransactions(ctx, "0241111111", 0)
			if len(rows) != 0 {
				t.Fatalf("expected no rows, got %d", len(rows))
			}
		})
	}
}

func TestMemoryRepository_GoalRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedAccount(t, repo, "0241111111", "kofi", "300.00", true)

	goal := &domain.SavingsGoal{AccountNumber: "0241111111", Name: "Laptop", TargetAmount: decimal.NewFromInt(1000), TargetDate: time.Now().AddDate(0, 6, 0)}
	if err := repo.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	amount := decimal.RequireFromString("75.25")
	if _, err := repo.ApplyGoalContribution(ctx, GoalMovementParams{AccountNumber: "0241111111", GoalID: goal.ID, Amount: amount, ReferenceID: "c1", At: time.Now()}); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	history, _ := repo.ListGoalContributions(ctx, goal.ID)
	if len(history) != 1 || !history[0].CumulativeAmount.Equal(amount) {
		t.Fatalf("unexpected history: %+v", history)
	}

	if _, err := repo.ApplyGoalWithdrawal(ctx, GoalMovementParams{AccountNumber: "0241111111", GoalID: goal.ID, Amount: amount, ReferenceID: "w1", At: time.Now()}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	account, _ := repo.FindAccount(ctx, "0241111111")
	stored, _ := repo.FindGoal(ctx, "0241111111", goal.ID)
	if !account.Balance.Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("expected balance to round-trip, got %s", account.Balance)
	}
	if !stored.CurrentAmount.IsZero() {
		t.Fatalf("expected goal amount to round-trip, got %s", stored.CurrentAmount)
	}

	_, err := repo.ApplyGoalWithdrawal(ctx, GoalMovementParams{AccountNumber: "0241111111", GoalID: goal.ID, Amount: decimal.NewFromInt(1), ReferenceID: "w2", At: time.Now()})
	if !errors.Is(err, ErrInsufficientGoalFunds) {
		t.Fatalf("expected ErrInsufficientGoalFunds, got %v", err)
	}
}

func TestMemoryRepository_SettlePaymentCreditsOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedAccount(t, repo, "0241111111", "kofi", "10.00", true)

	if err := repo.CreatePayment(ctx, &domain.PaymentRecord{Reference: "pay-1", AccountNumber: "0241111111", Amount: decimal.NewFromInt(50), Status: domain.PaymentPending}); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	for i, ref := range []string{"r1", "r2"} {
		settlement, err := repo.SettlePayment(ctx, SettleParams{Reference: "pay-1", Status: domain.PaymentSuccess, ReferenceID: ref, At: time.Now()})
		if err != nil {
			t.Fatalf("settle %d: %v", i, err)
		}
		if settlement.Applied != (i == 0) {
			t.Fatalf("settle %d: unexpected applied=%v", i, settlement.Applied)
		}
	}

	account, _ := repo.FindAccount(ctx, "0241111111")
	if !account.Balance.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("expected a single credit, balance %s", account.Balance)
	}
}

func TestMemoryRepository_SettleDisbursementRefundsOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedAccount(t, repo, "0241111111", "kofi", "100.00", true)

	_, err := repo.ApplyDisbursement(ctx, DisbursementParams{
		AccountNumber: "0241111111",
		Amount:        decimal.NewFromInt(40),
		Method:        "mobile_money",
		Recipient:     "0245550000",
		Reference:     "wd-1",
		ReferenceID:   "ref-wd",
		At:            time.Now(),
	})
	if err != nil {
		t.Fatalf("apply disbursement: %v", err)
	}

	for _, status := range []string{domain.PaymentFailed, domain.PaymentReversed} {
		if _, err := repo.SettleDisbursement(ctx, SettleParams{Reference: "wd-1", Status: status, ReferenceID: "ref-" + status, At: time.Now()}); err != nil {
			t.Fatalf("settle %s: %v", status, err)
		}
	}

	account, _ := repo.FindAccount(ctx, "0241111111")
	if !account.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected one refund, balance %s", account.Balance)
	}
}

func TestMemoryRepository_SettlePaymentIgnoresStatusFlipFlop(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedAccount(t, repo, "0241111111", "kofi", "10.00", true)

	if err := repo.CreatePayment(ctx, &domain.PaymentRecord{Reference: "pay-1", AccountNumber: "0241111111", Amount: decimal.NewFromInt(20), Status: domain.PaymentPending}); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	statuses := []string{domain.PaymentSuccess, domain.PaymentReversed, domain.PaymentSuccess}
	for i, status := range statuses {
		settlement, err := repo.SettlePayment(ctx, SettleParams{Reference: "pay-1", Status: status, ReferenceID: fmt.Sprintf("r%d", i), At: time.Now()})
		if err != nil {
			t.Fatalf("settle %s: %v", status, err)
		}
		if settlement.Applied != (i == 0) {
			t.Fatalf("settle #%d %s: unexpected applied=%v", i, status, settlement.Applied)
		}
	}

	account, _ := repo.FindAccount(ctx, "0241111111")
	if !account.Balance.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("expected a single credit, balance %s", account.Balance)
	}
	payment, _ := repo.FindPayment(ctx, "pay-1")
	if payment.Status != domain.PaymentSuccess || payment.CreditedAt == nil {
		t.Fatalf("expected latest status with credit marker, got %+v", payment)
	}
}

func TestMemoryRepository_SettleDisbursementSuccessAfterRefund(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedAccount(t, repo, "0241111111", "kofi", "100.00", true)

	_, err := repo.ApplyDisbursement(ctx, DisbursementParams{
		AccountNumber: "0241111111",
		Amount:        decimal.NewFromInt(40),
		Method:        "mobile_money",
		Recipient:     "0245550000",
		Reference:     "wd-1",
		ReferenceID:   "ref-wd",
		At:            time.Now(),
	})
	if err != nil {
		t.Fatalf("apply disbursement: %v", err)
	}

	tests := []struct {
		status    string
		applied   bool
		reconcile bool
	}{
		{status: domain.PaymentFailed, applied: true},
		{status: domain.PaymentSuccess, reconcile: true},
		{status: domain.PaymentReversed},
		{status: domain.PaymentFailed},
	}
	for _, tt := range tests {
		settlement, err := repo.SettleDisbursement(ctx, SettleParams{Reference: "wd-1", Status: tt.status, ReferenceID: "ref-" + tt.status, At: time.Now()})
		if err != nil {
			t.Fatalf("settle %s: %v", tt.status, err)
		}
		if settlement.Applied != tt.applied || settlement.NeedsReconciliation != tt.reconcile {
			t.Fatalf("settle %s: unexpected settlement %+v", tt.status, settlement)
		}
	}

	account, _ := repo.FindAccount(ctx, "0241111111")
	if !account.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected exactly one refund, balance %s", account.Balance)
	}
	d, _ := repo.FindDisbursement(ctx, "wd-1")
	if d.RefundedAt == nil || d.Status != domain.PaymentFailed {
		t.Fatalf("expected refund marker and latest status, got %+v", d)
	}
}

func TestMemoryRepository_FlagLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedAccount(t, repo, "0241111111", "kofi", "100.00", true)
	entry, err := repo.ApplyWithdrawal(ctx, MovementParams{AccountNumber: "0241111111", Amount: decimal.NewFromInt(90), ReferenceID: "ref-w", At: time.Now()})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	flag := &domain.FlaggedTransaction{ReferenceID: "ref-w", TransactionID: entry.Rows[0].ID, AccountNumber: "0241111111", FlaggedAt: time.Now()}
	created, err := repo.CreateFlag(ctx, flag)
	if err != nil || !created {
		t.Fatalf("expected flag to be created, created=%v err=%v", created, err)
	}
	created, err = repo.CreateFlag(ctx, &domain.FlaggedTransaction{ReferenceID: "ref-w", TransactionID: entry.Rows[0].ID, AccountNumber: "0241111111"})
	if err != nil || created {
		t.Fatalf("expected duplicate flag to be ignored, created=%v err=%v", created, err)
	}

	views, _ := repo.ListFlags(ctx, domain.FlagFilter{Status: domain.FlagPending, MinAmount: decimal.NewFromInt(50)})
	if len(views) != 1 || views[0].AccountName != "Holder 0241111111" {
		t.Fatalf("unexpected views: %+v", views)
	}

	reviewed, err := repo.TransitionFlag(ctx, flag.ID, domain.FlagConfirmed, "admin", time.Now())
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if reviewed.ReviewedBy == nil || *reviewed.ReviewedBy != "admin" {
		t.Fatalf("expected reviewer to be recorded: %+v", reviewed)
	}
	if _, err := repo.TransitionFlag(ctx, flag.ID, domain.FlagApproved, "admin", time.Now()); !errors.Is(err, ErrFlagNotPending) {
		t.Fatalf("expected ErrFlagNotPending, got %v", err)
	}

	deleted, _ := repo.DeleteFlag(ctx, flag.ID)
	if !deleted {
		t.Fatal("expected flag to be deleted")
	}
	if _, err := repo.FindFlag(ctx, flag.ID); !errors.Is(err, ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound, got %v", err)
	}
}

func TestMemoryRepository_CreditFeaturesWithoutHistory(t *testing.T) {
	repo := NewMemoryRepository()
	seedAccount(t, repo, "0241111111", "kofi", "100.00", true)

	features, err := repo.CreditFeatures(context.Background(), "0241111111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if features.Balance == nil || features.TransactionCount == nil {
		t.Fatal("expected balance and count to be present")
	}
	if features.AverageAmount != nil || features.HistoricalMaxBalance != nil {
		t.Fatal("expected average and max balance to be absent without transactions")
	}
}
