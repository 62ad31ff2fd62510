package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/risk"
	"github.com/wirebuddy/ledger-service/internal/store"
)

// riskyWithdrawal records a withdrawal the seed fraud model flags: large, at night, from a
// day-old account.
func riskyWithdrawal(t *testing.T, env *testEnv, account string) *domain.LedgerReceipt {
	t.Helper()
	night := fixedNow.Add(-10 * time.Hour)
	env.ledger.now = func() time.Time { return night }
	defer func() { env.ledger.now = func() time.Time { return fixedNow } }()

	receipt, err := env.ledger.Withdraw(context.Background(), account, domain.AmountRequest{Amount: amount("6000")})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	return receipt
}

func TestReviewService_FlagLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	env.seedAccount(t, "0241111111", "ama", "10000", fixedNow.AddDate(0, 0, -1))
	riskyWithdrawal(t, env, "0241111111")

	flags, err := env.review.List(ctx, domain.FlagFilter{})
	if err != nil || len(flags) != 1 {
		t.Fatalf("expected one flag, got %d err=%v", len(flags), err)
	}
	flagID := flags[0].ID
	if flags[0].AccountName != "Holder 0241111111" || !flags[0].Amount.Equal(amount("-6000")) {
		t.Fatalf("expected flag joined with transaction and account, got %+v", flags[0])
	}

	confirmed, err := env.review.Confirm(ctx, flagID, "admin")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.FlagConfirmed || confirmed.ReviewedBy == nil || *confirmed.ReviewedBy != "admin" {
		t.Fatalf("unexpected confirmed flag %+v", confirmed)
	}
	if confirmed.ReviewedAt == nil || !confirmed.ReviewedAt.Equal(fixedNow) {
		t.Fatalf("expected review timestamp, got %v", confirmed.ReviewedAt)
	}

	if _, err := env.review.Approve(ctx, flagID, "admin"); !errors.Is(err, ErrInvalidFlagTransition) {
		t.Fatalf("expected ErrInvalidFlagTransition, got %v", err)
	}
	if _, err := env.review.Confirm(ctx, flagID, "admin"); !errors.Is(err, ErrInvalidFlagTransition) {
		t.Fatalf("expected ErrInvalidFlagTransition, got %v", err)
	}
	if _, err := env.review.Confirm(ctx, "missing", "admin"); !errors.Is(err, store.ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound, got %v", err)
	}

	pending, _ := env.review.List(ctx, domain.FlagFilter{Status: domain.FlagPending})
	if len(pending) != 0 {
		t.Fatalf("expected no pending flags, got %d", len(pending))
	}

	if err := env.review.Delete(ctx, flagID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.review.Delete(ctx, flagID); !errors.Is(err, store.ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound on second delete, got %v", err)
	}
}

func TestReviewService_ListRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t, false)
	if _, err := env.review.List(context.Background(), domain.FlagFilter{Status: "escalated"}); !errors.Is(err, ErrInvalidFlagStatus) {
		t.Fatalf("expected ErrInvalidFlagStatus, got %v", err)
	}
}

func TestReviewService_ScanRecentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	env.seedAccount(t, "0241111111", "ama", "20000", fixedNow.AddDate(0, 0, -1))
	env.seedAccount(t, "0242222222", "kofi", "0", fixedNow.AddDate(-1, 0, 0))

	// Without a fraud model nothing is flagged at write time.
	riskyWithdrawal(t, env, "0241111111")
	riskyWithdrawal(t, env, "0241111111")
	if _, err := env.ledger.Transfer(ctx, "0241111111", domain.TransferRequest{RecipientAccountNumber: "0242222222", Amount: amount("10")}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := env.ledger.Deposit(ctx, "0242222222", domain.AmountRequest{Amount: amount("5")}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	installSeed(t, env.registry, risk.KindFraud)

	first, err := env.review.ScanRecent(ctx, 50)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// Two withdrawals and the Transfer Out row are scored; Transfer In and Deposit are skipped.
	if first.Scanned != 3 || first.Skipped != 2 || first.Flagged != 2 {
		t.Fatalf("unexpected first scan %+v", first)
	}

	second, err := env.review.ScanRecent(ctx, 50)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if second.Flagged != 0 {
		t.Fatalf("second scan must not add flags, got %+v", second)
	}

	flags, _ := env.review.List(ctx, domain.FlagFilter{})
	if len(flags) != 2 {
		t.Fatalf("expected 2 flags after two scans, got %d", len(flags))
	}
}
