package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/store"
)

func TestLedgerService_Receipt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	env.seedAccount(t, "0241111111", "ama", "100", fixedNow)

	receipt, err := env.ledger.Withdraw(ctx, "0241111111", domain.AmountRequest{Amount: amount("12.5")})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	text, err := env.ledger.Receipt(ctx, "0241111111", receipt.ReferenceID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	for _, want := range []string{"SMARTBANK RECEIPT", "Amount:      GHS 12.50", "Account:     0241111111", receipt.ReferenceID} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in receipt:\n%s", want, text)
		}
	}
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		if utf8.RuneCountInString(line) != receiptWidth {
			t.Fatalf("line %q has width %d, want %d", line, utf8.RuneCountInString(line), receiptWidth)
		}
	}

	if _, err := env.ledger.Receipt(ctx, "0241111111", "missing"); !errors.Is(err, store.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}
