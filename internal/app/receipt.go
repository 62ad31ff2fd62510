package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/wirebuddy/ledger-service/internal/domain"
)

const receiptWidth = 56

// Receipt renders a plain-text receipt for one of the account's transactions.
func (s *LedgerService) Receipt(ctx context.Context, accountNumber, referenceID string) (string, error) {
	account, err := s.repo.FindAccount(ctx, accountNumber)
	if err != nil {
		return "", err
	}
	tx, err := s.repo.FindTransactionByReference(ctx, accountNumber, strings.TrimSpace(referenceID))
	if err != nil {
		return "", err
	}
	return RenderReceipt(*account, *tx), nil
}

// RenderReceipt lays a transaction out in a fixed-width box.
func RenderReceipt(account domain.Account, tx domain.Transaction) string {
	border := "+" + strings.Repeat("=", receiptWidth-2) + "+"
	divider := "+" + strings.Repeat("-", receiptWidth-2) + "+"

	var b strings.Builder
	b.WriteString(border + "\n")
	b.WriteString(receiptLine(centered("SMARTBANK RECEIPT")))
	b.WriteString(border + "\n")
	b.WriteString(receiptLine("Date:        " + tx.CreatedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(receiptLine("Type:        " + string(tx.Type)))
	b.WriteString(receiptLine("Account:     " + account.AccountNumber))
	b.WriteString(receiptLine("Name:        " + account.Name))
	b.WriteString(receiptLine("Amount:      GHS " + tx.Amount.Abs().StringFixed(2)))
	b.WriteString(receiptLine("Reference:   " + tx.ReferenceID))
	b.WriteString(divider + "\n")
	b.WriteString(receiptLine(tx.Description))
	b.WriteString(border + "\n")
	return b.String()
}

func centered(text string) string {
	inner := receiptWidth - 4
	if len(text) >= inner {
		return text
	}
	pad := (inner - len(text)) / 2
	return strings.Repeat(" ", pad) + text
}

// receiptLine pads text into the box. Long values (reference ids) are cut to fit.
func receiptLine(text string) string {
	inner := receiptWidth - 4
	if len(text) > inner {
		text = text[:inner]
	}
	return fmt.Sprintf("| %-*s |\n", inner, text)
}
