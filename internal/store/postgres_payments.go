/**
 * @description
 * Payment and disbursement mirror records for the PostgreSQL repository. Settlement methods
 * lock the record, store the newly observed gateway status and move money at most once.
 * The credited_at and refunded_at markers record that money moved, so a status that
 * flips back and forth at the processor never credits or refunds a second time.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: Transactions and row locks.
 * - github.com/shopspring/decimal: Amounts.
 */

package store

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

const paymentColumns = `reference, account_number, amount, currency, method, status, created_at, updated_at, credited_at`

func scanPayment(row pgx.Row) (*domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	if err := row.Scan(&p.Reference, &p.AccountNumber, &p.Amount, &p.Currency, &p.Method, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.CreditedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

const disbursementColumns = `reference, account_number, amount, method, recipient, status, created_at, updated_at, refunded_at`

func scanDisbursement(row pgx.Row) (*domain.DisbursementRecord, error) {
	var d domain.DisbursementRecord
	if err := row.Scan(&d.Reference, &d.AccountNumber, &d.Amount, &d.Method, &d.Recipient, &d.Status, &d.CreatedAt, &d.UpdatedAt, &d.RefundedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreatePayment stores a pending inbound payment.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.PaymentRecord) error {
	query := `
		INSERT INTO payments (reference, account_number, amount, currency, method, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		payment.Reference,
		payment.AccountNumber,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePayment
		}
		return err
	}
	return nil
}

// FindPayment retrieves a payment by its gateway reference.
func (r *PostgresRepository) FindPayment(ctx context.Context, reference string) (*domain.PaymentRecord, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// SettlePayment records a verified status and credits the account the first time the
// payment reaches success. Later statuses are stored but never move money again.
func (r *PostgresRepository) SettlePayment(ctx context.Context, params SettleParams) (*domain.PaymentSettlement, error) {
	var settlement *domain.PaymentSettlement
	err := r.inSerializableTx(ctx, func(tx pgx.Tx) error {
		payment, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1 FOR UPDATE`, params.Reference))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return err
		}

		settlement = &domain.PaymentSettlement{PreviousStatus: payment.Status, Status: params.Status}
		if payment.Status == params.Status {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE payments SET status = $2, updated_at = $3 WHERE reference = $1`, params.Reference, params.Status, params.At); err != nil {
			return err
		}
		if params.Status != domain.PaymentSuccess || payment.CreditedAt != nil {
			if payment.CreditedAt != nil && params.Status != domain.PaymentSuccess {
				log.Printf("level=warn component=store op=settle_payment reference=%s status=%s msg=\"status changed after credit; balance left unchanged\"", payment.Reference, params.Status)
			}
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE payments SET credited_at = $2 WHERE reference = $1`, params.Reference, params.At); err != nil {
			return err
		}

		amount := payment.Amount
		if params.Amount.IsPositive() {
			if !params.Amount.Equal(payment.Amount) {
				log.Printf("level=warn component=store op=settle_payment reference=%s msg=\"gateway amount differs from recorded amount\" recorded=%s gateway=%s", payment.Reference, payment.Amount, params.Amount)
			}
			amount = params.Amount
		}

		account, err := creditAccountTx(ctx, tx, payment.AccountNumber, amount)
		if err != nil {
			return err
		}
		row := newRow(payment.AccountNumber, domain.TxDeposit, amount, "Paystack deposit "+payment.Reference, params.ReferenceID, params.At)
		if err := insertTransactionTx(ctx, tx, &row); err != nil {
			return err
		}
		settlement.Applied = true
		settlement.Entry = &domain.LedgerEntry{ReferenceID: params.ReferenceID, Account: *account, Rows: []domain.Transaction{row}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// ApplyDisbursement debits the account, appends the Withdrawal row and stores the pending
// disbursement in one unit.
func (r *PostgresRepository) ApplyDisbursement(ctx context.Context, params DisbursementParams) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := r.inSerializableTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockAccountTx(ctx, tx, params.AccountNumber); err != nil {
			return err
		}
		account, err := debitAccountTx(ctx, tx, params.AccountNumber, params.Amount)
		if err != nil {
			return err
		}
		row := newRow(params.AccountNumber, domain.TxWithdrawal, params.Amount.Neg(),
			domain.MobileMoneyDescription(params.Recipient), params.ReferenceID, params.At)
		if err := insertTransactionTx(ctx, tx, &row); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO disbursements (reference, account_number, amount, method, recipient, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		`, params.Reference, params.AccountNumber, params.Amount, params.Method, params.Recipient, domain.PaymentPending, params.At)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicatePayment
			}
			return err
		}
		entry = &domain.LedgerEntry{ReferenceID: params.ReferenceID, Account: *account, Rows: []domain.Transaction{row}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// FindDisbursement retrieves a disbursement by its gateway reference.
func (r *PostgresRepository) FindDisbursement(ctx context.Context, reference string) (*domain.DisbursementRecord, error) {
	d, err := scanDisbursement(r.db.QueryRow(ctx, `SELECT `+disbursementColumns+` FROM disbursements WHERE reference = $1`, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return d, nil
}

func isRefundStatus(status string) bool {
	return status == domain.PaymentFailed || status == domain.PaymentReversed
}

// SettleDisbursement records a verified transfer status. The first failed or reversed
// status returns the debited amount to the account and marks the disbursement refunded.
// A success reported after the refund is stored and flagged for reconciliation.
func (r *PostgresRepository) SettleDisbursement(ctx context.Context, params SettleParams) (*domain.PaymentSettlement, error) {
	var settlement *domain.PaymentSettlement
	err := r.inSerializableTx(ctx, func(tx pgx.Tx) error {
		d, err := scanDisbursement(tx.QueryRow(ctx, `SELECT `+disbursementColumns+` FROM disbursements WHERE reference = $1 FOR UPDATE`, params.Reference))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return err
		}

		settlement = &domain.PaymentSettlement{PreviousStatus: d.Status, Status: params.Status}
		if d.Status == params.Status {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE disbursements SET status = $2, updated_at = $3 WHERE reference = $1`, params.Reference, params.Status, params.At); err != nil {
			return err
		}
		if d.RefundedAt != nil {
			settlement.NeedsReconciliation = params.Status == domain.PaymentSuccess
			return nil
		}
		if !isRefundStatus(params.Status) {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE disbursements SET refunded_at = $2 WHERE reference = $1`, params.Reference, params.At); err != nil {
			return err
		}

		account, err := creditAccountTx(ctx, tx, d.AccountNumber, d.Amount)
		if err != nil {
			return err
		}
		row := newRow(d.AccountNumber, domain.TxWithdrawalReversal, d.Amount, domain.ReversalDescription(d.Reference), params.ReferenceID, params.At)
		if err := insertTransactionTx(ctx, tx, &row); err != nil {
			return err
		}
		settlement.Applied = true
		settlement.Entry = &domain.LedgerEntry{ReferenceID: params.ReferenceID, Account: *account, Rows: []domain.Transaction{row}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}
