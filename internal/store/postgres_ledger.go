/**
 * @description
 * Balance-affecting units of work for the PostgreSQL repository. Every method runs inside one
 * SERIALIZABLE transaction: the affected account rows are locked with `SELECT ... FOR UPDATE`,
 * balances are changed with conditional updates that also bump the row version, and all
 * transaction rows are appended before commit. Any error rolls the whole unit back.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: Transactions and row locks.
 * - github.com/shopspring/decimal: Signed ledger amounts.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

// inSerializableTx runs fn in a SERIALIZABLE transaction and commits it when fn succeeds.
// Serialization failures, deadlocks and lock timeouts come back as ErrStoreConflict.
func (r *PostgresRepository) inSerializableTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return classifyPgError(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return classifyPgError(err)
	}
	return classifyPgError(tx.Commit(ctx))
}

func lockAccountTx(ctx context.Context, tx pgx.Tx, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1 FOR UPDATE`
	account, err := scanAccount(tx.QueryRow(ctx, query, accountNumber))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// creditAccountTx adds amount to the balance and returns the updated account.
func creditAccountTx(ctx context.Context, tx pgx.Tx, accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1, version = version + 1
		WHERE account_number = $2
		RETURNING ` + accountColumns
	account, err := scanAccount(tx.QueryRow(ctx, query, amount, accountNumber))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// debitAccountTx subtracts amount only when the balance covers it.
func debitAccountTx(ctx context.Context, tx pgx.Tx, accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance - $1, version = version + 1
		WHERE account_number = $2 AND balance >= $1
		RETURNING ` + accountColumns
	account, err := scanAccount(tx.QueryRow(ctx, query, amount, accountNumber))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}
	return account, nil
}

func insertTransactionTx(ctx context.Context, tx pgx.Tx, row *domain.Transaction) error {
	query := `
		INSERT INTO transactions (account_number, type, amount, description, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return tx.QueryRow(ctx, query,
		row.AccountNumber,
		row.Type,
		row.Amount,
		row.Description,
		row.ReferenceID,
		row.CreatedAt,
	).Scan(&row.ID)
}

func newRow(accountNumber string, txType domain.TransactionType, amount decimal.Decimal, description, referenceID string, at time.Time) domain.Transaction {
	return domain.Transaction{
		AccountNumber: accountNumber,
		Type:          txType,
		Amount:        amount,
		Description:   description,
		ReferenceID:   referenceID,
		CreatedAt:     at,
	}
}

// ApplyDeposit credits an account and appends a Deposit row.
func (r *PostgresRepository) ApplyDeposit(ctx context.Context, params MovementParams) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := r.inSerializableTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockAccountTx(ctx, tx, params.AccountNumber); err != nil {
			return err
		}
		account, err := creditAccountTx(ctx, tx, params.AccountNumber, params.Amount)
		if err != nil {
			return err
		}
		row := newRow(params.AccountNumber, domain.TxDeposit, params.Amount, params.Description, params.ReferenceID, params.At)
		if err := insertTransactionTx(ctx, tx, &row); err != nil {
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

// ApplyWithdrawal debits an account and appends a negative Withdrawal row.
func (r *PostgresRepository) ApplyWithdrawal(ctx context.Context, params MovementParams) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := r.inSerializableTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockAccountTx(ctx, tx, params.AccountNumber); err != nil {
			return err
		}
		account, err := debitAccountTx(ctx, tx, params.AccountNumber, params.Amount)
		if err != nil {
			return err
		}
		row := newRow(params.AccountNumber, domain.TxWithdrawal, params.Amount.Neg(), params.Description, params.ReferenceID, params.At)
		if err := insertTransactionTx(ctx, tx, &row); err != nil {
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

// ApplyTransfer moves funds between two accounts. Both rows are locked in account-number
// order so opposing transfers cannot deadlock each other, and the two transaction rows
// share one reference id and one timestamp.
func (r *PostgresRepository) ApplyTransfer(ctx context.Context, params TransferParams) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := r.inSerializableTx(ctx, func(tx pgx.Tx) error {
		query := `
			SELECT ` + accountColumns + `
			FROM accounts
			WHERE account_number = ANY($1)
			ORDER BY account_number
			FOR UPDATE
		`
		rows, err := tx.Query(ctx, query, []string{params.SenderAccountNumber, params.RecipientAccountNumber})
		if err != nil {
			return err
		}
		locked, err := collectAccounts(rows)
		if err != nil {
			return err
		}

		var sender, recipient *domain.Account
		for i := range locked {
			switch locked[i].AccountNumber {
			case params.SenderAccountNumber:
				sender = &locked[i]
			case params.RecipientAccountNumber:
				recipient = &locked[i]
			}
		}
		if recipient == nil {
			return ErrRecipientNotFound
		}
		if sender == nil {
			return ErrAccountNotFound
		}
		if !recipient.IsActive {
			return ErrRecipientFrozen
		}

		debited, err := debitAccountTx(ctx, tx, sender.AccountNumber, params.Amount)
		if err != nil {
			return err
		}
		if _, err := creditAccountTx(ctx, tx, recipient.AccountNumber, params.Amount); err != nil {
			return err
		}

		out := newRow(sender.AccountNumber, domain.TxTransferOut, params.Amount.Neg(),
			domain.TransferOutDescription(recipient.AccountNumber), params.ReferenceID, params.At)
		in := newRow(recipient.AccountNumber, domain.TxTransferIn, params.Amount,
			domain.TransferInDescription(sender.AccountNumber), params.ReferenceID, params.At)
		if err := insertTransactionTx(ctx, tx, &out); err != nil {
			return err
		}
		if err := insertTransactionTx(ctx, tx, &in); err != nil {
			return err
		}

		entry = &domain.LedgerEntry{ReferenceID: params.ReferenceID, Account: *debited, Rows: []domain.Transaction{out, in}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func lockGoalTx(ctx context.Context, tx pgx.Tx, accountNumber string, goalID int64) (*domain.SavingsGoal, error) {
	query := `SELECT ` + goalColumns + ` FROM savings_goals WHERE id = $1 AND account_number = $2 FOR UPDATE`
	goal, err := scanGoal(tx.QueryRow(ctx, query, goalID, accountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	return goal, nil
}

// ApplyGoalContribution moves funds from the account balance into a savings goal and
// records the new cumulative amount in the goal history.
func (r *PostgresRepository) ApplyGoalContribution(ctx context.Context, params GoalMovementParams) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := r.inSerializableTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockAccountTx(ctx, tx, params.AccountNumber); err != nil {
			return err
		}
		if _, err := lockGoalTx(ctx, tx, params.AccountNumber, params.GoalID); err != nil {
			return err
		}
		account, err := debitAccountTx(ctx, tx, params.AccountNumber, params.Amount)
		if err != nil {
			return err
		}

		var cumulative decimal.Decimal
		err = tx.QueryRow(ctx,
			`UPDATE savings_goals SET current_amount = current_amount + $1 WHERE id = $2 RETURNING current_amount`,
			params.Amount, params.GoalID,
		).Scan(&cumulative)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO savings_goals_history (goal_id, delta, cumulative_amount, created_at) VALUES ($1, $2, $3, $4)`,
			params.GoalID, params.Amount, cumulative, params.At,
		)
		if err != nil {
			return err
		}

		row := newRow(params.AccountNumber, domain.TxSavingsContribution, params.Amount.Neg(),
			domain.GoalContributionDescription(params.GoalID), params.ReferenceID, params.At)
		if err := insertTransactionTx(ctx, tx, &row); err != nil {
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

// ApplyGoalWithdrawal moves funds from a savings goal back to the account balance.
func (r *PostgresRepository) ApplyGoalWithdrawal(ctx context.Context, params GoalMovementParams) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := r.inSerializableTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockAccountTx(ctx, tx, params.AccountNumber); err != nil {
			return err
		}
		goal, err := lockGoalTx(ctx, tx, params.AccountNumber, params.GoalID)
		if err != nil {
			return err
		}
		if goal.CurrentAmount.LessThan(params.Amount) {
			return ErrInsufficientGoalFunds
		}

		if _, err := tx.Exec(ctx, `UPDATE savings_goals SET current_amount = current_amount - $1 WHERE id = $2`, params.Amount, params.GoalID); err != nil {
			return err
		}
		account, err := creditAccountTx(ctx, tx, params.AccountNumber, params.Amount)
		if err != nil {
			return err
		}

		row := newRow(params.AccountNumber, domain.TxSavingsWithdrawal, params.Amount,
			domain.GoalWithdrawalDescription(params.GoalID), params.ReferenceID, params.At)
		if err := insertTransactionTx(ctx, tx, &row); err != nil {
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
