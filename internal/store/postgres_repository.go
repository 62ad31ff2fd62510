/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface for
 * accounts, transaction history, savings goals, categories and the review queue.
 * Balance-affecting units of work live in postgres_ledger.go and gateway mirrors in
 * postgres_payments.go.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: NUMERIC columns are scanned into decimals.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

const accountColumns = `account_number, name, username, pin_hash, national_id, address, balance, is_active, is_admin, version, created_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.AccountNumber,
		&account.Name,
		&account.Username,
		&account.PINHash,
		&account.NationalID,
		&account.Address,
		&account.Balance,
		&account.IsActive,
		&account.IsAdmin,
		&account.Version,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func collectAccounts(rows pgx.Rows) ([]domain.Account, error) {
	defer rows.Close()
	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// classifyPgError maps transient contention errors onto ErrStoreConflict so callers can retry.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s (sqlstate %s)", ErrStoreConflict, pgErr.Message, pgErr.Code)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateAccount inserts a newly registered account.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (account_number, name, username, pin_hash, national_id, address, balance, is_active, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING version, created_at
	`
	err := r.db.QueryRow(ctx, query,
		account.AccountNumber,
		account.Name,
		account.Username,
		account.PINHash,
		account.NationalID,
		account.Address,
		account.Balance,
		account.IsActive,
		account.IsAdmin,
	).Scan(&account.Version, &account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return err
	}
	return nil
}

// FindAccount retrieves an account by its account number.
func (r *PostgresRepository) FindAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// FindAccountByUsername retrieves an account by its login username.
func (r *PostgresRepository) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(username) = lower(btrim($1))`
	account, err := scanAccount(r.db.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// UpdateProfile updates the editable profile fields of an account.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, accountNumber string, update domain.ProfileUpdate) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET name = COALESCE($2, name),
			address = COALESCE($3, address),
			national_id = COALESCE($4, national_id)
		WHERE account_number = $1
		RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountNumber, update.Name, update.Address, update.NationalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// UpdatePINHash replaces the stored PIN hash.
func (r *PostgresRepository) UpdatePINHash(ctx context.Context, accountNumber string, pinHash string) error {
	result, err := r.db.Exec(ctx, `UPDATE accounts SET pin_hash = $2 WHERE account_number = $1`, accountNumber, pinHash)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetAccountActive freezes or unfreezes an account.
func (r *PostgresRepository) SetAccountActive(ctx context.Context, accountNumber string, active bool) (*domain.Account, error) {
	query := `UPDATE accounts SET is_active = $2 WHERE account_number = $1 RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountNumber, active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// ListAccounts returns every account ordered by creation time.
func (r *PostgresRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

// SearchAccounts matches a case-insensitive name substring or an account-number substring.
func (r *PostgresRepository) SearchAccounts(ctx context.Context, query string) ([]domain.Account, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	sql := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE name ILIKE $1 OR account_number LIKE $1
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, sql, pattern)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

// SystemStats summarises accounts and balances for the admin console.
func (r *PostgresRepository) SystemStats(ctx context.Context) (*domain.SystemStats, error) {
	var stats domain.SystemStats
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active),
			COALESCE(SUM(balance), 0)
		FROM accounts
	`
	err := r.db.QueryRow(ctx, query).Scan(&stats.TotalAccounts, &stats.ActiveAccounts, &stats.FrozenAccounts, &stats.TotalBalance)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// CreditFeatures aggregates the account features used by the credit scorer.
// Average amount and historical max balance are NULL for accounts with no transactions.
func (r *PostgresRepository) CreditFeatures(ctx context.Context, accountNumber string) (*domain.CreditFeatures, error) {
	var features domain.CreditFeatures
	query := `
		WITH running AS (
			SELECT amount, SUM(amount) OVER (ORDER BY created_at, id) AS running_balance
			FROM transactions
			WHERE account_number = $1
		)
		SELECT a.balance::float8,
			(SELECT COUNT(*) FROM running)::float8,
			(SELECT AVG(ABS(amount)) FROM running)::float8,
			(SELECT MAX(running_balance) FROM running)::float8
		FROM accounts a
		WHERE a.account_number = $1
	`
	err := r.db.QueryRow(ctx, query, accountNumber).Scan(
		&features.Balance,
		&features.TransactionCount,
		&features.AverageAmount,
		&features.HistoricalMaxBalance,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &features, nil
}

func scanTransaction(row pgx.Row, tx *domain.Transaction, extra ...any) error {
	dest := []any{&tx.ID, &tx.AccountNumber, &tx.Type, &tx.Amount, &tx.Description, &tx.ReferenceID, &tx.CreatedAt}
	return row.Scan(append(dest, extra...)...)
}

// ListTransactions returns the newest transactions of an account first. A non-positive
// limit returns the whole history.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountNumber string, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT t.id, t.account_number, t.type, t.amount, t.description, t.reference_id, t.created_at,
			COALESCE(c.category, '')
		FROM transactions t
		LEFT JOIN transaction_categories c ON c.transaction_id = t.id
		WHERE t.account_number = $1
		ORDER BY t.created_at DESC, t.id DESC
	`
	args := []any{accountNumber}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := scanTransaction(rows, &tx, &tx.Category); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// FindTransactionByReference returns the row an account owns for a reference id.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, accountNumber string, referenceID string) (*domain.Transaction, error) {
	query := `
		SELECT t.id, t.account_number, t.type, t.amount, t.description, t.reference_id, t.created_at,
			COALESCE(c.category, '')
		FROM transactions t
		LEFT JOIN transaction_categories c ON c.transaction_id = t.id
		WHERE t.account_number = $1 AND t.reference_id = $2
		ORDER BY t.id
		LIMIT 1
	`
	var tx domain.Transaction
	if err := scanTransaction(r.db.QueryRow(ctx, query, accountNumber, referenceID), &tx, &tx.Category); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// ListRecentTransactions returns the newest transactions across all accounts together
// with the owning account and whether a flag already exists for the reference id.
func (r *PostgresRepository) ListRecentTransactions(ctx context.Context, limit int) ([]domain.ScanCandidate, error) {
	query := `
		SELECT t.id, t.account_number, t.type, t.amount, t.description, t.reference_id, t.created_at,
			a.account_number, a.name, a.username, a.pin_hash, a.national_id, a.address, a.balance,
			a.is_active, a.is_admin, a.version, a.created_at,
			EXISTS (SELECT 1 FROM flagged_transactions f WHERE f.reference_id = t.reference_id)
		FROM transactions t
		JOIN accounts a ON a.account_number = t.account_number
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.ScanCandidate
	for rows.Next() {
		var c domain.ScanCandidate
		a := &c.Account
		err := scanTransaction(rows, &c.Transaction,
			&a.AccountNumber, &a.Name, &a.Username, &a.PINHash, &a.NationalID, &a.Address, &a.Balance,
			&a.IsActive, &a.IsAdmin, &a.Version, &a.CreatedAt,
			&c.HasFlag,
		)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ListDebitsSince returns fraud-scored debit rows written after the given time.
func (r *PostgresRepository) ListDebitsSince(ctx context.Context, since time.Time) ([]domain.Transaction, error) {
	query := `
		SELECT id, account_number, type, amount, description, reference_id, created_at
		FROM transactions
		WHERE type IN ($1, $2) AND created_at >= $3
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, domain.TxWithdrawal, domain.TxTransferOut, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := scanTransaction(rows, &tx); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// ListLabeledDescriptions returns categorized descriptions used to retrain the categorizer.
func (r *PostgresRepository) ListLabeledDescriptions(ctx context.Context, since time.Time) ([]domain.LabeledDescription, error) {
	query := `
		SELECT t.description, c.category
		FROM transaction_categories c
		JOIN transactions t ON t.id = c.transaction_id
		WHERE c.category <> $1 AND t.created_at >= $2 AND btrim(t.description) <> ''
	`
	rows, err := r.db.Query(ctx, query, "Uncategorized", since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []domain.LabeledDescription
	for rows.Next() {
		var sample domain.LabeledDescription
		if err := rows.Scan(&sample.Description, &sample.Category); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// SaveTransactionCategory stores or replaces the category of a transaction row.
func (r *PostgresRepository) SaveTransactionCategory(ctx context.Context, category domain.TransactionCategory) error {
	query := `
		INSERT INTO transaction_categories (transaction_id, category, confidence, model_version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transaction_id) DO UPDATE
		SET category = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			model_version = EXCLUDED.model_version
	`
	_, err := r.db.Exec(ctx, query, category.TransactionID, category.Category, category.Confidence, category.ModelVersion)
	return err
}

const goalColumns = `id, account_number, goal_name, target_amount, current_amount, target_date, created_at`

func scanGoal(row pgx.Row) (*domain.SavingsGoal, error) {
	var goal domain.SavingsGoal
	err := row.Scan(&goal.ID, &goal.AccountNumber, &goal.Name, &goal.TargetAmount, &goal.CurrentAmount, &goal.TargetDate, &goal.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

// CreateGoal inserts a savings goal with a zero balance.
func (r *PostgresRepository) CreateGoal(ctx context.Context, goal *domain.SavingsGoal) error {
	query := `
		INSERT INTO savings_goals (account_number, goal_name, target_amount, current_amount, target_date)
		VALUES ($1, $2, $3, 0, $4)
		RETURNING ` + goalColumns
	created, err := scanGoal(r.db.QueryRow(ctx, query, goal.AccountNumber, goal.Name, goal.TargetAmount, goal.TargetDate))
	if err != nil {
		return err
	}
	*goal = *created
	return nil
}

// ListGoals returns an account's goals ordered by target date.
func (r *PostgresRepository) ListGoals(ctx context.Context, accountNumber string) ([]domain.SavingsGoal, error) {
	rows, err := r.db.Query(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE account_number = $1 ORDER BY target_date, id`, accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []domain.SavingsGoal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *goal)
	}
	return goals, rows.Err()
}

// FindGoal retrieves a goal owned by the account.
func (r *PostgresRepository) FindGoal(ctx context.Context, accountNumber string, goalID int64) (*domain.SavingsGoal, error) {
	goal, err := scanGoal(r.db.QueryRow(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE id = $1 AND account_number = $2`, goalID, accountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	return goal, nil
}

// DeleteGoal removes a goal and its contribution history.
func (r *PostgresRepository) DeleteGoal(ctx context.Context, accountNumber string, goalID int64) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM savings_goals WHERE id = $1 AND account_number = $2`, goalID, accountNumber)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ListGoalContributions returns the contribution history of a goal, oldest first.
func (r *PostgresRepository) ListGoalContributions(ctx context.Context, goalID int64) ([]domain.GoalContribution, error) {
	query := `
		SELECT goal_id, delta, cumulative_amount, created_at
		FROM savings_goals_history
		WHERE goal_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.GoalContribution
	for rows.Next() {
		var c domain.GoalContribution
		if err := rows.Scan(&c.GoalID, &c.Delta, &c.CumulativeAmount, &c.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, c)
	}
	return history, rows.Err()
}

const flagColumns = `id, reference_id, transaction_id, account_number, score, model_version, status, flagged_at, reviewed_by, reviewed_at`

func scanFlag(row pgx.Row, flag *domain.FlaggedTransaction, extra ...any) error {
	dest := []any{
		&flag.ID, &flag.ReferenceID, &flag.TransactionID, &flag.AccountNumber, &flag.Score,
		&flag.ModelVersion, &flag.Status, &flag.FlaggedAt, &flag.ReviewedBy, &flag.ReviewedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

// CreateFlag enqueues a review item. It reports false when a flag for the same
// reference id already exists, leaving the existing flag untouched.
func (r *PostgresRepository) CreateFlag(ctx context.Context, flag *domain.FlaggedTransaction) (bool, error) {
	if flag.ID == "" {
		flag.ID = uuid.NewString()
	}
	if flag.Status == "" {
		flag.Status = domain.FlagPending
	}
	query := `
		INSERT INTO flagged_transactions (id, reference_id, transaction_id, account_number, score, model_version, status, flagged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (reference_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query,
		flag.ID, flag.ReferenceID, flag.TransactionID, flag.AccountNumber, flag.Score, flag.ModelVersion, flag.Status, flag.FlaggedAt)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// buildFlagListQuery assembles the review-queue listing with optional filters.
func buildFlagListQuery(filter domain.FlagFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("f.status = $%d", len(args)))
	}
	if filter.MinAmount.GreaterThan(decimal.Zero) {
		args = append(args, filter.MinAmount)
		where = append(where, fmt.Sprintf("ABS(t.amount) >= $%d", len(args)))
	}

	query := `
		SELECT f.id, f.reference_id, f.transaction_id, f.account_number, f.score, f.model_version,
			f.status, f.flagged_at, f.reviewed_by, f.reviewed_at,
			t.type, t.amount, t.description, t.created_at, a.name, a.is_active
		FROM flagged_transactions f
		JOIN transactions t ON t.id = f.transaction_id
		JOIN accounts a ON a.account_number = f.account_number`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY f.flagged_at DESC"
	return query, args
}

// ListFlags returns review-queue entries joined with their transaction and account.
func (r *PostgresRepository) ListFlags(ctx context.Context, filter domain.FlagFilter) ([]domain.FlaggedTransactionView, error) {
	query, args := buildFlagListQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []domain.FlaggedTransactionView
	for rows.Next() {
		var v domain.FlaggedTransactionView
		err := scanFlag(rows, &v.FlaggedTransaction,
			&v.TransactionType, &v.Amount, &v.Description, &v.TransactionAt, &v.AccountName, &v.AccountActive)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// FindFlag retrieves a review-queue entry.
func (r *PostgresRepository) FindFlag(ctx context.Context, flagID string) (*domain.FlaggedTransaction, error) {
	var flag domain.FlaggedTransaction
	if err := scanFlag(r.db.QueryRow(ctx, `SELECT `+flagColumns+` FROM flagged_transactions WHERE id = $1`, flagID), &flag); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFlagNotFound
		}
		return nil, err
	}
	return &flag, nil
}

// TransitionFlag moves a pending flag to a terminal status. The update only matches
// pending rows, so concurrent reviewers cannot both succeed.
func (r *PostgresRepository) TransitionFlag(ctx context.Context, flagID string, status domain.FlagStatus, reviewer string, at time.Time) (*domain.FlaggedTransaction, error) {
	query := `
		UPDATE flagged_transactions
		SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + flagColumns
	var flag domain.FlaggedTransaction
	err := scanFlag(r.db.QueryRow(ctx, query, flagID, status, reviewer, at), &flag)
	if err == nil {
		return &flag, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, findErr := r.FindFlag(ctx, flagID); findErr != nil {
		return nil, findErr
	}
	return nil, ErrFlagNotPending
}

// DeleteFlag removes a review-queue entry in any state.
func (r *PostgresRepository) DeleteFlag(ctx context.Context, flagID string) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM flagged_transactions WHERE id = $1`, flagID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
