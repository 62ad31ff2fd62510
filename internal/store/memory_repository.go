/**
 * @description
 * An in-process implementation of `Repository`. Each unit of work runs under a single
 * mutex and validates everything before its first write, so it has the same
 * all-or-nothing behaviour as the PostgreSQL repository. It backs local runs without a
 * database and the service-level tests.
 *
 * @dependencies
 * - github.com/google/uuid: Flag ids.
 * - github.com/shopspring/decimal: Money amounts.
 */

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps all state in maps guarded by one RWMutex.
type MemoryRepository struct {
	mu sync.RWMutex

	accounts      map[string]*domain.Account
	transactions  []domain.Transaction
	nextTxID      int64
	categories    map[int64]domain.TransactionCategory
	goals         map[int64]*domain.SavingsGoal
	nextGoalID    int64
	contributions map[int64][]domain.GoalContribution
	flags         map[string]*domain.FlaggedTransaction
	flagByRef     map[string]string
	payments      map[string]*domain.PaymentRecord
	disbursements map[string]*domain.DisbursementRecord

	now func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:      make(map[string]*domain.Account),
		categories:    make(map[int64]domain.TransactionCategory),
		goals:         make(map[int64]*domain.SavingsGoal),
		contributions: make(map[int64][]domain.GoalContribution),
		flags:         make(map[string]*domain.FlaggedTransaction),
		flagByRef:     make(map[string]string),
		payments:      make(map[string]*domain.PaymentRecord),
		disbursements: make(map[string]*domain.DisbursementRecord),
		now:           time.Now,
	}
}

func (r *MemoryRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.AccountNumber]; exists {
		return ErrDuplicateAccount
	}
	for _, existing := range r.accounts {
		if strings.EqualFold(existing.Username, account.Username) {
			return ErrDuplicateAccount
		}
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = r.now()
	}
	stored := *account
	r.accounts[account.AccountNumber] = &stored
	return nil
}

func (r *MemoryRepository) FindAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *MemoryRepository) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	username = strings.TrimSpace(username)
	for _, account := range r.accounts {
		if strings.EqualFold(account.Username, username) {
			copied := *account
			return &copied, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *MemoryRepository) UpdateProfile(ctx context.Context, accountNumber string, update domain.ProfileUpdate) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if update.Name != nil {
		account.Name = *update.Name
	}
	if update.Address != nil {
		account.Address = *update.Address
	}
	if update.NationalID != nil {
		account.NationalID = *update.NationalID
	}
	copied := *account
	return &copied, nil
}

func (r *MemoryRepository) UpdatePINHash(ctx context.Context, accountNumber string, pinHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountNumber]
	if !ok {
		return ErrAccountNotFound
	}
	account.PINHash = pinHash
	return nil
}

func (r *MemoryRepository) SetAccountActive(ctx context.Context, accountNumber string, active bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	account.IsActive = active
	copied := *account
	return &copied, nil
}

func (r *MemoryRepository) sortedAccounts(match func(*domain.Account) bool) []domain.Account {
	var accounts []domain.Account
	for _, account := range r.accounts {
		if match(account) {
			accounts = append(accounts, *account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].AccountNumber < accounts[j].AccountNumber
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts
}

func (r *MemoryRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedAccounts(func(*domain.Account) bool { return true }), nil
}

func (r *MemoryRepository) SearchAccounts(ctx context.Context, query string) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	accounts := r.sortedAccounts(func(a *domain.Account) bool {
		return strings.Contains(strings.ToLower(a.Name), needle) || strings.Contains(a.AccountNumber, needle)
	})
	sort.SliceStable(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

func (r *MemoryRepository) SystemStats(ctx context.Context) (*domain.SystemStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.SystemStats{TotalBalance: decimal.Zero}
	for _, account := range r.accounts {
		stats.TotalAccounts++
		if account.IsActive {
			stats.ActiveAccounts++
		} else {
			stats.FrozenAccounts++
		}
		stats.TotalBalance = stats.TotalBalance.Add(account.Balance)
	}
	return stats, nil
}

func (r *MemoryRepository) CreditFeatures(ctx context.Context, accountNumber string) (*domain.CreditFeatures, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}

	balance, _ := account.Balance.Float64()
	features := &domain.CreditFeatures{Balance: &balance}

	var (
		count   float64
		total   = decimal.Zero
		running = decimal.Zero
		peak    *decimal.Decimal
	)
	for _, tx := range r.transactions {
		if tx.AccountNumber != accountNumber {
			continue
		}
		count++
		total = total.Add(tx.Amount.Abs())
		running = running.Add(tx.Amount)
		if peak == nil || running.GreaterThan(*peak) {
			v := running
			peak = &v
		}
	}
	features.TransactionCount = &count
	if count > 0 {
		avg, _ := total.Div(decimal.NewFromFloat(count)).Float64()
		maxBalance, _ := peak.Float64()
		features.AverageAmount = &avg
		features.HistoricalMaxBalance = &maxBalance
	}
	return features, nil
}

func (r *MemoryRepository) appendRow(row domain.Transaction) domain.Transaction {
	r.nextTxID++
	row.ID = r.nextTxID
	r.transactions = append(r.transactions, row)
	return row
}

func (r *MemoryRepository) entry(referenceID string, account *domain.Account, rows ...domain.Transaction) *domain.LedgerEntry {
	return &domain.LedgerEntry{ReferenceID: referenceID, Account: *account, Rows: rows}
}

func (r *MemoryRepository) ApplyDeposit(ctx context.Context, params MovementParams) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[params.AccountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	account.Balance = account.Balance.Add(params.Amount)
	account.Version++
	row := r.appendRow(newRow(params.AccountNumber, domain.TxDeposit, params.Amount, params.Description, params.ReferenceID, params.At))
	return r.entry(params.ReferenceID, account, row), nil
}

func (r *MemoryRepository) ApplyWithdrawal(ctx context.Context, params MovementParams) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[params.AccountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if account.Balance.LessThan(params.Amount) {
		return nil, ErrInsufficientFunds
	}
	account.Balance = account.Balance.Sub(params.Amount)
	account.Version++
	row := r.appendRow(newRow(params.AccountNumber, domain.TxWithdrawal, params.Amount.Neg(), params.Description, params.ReferenceID, params.At))
	return r.entry(params.ReferenceID, account, row), nil
}

func (r *MemoryRepository) ApplyTransfer(ctx context.Context, params TransferParams) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recipient, ok := r.accounts[params.RecipientAccountNumber]
	if !ok {
		return nil, ErrRecipientNotFound
	}
	sender, ok := r.accounts[params.SenderAccountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if !recipient.IsActive {
		return nil, ErrRecipientFrozen
	}
	if sender.Balance.LessThan(params.Amount) {
		return nil, ErrInsufficientFunds
	}

	sender.Balance = sender.Balance.Sub(params.Amount)
	sender.Version++
	recipient.Balance = recipient.Balance.Add(params.Amount)
	recipient.Version++

	out := r.appendRow(newRow(sender.AccountNumber, domain.TxTransferOut, params.Amount.Neg(),
		domain.TransferOutDescription(recipient.AccountNumber), params.ReferenceID, params.At))
	in := r.appendRow(newRow(recipient.AccountNumber, domain.TxTransferIn, params.Amount,
		domain.TransferInDescription(sender.AccountNumber), params.ReferenceID, params.At))
	return r.entry(params.ReferenceID, sender, out, in), nil
}

func (r *MemoryRepository) ownedGoal(accountNumber string, goalID int64) (*domain.SavingsGoal, error) {
	goal, ok := r.goals[goalID]
	if !ok || goal.AccountNumber != accountNumber {
		return nil, ErrGoalNotFound
	}
	return goal, nil
}

func (r *MemoryRepository) ApplyGoalContribution(ctx context.Context, params GoalMovementParams) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[params.AccountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	goal, err := r.ownedGoal(params.AccountNumber, params.GoalID)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThan(params.Amount) {
		return nil, ErrInsufficientFunds
	}

	account.Balance = account.Balance.Sub(params.Amount)
	account.Version++
	goal.CurrentAmount = goal.CurrentAmount.Add(params.Amount)
	r.contributions[goal.ID] = append(r.contributions[goal.ID], domain.GoalContribution{
		GoalID:           goal.ID,
		Delta:            params.Amount,
		CumulativeAmount: goal.CurrentAmount,
		CreatedAt:        params.At,
	})
	row := r.appendRow(newRow(params.AccountNumber, domain.TxSavingsContribution, params.Amount.Neg(),
		domain.GoalContributionDescription(goal.ID), params.ReferenceID, params.At))
	return r.entry(params.ReferenceID, account, row), nil
}

func (r *MemoryRepository) ApplyGoalWithdrawal(ctx context.Context, params GoalMovementParams) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[params.AccountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	goal, err := r.ownedGoal(params.AccountNumber, params.GoalID)
	if err != nil {
		return nil, err
	}
	if goal.CurrentAmount.LessThan(params.Amount) {
		return nil, ErrInsufficientGoalFunds
	}

	goal.CurrentAmount = goal.CurrentAmount.Sub(params.Amount)
	account.Balance = account.Balance.Add(params.Amount)
	account.Version++
	row := r.appendRow(newRow(params.AccountNumber, domain.TxSavingsWithdrawal, params.Amount,
		domain.GoalWithdrawalDescription(goal.ID), params.ReferenceID, params.At))
	return r.entry(params.ReferenceID, account, row), nil
}

func (r *MemoryRepository) withCategory(tx domain.Transaction) domain.Transaction {
	if c, ok := r.categories[tx.ID]; ok {
		tx.Category = c.Category
	}
	return tx
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, accountNumber string, limit int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Transaction
	for i := len(r.transactions) - 1; i >= 0; i-- {
		tx := r.transactions[i]
		if tx.AccountNumber != accountNumber {
			continue
		}
		result = append(result, r.withCategory(tx))
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r *MemoryRepository) FindTransactionByReference(ctx context.Context, accountNumber string, referenceID string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tx := range r.transactions {
		if tx.AccountNumber == accountNumber && tx.ReferenceID == referenceID {
			found := r.withCategory(tx)
			return &found, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (r *MemoryRepository) ListRecentTransactions(ctx context.Context, limit int) ([]domain.ScanCandidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []domain.ScanCandidate
	for i := len(r.transactions) - 1; i >= 0 && len(candidates) < limit; i-- {
		tx := r.transactions[i]
		account, ok := r.accounts[tx.AccountNumber]
		if !ok {
			continue
		}
		_, flagged := r.flagByRef[tx.ReferenceID]
		candidates = append(candidates, domain.ScanCandidate{Transaction: tx, Account: *account, HasFlag: flagged})
	}
	return candidates, nil
}

func (r *MemoryRepository) ListDebitsSince(ctx context.Context, since time.Time) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Transaction
	for _, tx := range r.transactions {
		if tx.Type.IsFraudScored() && !tx.CreatedAt.Before(since) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (r *MemoryRepository) ListLabeledDescriptions(ctx context.Context, since time.Time) ([]domain.LabeledDescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var samples []domain.LabeledDescription
	for _, tx := range r.transactions {
		c, ok := r.categories[tx.ID]
		if !ok || c.Category == "Uncategorized" || tx.CreatedAt.Before(since) || strings.TrimSpace(tx.Description) == "" {
			continue
		}
		samples = append(samples, domain.LabeledDescription{Description: tx.Description, Category: c.Category})
	}
	return samples, nil
}

func (r *MemoryRepository) SaveTransactionCategory(ctx context.Context, category domain.TransactionCategory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.categories[category.TransactionID] = category
	return nil
}

func (r *MemoryRepository) CreateGoal(ctx context.Context, goal *domain.SavingsGoal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextGoalID++
	goal.ID = r.nextGoalID
	goal.CurrentAmount = decimal.Zero
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = r.now()
	}
	stored := *goal
	r.goals[goal.ID] = &stored
	return nil
}

func (r *MemoryRepository) ListGoals(ctx context.Context, accountNumber string) ([]domain.SavingsGoal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var goals []domain.SavingsGoal
	for _, goal := range r.goals {
		if goal.AccountNumber == accountNumber {
			goals = append(goals, *goal)
		}
	}
	sort.Slice(goals, func(i, j int) bool {
		if goals[i].TargetDate.Equal(goals[j].TargetDate) {
			return goals[i].ID < goals[j].ID
		}
		return goals[i].TargetDate.Before(goals[j].TargetDate)
	})
	return goals, nil
}

func (r *MemoryRepository) FindGoal(ctx context.Context, accountNumber string, goalID int64) (*domain.SavingsGoal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	goal, err := r.ownedGoal(accountNumber, goalID)
	if err != nil {
		return nil, err
	}
	copied := *goal
	return &copied, nil
}

func (r *MemoryRepository) DeleteGoal(ctx context.Context, accountNumber string, goalID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.ownedGoal(accountNumber, goalID); err != nil {
		return false, nil
	}
	delete(r.goals, goalID)
	delete(r.contributions, goalID)
	return true, nil
}

func (r *MemoryRepository) ListGoalContributions(ctx context.Context, goalID int64) ([]domain.GoalContribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := make([]domain.GoalContribution, len(r.contributions[goalID]))
	copy(history, r.contributions[goalID])
	return history, nil
}

func (r *MemoryRepository) CreateFlag(ctx context.Context, flag *domain.FlaggedTransaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.flagByRef[flag.ReferenceID]; exists {
		return false, nil
	}
	if flag.ID == "" {
		flag.ID = uuid.NewString()
	}
	if flag.Status == "" {
		flag.Status = domain.FlagPending
	}
	stored := *flag
	r.flags[flag.ID] = &stored
	r.flagByRef[flag.ReferenceID] = flag.ID
	return true, nil
}

func (r *MemoryRepository) findTransactionByID(id int64) (domain.Transaction, bool) {
	for _, tx := range r.transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return domain.Transaction{}, false
}

func (r *MemoryRepository) ListFlags(ctx context.Context, filter domain.FlagFilter) ([]domain.FlaggedTransactionView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var views []domain.FlaggedTransactionView
	for _, flag := range r.flags {
		if filter.Status != "" && flag.Status != filter.Status {
			continue
		}
		tx, ok := r.findTransactionByID(flag.TransactionID)
		if !ok {
			continue
		}
		account, ok := r.accounts[flag.AccountNumber]
		if !ok {
			continue
		}
		if filter.MinAmount.IsPositive() && tx.Amount.Abs().LessThan(filter.MinAmount) {
			continue
		}
		views = append(views, domain.FlaggedTransactionView{
			FlaggedTransaction: *flag,
			TransactionType:    tx.Type,
			Amount:             tx.Amount,
			Description:        tx.Description,
			TransactionAt:      tx.CreatedAt,
			AccountName:        account.Name,
			AccountActive:      account.IsActive,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].FlaggedAt.After(views[j].FlaggedAt) })
	return views, nil
}

func (r *MemoryRepository) FindFlag(ctx context.Context, flagID string) (*domain.FlaggedTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flag, ok := r.flags[flagID]
	if !ok {
		return nil, ErrFlagNotFound
	}
	copied := *flag
	return &copied, nil
}

func (r *MemoryRepository) TransitionFlag(ctx context.Context, flagID string, status domain.FlagStatus, reviewer string, at time.Time) (*domain.FlaggedTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flag, ok := r.flags[flagID]
	if !ok {
		return nil, ErrFlagNotFound
	}
	if flag.Status != domain.FlagPending {
		return nil, ErrFlagNotPending
	}
	flag.Status = status
	flag.ReviewedBy = &reviewer
	reviewedAt := at
	flag.ReviewedAt = &reviewedAt
	copied := *flag
	return &copied, nil
}

func (r *MemoryRepository) DeleteFlag(ctx context.Context, flagID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flag, ok := r.flags[flagID]
	if !ok {
		return false, nil
	}
	delete(r.flagByRef, flag.ReferenceID)
	delete(r.flags, flagID)
	return true, nil
}

func (r *MemoryRepository) CreatePayment(ctx context.Context, payment *domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[payment.Reference]; exists {
		return ErrDuplicatePayment
	}
	now := r.now()
	payment.CreatedAt, payment.UpdatedAt = now, now
	stored := *payment
	r.payments[payment.Reference] = &stored
	return nil
}

func (r *MemoryRepository) FindPayment(ctx context.Context, reference string) (*domain.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[reference]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *payment
	return &copied, nil
}

func (r *MemoryRepository) SettlePayment(ctx context.Context, params SettleParams) (*domain.PaymentSettlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[params.Reference]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	settlement := &domain.PaymentSettlement{PreviousStatus: payment.Status, Status: params.Status}
	if payment.Status == params.Status {
		return settlement, nil
	}

	if params.Status == domain.PaymentSuccess && payment.CreditedAt == nil {
		account, ok := r.accounts[payment.AccountNumber]
		if !ok {
			return nil, ErrAccountNotFound
		}
		amount := payment.Amount
		if params.Amount.IsPositive() {
			amount = params.Amount
		}
		account.Balance = account.Balance.Add(amount)
		account.Version++
		creditedAt := params.At
		payment.CreditedAt = &creditedAt
		row := r.appendRow(newRow(payment.AccountNumber, domain.TxDeposit, amount, "Paystack deposit "+payment.Reference, params.ReferenceID, params.At))
		settlement.Applied = true
		settlement.Entry = r.entry(params.ReferenceID, account, row)
	}
	payment.Status = params.Status
	payment.UpdatedAt = params.At
	return settlement, nil
}

func (r *MemoryRepository) ApplyDisbursement(ctx context.Context, params DisbursementParams) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[params.AccountNumber]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if _, exists := r.disbursements[params.Reference]; exists {
		return nil, ErrDuplicatePayment
	}
	if account.Balance.LessThan(params.Amount) {
		return nil, ErrInsufficientFunds
	}

	account.Balance = account.Balance.Sub(params.Amount)
	account.Version++
	row := r.appendRow(newRow(params.AccountNumber, domain.TxWithdrawal, params.Amount.Neg(),
		domain.MobileMoneyDescription(params.Recipient), params.ReferenceID, params.At))
	r.disbursements[params.Reference] = &domain.DisbursementRecord{
		Reference:     params.Reference,
		AccountNumber: params.AccountNumber,
		Amount:        params.Amount,
		Method:        params.Method,
		Recipient:     params.Recipient,
		Status:        domain.PaymentPending,
		CreatedAt:     params.At,
		UpdatedAt:     params.At,
	}
	return r.entry(params.ReferenceID, account, row), nil
}

func (r *MemoryRepository) FindDisbursement(ctx context.Context, reference string) (*domain.DisbursementRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.disbursements[reference]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *MemoryRepository) SettleDisbursement(ctx context.Context, params SettleParams) (*domain.PaymentSettlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.disbursements[params.Reference]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	settlement := &domain.PaymentSettlement{PreviousStatus: d.Status, Status: params.Status}
	if d.Status == params.Status {
		return settlement, nil
	}

	switch {
	case d.RefundedAt != nil:
		settlement.NeedsReconciliation = params.Status == domain.PaymentSuccess
	case isRefundStatus(params.Status):
		account, ok := r.accounts[d.AccountNumber]
		if !ok {
			return nil, ErrAccountNotFound
		}
		account.Balance = account.Balance.Add(d.Amount)
		account.Version++
		refundedAt := params.At
		d.RefundedAt = &refundedAt
		row := r.appendRow(newRow(d.AccountNumber, domain.TxWithdrawalReversal, d.Amount, domain.ReversalDescription(d.Reference), params.ReferenceID, params.At))
		settlement.Applied = true
		settlement.Entry = r.entry(params.ReferenceID, account, row)
	}
	d.Status = params.Status
	d.UpdatedAt = params.At
	return settlement, nil
}
