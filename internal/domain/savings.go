package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingsGoal is a named target the account saves towards.
type SavingsGoal struct {
	ID            int64           `json:"id"`
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	TargetDate    time.Time       `json:"target_date"`
	CreatedAt     time.Time       `json:"created_at"`
}

// GoalContribution is one row of the append-only contribution history of a goal.
type GoalContribution struct {
	GoalID           int64           `json:"goal_id"`
	Delta            decimal.Decimal `json:"delta"`
	CumulativeAmount decimal.Decimal `json:"cumulative_amount"`
	CreatedAt        time.Time       `json:"created_at"`
}

// CreateGoalRequest is the DTO for creating a savings goal.
type CreateGoalRequest struct {
	Name         string          `json:"name"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	TargetDate   time.Time       `json:"target_date"`
}

// GoalAmountRequest is the DTO for goal contributions and withdrawals.
type GoalAmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
