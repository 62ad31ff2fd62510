package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a customer account. The account number is the registrant's phone number.
type Account struct {
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	Username      string          `json:"username"`
	PINHash       string          `json:"-"`
	NationalID    string          `json:"national_id"`
	Address       string          `json:"address"`
	Balance       decimal.Decimal `json:"balance"`
	IsActive      bool            `json:"is_active"`
	IsAdmin       bool            `json:"is_admin"`
	Version       int64           `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AgeDays is the number of whole days since the account was opened.
func (a Account) AgeDays(now time.Time) int {
	if a.CreatedAt.IsZero() || now.Before(a.CreatedAt) {
		return 0
	}
	return int(now.Sub(a.CreatedAt).Hours() / 24)
}

// RegisterRequest is the DTO for opening a new account.
type RegisterRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	PIN         string `json:"pin"`
	Username    string `json:"username"`
	NationalID  string `json:"national_id"`
	Address     string `json:"address"`
}

// LoginRequest authenticates with the username, account number and PIN triple.
type LoginRequest struct {
	Username      string `json:"username"`
	AccountNumber string `json:"account_number"`
	PIN           string `json:"pin"`
}

// Session is issued on successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   Account   `json:"account"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left untouched.
type ProfileUpdate struct {
	Name       *string `json:"name"`
	Address    *string `json:"address"`
	NationalID *string `json:"national_id"`
}

// ChangePINRequest replaces the account PIN after verifying the current one.
type ChangePINRequest struct {
	CurrentPIN string `json:"current_pin"`
	NewPIN     string `json:"new_pin"`
}

// SystemStats is the admin dashboard summary.
type SystemStats struct {
	TotalAccounts  int             `json:"total_accounts"`
	ActiveAccounts int             `json:"active_accounts"`
	FrozenAccounts int             `json:"frozen_accounts"`
	TotalBalance   decimal.Decimal `json:"total_balance"`
}

// CreditFeatures are the aggregate account features used by the credit scorer.
// A nil field means the value could not be computed for the account.
type CreditFeatures struct {
	Balance              *float64 `json:"balance"`
	TransactionCount     *float64 `json:"transaction_count"`
	AverageAmount        *float64 `json:"average_amount"`
	HistoricalMaxBalance *float64 `json:"historical_max_balance"`
}
