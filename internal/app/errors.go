package app

import "errors"

// Validation and policy errors raised by the service layer. Storage-level failures
// (insufficient funds, unknown accounts, store conflicts) are the store package's
// sentinels and pass through unwrapped so callers can match them with errors.Is.
var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrSelfTransferNotAllowed = errors.New("cannot transfer to the same account")
	ErrInvalidFlagTransition  = errors.New("flagged transaction is not pending review")
	ErrInvalidFlagStatus      = errors.New("invalid flag status")
	ErrGatewayError           = errors.New("payment gateway error")
	ErrGatewayTimeout         = errors.New("payment gateway timeout")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountFrozen          = errors.New("account is frozen")
	ErrRateLimited            = errors.New("too many attempts")
	ErrUnsupportedCurrency    = errors.New("unsupported currency")
	ErrInvalidPhoneNumber     = errors.New("phone number must be exactly 10 digits")
	ErrInvalidPIN             = errors.New("pin must be exactly 4 digits")
	ErrInvalidUsername        = errors.New("username is required")
	ErrInvalidName            = errors.New("name is required")
	ErrInvalidGoal            = errors.New("goal needs a name, a positive target and a target date")
	ErrInvalidMobileNumber    = errors.New("mobile number must be exactly 10 digits")
)

// RateLimitError carries how long a caller must wait before trying again.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
