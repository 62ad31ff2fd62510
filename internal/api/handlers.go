/**
 * @description
 * This file contains the shared plumbing of the ledger-service HTTP handlers: the
 * Handlers type, JSON helpers, and the mapping from service errors to status codes.
 * Handlers parse requests, call the application services, and write the response.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/store, internal/risk: services and their sentinel errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/wirebuddy/ledger-service/internal/app"
	"github.com/wirebuddy/ledger-service/internal/risk"
	"github.com/wirebuddy/ledger-service/internal/store"
	"github.com/wirebuddy/ledger-service/pkg/paystack"
)

// Services groups the application services the handlers call.
type Services struct {
	Auth     *app.AuthService
	Ledger   *app.LedgerService
	Review   *app.ReviewService
	Payments *app.PaymentService
	Admin    *app.AdminService
	Models   *app.ModelService
	Advice   *app.AdviceService
	Currency *app.CurrencyService

	// GatewayEvents receives verified webhook events. It is the broker forwarder when
	// RabbitMQ is configured and the payment service itself otherwise.
	GatewayEvents app.GatewayEventHandler
	Signer        *paystack.Signer

	DefaultScanLimit int
}

// Handlers holds the application services that handlers will use.
type Handlers struct {
	auth     *app.AuthService
	ledger   *app.LedgerService
	review   *app.ReviewService
	payments *app.PaymentService
	admin    *app.AdminService
	models   *app.ModelService
	advice   *app.AdviceService
	currency *app.CurrencyService

	gatewayEvents app.GatewayEventHandler
	signer        *paystack.Signer
	scanLimit     int
}

func NewHandlers(s Services) *Handlers {
	gatewayEvents := s.GatewayEvents
	if gatewayEvents == nil && s.Payments != nil {
		gatewayEvents = s.Payments
	}
	return &Handlers{
		auth:          s.Auth,
		ledger:        s.Ledger,
		review:        s.Review,
		payments:      s.Payments,
		admin:         s.Admin,
		models:        s.Models,
		advice:        s.Advice,
		currency:      s.Currency,
		gatewayEvents: gatewayEvents,
		signer:        s.Signer,
		scanLimit:     s.DefaultScanLimit,
	}
}

// errorStatus maps service errors to an HTTP status and a client-facing message.
func errorStatus(err error) (int, string) {
	var limitErr *app.RateLimitError
	switch {
	case errors.As(err, &limitErr):
		return http.StatusTooManyRequests, "Too many attempts. Please wait and try again."

	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrSelfTransferNotAllowed),
		errors.Is(err, app.ErrInvalidFlagStatus),
		errors.Is(err, app.ErrInvalidPhoneNumber),
		errors.Is(err, app.ErrInvalidPIN),
		errors.Is(err, app.ErrInvalidUsername),
		errors.Is(err, app.ErrInvalidName),
		errors.Is(err, app.ErrInvalidGoal),
		errors.Is(err, app.ErrInvalidMobileNumber),
		errors.Is(err, app.ErrUnsupportedCurrency):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, app.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, app.ErrAccountFrozen):
		return http.StatusForbidden, err.Error()

	case errors.Is(err, store.ErrInsufficientFunds), errors.Is(err, store.ErrInsufficientGoalFunds):
		return http.StatusPaymentRequired, err.Error()

	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrRecipientNotFound),
		errors.Is(err, store.ErrGoalNotFound),
		errors.Is(err, store.ErrTransactionNotFound),
		errors.Is(err, store.ErrFlagNotFound),
		errors.Is(err, store.ErrPaymentNotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, store.ErrDuplicateAccount),
		errors.Is(err, store.ErrDuplicatePayment),
		errors.Is(err, app.ErrInvalidFlagTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, store.ErrStoreConflict):
		return http.StatusConflict, "The request conflicted with another update. Please retry."

	case errors.Is(err, store.ErrRecipientFrozen), errors.Is(err, risk.ErrInsufficientData):
		return http.StatusUnprocessableEntity, err.Error()

	case errors.Is(err, app.ErrGatewayTimeout):
		return http.StatusGatewayTimeout, err.Error()
	case errors.Is(err, app.ErrGatewayError):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, risk.ErrModelUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}

// writeServiceError writes the mapped error and logs anything that is not a client error.
func writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	status, message := errorStatus(err)
	var limitErr *app.RateLimitError
	if errors.As(err, &limitErr) {
		w.Header().Set("Retry-After", strconv.Itoa(limitErr.RetryAfterSeconds))
	}
	if status >= http.StatusInternalServerError {
		log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", endpoint, err)
	}
	writeError(w, status, message)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// accountNumber returns the authenticated account number.
func accountNumber(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok || claims.Subject == "" {
		writeError(w, http.StatusUnauthorized, "Could not get account from session")
		return "", false
	}
	return claims.Subject, true
}

func parseOptionalPositiveInt(raw string, defaultValue int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, errors.New("must be >= 0")
	}
	return value, nil
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
