/**
 * @description
 * This package provides a client for the Paystack payments API. It covers the
 * calls the ledger needs to accept deposits (transaction initialize/verify) and
 * to pay out mobile money withdrawals (transfer recipient, transfer, transfer
 * verify), plus webhook signature checks.
 *
 * @dependencies
 * - github.com/shopspring/decimal: major/minor currency unit conversion.
 * - bytes, context, encoding/json, net/http: request plumbing.
 */
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a client for the Paystack API.
type Client struct {
	BaseURL    string
	SecretKey  string
	Currency   string
	HTTPClient *http.Client
}

// NewClient creates a new Paystack API client. Every call shares the same timeout.
func NewClient(baseURL, secretKey, currency string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		SecretKey: secretKey,
		Currency:  currency,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// envelope is the wrapper Paystack puts around every response body.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ErrorResponse represents an error from the Paystack API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("paystack api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("unknown paystack api error (status %d)", e.StatusCode)
}

// InitializeRequest is the payload for /transaction/initialize.
type InitializeRequest struct {
	Email     string            `json:"email"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Reference string            `json:"reference,omitempty"`
	Channels  []string          `json:"channels,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is the subset of a verified Paystack transaction the ledger uses.
type Transaction struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type recipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

type Recipient struct {
	RecipientCode string `json:"recipient_code"`
}

type transferRequest struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
	Currency  string `json:"currency,omitempty"`
}

// Transfer is the subset of a Paystack transfer the ledger uses.
type Transfer struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
}

// ToMinorUnits converts a major-unit amount (cedis) to the pesewas Paystack expects.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts a Paystack amount back to major units.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// IsTimeout reports whether err came from the client deadline or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// InitializeTransaction starts a checkout and returns the hosted payment page.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if req.Currency == "" {
		req.Currency = c.Currency
	}
	var out InitializeResponse
	if err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches the current state of a deposit by reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var out Transaction
	if err := c.do(ctx, "verify_transaction", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMobileMoneyRecipient registers a mobile money wallet as a transfer recipient.
func (c *Client) CreateMobileMoneyRecipient(ctx context.Context, name, mobileNumber, bankCode string) (*Recipient, error) {
	payload := recipientRequest{
		Type:          "mobile_money",
		Name:          name,
		AccountNumber: mobileNumber,
		BankCode:      bankCode,
		Currency:      c.Currency,
	}
	var out Recipient
	if err := c.do(ctx, "create_recipient", http.MethodPost, "/transferrecipient", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateTransfer pays amount (minor units) from the Paystack balance to a recipient.
func (c *Client) InitiateTransfer(ctx context.Context, recipientCode, reference, reason string, amount int64) (*Transfer, error) {
	payload := transferRequest{
		Source:    "balance",
		Amount:    amount,
		Recipient: recipientCode,
		Reason:    reason,
		Reference: reference,
		Currency:  c.Currency,
	}
	var out Transfer
	if err := c.do(ctx, "transfer", http.MethodPost, "/transfer", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransfer fetches the current state of a payout by reference.
func (c *Client) VerifyTransfer(ctx context.Context, reference string) (*Transfer, error) {
	var out Transfer
	if err := c.do(ctx, "verify_transfer", http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do is a generic helper that executes a request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, op, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=paystack_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return errResp
		}
		log.Printf("level=warn component=paystack_client op=%s status=%d message=%q", op, resp.StatusCode, errResp.Message)
		return errResp
	}

	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	if !env.Status {
		log.Printf("level=warn component=paystack_client op=%s status=%d message=%q msg=\"request not successful\"", op, resp.StatusCode, env.Message)
		return &ErrorResponse{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s data: %w", op, err)
		}
	}
	return nil
}
