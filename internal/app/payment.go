/**
 * @description
 * This file contains the `PaymentService`, the adapter between the ledger and the
 * external payment processor. Deposits are mirrored as pending payment records and
 * credited exactly once when the processor confirms them. Mobile money withdrawals
 * debit the account up front and are refunded exactly once if the processor fails or
 * reverses the payout.
 *
 * @dependencies
 * - pkg/paystack: the processor's HTTP API.
 * - internal/store: payment mirror records and settlement units of work.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/metrics"
	"github.com/wirebuddy/ledger-service/internal/store"
	"github.com/wirebuddy/ledger-service/pkg/paystack"
)

const (
	MethodMobileMoney = "mobile_money"
	MethodCard        = "card"

	// The processor requires an email on every charge; accounts do not carry one.
	customerEmailDomain = "example.com"
)

var mobileNumberPattern = regexp.MustCompile(`^\d{10}$`)

// PaymentGateway is the subset of the processor client the service calls.
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
	CreateMobileMoneyRecipient(ctx context.Context, name, mobileNumber, bankCode string) (*paystack.Recipient, error)
	InitiateTransfer(ctx context.Context, recipientCode, reference, reason string, amount int64) (*paystack.Transfer, error)
	VerifyTransfer(ctx context.Context, reference string) (*paystack.Transfer, error)
}

type PaymentService struct {
	repo     store.Repository
	retrier  store.Retrier
	gateway  PaymentGateway
	pipeline *RiskPipeline
	events   *EventBus
	metrics  *metrics.Collector
	currency string
	bankCode string
	now      func() time.Time
	newRef   func() string
}

func NewPaymentService(repo store.Repository, retrier store.Retrier, gateway PaymentGateway, pipeline *RiskPipeline, events *EventBus, collector *metrics.Collector, currency, bankCode string) *PaymentService {
	return &PaymentService{
		repo:     repo,
		retrier:  retrier,
		gateway:  gateway,
		pipeline: pipeline,
		events:   events,
		metrics:  collector,
		currency: currency,
		bankCode: bankCode,
		now:      time.Now,
		newRef:   uuid.NewString,
	}
}

// gatewayFailure records the call and maps a processor error onto the service errors.
func (s *PaymentService) gatewayFailure(op string, started time.Time, err error) error {
	s.metrics.ObserveGateway(op, started, err)
	if err == nil {
		return nil
	}
	if paystack.IsTimeout(err) {
		return fmt.Errorf("%w: %s: %v", ErrGatewayTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrGatewayError, op, err)
}

// InitiateDeposit records a pending payment and asks the processor for a checkout page.
func (s *PaymentService) InitiateDeposit(ctx context.Context, accountNumber string, req domain.InitiateDepositRequest) (*domain.InitiateDepositResponse, error) {
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = MethodMobileMoney
	}

	now := s.now().UTC()
	payment := &domain.PaymentRecord{
		Reference:     s.newRef(),
		AccountNumber: account.AccountNumber,
		Amount:        amount,
		Currency:      s.currency,
		Method:        method,
		Status:        domain.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	started := time.Now()
	resp, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:     account.Username + "@" + customerEmailDomain,
		Amount:    paystack.ToMinorUnits(amount),
		Currency:  s.currency,
		Reference: payment.Reference,
		Channels:  []string{method},
		Metadata:  map[string]string{"account_number": account.AccountNumber},
	})
	if err := s.gatewayFailure("initialize", started, err); err != nil {
		log.Printf("level=warn component=payments op=initiate_deposit reference=%s account=%s err=%v", payment.Reference, account.AccountNumber, err)
		s.markPaymentFailed(ctx, payment.Reference)
		return nil, err
	}
	if resp.AuthorizationURL == "" {
		s.markPaymentFailed(ctx, payment.Reference)
		return nil, fmt.Errorf("%w: initialize returned no authorization url", ErrGatewayError)
	}

	log.Printf("level=info component=payments op=initiate_deposit reference=%s account=%s amount=%s method=%s", payment.Reference, account.AccountNumber, amount.StringFixed(2), method)
	return &domain.InitiateDepositResponse{AuthorizationURL: resp.AuthorizationURL, Reference: payment.Reference}, nil
}

func (s *PaymentService) markPaymentFailed(ctx context.Context, reference string) {
	_, err := s.settlePayment(ctx, store.SettleParams{Reference: reference, Status: domain.PaymentFailed, At: s.now().UTC()})
	if err != nil {
		log.Printf("level=error component=payments reference=%s err=%v msg=\"failed to mark payment failed\"", reference, err)
	}
}

func (s *PaymentService) settlePayment(ctx context.Context, params store.SettleParams) (*domain.PaymentSettlement, error) {
	var settlement *domain.PaymentSettlement
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		settlement, err = s.repo.SettlePayment(ctx, params)
		return err
	})
	return settlement, err
}

func (s *PaymentService) settleDisbursement(ctx context.Context, params store.SettleParams) (*domain.PaymentSettlement, error) {
	var settlement *domain.PaymentSettlement
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		settlement, err = s.repo.SettleDisbursement(ctx, params)
		return err
	})
	return settlement, err
}

// VerifyDeposit asks the processor for the charge status and applies it. The account is
// credited only on the first transition into success, so repeated verification (by the
// customer, the webhook or both) never double-credits. An empty accountNumber skips the
// ownership check.
func (s *PaymentService) VerifyDeposit(ctx context.Context, accountNumber, reference string) (*domain.PaymentSettlement, error) {
	payment, err := s.repo.FindPayment(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, err
	}
	if accountNumber != "" && payment.AccountNumber != accountNumber {
		return nil, store.ErrPaymentNotFound
	}

	started := time.Now()
	tx, err := s.gateway.VerifyTransaction(ctx, payment.Reference)
	if err := s.gatewayFailure("verify_transaction", started, err); err != nil {
		return nil, err
	}

	params := store.SettleParams{
		Reference:   payment.Reference,
		Status:      domain.NormalizeGatewayStatus(tx.Status),
		Amount:      paystack.FromMinorUnits(tx.Amount),
		ReferenceID: s.newRef(),
		At:          s.now().UTC(),
	}
	settlement, err := s.settlePayment(ctx, params)
	if err != nil {
		return nil, err
	}
	s.afterSettlement(ctx, "deposit", payment.Reference, settlement)
	return settlement, nil
}

// InitiateWithdrawal debits the account and pays the amount out to a mobile money wallet.
// If the processor rejects the payout the debit is reversed before returning.
func (s *PaymentService) InitiateWithdrawal(ctx context.Context, accountNumber string, req domain.InitiateWithdrawalRequest) (*domain.LedgerReceipt, error) {
	amount, err := normalizeAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	mobile := strings.TrimSpace(req.MobileNumber)
	if !mobileNumberPattern.MatchString(mobile) {
		return nil, ErrInvalidMobileNumber
	}

	reference := s.newRef()
	params := store.DisbursementParams{
		AccountNumber: accountNumber,
		Amount:        amount,
		Method:        MethodMobileMoney,
		Recipient:     mobile,
		Reference:     reference,
		ReferenceID:   reference,
		At:            s.now().UTC(),
	}

	started := time.Now()
	var entry *domain.LedgerEntry
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		entry, err = s.repo.ApplyDisbursement(ctx, params)
		return err
	})
	s.metrics.ObserveLedgerOp("momo_withdraw", started, err)
	if err != nil {
		return nil, err
	}
	flagged := s.pipeline.Process(ctx, entry)
	s.events.EmitEntry(ctx, entry)

	status, ambiguous, err := s.payout(ctx, entry.Account.Name, mobile, reference, amount)
	if err != nil && ambiguous {
		log.Printf("level=warn component=payments op=initiate_withdrawal reference=%s account=%s err=%v msg=\"payout outcome unknown; left pending for verification\"", reference, accountNumber, err)
		return nil, err
	}
	if err != nil {
		log.Printf("level=warn component=payments op=initiate_withdrawal reference=%s account=%s err=%v msg=\"payout failed; reversing debit\"", reference, accountNumber, err)
		s.reverse(ctx, reference)
		return nil, err
	}
	if status != domain.PaymentPending {
		settlement, serr := s.settleDisbursement(ctx, store.SettleParams{Reference: reference, Status: status, ReferenceID: s.newRef(), At: s.now().UTC()})
		if serr != nil {
			log.Printf("level=error component=payments reference=%s err=%v msg=\"failed to apply payout status\"", reference, serr)
		} else {
			s.afterSettlement(ctx, "withdrawal", reference, settlement)
		}
	}

	account, err := s.repo.FindAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=payments op=initiate_withdrawal reference=%s account=%s amount=%s status=%s", reference, accountNumber, amount.StringFixed(2), status)
	return &domain.LedgerReceipt{ReferenceID: reference, Balance: account.Balance, Flagged: flagged}, nil
}

// payout creates the recipient and the transfer, returning the normalised transfer status.
// ambiguous is set when the transfer call timed out: the processor may have accepted it,
// so the debit must stay until the status is verified.
func (s *PaymentService) payout(ctx context.Context, name, mobile, reference string, amount decimal.Decimal) (status string, ambiguous bool, err error) {
	started := time.Now()
	recipient, err := s.gateway.CreateMobileMoneyRecipient(ctx, name, mobile, s.bankCode)
	if err := s.gatewayFailure("create_recipient", started, err); err != nil {
		return "", false, err
	}

	started = time.Now()
	transfer, err := s.gateway.InitiateTransfer(ctx, recipient.RecipientCode, reference, "Withdrawal to "+mobile, paystack.ToMinorUnits(amount))
	if err := s.gatewayFailure("transfer", started, err); err != nil {
		return "", errors.Is(err, ErrGatewayTimeout), err
	}
	return domain.NormalizeGatewayStatus(transfer.Status), false, nil
}

func (s *PaymentService) reverse(ctx context.Context, reference string) {
	settlement, err := s.settleDisbursement(ctx, store.SettleParams{
		Reference:   reference,
		Status:      domain.PaymentFailed,
		ReferenceID: s.newRef(),
		At:          s.now().UTC(),
	})
	if err != nil {
		log.Printf("level=error component=payments reference=%s err=%v msg=\"failed to reverse withdrawal; needs manual reconciliation\"", reference, err)
		return
	}
	s.afterSettlement(ctx, "withdrawal", reference, settlement)
}

// VerifyWithdrawal asks the processor for the payout status and applies it. The first
// transition into failed or reversed refunds the account; later ones are no-ops.
func (s *PaymentService) VerifyWithdrawal(ctx context.Context, accountNumber, reference string) (*domain.PaymentSettlement, error) {
	disbursement, err := s.repo.FindDisbursement(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, err
	}
	if accountNumber != "" && disbursement.AccountNumber != accountNumber {
		return nil, store.ErrPaymentNotFound
	}

	started := time.Now()
	transfer, err := s.gateway.VerifyTransfer(ctx, disbursement.Reference)
	if err := s.gatewayFailure("verify_transfer", started, err); err != nil {
		return nil, err
	}

	settlement, err := s.settleDisbursement(ctx, store.SettleParams{
		Reference:   disbursement.Reference,
		Status:      domain.NormalizeGatewayStatus(transfer.Status),
		ReferenceID: s.newRef(),
		At:          s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.afterSettlement(ctx, "withdrawal", disbursement.Reference, settlement)
	if settlement.NeedsReconciliation {
		s.requireReconciliation(ctx, disbursement, settlement.Status)
	}
	return settlement, nil
}

// requireReconciliation reports a payout that completed after its refund. The balance is
// not debited again automatically since the customer may already have spent the refund.
func (s *PaymentService) requireReconciliation(ctx context.Context, disbursement *domain.DisbursementRecord, status string) {
	log.Printf("level=error component=payments op=verify_withdrawal reference=%s account=%s amount=%s status=%s msg=\"payout completed after refund; needs manual reconciliation\"",
		disbursement.Reference, disbursement.AccountNumber, disbursement.Amount.StringFixed(2), status)
	s.metrics.ReconciliationRequired("withdrawal")
	s.events.Emit(ctx, RoutingReconciliation, domain.ReconciliationEvent{
		Reference:     disbursement.Reference,
		AccountNumber: disbursement.AccountNumber,
		Amount:        disbursement.Amount,
		Status:        status,
		DetectedAt:    s.now().UTC(),
	})
}

func (s *PaymentService) afterSettlement(ctx context.Context, kind, reference string, settlement *domain.PaymentSettlement) {
	if settlement == nil {
		return
	}
	if settlement.PreviousStatus != settlement.Status {
		log.Printf("level=info component=payments kind=%s reference=%s from=%s to=%s applied=%t msg=\"gateway status applied\"",
			kind, reference, settlement.PreviousStatus, settlement.Status, settlement.Applied)
	}
	if settlement.Applied && settlement.Entry != nil {
		s.pipeline.Process(ctx, settlement.Entry)
		s.events.EmitEntry(ctx, settlement.Entry)
	}
}

// HandleGatewayEvent re-verifies the reference named by a processor notification. Unknown
// references are dropped since the processor also reports charges this service never made.
func (s *PaymentService) HandleGatewayEvent(ctx context.Context, event domain.GatewayEvent) error {
	var err error
	if event.IsTransfer() {
		_, err = s.VerifyWithdrawal(ctx, "", event.Reference)
	} else {
		_, err = s.VerifyDeposit(ctx, "", event.Reference)
	}
	if errors.Is(err, store.ErrPaymentNotFound) {
		log.Printf("level=info component=payments event=%s reference=%s msg=\"unknown reference; ignoring\"", event.Event, event.Reference)
		return nil
	}
	return err
}
