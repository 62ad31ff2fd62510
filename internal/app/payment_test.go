package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/store"
	"github.com/wirebuddy/ledger-service/pkg/paystack"
)

type gatewayStub struct {
	initErr        error
	initRequests   []paystack.InitializeRequest
	chargeStatus   string
	chargeAmount   int64
	verifyErr      error
	recipientErr   error
	transferErr    error
	transferStatus string
	transferCalls  int
	payoutStatus   string
}

func (g *gatewayStub) InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error) {
	g.initRequests = append(g.initRequests, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &paystack.InitializeResponse{AuthorizationURL: "https://checkout.test/" + req.Reference, Reference: req.Reference}, nil
}

func (g *gatewayStub) VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return &paystack.Transaction{Reference: reference, Status: g.chargeStatus, Amount: g.chargeAmount}, nil
}

func (g *gatewayStub) CreateMobileMoneyRecipient(ctx context.Context, name, mobileNumber, bankCode string) (*paystack.Recipient, error) {
	if g.recipientErr != nil {
		return nil, g.recipientErr
	}
	return &paystack.Recipient{RecipientCode: "RCP_" + mobileNumber}, nil
}

func (g *gatewayStub) InitiateTransfer(ctx context.Context, recipientCode, reference, reason string, amount int64) (*paystack.Transfer, error) {
	g.transferCalls++
	if g.transferErr != nil {
		return nil, g.transferErr
	}
	return &paystack.Transfer{Reference: reference, Status: g.transferStatus, Amount: amount}, nil
}

func (g *gatewayStub) VerifyTransfer(ctx context.Context, reference string) (*paystack.Transfer, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return &paystack.Transfer{Reference: reference, Status: g.payoutStatus}, nil
}

func newPaymentService(env *testEnv, gateway PaymentGateway) *PaymentService {
	svc := NewPaymentService(env.repo, store.NewRetrier(3, 0), gateway, env.pipeline, env.events, nil, "GHS", "MTN")
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestPaymentService_DepositCreditsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	env.seedAccount(t, "0241111111", "ama", "10", fixedNow.AddDate(-1, 0, 0))
	gateway := &gatewayStub{chargeStatus: "pending"}
	svc := newPaymentService(env, gateway)

	resp, err := svc.InitiateDeposit(ctx, "0241111111", domain.InitiateDepositRequest{Amount: amount("25.50")})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if resp.AuthorizationURL == "" || resp.Reference == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	req := gateway.initRequests[0]
	if req.Amount != 2550 || req.Email != "ama@example.com" || req.Metadata["account_number"] != "0241111111" {
		t.Fatalf("unexpected initialize request %+v", req)
	}

	settlement, err := svc.VerifyDeposit(ctx, "0241111111", resp.Reference)
	if err != nil {
		t.Fatalf("verify pending: %v", err)
	}
	if settlement.Applied || !env.balance(t, "0241111111").Equal(amount("10")) {
		t.Fatal("a pending charge must not credit the account")
	}

	gateway.chargeStatus, gateway.chargeAmount = "success", 2550
	for i := 0; i < 3; i++ {
		settlement, err = svc.VerifyDeposit(ctx, "0241111111", resp.Reference)
		if err != nil {
			t.Fatalf("verify success #%d: %v", i, err)
		}
		if settlement.Status != domain.PaymentSuccess || settlement.Applied != (i == 0) {
			t.Fatalf("verify #%d: unexpected settlement %+v", i, settlement)
		}
	}
	if !env.balance(t, "0241111111").Equal(amount("35.5")) {
		t.Fatalf("expected a single credit, balance is %s", env.balance(t, "0241111111"))
	}

	// A webhook for the same reference after the customer verified is a no-op.
	if err := svc.HandleGatewayEvent(ctx, domain.GatewayEvent{Event: "charge.success", Reference: resp.Reference}); err != nil {
		t.Fatalf("gateway event: %v", err)
	}
	if !env.balance(t, "0241111111").Equal(amount("35.5")) {
		t.Fatal("webhook must not credit twice")
	}
}

func TestPaymentService_DepositGatewayFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "api error", err: &paystack.ErrorResponse{StatusCode: 400, Message: "Invalid key"}, want: ErrGatewayError},
		{name: "timeout", err: fmt.Errorf("failed to execute initialize request: %w", context.DeadlineExceeded), want: ErrGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			env.seedAccount(t, "0241111111", "ama", "0", fixedNow)
			gateway := &gatewayStub{initErr: tt.err}
			svc := newPaymentService(env, gateway)

			_, err := svc.InitiateDeposit(ctx, "0241111111", domain.InitiateDepositRequest{Amount: amount("5")})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			payment, err := env.repo.FindPayment(ctx, gateway.initRequests[0].Reference)
			if err != nil {
				t.Fatalf("find payment: %v", err)
			}
			if payment.Status != domain.PaymentFailed {
				t.Fatalf("expected failed payment record, got %s", payment.Status)
			}
		})
	}
}

func TestPaymentService_VerifyUnknownOrForeignReference(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	env.seedAccount(t, "0241111111", "ama", "0", fixedNow)
	env.seedAccount(t, "0242222222", "kofi", "0", fixedNow)
	gateway := &gatewayStub{chargeStatus: "success", chargeAmount: 500}
	svc := newPaymentService(env, gateway)

	if _, err := svc.VerifyDeposit(ctx, "0241111111", "nope"); !errors.Is(err, store.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}

	resp, err := svc.InitiateDeposit(ctx, "0241111111", domain.InitiateDepositRequest{Amount: amount("5")})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := svc.VerifyDeposit(ctx, "0242222222", resp.Reference); !errors.Is(err, store.ErrPaymentNotFound) {
		t.Fatalf("another account's reference must look unknown, got %v", err)
	}
	if err := svc.HandleGatewayEvent(ctx, domain.GatewayEvent{Event: "charge.success", Reference: "unknown"}); err != nil {
		t.Fatalf("unknown webhook references are ignored, got %v", err)
	}
}

func TestPaymentService_WithdrawalReversedOnGatewayFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	env.seedAccount(t, "0241111111", "ama", "100", fixedNow.AddDate(-1, 0, 0))
	gateway := &gatewayStub{transferErr: &paystack.ErrorResponse{StatusCode: 400, Message: "Insufficient balance"}}
	svc := newPaymentService(env, gateway)

	_, err := svc.InitiateWithdrawal(ctx, "0241111111", domain.InitiateWithdrawalRequest{Amount: amount("40"), MobileNumber: "0551234567"})
	if !errors.Is(err, ErrGatewayError) {
		t.Fatalf("expected ErrGatewayError, got %v", err)
	}
	if !env.balance(t, "0241111111").Equal(amount("100")) {
		t.Fatalf("expected the debit to be reversed, balance is %s", env.balance(t, "0241111111"))
	}

	history, _ := env.ledger.History(ctx, "0241111111", 0)
	if len(history) != 2 || history[0].Type != domain.TxWithdrawalReversal || history[1].Description != "MoMo to 0551234567" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestPaymentService_WithdrawalRefundsOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	env.seedAccount(t, "0241111111", "ama", "100", fixedNow.AddDate(-1, 0, 0))
	gateway := &gatewayStub{transferStatus: "pending", payoutStatus: "pending"}
	svc := newPaymentService(env, gateway)

	receipt, err := svc.InitiateWithdrawal(ctx, "0241111111", domain.InitiateWithdrawalRequest{Amount: amount("40"), MobileNumber: "0551234567"})
	if err != nil {
		t.Fatalf("initiate withdrawal: %v", err)
	}
	if !receipt.Balance.Equal(amount("60")) {
		t.Fatalf("expected immediate debit, balance %s", receipt.Balance)
	}

	gateway.payoutStatus = "reversed"
	for i := 0; i < 2; i++ {
		settlement, err := svc.VerifyWithdrawal(ctx, "0241111111", receipt.ReferenceID)
		if err != nil {
			t.Fatalf("verify #%d: %v", i, err)
		}
		if settlement.Applied != (i == 0) {
			t.Fatalf("verify #%d: unexpected settlement %+v", i, settlement)
		}
	}
	gateway.payoutStatus = "failed"
	if _, err := svc.VerifyWithdrawal(ctx, "0241111111", receipt.ReferenceID); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !env.balance(t, "0241111111").Equal(amount("100")) {
		t.Fatalf("expected exactly one refund, balance %s", env.balance(t, "0241111111"))
	}
}

func TestPaymentService_PayoutCompletedAfterRefund(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	env.seedAccount(t, "0241111111", "ama", "100", fixedNow)
	gateway := &gatewayStub{transferStatus: "failed"}
	svc := newPaymentService(env, gateway)

	receipt, err := svc.InitiateWithdrawal(ctx, "0241111111", domain.InitiateWithdrawalRequest{Amount: amount("40"), MobileNumber: "0551234567"})
	if err != nil {
		t.Fatalf("initiate withdrawal: %v", err)
	}
	if !receipt.Balance.Equal(amount("100")) {
		t.Fatalf("expected the failed payout to be refunded, balance %s", receipt.Balance)
	}
	reference := receipt.ReferenceID

	tests := []struct {
		payoutStatus string
		reconcile    bool
	}{
		{payoutStatus: "success", reconcile: true},
		{payoutStatus: "reversed"},
		{payoutStatus: "failed"},
	}
	for _, tt := range tests {
		gateway.payoutStatus = tt.payoutStatus
		settlement, err := svc.VerifyWithdrawal(ctx, "0241111111", reference)
		if err != nil {
			t.Fatalf("verify %s: %v", tt.payoutStatus, err)
		}
		if settlement.Applied || settlement.NeedsReconciliation != tt.reconcile {
			t.Fatalf("verify %s: unexpected settlement %+v", tt.payoutStatus, settlement)
		}
		if !env.balance(t, "0241111111").Equal(amount("100")) {
			t.Fatalf("verify %s: refund repeated, balance %s", tt.payoutStatus, env.balance(t, "0241111111"))
		}
	}
	if got := env.publisher.count(RoutingReconciliation); got != 1 {
		t.Fatalf("expected one reconciliation event, got %d", got)
	}
}

func TestPaymentService_DepositStatusFlipFlopCreditsOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	env.seedAccount(t, "0241111111", "ama", "10", fixedNow)
	gateway := &gatewayStub{chargeAmount: 2000}
	svc := newPaymentService(env, gateway)

	resp, err := svc.InitiateDeposit(ctx, "0241111111", domain.InitiateDepositRequest{Amount: amount("20")})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	for i, status := range []string{"success", "reversed", "success"} {
		gateway.chargeStatus = status
		settlement, err := svc.VerifyDeposit(ctx, "0241111111", resp.Reference)
		if err != nil {
			t.Fatalf("verify %s: %v", status, err)
		}
		if settlement.Applied != (i == 0) {
			t.Fatalf("verify #%d %s: unexpected settlement %+v", i, status, settlement)
		}
	}
	if !env.balance(t, "0241111111").Equal(amount("30")) {
		t.Fatalf("expected a single credit, balance %s", env.balance(t, "0241111111"))
	}
}

func TestPaymentService_WithdrawalTimeoutKeepsDebitPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	env.seedAccount(t, "0241111111", "ama", "100", fixedNow)
	gateway := &gatewayStub{transferErr: fmt.Errorf("failed to execute transfer request: %w", context.DeadlineExceeded)}
	svc := newPaymentService(env, gateway)

	_, err := svc.InitiateWithdrawal(ctx, "0241111111", domain.InitiateWithdrawalRequest{Amount: amount("40"), MobileNumber: "0551234567"})
	if !errors.Is(err, ErrGatewayTimeout) {
		t.Fatalf("expected ErrGatewayTimeout, got %v", err)
	}
	if !env.balance(t, "0241111111").Equal(amount("60")) {
		t.Fatalf("an ambiguous payout keeps the debit until verified, balance %s", env.balance(t, "0241111111"))
	}
}

func TestPaymentService_WithdrawalValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	env.seedAccount(t, "0241111111", "ama", "10", fixedNow)
	gateway := &gatewayStub{}
	svc := newPaymentService(env, gateway)

	if _, err := svc.InitiateWithdrawal(ctx, "0241111111", domain.InitiateWithdrawalRequest{Amount: amount("5"), MobileNumber: "055"}); !errors.Is(err, ErrInvalidMobileNumber) {
		t.Fatalf("expected ErrInvalidMobileNumber, got %v", err)
	}
	if _, err := svc.InitiateWithdrawal(ctx, "0241111111", domain.InitiateWithdrawalRequest{Amount: amount("50"), MobileNumber: "0551234567"}); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if gateway.transferCalls != 0 {
		t.Fatal("the processor must not be called when the debit fails")
	}
}
