package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/pkg/paystack"
)

const maxWebhookBody = 1 << 20

type settlementResponse struct {
	Reference      string `json:"reference"`
	PreviousStatus string `json:"previous_status"`
	Status         string `json:"status"`
	Applied        bool   `json:"applied"`
}

// paystackWebhook is the subset of a processor notification the service reads.
type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

func (h *Handlers) InitiateDepositHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	var req domain.InitiateDepositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.payments.InitiateDeposit(r.Context(), acct, req)
	if err != nil {
		writeServiceError(w, "initiate_deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) VerifyDepositHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	reference := chi.URLParam(r, "ref")
	settlement, err := h.payments.VerifyDeposit(r.Context(), acct, reference)
	if err != nil {
		writeServiceError(w, "verify_deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, settlementResponse{
		Reference:      reference,
		PreviousStatus: settlement.PreviousStatus,
		Status:         settlement.Status,
		Applied:        settlement.Applied,
	})
}

func (h *Handlers) InitiateWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	var req domain.InitiateWithdrawalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := h.payments.InitiateWithdrawal(r.Context(), acct, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=initiate_withdrawal outcome=failed account=%s err=%v", acct, err)
		writeServiceError(w, "initiate_withdrawal", err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (h *Handlers) VerifyWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	reference := chi.URLParam(r, "ref")
	settlement, err := h.payments.VerifyWithdrawal(r.Context(), acct, reference)
	if err != nil {
		writeServiceError(w, "verify_withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, settlementResponse{
		Reference:      reference,
		PreviousStatus: settlement.PreviousStatus,
		Status:         settlement.Status,
		Applied:        settlement.Applied,
	})
}

// PaystackWebhookHandler authenticates a processor notification by its HMAC signature
// and hands it to the gateway event handler. Any non-2xx answer makes the processor
// send the notification again.
func (h *Handlers) PaystackWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if h.signer == nil {
		writeError(w, http.StatusServiceUnavailable, "Webhooks are not configured")
		return
	}
	if err := h.signer.Verify(body, r.Header.Get(paystack.SignatureHeader)); err != nil {
		log.Printf("level=warn component=api endpoint=paystack_webhook outcome=reject reason=bad_signature")
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var payload paystackWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}
	reference := strings.TrimSpace(payload.Data.Reference)
	if reference == "" {
		log.Printf("level=info component=api endpoint=paystack_webhook event=%s msg=\"event without reference ignored\"", payload.Event)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	event := domain.GatewayEvent{
		Event:      payload.Event,
		Reference:  reference,
		Status:     strings.ToLower(payload.Data.Status),
		ReceivedAt: time.Now().UTC(),
	}
	if err := h.gatewayEvents.HandleGatewayEvent(r.Context(), event); err != nil {
		log.Printf("level=error component=api endpoint=paystack_webhook event=%s reference=%s err=%v", event.Event, event.Reference, err)
		writeError(w, http.StatusInternalServerError, "Could not process webhook")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
