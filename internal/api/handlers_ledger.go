package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

func (h *Handlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	var req domain.AmountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := h.ledger.Deposit(r.Context(), acct, req)
	if err != nil {
		writeServiceError(w, "deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	var req domain.AmountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := h.ledger.Withdraw(r.Context(), acct, req)
	if err != nil {
		writeServiceError(w, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	var req domain.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := h.ledger.Transfer(r.Context(), acct, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=failed sender=%s recipient=%s err=%v", acct, req.RecipientAccountNumber, err)
		writeServiceError(w, "transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	tx, err := h.ledger.TransactionByReference(r.Context(), acct, chi.URLParam(r, "ref"))
	if err != nil {
		writeServiceError(w, "get_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handlers) ReceiptHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	receipt, err := h.ledger.Receipt(r.Context(), acct, chi.URLParam(r, "ref"))
	if err != nil {
		writeServiceError(w, "receipt", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(receipt))
}

func goalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid goal ID")
		return 0, false
	}
	return id, true
}

func (h *Handlers) ListGoalsHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	goals, err := h.ledger.ListGoals(r.Context(), acct)
	if err != nil {
		writeServiceError(w, "list_goals", err)
		return
	}
	if goals == nil {
		goals = []domain.SavingsGoal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

func (h *Handlers) CreateGoalHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	var req domain.CreateGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	goal, err := h.ledger.CreateGoal(r.Context(), acct, req)
	if err != nil {
		writeServiceError(w, "create_goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (h *Handlers) GetGoalHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}
	goal, err := h.ledger.Goal(r.Context(), acct, id)
	if err != nil {
		writeServiceError(w, "get_goal", err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (h *Handlers) DeleteGoalHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}
	if err := h.ledger.DeleteGoal(r.Context(), acct, id); err != nil {
		writeServiceError(w, "delete_goal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ContributeHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}
	var req domain.GoalAmountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := h.ledger.ContributeToGoal(r.Context(), acct, id, req)
	if err != nil {
		writeServiceError(w, "contribute_to_goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handlers) WithdrawFromGoalHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}
	var req domain.GoalAmountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := h.ledger.WithdrawFromGoal(r.Context(), acct, id, req)
	if err != nil {
		writeServiceError(w, "withdraw_from_goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handlers) ForecastHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	id, ok := goalID(w, r)
	if !ok {
		return
	}
	forecast, err := h.ledger.Forecast(r.Context(), acct, id)
	if err != nil {
		writeServiceError(w, "forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}
