package api

import (
	"log"
	"net/http"

	"github.com/wirebuddy/ledger-service/internal/domain"
)

func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.auth.Register(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=register outcome=failed username=%s err=%v", req.Username, err)
		writeServiceError(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	account, err := h.ledger.Account(r.Context(), acct)
	if err != nil {
		writeServiceError(w, "get_account", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	var update domain.ProfileUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.auth.UpdateProfile(r.Context(), acct, update)
	if err != nil {
		writeServiceError(w, "update_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) ChangePINHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	var req domain.ChangePINRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.auth.ChangePIN(r.Context(), acct, req); err != nil {
		writeServiceError(w, "change_pin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "PIN updated"})
}

func (h *Handlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	limit, err := parseOptionalPositiveInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	history, err := h.ledger.History(r.Context(), acct, limit)
	if err != nil {
		writeServiceError(w, "history", err)
		return
	}
	if history == nil {
		history = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handlers) CreditScoreHandler(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountNumber(w, r)
	if !ok {
		return
	}
	assessment, err := h.models.CreditScore(r.Context(), acct)
	if err != nil {
		writeServiceError(w, "credit_score", err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}
