package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
)

// reviewer names the admin acting on a request. AdminOnly guarantees the claims exist.
func reviewer(r *http.Request) string {
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		return claims.Subject
	}
	return "unknown"
}

func (h *Handlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		writeServiceError(w, "admin_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) SearchAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.admin.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, "admin_search_accounts", err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handlers) AdminGetAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.admin.Account(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeServiceError(w, "admin_get_account", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) FreezeHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.admin.Freeze(r.Context(), chi.URLParam(r, "number"), reviewer(r))
	if err != nil {
		writeServiceError(w, "admin_freeze", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) UnfreezeHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.admin.Unfreeze(r.Context(), chi.URLParam(r, "number"), reviewer(r))
	if err != nil {
		writeServiceError(w, "admin_unfreeze", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *Handlers) ResetPINHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.ResetPIN(r.Context(), chi.URLParam(r, "number"), reviewer(r)); err != nil {
		writeServiceError(w, "admin_reset_pin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "PIN reset to default"})
}

func (h *Handlers) AdminCreditScoreHandler(w http.ResponseWriter, r *http.Request) {
	assessment, err := h.models.CreditScore(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeServiceError(w, "admin_credit_score", err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (h *Handlers) ListFlagsHandler(w http.ResponseWriter, r *http.Request) {
	filter := domain.FlagFilter{Status: domain.FlagStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))}
	if raw := strings.TrimSpace(r.URL.Query().Get("min_amount")); raw != "" {
		minAmount, err := decimal.NewFromString(raw)
		if err != nil || minAmount.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid min_amount")
			return
		}
		filter.MinAmount = minAmount
	}

	flags, err := h.review.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, "list_flags", err)
		return
	}
	if flags == nil {
		flags = []domain.FlaggedTransactionView{}
	}
	writeJSON(w, http.StatusOK, flags)
}

func (h *Handlers) GetFlagHandler(w http.ResponseWriter, r *http.Request) {
	flag, err := h.review.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get_flag", err)
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

func (h *Handlers) ConfirmFlagHandler(w http.ResponseWriter, r *http.Request) {
	flag, err := h.review.Confirm(r.Context(), chi.URLParam(r, "id"), reviewer(r))
	if err != nil {
		writeServiceError(w, "confirm_flag", err)
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

func (h *Handlers) ApproveFlagHandler(w http.ResponseWriter, r *http.Request) {
	flag, err := h.review.Approve(r.Context(), chi.URLParam(r, "id"), reviewer(r))
	if err != nil {
		writeServiceError(w, "approve_flag", err)
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

func (h *Handlers) DeleteFlagHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.review.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "delete_flag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ScanHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseOptionalPositiveInt(r.URL.Query().Get("limit"), h.scanLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	result, err := h.review.ScanRecent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, "scan_recent", err)
		return
	}
	log.Printf("level=info component=api endpoint=scan_recent admin=%s scanned=%d flagged=%d", reviewer(r), result.Scanned, result.Flagged)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) ModelVersionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.models.ModelVersions())
}

func (h *Handlers) RetrainHandler(w http.ResponseWriter, r *http.Request) {
	installed, err := h.models.Retrain(r.Context())
	versions := make(map[string]string, len(installed))
	for _, artifact := range installed {
		versions[string(artifact.Kind)] = artifact.Version
	}
	if err != nil {
		// Kinds that trained are already live; report them alongside the failure.
		log.Printf("level=error component=api endpoint=retrain admin=%s installed=%d err=%v", reviewer(r), len(installed), err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "Retraining failed", "installed": versions})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"installed": versions})
}
