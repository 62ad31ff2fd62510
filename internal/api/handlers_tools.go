package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

type adviceRequest struct {
	Query string `json:"query"`
}

func (h *Handlers) AdviceHandler(w http.ResponseWriter, r *http.Request) {
	var req adviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": h.advice.Reply(req.Query)})
}

// ConvertHandler serves GET /fx/convert?amount=10&from=USD&to=GHS.
func (h *Handlers) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := decimal.NewFromString(strings.TrimSpace(query.Get("amount")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	conversion, err := h.currency.Convert(r.Context(), amount, query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, "fx_convert", err)
		return
	}
	writeJSON(w, http.StatusOK, conversion)
}
