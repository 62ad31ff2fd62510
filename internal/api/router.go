/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * middleware for logging, recovery, CORS and authentication.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the service router. metricsHandler may be nil to leave /metrics off.
func NewRouter(h *Handlers, metricsHandler http.Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Post("/webhooks/paystack", h.PaystackWebhookHandler)
	r.Post("/auth/register", h.RegisterHandler)
	r.Post("/auth/login", h.LoginHandler)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.auth))

		r.Get("/accounts/me", h.GetAccountHandler)
		r.Patch("/accounts/me", h.UpdateProfileHandler)
		r.Put("/accounts/me/pin", h.ChangePINHandler)
		r.Get("/accounts/me/history", h.HistoryHandler)
		r.Get("/accounts/me/credit-score", h.CreditScoreHandler)

		r.Post("/ledger/deposit", h.DepositHandler)
		r.Post("/ledger/withdraw", h.WithdrawHandler)
		r.Post("/ledger/transfer", h.TransferHandler)
		r.Get("/ledger/transactions/{ref}", h.GetTransactionHandler)
		r.Get("/ledger/transactions/{ref}/receipt", h.ReceiptHandler)

		r.Route("/goals", func(r chi.Router) {
			r.Get("/", h.ListGoalsHandler)
			r.Post("/", h.CreateGoalHandler)
			r.Get("/{id}", h.GetGoalHandler)
			r.Delete("/{id}", h.DeleteGoalHandler)
			r.Post("/{id}/contribute", h.ContributeHandler)
			r.Post("/{id}/withdraw", h.WithdrawFromGoalHandler)
			r.Get("/{id}/forecast", h.ForecastHandler)
		})

		r.Post("/payments/deposits", h.InitiateDepositHandler)
		r.Post("/payments/deposits/{ref}/verify", h.VerifyDepositHandler)
		r.Post("/payments/withdrawals", h.InitiateWithdrawalHandler)
		r.Post("/payments/withdrawals/{ref}/verify", h.VerifyWithdrawalHandler)

		r.Post("/advice", h.AdviceHandler)
		r.Get("/fx/convert", h.ConvertHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminOnly)

			r.Get("/stats", h.StatsHandler)
			r.Get("/accounts", h.SearchAccountsHandler)
			r.Get("/accounts/{number}", h.AdminGetAccountHandler)
			r.Post("/accounts/{number}/freeze", h.FreezeHandler)
			r.Post("/accounts/{number}/unfreeze", h.UnfreezeHandler)
			r.Post("/accounts/{number}/reset-pin", h.ResetPINHandler)
			r.Get("/accounts/{number}/credit-score", h.AdminCreditScoreHandler)

			r.Get("/flags", h.ListFlagsHandler)
			r.Get("/flags/{id}", h.GetFlagHandler)
			r.Post("/flags/{id}/confirm", h.ConfirmFlagHandler)
			r.Post("/flags/{id}/approve", h.ApproveFlagHandler)
			r.Delete("/flags/{id}", h.DeleteFlagHandler)
			r.Post("/scan", h.ScanHandler)

			r.Get("/models", h.ModelVersionsHandler)
			r.Post("/models/retrain", h.RetrainHandler)
		})
	})

	return r
}
