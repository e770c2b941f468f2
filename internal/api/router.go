/**
 * @description
 * This file sets up the HTTP router for the payout-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * middleware for authentication, logging and recovery.
 *
 * The webhook route is outside the authenticated group: the gateway signs its
 * deliveries with the per-account secret instead of a bearer token.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PayoutRoutes creates and returns the router for the payout service.
func PayoutRoutes(h *PayoutHandlers, wh *WebhookHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Gateway deliveries authenticate with the per-account HMAC.
	r.Post("/webhooks/gateway/{accountID}", wh.GatewayWebhookHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/auth/challenge", h.GenerateChallengeHandler)
		r.Post("/auth/verify", h.VerifyChallengeHandler)

		r.Get("/payouts/{docRef}", h.GetPayoutHandler)
		r.Post("/payouts/{docRef}/submit", h.SubmitPayoutHandler)
		r.Post("/payouts/{docRef}/cancel", h.CancelPayoutHandler)
		r.Post("/payouts/bulk-submit", h.BulkSubmitHandler)

		r.Post("/accounts/{accountID}/sync", h.SyncAccountHandler)
	})

	return r
}
