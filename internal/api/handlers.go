/**
 * @description
 * This file contains the HTTP handlers for the payout-service's API endpoints.
 * Handlers parse incoming requests, call the orchestrator or challenge
 * service, and translate the business-logic error taxonomy into HTTP status
 * codes. They hold no business rules of their own.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: Service logic, models, and errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/app"
	"github.com/swiftpay/payout-service/internal/domain"
	"github.com/swiftpay/payout-service/internal/store"
)

// PayoutHandlers holds the application services the handlers dispatch to.
type PayoutHandlers struct {
	service    *app.Service
	challenges *app.ChallengeService
	reconciler *app.ReconciliationEngine
}

// NewPayoutHandlers creates a new instance of PayoutHandlers.
func NewPayoutHandlers(service *app.Service, challenges *app.ChallengeService, reconciler *app.ReconciliationEngine) *PayoutHandlers {
	return &PayoutHandlers{service: service, challenges: challenges, reconciler: reconciler}
}

type submitPayoutRequest struct {
	ChallengeID string              `json:"challenge_id"`
	Params      domain.PayoutParams `json:"params"`
}

type bulkSubmitRequest struct {
	ChallengeID string         `json:"challenge_id"`
	Items       []app.BulkItem `json:"items"`
}

type cancelPayoutRequest struct {
	Confirm bool `json:"confirm"`
}

type generateChallengeRequest struct {
	DocumentRefs []string `json:"document_refs"`
}

type verifyChallengeRequest struct {
	ChallengeID string `json:"challenge_id"`
	Value       string `json:"value"`
}

type verifyChallengeResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

type syncAccountRequest struct {
	From string `json:"from,omitempty"` // RFC 3339; optional
	To   string `json:"to,omitempty"`
}

// SubmitPayoutHandler handles requests to submit one payout.
func (h *PayoutHandlers) SubmitPayoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	docRef := chi.URLParam(r, "docRef")

	var req submitPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=submit_payout outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	challengeID, err := uuid.Parse(req.ChallengeID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	payout, err := h.service.SubmitPayout(r.Context(), userID, docRef, challengeID, req.Params)
	if err != nil {
		h.respondServiceError(w, "submit_payout", docRef, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, payout)
}

// BulkSubmitHandler handles requests to submit many payouts under one
// challenge token.
func (h *PayoutHandlers) BulkSubmitHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req bulkSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "At least one document is required")
		return
	}
	challengeID, err := uuid.Parse(req.ChallengeID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	result := h.service.BulkSubmit(r.Context(), userID, challengeID, req.Items)
	// Bulk reports per-document outcomes; the envelope is 200 even when some
	// documents failed.
	h.writeJSON(w, http.StatusOK, result)
}

// CancelPayoutHandler handles requests to cancel a queued payout.
func (h *PayoutHandlers) CancelPayoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}
	docRef := chi.URLParam(r, "docRef")

	var req cancelPayoutRequest
	if r.Body != nil {
		// An empty body means no explicit confirmation.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	payout, err := h.service.CancelPayout(r.Context(), userID, docRef, req.Confirm)
	if err != nil {
		h.respondServiceError(w, "cancel_payout", docRef, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// GetPayoutHandler returns the payout for a document, refreshed from the
// gateway when webhook delivery is unavailable.
func (h *PayoutHandlers) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	docRef := chi.URLParam(r, "docRef")

	payout, err := h.service.PollPayoutStatus(r.Context(), docRef)
	if err != nil {
		h.respondServiceError(w, "get_payout", docRef, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// GenerateChallengeHandler creates one step-up challenge for a batch of
// documents.
func (h *PayoutHandlers) GenerateChallengeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req generateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.DocumentRefs) == 0 {
		h.writeError(w, http.StatusBadRequest, "At least one document reference is required")
		return
	}

	issued, err := h.challenges.Generate(r.Context(), userID, req.DocumentRefs)
	if err != nil {
		if errors.Is(err, app.ErrChallengeRateLimited) {
			h.writeError(w, http.StatusTooManyRequests, "Too many authentication requests. Please wait a minute.")
			return
		}
		log.Printf("level=error component=api endpoint=generate_challenge err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not generate authentication challenge")
		return
	}
	h.writeJSON(w, http.StatusCreated, issued)
}

// VerifyChallengeHandler verifies the user's answer to a challenge. The
// response body carries the outcome; the status is 200 either way so the
// client cannot distinguish failure modes from the transport.
func (h *PayoutHandlers) VerifyChallengeHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	challengeID, err := uuid.Parse(req.ChallengeID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	verified, message := h.challenges.Verify(r.Context(), challengeID, req.Value)
	h.writeJSON(w, http.StatusOK, verifyChallengeResponse{Verified: verified, Message: message})
}

// SyncAccountHandler triggers reconciliation for one payout account. Without
// an explicit window it resumes from the account's last-sync marker.
func (h *PayoutHandlers) SyncAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	var req syncAccountRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var result *app.SyncResult
	if req.From != "" || req.To != "" {
		from, to, parseErr := parseSyncWindow(req.From, req.To)
		if parseErr != nil {
			h.writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		account, accErr := h.reconciler.Account(r.Context(), accountID)
		if accErr != nil {
			h.respondServiceError(w, "sync_account", accountID.String(), accErr)
			return
		}
		result, err = h.reconciler.Sync(r.Context(), account, from, to)
	} else {
		result, err = h.reconciler.SyncAccount(r.Context(), accountID, 30*24*time.Hour)
	}
	if err != nil {
		if errors.Is(err, app.ErrInvalidSyncWindow) || errors.Is(err, app.ErrSyncWindowFuture) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondServiceError(w, "sync_account", accountID.String(), err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func parseSyncWindow(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("from must be an RFC 3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("to must be an RFC 3339 timestamp")
	}
	return from, to, nil
}

// respondServiceError maps the business-logic error taxonomy onto HTTP status
// codes. Anything unmapped is a 500 with a generic message.
func (h *PayoutHandlers) respondServiceError(w http.ResponseWriter, endpoint, ref string, err error) {
	var limitErr *app.AmountLimitError
	var floorErr *app.InsufficientAmountError
	var notCancellable *app.PayoutNotCancellableError

	switch {
	case errors.Is(err, app.ErrInsufficientPermission):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrAuthenticationRequired):
		h.writeError(w, http.StatusUnauthorized, "Payout authentication required. Please verify a challenge first.")
	case errors.Is(err, app.ErrPayoutAlreadySubmitted):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &notCancellable):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrCancellationDeclined):
		h.writeError(w, http.StatusConflict, "This account does not cancel payouts automatically. Re-send with confirm=true.")
	case errors.As(err, &limitErr), errors.As(err, &floorErr),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrDocumentNotPayable),
		errors.Is(err, app.ErrAmountMismatch),
		errors.Is(err, app.ErrContactDetailsMissing),
		errors.Is(err, app.ErrInvalidDescription),
		errors.Is(err, app.ErrInvalidTransferMethod),
		errors.Is(err, app.ErrAccountDisabled):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrDocumentNotFound),
		errors.Is(err, store.ErrPayoutNotFound),
		errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrGatewayUnavailable):
		log.Printf("level=error component=api endpoint=%s ref=%s err=%v", endpoint, ref, err)
		h.writeError(w, http.StatusBadGateway, "The payout gateway is unavailable. Please try again.")
	default:
		log.Printf("level=error component=api endpoint=%s ref=%s err=%v", endpoint, ref, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *PayoutHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func (h *PayoutHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
