/**
 * @description
 * This file contains the webhook endpoint receiving payout lifecycle events
 * from the gateway. Each payout account has its own webhook secret, so the
 * route carries the account id and the HMAC is checked against that account's
 * secret before the payload is trusted.
 *
 * Delivery is at-least-once; a short-lived in-memory dedup map absorbs the
 * retries the gateway sends while we are still responding.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: Signature validation.
 * - internal/app, internal/domain, internal/store: State machine and models.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/app"
	"github.com/swiftpay/payout-service/internal/domain"
	"github.com/swiftpay/payout-service/internal/store"
)

const webhookSignatureHeader = "X-Gateway-Signature"

// WebhookHandlers receives and validates gateway webhook deliveries.
type WebhookHandlers struct {
	service *app.Service
	repo    store.Repository

	mu              sync.Mutex
	processedEvents map[string]time.Time
}

// NewWebhookHandlers creates a webhook handler bound to the orchestrator.
func NewWebhookHandlers(service *app.Service, repo store.Repository) *WebhookHandlers {
	return &WebhookHandlers{
		service:         service,
		repo:            repo,
		processedEvents: make(map[string]time.Time),
	}
}

// GatewayWebhookHandler handles POST /webhooks/gateway/{accountID}. An invalid
// signature is a 401 and the payload is never parsed. A valid event always
// returns 200, including replays and out-of-order updates; the gateway only
// needs to know the delivery landed.
func (h *WebhookHandlers) GatewayWebhookHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Could not read request body", http.StatusBadRequest)
		return
	}

	account, err := h.repo.FindPayoutAccountByID(r.Context(), accountID)
	if err != nil {
		// A 404 would leak which account ids exist to an unauthenticated caller.
		log.Printf("level=warn component=webhook msg=\"delivery for unknown account\" account_id=%s", accountID)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	if !validSignature(account.WebhookSecret, r.Header.Get(webhookSignatureHeader), body) {
		log.Printf("level=warn component=webhook msg=\"signature mismatch\" account_id=%s", accountID)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event domain.GatewayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=webhook msg=\"malformed payload\" account_id=%s err=%v", accountID, err)
		http.Error(w, "Malformed payload", http.StatusBadRequest)
		return
	}

	entity, normalize, ok := extractEntity(event)
	if !ok {
		log.Printf("level=warn component=webhook msg=\"event without payout entity; ignoring\" account_id=%s event=%s", accountID, event.Event)
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.alreadyProcessed(event.Event, entity.ID, entity.Status) {
		w.WriteHeader(http.StatusOK)
		return
	}

	status, ok := normalize(entity.Status)
	if !ok {
		log.Printf("level=warn component=webhook msg=\"unrecognized status; ignoring\" account_id=%s raw=%q", accountID, entity.Status)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.service.ApplyStatusUpdate(r.Context(), entity.ID, status, entity.UTR, entity.FailureReason); err != nil {
		log.Printf("level=error component=webhook msg=\"status update failed\" account_id=%s gateway_id=%s err=%v", accountID, entity.ID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// extractEntity pulls the payout or payout-link entity out of the payload and
// pairs it with the right status vocabulary.
func extractEntity(event domain.GatewayWebhookEvent) (domain.GatewayPayoutEntity, func(string) (domain.PayoutStatus, bool), bool) {
	if event.Payload.Payout != nil {
		return event.Payload.Payout.Entity, domain.NormalizeGatewayStatus, true
	}
	if event.Payload.PayoutLink != nil {
		return event.Payload.PayoutLink.Entity, domain.NormalizeLinkStatus, true
	}
	return domain.GatewayPayoutEntity{}, nil, false
}

func validSignature(secret, signatureHeader string, body []byte) bool {
	if secret == "" || signatureHeader == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// alreadyProcessed records the event and reports whether an identical one was
// seen in the last hour. The map is pruned on each call.
func (h *WebhookHandlers) alreadyProcessed(event, entityID, status string) bool {
	key := fmt.Sprintf("%s:%s:%s", event, entityID, status)
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	for k, seen := range h.processedEvents {
		if now.Sub(seen) > time.Hour {
			delete(h.processedEvents, k)
		}
	}
	if _, ok := h.processedEvents[key]; ok {
		return true
	}
	h.processedEvents[key] = now
	return false
}
