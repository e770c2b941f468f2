package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/app"
	"github.com/swiftpay/payout-service/internal/domain"
	"github.com/swiftpay/payout-service/internal/store"
)

// webhookStubRepo implements just the repository methods the webhook path
// touches.
type webhookStubRepo struct {
	store.Repository

	account       *domain.PayoutAccount
	payout        *domain.PayoutRequest
	statusUpdates []domain.PayoutStatus
}

func (s *webhookStubRepo) FindPayoutAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.PayoutAccount, error) {
	if s.account == nil || s.account.ID != accountID {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *webhookStubRepo) FindPayoutRequestByGatewayID(ctx context.Context, gatewayID string) (*domain.PayoutRequest, error) {
	if s.payout == nil {
		return nil, store.ErrPayoutNotFound
	}
	return s.payout, nil
}

func (s *webhookStubRepo) UpdatePayoutStatus(ctx context.Context, requestID uuid.UUID, status domain.PayoutStatus, utr *string, failureReason *string) error {
	s.statusUpdates = append(s.statusUpdates, status)
	s.payout.Status = status
	return nil
}

func newWebhookFixture(t *testing.T) (*WebhookHandlers, *webhookStubRepo, uuid.UUID) {
	t.Helper()
	accountID := uuid.New()
	payoutID := "pout_77"
	repo := &webhookStubRepo{
		account: &domain.PayoutAccount{
			ID:            accountID,
			Enabled:       true,
			WebhookSecret: "whsec_test",
		},
		payout: &domain.PayoutRequest{
			ID:              uuid.New(),
			DocumentRef:     "PE-0001",
			AccountID:       accountID,
			Status:          domain.StatusQueued,
			GatewayPayoutID: &payoutID,
		},
	}
	challenges := app.NewChallengeService(repo, nil, 5*time.Minute, 3)
	service := app.NewService(repo, nil, app.NewPermissionGate(repo), challenges, app.NewTransferRules(app.DefaultTransferLimits()), nil, "payout.events", 5*time.Second)
	return NewWebhookHandlers(service, repo), repo, accountID
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *WebhookHandlers, accountID uuid.UUID, signature string, body []byte) *httptest.ResponseRecorder {
	router := PayoutRoutes(nil, h, "http://localhost/jwks")
	req := httptest.NewRequest("POST", "/webhooks/gateway/"+accountID.String(), bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(webhookSignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const processedEventBody = `{
	"event": "payout.processed",
	"payload": {"payout": {"entity": {"id": "pout_77", "status": "processed", "utr": "UTR900"}}},
	"created_at": 1750000000
}`

func TestGatewayWebhook_ValidSignatureAppliesUpdate(t *testing.T) {
	h, repo, accountID := newWebhookFixture(t)
	body := []byte(processedEventBody)

	w := postWebhook(h, accountID, sign("whsec_test", body), body)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(repo.statusUpdates) != 1 || repo.statusUpdates[0] != domain.StatusProcessed {
		t.Fatalf("expected one transition to Processed, got %v", repo.statusUpdates)
	}
}

func TestGatewayWebhook_BadSignatureRejected(t *testing.T) {
	h, repo, accountID := newWebhookFixture(t)
	body := []byte(processedEventBody)

	w := postWebhook(h, accountID, sign("wrong-secret", body), body)
	if w.Code != 401 {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if len(repo.statusUpdates) != 0 {
		t.Error("a forged delivery must not reach the state machine")
	}

	w = postWebhook(h, accountID, "", body)
	if w.Code != 401 {
		t.Fatalf("missing signature should be 401, got %d", w.Code)
	}
}

func TestGatewayWebhook_UnknownAccountLooksLikeBadSignature(t *testing.T) {
	h, _, _ := newWebhookFixture(t)
	body := []byte(processedEventBody)

	w := postWebhook(h, uuid.New(), sign("whsec_test", body), body)
	if w.Code != 401 {
		t.Fatalf("unknown account should be indistinguishable from a bad signature, got %d", w.Code)
	}
}

func TestGatewayWebhook_ReplayIsAckedOnce(t *testing.T) {
	h, repo, accountID := newWebhookFixture(t)
	body := []byte(processedEventBody)
	signature := sign("whsec_test", body)

	for i := 0; i < 3; i++ {
		if w := postWebhook(h, accountID, signature, body); w.Code != 200 {
			t.Fatalf("delivery %d should be 200, got %d", i+1, w.Code)
		}
	}
	if len(repo.statusUpdates) != 1 {
		t.Fatalf("replayed deliveries must be applied exactly once, got %d updates", len(repo.statusUpdates))
	}
}

func TestGatewayWebhook_LinkEventUsesLinkVocabulary(t *testing.T) {
	h, repo, accountID := newWebhookFixture(t)
	linkID := "poutlk_9"
	repo.payout.GatewayPayoutID = nil
	repo.payout.GatewayLinkID = &linkID

	body := []byte(`{
		"event": "payout_link.expired",
		"payload": {"payout_link": {"entity": {"id": "poutlk_9", "status": "expired"}}},
		"created_at": 1750000000
	}`)

	w := postWebhook(h, accountID, sign("whsec_test", body), body)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(repo.statusUpdates) != 1 || repo.statusUpdates[0] != domain.StatusFailed {
		t.Fatalf("expired link should map to Failed, got %v", repo.statusUpdates)
	}
}

func TestGatewayWebhook_EventWithoutEntityIsIgnored(t *testing.T) {
	h, repo, accountID := newWebhookFixture(t)
	body := []byte(`{"event": "account.updated", "payload": {}, "created_at": 1750000000}`)

	w := postWebhook(h, accountID, sign("whsec_test", body), body)
	if w.Code != 200 {
		t.Fatalf("unrelated events should be acked, got %d", w.Code)
	}
	if len(repo.statusUpdates) != 0 {
		t.Error("unrelated events must not touch the state machine")
	}
}
