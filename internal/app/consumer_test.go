package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/domain"
)

func statusEventBody(t *testing.T, event domain.PayoutStatusEvent) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal test event: %v", err)
	}
	return body
}

func TestHandleMessage_AppliesStatusUpdate(t *testing.T) {
	var applied domain.PayoutStatus
	repo := &stubRepository{
		findByGatewayFn: func(ctx context.Context, gatewayID string) (*domain.PayoutRequest, error) {
			return &domain.PayoutRequest{ID: uuid.New(), DocumentRef: "PE-0001", Status: domain.StatusQueued}, nil
		},
		updateStatusFn: func(ctx context.Context, id uuid.UUID, status domain.PayoutStatus, utr *string, failureReason *string) error {
			applied = status
			return nil
		},
	}
	svc, _ := newTestService(repo, &stubGateway{}, &stubPublisher{})
	consumer := NewPayoutStatusConsumer(svc)

	ok := consumer.HandleMessage(statusEventBody(t, domain.PayoutStatusEvent{
		GatewayPayoutID: "pout_1",
		Status:          "processing",
	}))
	if !ok {
		t.Fatal("a valid event must be acked")
	}
	if applied != domain.StatusProcessing {
		t.Errorf("expected Processing to be applied, got %q", applied)
	}
}

func TestHandleMessage_BackwardTransitionAckedButNotApplied(t *testing.T) {
	repo := &stubRepository{
		findByGatewayFn: func(ctx context.Context, gatewayID string) (*domain.PayoutRequest, error) {
			return &domain.PayoutRequest{ID: uuid.New(), DocumentRef: "PE-0001", Status: domain.StatusProcessed}, nil
		},
		updateStatusFn: func(ctx context.Context, id uuid.UUID, status domain.PayoutStatus, utr *string, failureReason *string) error {
			t.Errorf("backward transition to %q must not be persisted", status)
			return nil
		},
	}
	svc, _ := newTestService(repo, &stubGateway{}, &stubPublisher{})
	consumer := NewPayoutStatusConsumer(svc)

	ok := consumer.HandleMessage(statusEventBody(t, domain.PayoutStatusEvent{
		GatewayPayoutID: "pout_1",
		Status:          "queued",
	}))
	if !ok {
		t.Fatal("an out-of-order event must still be acked")
	}
}

func TestHandleMessage_LinkEventsUseLinkVocabulary(t *testing.T) {
	var applied domain.PayoutStatus
	repo := &stubRepository{
		findByGatewayFn: func(ctx context.Context, gatewayID string) (*domain.PayoutRequest, error) {
			if gatewayID != "poutlk_5" {
				t.Errorf("expected lookup by link id, got %q", gatewayID)
			}
			linkID := gatewayID
			return &domain.PayoutRequest{ID: uuid.New(), DocumentRef: "PE-0001", Status: domain.StatusQueued, GatewayLinkID: &linkID}, nil
		},
		updateStatusFn: func(ctx context.Context, id uuid.UUID, status domain.PayoutStatus, utr *string, failureReason *string) error {
			applied = status
			return nil
		},
	}
	svc, _ := newTestService(repo, &stubGateway{}, &stubPublisher{})
	consumer := NewPayoutStatusConsumer(svc)

	ok := consumer.HandleMessage(statusEventBody(t, domain.PayoutStatusEvent{
		GatewayLinkID: "poutlk_5",
		Status:        "expired",
	}))
	if !ok {
		t.Fatal("a valid link event must be acked")
	}
	if applied != domain.StatusFailed {
		t.Errorf("an expired link should map to Failed, got %q", applied)
	}
}

func TestHandleMessage_MalformedPayloadIsAcked(t *testing.T) {
	svc, _ := newTestService(&stubRepository{}, &stubGateway{}, &stubPublisher{})
	consumer := NewPayoutStatusConsumer(svc)

	if !consumer.HandleMessage([]byte("{not json")) {
		t.Error("malformed payloads must be acked, not re-queued forever")
	}
	if !consumer.HandleMessage(statusEventBody(t, domain.PayoutStatusEvent{Status: "processed"})) {
		t.Error("events without a gateway id must be acked")
	}
	if !consumer.HandleMessage(statusEventBody(t, domain.PayoutStatusEvent{GatewayPayoutID: "pout_1", Status: "weird"})) {
		t.Error("unrecognized statuses must be acked")
	}
}

func TestHandleMessage_TransientStoreErrorRequeues(t *testing.T) {
	repo := &stubRepository{
		findByGatewayFn: func(ctx context.Context, gatewayID string) (*domain.PayoutRequest, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc, _ := newTestService(repo, &stubGateway{}, &stubPublisher{})
	consumer := NewPayoutStatusConsumer(svc)

	ok := consumer.HandleMessage(statusEventBody(t, domain.PayoutStatusEvent{
		GatewayPayoutID: "pout_1",
		Status:          "processed",
	}))
	if ok {
		t.Fatal("a transient store failure must re-queue the delivery")
	}
}
