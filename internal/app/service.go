/**
 * @description
 * This file implements the payout orchestrator: the single entry point for
 * submitting, bulk-submitting and cancelling payouts, and for applying
 * asynchronous status updates from the gateway.
 *
 * The orchestrator owns the ordering of its guards. A submit request must pass
 * the permission gate, then the document state and amount checks, then the
 * transfer rules, then present a verified challenge token, and only then is
 * the gateway called. On gateway failure no
 * local state is written, so a failed submission leaves the document exactly
 * where it was.
 *
 * @dependencies
 * - github.com/google/uuid: Idempotency keys and identifiers.
 * - internal/store: Persistence.
 * - pkg/gatewayclient: The payout provider API.
 * - pkg/rabbitmq: Lifecycle event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/domain"
	"github.com/swiftpay/payout-service/internal/store"
	"github.com/swiftpay/payout-service/pkg/gatewayclient"
	"github.com/swiftpay/payout-service/pkg/rabbitmq"
)

// Gateway is the subset of the payout provider client the orchestrator needs.
// Defined here so tests can substitute a stub without an HTTP server.
type Gateway interface {
	CreatePayout(ctx context.Context, creds gatewayclient.Credentials, idempotencyKey string, req gatewayclient.PayoutRequest) (*gatewayclient.Payout, error)
	CreatePayoutLink(ctx context.Context, creds gatewayclient.Credentials, req gatewayclient.PayoutLinkRequest) (*gatewayclient.PayoutLink, error)
	GetPayout(ctx context.Context, creds gatewayclient.Credentials, payoutID string) (*gatewayclient.Payout, error)
	CancelPayout(ctx context.Context, creds gatewayclient.Credentials, payoutID string) (*gatewayclient.Payout, error)
	CancelPayoutLink(ctx context.Context, creds gatewayclient.Credentials, linkID string) (*gatewayclient.PayoutLink, error)
	ListTransactions(ctx context.Context, creds gatewayclient.Credentials, accountNumber string, from, to time.Time, count, skip int) (*gatewayclient.TransactionList, error)
}

// ErrPayoutAlreadySubmitted guards against double submission of one document.
var ErrPayoutAlreadySubmitted = errors.New("a payout for this document is already in flight")

// Service orchestrates the payout lifecycle for payment documents.
type Service struct {
	repo       store.Repository
	gateway    Gateway
	gate       *PermissionGate
	challenges *ChallengeService
	rules      *TransferRules
	producer   rabbitmq.Publisher

	eventExchange  string
	gatewayTimeout time.Duration
}

// NewService creates the payout orchestrator.
func NewService(repo store.Repository, gateway Gateway, gate *PermissionGate, challenges *ChallengeService, rules *TransferRules, producer rabbitmq.Publisher, eventExchange string, gatewayTimeout time.Duration) *Service {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 30 * time.Second
	}
	return &Service{
		repo:           repo,
		gateway:        gateway,
		gate:           gate,
		challenges:     challenges,
		rules:          rules,
		producer:       producer,
		eventExchange:  eventExchange,
		gatewayTimeout: gatewayTimeout,
	}
}

// SubmitPayout authorizes and submits one payout for a payment document. The
// guards run in a fixed order: permission gate, document state and amount
// checks, transfer rules, challenge token, then the gateway call. Only a
// successful gateway call writes local state, at which point the payout is
// Queued.
func (s *Service) SubmitPayout(ctx context.Context, userID, docRef string, challengeID uuid.UUID, params domain.PayoutParams) (*domain.PayoutRequest, error) {
	doc, err := s.repo.GetDocument(ctx, docRef)
	if err != nil {
		return nil, err
	}

	if err := s.gate.RequireAuthorization(ctx, userID, doc.AccountID, docRef, domain.CapabilitySubmit); err != nil {
		return nil, err
	}

	// The document is the source of truth for whether money may move and how
	// much. Drafts and cancelled documents never reach the gateway.
	if !doc.Payable() {
		return nil, ErrDocumentNotPayable
	}
	if params.Amount != doc.Amount {
		return nil, ErrAmountMismatch
	}

	if err := s.rules.ValidateParams(params); err != nil {
		return nil, err
	}

	if !s.challenges.Authorized(challengeID, userID, docRef) {
		return nil, ErrAuthenticationRequired
	}

	account, err := s.repo.FindPayoutAccountByID(ctx, doc.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.Enabled {
		return nil, ErrAccountDisabled
	}

	existing, err := s.repo.FindPayoutRequestByDocumentRef(ctx, docRef)
	if err != nil && !errors.Is(err, store.ErrPayoutNotFound) {
		return nil, err
	}
	if existing != nil && !existing.Status.Terminal() {
		return nil, ErrPayoutAlreadySubmitted
	}

	request := &domain.PayoutRequest{
		ID:            uuid.New(),
		DocumentRef:   docRef,
		AccountID:     account.ID,
		Method:        params.Method,
		Amount:        params.Amount,
		PartyMobile:   params.PartyMobile,
		PartyEmail:    params.PartyEmail,
		Description:   params.Description,
		Instantaneous: params.Instantaneous,
		Status:        domain.StatusQueued,
	}

	creds := gatewayclient.Credentials{Key: account.APIKey, Secret: account.APISecret}
	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	if params.Method == domain.MethodLink {
		link, err := s.gateway.CreatePayoutLink(callCtx, creds, gatewayclient.PayoutLinkRequest{
			AccountNumber: account.GatewayAccountNo,
			Amount:        params.Amount,
			Currency:      "INR",
			Description:   params.Description,
			Contact: gatewayclient.LinkContact{
				Contact: params.PartyMobile,
				Email:   params.PartyEmail,
			},
			SendSMS:     params.PartyMobile != "",
			SendEmail:   params.PartyEmail != "",
			ReferenceID: docRef,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		request.GatewayLinkID = &link.ID
		if status, ok := domain.NormalizeLinkStatus(link.Status); ok {
			request.Status = status
		}
	} else {
		mode := params.Method
		if params.Method.IsBankTransfer() {
			mode = s.rules.ResolveBankMode(params.Amount, params.Instantaneous)
		}
		payout, err := s.gateway.CreatePayout(callCtx, creds, request.ID.String(), gatewayclient.PayoutRequest{
			AccountNumber:     account.GatewayAccountNo,
			Amount:            params.Amount,
			Currency:          "INR",
			Mode:              string(mode),
			Purpose:           "payout",
			QueueIfLowBalance: true,
			ReferenceID:       docRef,
			Narration:         params.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		request.GatewayPayoutID = &payout.ID
		if status, ok := domain.NormalizeGatewayStatus(payout.Status); ok {
			request.Status = status
		}
	}

	// The gateway accepted; persist even if the caller has gone away, or the
	// payout would be live at the bank with no local record.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.repo.CreatePayoutRequest(persistCtx, request); err != nil {
		log.Printf("level=error component=payout_orchestrator msg=\"gateway accepted but local persist failed\" document_ref=%s err=%v", docRef, err)
		return nil, err
	}

	s.publishEvent(persistCtx, "payout.submitted", request)
	log.Printf("level=info component=payout_orchestrator msg=\"payout submitted\" document_ref=%s method=%s amount=%d status=%q", docRef, request.Method, request.Amount, request.Status)
	return request, nil
}

// BulkItem is one entry in a bulk submission.
type BulkItem struct {
	DocRef string              `json:"document_ref"`
	Params domain.PayoutParams `json:"params"`
}

// BulkFailure records one document that could not be submitted.
type BulkFailure struct {
	DocRef string `json:"document_ref"`
	Reason string `json:"reason"`
}

// BulkResult summarizes a bulk submission.
type BulkResult struct {
	Submitted []string      `json:"submitted"`
	Failed    []BulkFailure `json:"failed"`
}

// BulkSubmit submits many payouts under one verified challenge token. A
// failure on one document never aborts the batch; every remaining document is
// still attempted and the failures are reported per document.
func (s *Service) BulkSubmit(ctx context.Context, userID string, challengeID uuid.UUID, items []BulkItem) *BulkResult {
	result := &BulkResult{}
	for _, item := range items {
		if _, err := s.SubmitPayout(ctx, userID, item.DocRef, challengeID, item.Params); err != nil {
			result.Failed = append(result.Failed, BulkFailure{DocRef: item.DocRef, Reason: err.Error()})
			continue
		}
		result.Submitted = append(result.Submitted, item.DocRef)
	}
	log.Printf("level=info component=payout_orchestrator msg=\"bulk submission complete\" submitted=%d failed=%d", len(result.Submitted), len(result.Failed))
	return result
}

// CancelPayout cancels a payout that has not yet left the queue. When the
// account is not flagged for automatic cancellation, the caller must confirm
// with wantsCancel; otherwise the request is declined without touching the
// gateway.
func (s *Service) CancelPayout(ctx context.Context, userID, docRef string, wantsCancel bool) (*domain.PayoutRequest, error) {
	request, err := s.repo.FindPayoutRequestByDocumentRef(ctx, docRef)
	if err != nil {
		return nil, err
	}

	if err := s.gate.RequireAuthorization(ctx, userID, request.AccountID, docRef, domain.CapabilityCancel); err != nil {
		return nil, err
	}

	if !domain.IsCancellable(request.Status) {
		return nil, &PayoutNotCancellableError{Status: request.Status}
	}

	account, err := s.repo.FindPayoutAccountByID(ctx, request.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.AutoCancelPayout && !wantsCancel {
		return nil, ErrCancellationDeclined
	}

	creds := gatewayclient.Credentials{Key: account.APIKey, Secret: account.APISecret}
	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	// Not Initiated means the gateway was never called, so there is nothing
	// remote to cancel.
	if request.Status == domain.StatusQueued {
		switch {
		case request.GatewayPayoutID != nil:
			if _, err := s.gateway.CancelPayout(callCtx, creds, *request.GatewayPayoutID); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
			}
		case request.GatewayLinkID != nil:
			if _, err := s.gateway.CancelPayoutLink(callCtx, creds, *request.GatewayLinkID); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
			}
		}
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := s.repo.UpdatePayoutStatus(persistCtx, request.ID, domain.StatusCancelled, nil, nil); err != nil {
		return nil, err
	}
	request.Status = domain.StatusCancelled

	s.publishEvent(persistCtx, "payout.cancelled", request)
	log.Printf("level=info component=payout_orchestrator msg=\"payout cancelled\" document_ref=%s", docRef)
	return request, nil
}

// ApplyStatusUpdate moves a payout to a new lifecycle status reported by the
// gateway. Updates that would move the payout backward or sideways are logged
// and dropped; they are replays or out-of-order deliveries, not errors. The
// UTR is recorded only on statuses where the bank assigns one.
func (s *Service) ApplyStatusUpdate(ctx context.Context, gatewayID string, to domain.PayoutStatus, utr, failureReason string) error {
	request, err := s.repo.FindPayoutRequestByGatewayID(ctx, gatewayID)
	if err != nil {
		if errors.Is(err, store.ErrPayoutNotFound) {
			log.Printf("level=warn component=payout_orchestrator msg=\"status update for unknown payout\" gateway_id=%s status=%q", gatewayID, to)
			return nil
		}
		return err
	}

	if request.Status == to {
		return nil
	}
	if !domain.CanTransition(request.Status, to) {
		log.Printf("level=warn component=payout_orchestrator msg=\"rejecting invalid status transition\" document_ref=%s from=%q to=%q", request.DocumentRef, request.Status, to)
		return nil
	}

	var utrPtr *string
	if utr != "" && domain.CarriesUTR(to) {
		utrPtr = &utr
	}
	var reasonPtr *string
	if failureReason != "" {
		reasonPtr = &failureReason
	}

	if err := s.repo.UpdatePayoutStatus(ctx, request.ID, to, utrPtr, reasonPtr); err != nil {
		return err
	}

	request.Status = to
	request.UTR = utrPtr
	request.FailureReason = reasonPtr
	s.publishEvent(ctx, "payout.status."+routingSuffix(to), request)
	log.Printf("level=info component=payout_orchestrator msg=\"payout status updated\" document_ref=%s status=%q utr=%v", request.DocumentRef, to, utr != "")
	return nil
}

// PollPayoutStatus fetches the payout's current state directly from the
// gateway and applies it through the usual transition path. This is the
// fallback for deployments where webhook delivery is not possible.
func (s *Service) PollPayoutStatus(ctx context.Context, docRef string) (*domain.PayoutRequest, error) {
	request, err := s.repo.FindPayoutRequestByDocumentRef(ctx, docRef)
	if err != nil {
		return nil, err
	}
	if request.GatewayPayoutID == nil {
		return request, nil
	}

	account, err := s.repo.FindPayoutAccountByID(ctx, request.AccountID)
	if err != nil {
		return nil, err
	}
	creds := gatewayclient.Credentials{Key: account.APIKey, Secret: account.APISecret}

	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	payout, err := s.gateway.GetPayout(callCtx, creds, *request.GatewayPayoutID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	status, ok := domain.NormalizeGatewayStatus(payout.Status)
	if !ok {
		log.Printf("level=warn component=payout_orchestrator msg=\"unrecognized gateway status on poll\" document_ref=%s raw=%q", docRef, payout.Status)
		return request, nil
	}
	if err := s.ApplyStatusUpdate(ctx, *request.GatewayPayoutID, status, payout.UTR, payout.FailureReason); err != nil {
		return nil, err
	}
	return s.repo.FindPayoutRequestByDocumentRef(ctx, docRef)
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, request *domain.PayoutRequest) {
	if s.producer == nil {
		return
	}
	event := domain.PayoutStatusEvent{Status: string(request.Status)}
	if request.GatewayPayoutID != nil {
		event.GatewayPayoutID = *request.GatewayPayoutID
	}
	if request.GatewayLinkID != nil {
		event.GatewayLinkID = *request.GatewayLinkID
	}
	if request.UTR != nil {
		event.UTR = *request.UTR
	}
	if request.FailureReason != nil {
		event.Reason = *request.FailureReason
	}
	if err := s.producer.Publish(ctx, s.eventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=payout_orchestrator msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

// routingSuffix lowercases a status into a routing-key segment, e.g.
// "Not Initiated" -> "not_initiated".
func routingSuffix(s domain.PayoutStatus) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+'a'-'A')
		case c == ' ':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
