/**
 * @description
 * This file implements the broker-side entry point for payout status updates.
 * Deliveries carry a PayoutStatusEvent; the handler normalizes the raw gateway
 * status and hands it to the orchestrator's transition path, which drops
 * anything out of order.
 *
 * The handler returns true (ack) for malformed or unrecognized payloads:
 * re-queuing them would loop forever.
 */

package app

import (
	"context"
	"encoding/json"
	"log"

	"github.com/swiftpay/payout-service/internal/domain"
)

// PayoutStatusConsumer adapts broker deliveries to the orchestrator.
type PayoutStatusConsumer struct {
	service *Service
}

// NewPayoutStatusConsumer creates a consumer handler bound to the orchestrator.
func NewPayoutStatusConsumer(service *Service) *PayoutStatusConsumer {
	return &PayoutStatusConsumer{service: service}
}

// HandleMessage processes one delivery. The return value follows the broker
// contract: true acks, false re-queues. Only transient persistence errors
// return false.
func (c *PayoutStatusConsumer) HandleMessage(body []byte) bool {
	var event domain.PayoutStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=payout_status_consumer msg=\"malformed event payload; dropping\" err=%v", err)
		return true
	}

	gatewayID := event.GatewayPayoutID
	normalize := domain.NormalizeGatewayStatus
	if gatewayID == "" {
		gatewayID = event.GatewayLinkID
		normalize = domain.NormalizeLinkStatus
	}
	if gatewayID == "" {
		log.Printf("level=warn component=payout_status_consumer msg=\"event without gateway id; dropping\"")
		return true
	}

	status, ok := normalize(event.Status)
	if !ok {
		log.Printf("level=warn component=payout_status_consumer msg=\"unrecognized status; dropping\" gateway_id=%s raw=%q", gatewayID, event.Status)
		return true
	}

	if err := c.service.ApplyStatusUpdate(context.Background(), gatewayID, status, event.UTR, event.Reason); err != nil {
		log.Printf("level=error component=payout_status_consumer msg=\"status update failed; re-queuing\" gateway_id=%s err=%v", gatewayID, err)
		return false
	}
	return true
}
