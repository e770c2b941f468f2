/**
 * @description
 * This file defines the Go structs that model incoming webhook payloads from
 * the payout gateway. These structures are essential for safely unmarshaling
 * the JSON received at the webhook endpoint before it reaches the payout
 * state machine.
 */

package domain

// GatewayWebhookEvent is the top-level structure of a gateway webhook payload.
type GatewayWebhookEvent struct {
	Event     string              `json:"event"` // e.g. "payout.processed"
	Contains  []string            `json:"contains,omitempty"`
	Payload   GatewayEventPayload `json:"payload"`
	CreatedAt int64               `json:"created_at"`
}

// GatewayEventPayload wraps the entity the event pertains to. Payout events
// carry a payout entity; payout-link events carry a payout_link entity.
type GatewayEventPayload struct {
	Payout     *GatewayEntityWrapper `json:"payout,omitempty"`
	PayoutLink *GatewayEntityWrapper `json:"payout_link,omitempty"`
}

// GatewayEntityWrapper is the `{"entity": {...}}` nesting used by the gateway.
type GatewayEntityWrapper struct {
	Entity GatewayPayoutEntity `json:"entity"`
}

// GatewayPayoutEntity is the payout (or payout link) resource inside a
// webhook payload, reduced to the fields the state machine consumes.
type GatewayPayoutEntity struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	UTR           string `json:"utr,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
}
