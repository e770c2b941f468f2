/**
 * @description
 * This file defines the core domain models for the payout-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (paise), which
 *   avoids floating-point inaccuracies with financial data.
 * - Gateway identifiers (payout id, payout link id, UTR) are pointers so that
 *   "not yet assigned" is distinguishable from an empty value.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferMethod is the rail a payout travels on.
type TransferMethod string

const (
	MethodNEFT TransferMethod = "NEFT"
	MethodRTGS TransferMethod = "RTGS"
	MethodIMPS TransferMethod = "IMPS"
	MethodUPI  TransferMethod = "UPI"
	MethodLink TransferMethod = "Link"
)

// Valid reports whether m is one of the supported transfer methods.
func (m TransferMethod) Valid() bool {
	switch m {
	case MethodNEFT, MethodRTGS, MethodIMPS, MethodUPI, MethodLink:
		return true
	}
	return false
}

// IsBankTransfer reports whether m settles directly to a bank account.
// The instantaneous flag is only meaningful for these methods.
func (m TransferMethod) IsBankTransfer() bool {
	switch m {
	case MethodNEFT, MethodRTGS, MethodIMPS:
		return true
	}
	return false
}

// Capability is the action a user wants to perform against a payout account
// or payment document.
type Capability string

const (
	CapabilityView   Capability = "view"
	CapabilitySubmit Capability = "submit"
	CapabilityCancel Capability = "cancel"
)

// PayoutAccount represents one company bank account enabled for gateway payouts.
// API credentials and the webhook secret are write-only from the API's
// perspective and never serialized.
type PayoutAccount struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	BankAccountRef   string     `json:"bank_account_ref"`
	GatewayAccountNo string     `json:"gateway_account_no"`
	APIKey           string     `json:"-"`
	APISecret        string     `json:"-"`
	WebhookSecret    string     `json:"-"`
	Enabled          bool       `json:"enabled"`
	AutoCancelPayout bool       `json:"auto_cancel_payout"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PayoutRequest is the payable side of one payment document's payout. Exactly
// one of GatewayPayoutID / GatewayLinkID is set once a gateway call succeeds,
// depending on the transfer method.
type PayoutRequest struct {
	ID              uuid.UUID      `json:"id"`
	DocumentRef     string         `json:"document_ref"`
	AccountID       uuid.UUID      `json:"account_id"`
	Method          TransferMethod `json:"method"`
	Amount          int64          `json:"amount"` // in paise
	PartyMobile     string         `json:"party_mobile,omitempty"`
	PartyEmail      string         `json:"party_email,omitempty"`
	Description     string         `json:"description,omitempty"`
	Instantaneous   bool           `json:"instantaneous"`
	GatewayPayoutID *string        `json:"gateway_payout_id,omitempty"`
	GatewayLinkID   *string        `json:"gateway_link_id,omitempty"`
	Status          PayoutStatus   `json:"status"`
	UTR             *string        `json:"utr,omitempty"`
	FailureReason   *string        `json:"failure_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// PayoutParams is the DTO describing how a payment document should be paid out.
type PayoutParams struct {
	Method        TransferMethod `json:"method"`
	Amount        int64          `json:"amount"` // in paise
	PartyMobile   string         `json:"party_mobile,omitempty"`
	PartyEmail    string         `json:"party_email,omitempty"`
	Description   string         `json:"description,omitempty"`
	Instantaneous bool           `json:"instantaneous,omitempty"`
}

// HasContact reports whether at least one contact channel is present. The Link
// method requires this, since the gateway delivers the collection page to the
// payee out of band.
func (p PayoutParams) HasContact() bool {
	return p.PartyMobile != "" || p.PartyEmail != ""
}

// PaymentDocument is the read-only view of a payment document owned by the
// host document system. The payout-service never mutates these fields.
type PaymentDocument struct {
	Ref         string    `json:"ref"`
	AccountID   uuid.UUID `json:"account_id"`
	Amount      int64     `json:"amount"`
	PartyMobile string    `json:"party_mobile,omitempty"`
	PartyEmail  string    `json:"party_email,omitempty"`
	DocStatus   string    `json:"doc_status"` // draft, submitted, cancelled
}

// Payable reports whether the document may have a payout raised against it.
// Drafts have not been committed yet and cancelled documents never pay out.
func (d PaymentDocument) Payable() bool {
	return d.DocStatus == DocStatusSubmitted
}

// Document workflow states, as reported by the host document system.
const (
	DocStatusDraft     = "draft"
	DocStatusSubmitted = "submitted"
	DocStatusCancelled = "cancelled"
)

// BankTransaction is one gateway-reported account transaction imported by the
// reconciliation engine. GatewayTransactionID is the dedup key.
type BankTransaction struct {
	ID                   uuid.UUID `json:"id"`
	AccountID            uuid.UUID `json:"account_id"`
	GatewayTransactionID string    `json:"gateway_transaction_id"`
	GatewayPayoutID      *string   `json:"gateway_payout_id,omitempty"`
	UTR                  *string   `json:"utr,omitempty"`
	Amount               int64     `json:"amount"` // signed, in paise
	Description          string    `json:"description,omitempty"`
	TransactedAt         time.Time `json:"transacted_at"`
	CreatedAt            time.Time `json:"created_at"`
}

// PayoutStatusEvent is the payload carried by asynchronous payout updates,
// whether they arrive over the message broker or the webhook endpoint.
type PayoutStatusEvent struct {
	GatewayPayoutID string `json:"gateway_payout_id"`
	GatewayLinkID   string `json:"gateway_link_id,omitempty"`
	Status          string `json:"status"`
	UTR             string `json:"utr,omitempty"`
	Reason          string `json:"reason,omitempty"`
}
