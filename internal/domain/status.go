/**
 * @description
 * This file models the payout lifecycle: the status enumeration, the allowed
 * transition table, and the cancellability rule. Payout status is only ever
 * mutated through ApplyTransition so that out-of-order gateway updates (a
 * "Queued" webhook arriving after "Processed") can never move a payout
 * backward.
 */

package domain

// PayoutStatus is the lifecycle state of a payout attempt.
type PayoutStatus string

const (
	StatusNotInitiated PayoutStatus = "Not Initiated"
	StatusQueued       PayoutStatus = "Queued"
	StatusPending      PayoutStatus = "Pending"
	StatusScheduled    PayoutStatus = "Scheduled"
	StatusProcessing   PayoutStatus = "Processing"
	StatusProcessed    PayoutStatus = "Processed"
	StatusFailed       PayoutStatus = "Failed"
	StatusRejected     PayoutStatus = "Rejected"
	StatusCancelled    PayoutStatus = "Cancelled"
	StatusReversed     PayoutStatus = "Reversed"
)

// allowedTransitions is the single source of truth for lifecycle moves.
// Cancelled is reachable only from Not Initiated and Queued; once a payout is
// with the bank (Pending/Scheduled/Processing) it can only be observed to a
// terminal state. Reversed models a late reversal by the bank after success.
var allowedTransitions = map[PayoutStatus][]PayoutStatus{
	StatusNotInitiated: {StatusQueued, StatusCancelled},
	StatusQueued:       {StatusPending, StatusScheduled, StatusProcessing, StatusProcessed, StatusFailed, StatusRejected, StatusCancelled},
	StatusPending:      {StatusScheduled, StatusProcessing, StatusProcessed, StatusFailed, StatusRejected},
	StatusScheduled:    {StatusProcessing, StatusProcessed, StatusFailed, StatusRejected},
	StatusProcessing:   {StatusProcessed, StatusFailed, StatusRejected},
	StatusProcessed:    {StatusReversed},
	StatusFailed:       nil,
	StatusRejected:     nil,
	StatusCancelled:    nil,
	StatusReversed:     nil,
}

// Valid reports whether s is an enumerated payout status.
func (s PayoutStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether s admits no further transitions.
func (s PayoutStatus) Terminal() bool {
	targets, ok := allowedTransitions[s]
	return ok && len(targets) == 0
}

// CanTransition reports whether moving from one status to another is allowed
// by the lifecycle table. Self-transitions are not allowed; duplicate updates
// are treated as replays and dropped by the caller.
func CanTransition(from, to PayoutStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsCancellable reports whether a payout in status s may still be cancelled
// through this system.
func IsCancellable(s PayoutStatus) bool {
	return s == StatusNotInitiated || s == StatusQueued
}

// CarriesUTR reports whether a transition into s may carry the bank's
// settlement reference. The UTR is assigned by the bank on completion, so it
// is only accepted alongside Processed and Reversed updates.
func CarriesUTR(s PayoutStatus) bool {
	return s == StatusProcessed || s == StatusReversed
}

// NormalizeGatewayStatus maps a raw gateway payout status string onto the
// lifecycle enumeration. The second return value is false for statuses this
// system does not recognize.
func NormalizeGatewayStatus(raw string) (PayoutStatus, bool) {
	switch raw {
	case "queued":
		return StatusQueued, true
	case "pending":
		return StatusPending, true
	case "scheduled":
		return StatusScheduled, true
	case "processing":
		return StatusProcessing, true
	case "processed":
		return StatusProcessed, true
	case "failed":
		return StatusFailed, true
	case "rejected":
		return StatusRejected, true
	case "cancelled":
		return StatusCancelled, true
	case "reversed":
		return StatusReversed, true
	}
	return "", false
}

// NormalizeLinkStatus maps a gateway payout-link status onto the same payout
// lifecycle. Links have their own vocabulary (issued, expired) which collapses
// onto the payout table so one transition function serves both.
func NormalizeLinkStatus(raw string) (PayoutStatus, bool) {
	switch raw {
	case "issued":
		return StatusQueued, true
	case "pending":
		return StatusPending, true
	case "processing":
		return StatusProcessing, true
	case "processed":
		return StatusProcessed, true
	case "cancelled":
		return StatusCancelled, true
	case "expired":
		return StatusFailed, true
	case "rejected":
		return StatusRejected, true
	}
	return "", false
}
