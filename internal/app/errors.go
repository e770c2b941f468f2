/**
 * @description
 * This file defines the error taxonomy shared by the payout-service's business
 * logic. Validation and authorization failures are sentinel errors or small
 * typed errors carrying the violated limit, so the API layer can map them to
 * structured user-facing responses with errors.Is / errors.As.
 */

package app

import (
	"errors"
	"fmt"

	"github.com/swiftpay/payout-service/internal/domain"
)

var (
	ErrInsufficientPermission = errors.New("you do not have permission to make payouts")
	ErrInvalidAmount          = errors.New("amount must be a positive value")
	ErrDocumentNotPayable     = errors.New("payment document is not in a payable state")
	ErrAmountMismatch         = errors.New("payout amount does not match the document amount")
	ErrContactDetailsMissing  = errors.New("at least one of mobile or email is required for link payouts")
	ErrInvalidDescription     = errors.New("description must be 1-30 characters of letters, digits and spaces")
	ErrInvalidTransferMethod  = errors.New("unsupported transfer method")
	ErrAuthenticationRequired = errors.New("payout authentication required")
	ErrChallengeExpired       = errors.New("challenge expired")
	ErrInvalidCredential      = errors.New("invalid credential")
	ErrChallengeRateLimited   = errors.New("too many challenge requests")
	ErrGatewayUnavailable     = errors.New("payout gateway unavailable")
	ErrAccountDisabled        = errors.New("payout account is disabled")
	ErrCancellationDeclined   = errors.New("cancellation requires explicit confirmation")
)

// AmountLimitError reports a payout amount above a method's ceiling.
type AmountLimitError struct {
	Method domain.TransferMethod
	Limit  int64
}

func (e *AmountLimitError) Error() string {
	return fmt.Sprintf("%s amount exceeds the limit of %d", e.Method, e.Limit)
}

// InsufficientAmountError reports a payout amount below a method's floor.
type InsufficientAmountError struct {
	Method domain.TransferMethod
	Floor  int64
}

func (e *InsufficientAmountError) Error() string {
	return fmt.Sprintf("%s amount must be at least %d", e.Method, e.Floor)
}

// PayoutNotCancellableError names the status that blocks cancellation.
type PayoutNotCancellableError struct {
	Status domain.PayoutStatus
}

func (e *PayoutNotCancellableError) Error() string {
	return fmt.Sprintf("payout in status %q can no longer be cancelled", e.Status)
}
