/**
 * @description
 * This file implements the transfer rules: the per-method amount thresholds,
 * the contact requirement for link payouts, and the gateway's description
 * format. It is the single source of truth for these constraints; nothing
 * else in the service re-declares them.
 *
 * Thresholds are injected from configuration with the documented defaults so
 * policy changes do not require a rebuild.
 */

package app

import (
	"regexp"

	"github.com/swiftpay/payout-service/internal/domain"
)

// descriptionPattern is the gateway's narration constraint: letters, digits
// and spaces, at most 30 characters.
var descriptionPattern = regexp.MustCompile(`^[A-Za-z0-9 ]{1,30}$`)

// TransferLimits holds the per-method amount thresholds, in paise.
type TransferLimits struct {
	IMPSCeiling int64
	UPICeiling  int64
	RTGSFloor   int64
}

// DefaultTransferLimits returns the reference policy values.
func DefaultTransferLimits() TransferLimits {
	return TransferLimits{
		IMPSCeiling: 500000,
		UPICeiling:  100000,
		RTGSFloor:   200000,
	}
}

// TransferRules validates payout parameters against the configured limits.
type TransferRules struct {
	limits TransferLimits
}

// NewTransferRules creates a rules validator. Non-positive thresholds fall
// back to the defaults.
func NewTransferRules(limits TransferLimits) *TransferRules {
	defaults := DefaultTransferLimits()
	if limits.IMPSCeiling <= 0 {
		limits.IMPSCeiling = defaults.IMPSCeiling
	}
	if limits.UPICeiling <= 0 {
		limits.UPICeiling = defaults.UPICeiling
	}
	if limits.RTGSFloor <= 0 {
		limits.RTGSFloor = defaults.RTGSFloor
	}
	return &TransferRules{limits: limits}
}

// Validate checks one payout's method, amount, contact availability and
// description. Each rule is evaluated independently; the first violation is
// returned. Amounts exactly at a ceiling pass; amounts exactly at the RTGS
// floor pass.
func (r *TransferRules) Validate(method domain.TransferMethod, amount int64, hasContact bool, description string) error {
	if !method.Valid() {
		return ErrInvalidTransferMethod
	}

	if amount <= 0 {
		return ErrInvalidAmount
	}

	switch method {
	case domain.MethodIMPS:
		if amount > r.limits.IMPSCeiling {
			return &AmountLimitError{Method: method, Limit: r.limits.IMPSCeiling}
		}
	case domain.MethodUPI:
		if amount > r.limits.UPICeiling {
			return &AmountLimitError{Method: method, Limit: r.limits.UPICeiling}
		}
	case domain.MethodRTGS:
		if amount < r.limits.RTGSFloor {
			return &InsufficientAmountError{Method: method, Floor: r.limits.RTGSFloor}
		}
	}

	if method == domain.MethodLink && !hasContact {
		return ErrContactDetailsMissing
	}

	if description != "" && !descriptionPattern.MatchString(description) {
		return ErrInvalidDescription
	}

	return nil
}

// ValidateParams applies Validate to a full parameter set, plus the
// instantaneous-flag constraint: instantaneous is only meaningful for bank
// transfers and only under the IMPS ceiling.
func (r *TransferRules) ValidateParams(p domain.PayoutParams) error {
	if err := r.Validate(p.Method, p.Amount, p.HasContact(), p.Description); err != nil {
		return err
	}
	if p.Instantaneous {
		if !p.Method.IsBankTransfer() {
			return ErrInvalidTransferMethod
		}
		if p.Amount > r.limits.IMPSCeiling {
			return &AmountLimitError{Method: domain.MethodIMPS, Limit: r.limits.IMPSCeiling}
		}
	}
	return nil
}

// ResolveBankMode picks the concrete bank rail for a composite bank payout:
// instantaneous transfers under the IMPS ceiling ride IMPS, amounts strictly
// above the RTGS floor ride RTGS, everything else NEFT. An amount exactly at
// the floor rides NEFT.
func (r *TransferRules) ResolveBankMode(amount int64, instantaneous bool) domain.TransferMethod {
	if instantaneous && amount <= r.limits.IMPSCeiling {
		return domain.MethodIMPS
	}
	if amount > r.limits.RTGSFloor {
		return domain.MethodRTGS
	}
	return domain.MethodNEFT
}
