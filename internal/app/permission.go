/**
 * @description
 * This file implements the permission gate guarding payout actions. A user may
 * act only when all three independent predicates hold: role membership, the
 * account-scoped capability grant, and the document-scoped capability grant.
 * There is no partial credit and no administrator bypass.
 */

package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/domain"
	"github.com/swiftpay/payout-service/internal/store"
)

// PayoutAuthorizerRole is the role required for any payout capability.
const PayoutAuthorizerRole = "Payout Authorizer"

// PermissionGate evaluates payout permissions against the host system's
// permission store. It has no side effects.
type PermissionGate struct {
	repo store.Repository
}

// NewPermissionGate creates a permission gate backed by the given repository.
func NewPermissionGate(repo store.Repository) *PermissionGate {
	return &PermissionGate{repo: repo}
}

// CanAuthorize reports whether the user holds the payout role, the
// account-scoped capability and the document-scoped capability. All three
// must hold.
func (g *PermissionGate) CanAuthorize(ctx context.Context, userID string, accountID uuid.UUID, docRef string, capability domain.Capability) (bool, error) {
	hasRole, err := g.repo.HasRole(ctx, userID, PayoutAuthorizerRole)
	if err != nil {
		return false, err
	}
	if !hasRole {
		return false, nil
	}

	hasAccount, err := g.repo.HasAccountPermission(ctx, userID, accountID, capability)
	if err != nil {
		return false, err
	}
	if !hasAccount {
		return false, nil
	}

	hasDoc, err := g.repo.HasDocPermission(ctx, userID, docRef, capability)
	if err != nil {
		return false, err
	}
	return hasDoc, nil
}

// RequireAuthorization is the action-boundary variant: it signals
// ErrInsufficientPermission instead of returning false.
func (g *PermissionGate) RequireAuthorization(ctx context.Context, userID string, accountID uuid.UUID, docRef string, capability domain.Capability) error {
	ok, err := g.CanAuthorize(ctx, userID, accountID, docRef, capability)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientPermission
	}
	return nil
}
