package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/domain"
)

func TestCanAuthorize_AllThreePredicatesRequired(t *testing.T) {
	accountID := uuid.New()

	tests := []struct {
		name       string
		hasRole    bool
		hasAccount bool
		hasDoc     bool
		want       bool
	}{
		{"all granted", true, true, true, true},
		{"missing role", false, true, true, false},
		{"missing account grant", true, false, true, false},
		{"missing document grant", true, true, false, false},
		{"nothing granted", false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepository{
				hasRoleFn: func(ctx context.Context, userID, role string) (bool, error) {
					if role != PayoutAuthorizerRole {
						t.Errorf("unexpected role check %q", role)
					}
					return tt.hasRole, nil
				},
				hasAccountPermFn: func(ctx context.Context, userID string, id uuid.UUID, capability domain.Capability) (bool, error) {
					return tt.hasAccount, nil
				},
				hasDocPermFn: func(ctx context.Context, userID, docRef string, capability domain.Capability) (bool, error) {
					return tt.hasDoc, nil
				},
			}
			gate := NewPermissionGate(repo)

			got, err := gate.CanAuthorize(context.Background(), "user-1", accountID, "PE-0001", domain.CapabilitySubmit)
			if err != nil {
				t.Fatalf("CanAuthorize returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanAuthorize = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanAuthorize_ShortCircuitsOnMissingRole(t *testing.T) {
	repo := &stubRepository{
		hasRoleFn: func(ctx context.Context, userID, role string) (bool, error) {
			return false, nil
		},
		hasAccountPermFn: func(ctx context.Context, userID string, id uuid.UUID, capability domain.Capability) (bool, error) {
			t.Error("account permission must not be checked when the role is missing")
			return true, nil
		},
	}
	gate := NewPermissionGate(repo)

	ok, err := gate.CanAuthorize(context.Background(), "user-1", uuid.New(), "PE-0001", domain.CapabilityCancel)
	if err != nil {
		t.Fatalf("CanAuthorize returned error: %v", err)
	}
	if ok {
		t.Error("expected denial without the role")
	}
}

func TestRequireAuthorization_SignalsSentinel(t *testing.T) {
	repo := &stubRepository{
		hasRoleFn: func(ctx context.Context, userID, role string) (bool, error) {
			return false, nil
		},
	}
	gate := NewPermissionGate(repo)

	err := gate.RequireAuthorization(context.Background(), "user-1", uuid.New(), "PE-0001", domain.CapabilitySubmit)
	if !errors.Is(err, ErrInsufficientPermission) {
		t.Fatalf("expected ErrInsufficientPermission, got %v", err)
	}
}
