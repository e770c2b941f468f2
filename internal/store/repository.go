/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the payout-service. By defining an
 * interface, we decouple the application's business logic from the specific
 * database implementation (PostgreSQL), making the code more modular and easier
 * to test.
 *
 * The permission, credential, and document lookups model the contract this
 * service has with the host document system; they are read-only here and
 * managed elsewhere.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/domain"
)

var (
	ErrAccountNotFound  = errors.New("payout account not found")
	ErrPayoutNotFound   = errors.New("payout request not found")
	ErrDocumentNotFound = errors.New("payment document not found")
	ErrPasswordNotSet   = errors.New("password not set")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Payout account methods. Credentials are read-only to this service;
	// last_sync is mutated only by the reconciliation engine.
	FindPayoutAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.PayoutAccount, error)
	ListEnabledPayoutAccounts(ctx context.Context) ([]domain.PayoutAccount, error)
	UpdateAccountLastSync(ctx context.Context, accountID uuid.UUID, syncedAt time.Time) error

	// Payout request methods. Status is updated only through the orchestrator's
	// transition path, never by direct assignment elsewhere.
	CreatePayoutRequest(ctx context.Context, req *domain.PayoutRequest) error
	FindPayoutRequestByDocumentRef(ctx context.Context, docRef string) (*domain.PayoutRequest, error)
	FindPayoutRequestByGatewayID(ctx context.Context, gatewayID string) (*domain.PayoutRequest, error)
	UpdatePayoutStatus(ctx context.Context, requestID uuid.UUID, status domain.PayoutStatus, utr *string, failureReason *string) error

	// Bank transaction methods. Insert is idempotent on the gateway
	// transaction id; the bool reports whether a new row was written.
	InsertBankTransaction(ctx context.Context, tx *domain.BankTransaction) (bool, error)

	// Host document system contract.
	GetDocument(ctx context.Context, docRef string) (*domain.PaymentDocument, error)

	// Permission predicate store.
	HasRole(ctx context.Context, userID, role string) (bool, error)
	HasAccountPermission(ctx context.Context, userID string, accountID uuid.UUID, capability domain.Capability) (bool, error)
	HasDocPermission(ctx context.Context, userID, docRef string, capability domain.Capability) (bool, error)

	// Credential store for step-up authentication.
	GetTwoFactorMethod(ctx context.Context, userID string) (method domain.AuthMethod, enabled bool, err error)
	GetUserContact(ctx context.Context, userID string) (mobile, email string, err error)
	GetPasswordHash(ctx context.Context, userID string) (string, error)
}
