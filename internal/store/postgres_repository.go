/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to payout accounts, payout requests, bank transactions, and the host
 * system's permission and credential tables.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swiftpay/payout-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindPayoutAccountByID retrieves one payout account, credentials included.
func (r *PostgresRepository) FindPayoutAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.PayoutAccount, error) {
	var acct domain.PayoutAccount
	query := `
		SELECT id, name, bank_account_ref, gateway_account_no, api_key, api_secret,
		       webhook_secret, enabled, auto_cancel_payout, last_sync_at, created_at, updated_at
		FROM payout_accounts
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&acct.ID,
		&acct.Name,
		&acct.BankAccountRef,
		&acct.GatewayAccountNo,
		&acct.APIKey,
		&acct.APISecret,
		&acct.WebhookSecret,
		&acct.Enabled,
		&acct.AutoCancelPayout,
		&acct.LastSyncAt,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// ListEnabledPayoutAccounts returns every account currently enabled for payouts.
// Used by the daily reconciliation sweep.
func (r *PostgresRepository) ListEnabledPayoutAccounts(ctx context.Context) ([]domain.PayoutAccount, error) {
	query := `
		SELECT id, name, bank_account_ref, gateway_account_no, api_key, api_secret,
		       webhook_secret, enabled, auto_cancel_payout, last_sync_at, created_at, updated_at
		FROM payout_accounts
		WHERE enabled = true
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.PayoutAccount
	for rows.Next() {
		var acct domain.PayoutAccount
		if err := rows.Scan(
			&acct.ID,
			&acct.Name,
			&acct.BankAccountRef,
			&acct.GatewayAccountNo,
			&acct.APIKey,
			&acct.APISecret,
			&acct.WebhookSecret,
			&acct.Enabled,
			&acct.AutoCancelPayout,
			&acct.LastSyncAt,
			&acct.CreatedAt,
			&acct.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// UpdateAccountLastSync advances the account's reconciliation watermark.
func (r *PostgresRepository) UpdateAccountLastSync(ctx context.Context, accountID uuid.UUID, syncedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payout_accounts SET last_sync_at = $2, updated_at = now() WHERE id = $1`,
		accountID, syncedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreatePayoutRequest inserts a new payout request row.
func (r *PostgresRepository) CreatePayoutRequest(ctx context.Context, req *domain.PayoutRequest) error {
	query := `
		INSERT INTO payout_requests (
			id, document_ref, account_id, method, amount, party_mobile, party_email,
			description, instantaneous, gateway_payout_id, gateway_link_id, status,
			utr, failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
	`
	_, err := r.db.Exec(ctx, query,
		req.ID,
		req.DocumentRef,
		req.AccountID,
		string(req.Method),
		req.Amount,
		req.PartyMobile,
		req.PartyEmail,
		req.Description,
		req.Instantaneous,
		req.GatewayPayoutID,
		req.GatewayLinkID,
		string(req.Status),
		req.UTR,
		req.FailureReason,
	)
	return err
}

const payoutRequestColumns = `
	id, document_ref, account_id, method, amount, party_mobile, party_email,
	description, instantaneous, gateway_payout_id, gateway_link_id, status,
	utr, failure_reason, created_at, updated_at
`

func (r *PostgresRepository) scanPayoutRequest(row pgx.Row) (*domain.PayoutRequest, error) {
	var req domain.PayoutRequest
	var method, status string
	err := row.Scan(
		&req.ID,
		&req.DocumentRef,
		&req.AccountID,
		&method,
		&req.Amount,
		&req.PartyMobile,
		&req.PartyEmail,
		&req.Description,
		&req.Instantaneous,
		&req.GatewayPayoutID,
		&req.GatewayLinkID,
		&status,
		&req.UTR,
		&req.FailureReason,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	req.Method = domain.TransferMethod(method)
	req.Status = domain.PayoutStatus(status)
	return &req, nil
}

// FindPayoutRequestByDocumentRef returns the latest payout request for a
// payment document.
func (r *PostgresRepository) FindPayoutRequestByDocumentRef(ctx context.Context, docRef string) (*domain.PayoutRequest, error) {
	query := `SELECT ` + payoutRequestColumns + `
		FROM payout_requests WHERE document_ref = $1
		ORDER BY created_at DESC LIMIT 1`
	return r.scanPayoutRequest(r.db.QueryRow(ctx, query, docRef))
}

// FindPayoutRequestByGatewayID resolves a payout request from either the
// gateway payout id or the payout-link id, whichever the update carries.
func (r *PostgresRepository) FindPayoutRequestByGatewayID(ctx context.Context, gatewayID string) (*domain.PayoutRequest, error) {
	query := `SELECT ` + payoutRequestColumns + `
		FROM payout_requests
		WHERE gateway_payout_id = $1 OR gateway_link_id = $1
		LIMIT 1`
	return r.scanPayoutRequest(r.db.QueryRow(ctx, query, gatewayID))
}

// UpdatePayoutStatus writes the new status and, when present, the UTR and
// failure reason. Callers must have validated the transition first.
func (r *PostgresRepository) UpdatePayoutStatus(ctx context.Context, requestID uuid.UUID, status domain.PayoutStatus, utr *string, failureReason *string) error {
	query := `
		UPDATE payout_requests
		SET status = $2,
		    utr = COALESCE($3, utr),
		    failure_reason = COALESCE($4, failure_reason),
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, requestID, string(status), utr, failureReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPayoutNotFound
	}
	return nil
}

// InsertBankTransaction writes one gateway transaction, ignoring duplicates by
// gateway transaction id. Returns true when a new row was inserted.
func (r *PostgresRepository) InsertBankTransaction(ctx context.Context, tx *domain.BankTransaction) (bool, error) {
	query := `
		INSERT INTO bank_transactions (
			id, account_id, gateway_transaction_id, gateway_payout_id, utr,
			amount, description, transacted_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (gateway_transaction_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		tx.ID,
		tx.AccountID,
		tx.GatewayTransactionID,
		tx.GatewayPayoutID,
		tx.UTR,
		tx.Amount,
		tx.Description,
		tx.TransactedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetDocument reads the payment-document fields needed for validation from the
// host system's table. This service never writes payment documents.
func (r *PostgresRepository) GetDocument(ctx context.Context, docRef string) (*domain.PaymentDocument, error) {
	var doc domain.PaymentDocument
	query := `
		SELECT ref, account_id, amount, COALESCE(party_mobile, ''), COALESCE(party_email, ''), doc_status
		FROM payment_documents
		WHERE ref = $1
	`
	err := r.db.QueryRow(ctx, query, docRef).Scan(
		&doc.Ref,
		&doc.AccountID,
		&doc.Amount,
		&doc.PartyMobile,
		&doc.PartyEmail,
		&doc.DocStatus,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// HasRole checks role membership in the host system's role table.
func (r *PostgresRepository) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		userID, role).Scan(&exists)
	return exists, err
}

// HasAccountPermission checks the account-scoped capability grant.
func (r *PostgresRepository) HasAccountPermission(ctx context.Context, userID string, accountID uuid.UUID, capability domain.Capability) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM account_permissions
			WHERE user_id = $1 AND account_id = $2 AND capability = $3
		)`,
		userID, accountID, string(capability)).Scan(&exists)
	return exists, err
}

// HasDocPermission checks the document-scoped capability grant.
func (r *PostgresRepository) HasDocPermission(ctx context.Context, userID, docRef string, capability domain.Capability) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM document_permissions
			WHERE user_id = $1 AND document_ref = $2 AND capability = $3
		)`,
		userID, docRef, string(capability)).Scan(&exists)
	return exists, err
}

// GetTwoFactorMethod returns the user's configured two-factor method and
// whether two-factor is enabled at all. A disabled row falls the challenge
// service back to password authentication.
func (r *PostgresRepository) GetTwoFactorMethod(ctx context.Context, userID string) (domain.AuthMethod, bool, error) {
	var method string
	var enabled bool
	err := r.db.QueryRow(ctx,
		`SELECT two_factor_method, two_factor_enabled FROM user_auth_settings WHERE user_id = $1`,
		userID).Scan(&method, &enabled)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return domain.AuthMethod(method), enabled, nil
}

// GetUserContact returns the user's own mobile and email for OTP delivery.
func (r *PostgresRepository) GetUserContact(ctx context.Context, userID string) (string, string, error) {
	var mobile, email string
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(mobile, ''), COALESCE(email, '') FROM users WHERE id = $1`,
		userID).Scan(&mobile, &email)
	if err != nil {
		return "", "", err
	}
	return mobile, email, nil
}

// GetPasswordHash returns the user's bcrypt password hash for password-method
// verification.
func (r *PostgresRepository) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := r.db.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE id = $1`,
		userID).Scan(&hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrPasswordNotSet
		}
		return "", err
	}
	if hash == "" {
		return "", ErrPasswordNotSet
	}
	return hash, nil
}
