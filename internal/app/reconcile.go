/**
 * @description
 * This file implements the bank reconciliation engine. It pages through the
 * gateway's account statement for a date window and imports each transaction,
 * deduplicated on the gateway transaction id so a re-run of any window is
 * harmless.
 *
 * The account's last-sync marker moves only after a fully successful run. A
 * partial failure reports what was imported but leaves the marker alone, so
 * the next run re-covers the same window.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/domain"
	"github.com/swiftpay/payout-service/internal/store"
	"github.com/swiftpay/payout-service/pkg/gatewayclient"
)

var (
	ErrInvalidSyncWindow = errors.New("from date must not be after to date")
	ErrSyncWindowFuture  = errors.New("to date must not be in the future")
)

// SyncResult summarizes one reconciliation run.
type SyncResult struct {
	AccountID uuid.UUID `json:"account_id"`
	Fetched   int       `json:"fetched"`
	Imported  int       `json:"imported"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}

// ReconciliationEngine imports gateway account transactions into the local
// ledger.
type ReconciliationEngine struct {
	repo     store.Repository
	gateway  Gateway
	pageSize int

	now func() time.Time
}

// NewReconciliationEngine creates a reconciliation engine with the given page
// size for statement fetches.
func NewReconciliationEngine(repo store.Repository, gateway Gateway, pageSize int) *ReconciliationEngine {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &ReconciliationEngine{
		repo:     repo,
		gateway:  gateway,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Sync imports all gateway transactions for one account in [from, to]. It is
// idempotent: rows already imported in a previous run are skipped by the
// dedup insert. On partial failure the result carries what was imported
// before the error, and last-sync is not advanced.
func (e *ReconciliationEngine) Sync(ctx context.Context, account *domain.PayoutAccount, from, to time.Time) (*SyncResult, error) {
	result := &SyncResult{AccountID: account.ID, From: from, To: to}

	if from.After(to) {
		return result, ErrInvalidSyncWindow
	}
	if to.After(e.now()) {
		return result, ErrSyncWindowFuture
	}

	creds := gatewayclient.Credentials{Key: account.APIKey, Secret: account.APISecret}
	skip := 0
	for {
		page, err := e.gateway.ListTransactions(ctx, creds, account.GatewayAccountNo, from, to, e.pageSize, skip)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		if len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			tx := transactionFromGateway(account.ID, item)
			inserted, err := e.repo.InsertBankTransaction(ctx, tx)
			if err != nil {
				return result, fmt.Errorf("failed to import transaction %s: %w", item.ID, err)
			}
			result.Fetched++
			if inserted {
				result.Imported++
			}
		}

		skip += len(page.Items)
		if len(page.Items) < e.pageSize {
			break
		}
	}

	if err := e.repo.UpdateAccountLastSync(ctx, account.ID, to); err != nil {
		return result, fmt.Errorf("transactions imported but last-sync update failed: %w", err)
	}

	log.Printf("level=info component=reconciliation msg=\"sync complete\" account_id=%s fetched=%d imported=%d from=%s to=%s",
		account.ID, result.Fetched, result.Imported, from.Format(time.RFC3339), to.Format(time.RFC3339))
	return result, nil
}

// Account resolves and gates an account for syncing.
func (e *ReconciliationEngine) Account(ctx context.Context, accountID uuid.UUID) (*domain.PayoutAccount, error) {
	account, err := e.repo.FindPayoutAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.Enabled {
		return nil, ErrAccountDisabled
	}
	return account, nil
}

// SyncAccount resolves the account and syncs from its last-sync marker (or
// the given fallback window) up to now.
func (e *ReconciliationEngine) SyncAccount(ctx context.Context, accountID uuid.UUID, fallback time.Duration) (*SyncResult, error) {
	account, err := e.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	to := e.now()
	from := to.Add(-fallback)
	if account.LastSyncAt != nil && account.LastSyncAt.After(from) {
		from = *account.LastSyncAt
	}
	return e.Sync(ctx, account, from, to)
}

// SyncDaily runs the incremental sync across every enabled account. Errors on
// one account are logged and do not stop the remaining accounts. Wired to the
// scheduler in main.
func (e *ReconciliationEngine) SyncDaily(ctx context.Context) {
	accounts, err := e.repo.ListEnabledPayoutAccounts(ctx)
	if err != nil {
		log.Printf("level=error component=reconciliation msg=\"daily sync could not list accounts\" err=%v", err)
		return
	}

	for i := range accounts {
		if _, err := e.SyncAccount(ctx, accounts[i].ID, 24*time.Hour); err != nil {
			log.Printf("level=error component=reconciliation msg=\"daily sync failed for account\" account_id=%s err=%v", accounts[i].ID, err)
		}
	}
}

// transactionFromGateway maps one statement entry to the local ledger row.
// The gateway reports credit and debit separately; the ledger stores a single
// signed amount.
func transactionFromGateway(accountID uuid.UUID, item gatewayclient.Transaction) *domain.BankTransaction {
	amount := item.Amount
	if amount == 0 {
		amount = item.Credit - item.Debit
	}

	tx := &domain.BankTransaction{
		ID:                   uuid.New(),
		AccountID:            accountID,
		GatewayTransactionID: item.ID,
		Amount:               amount,
		TransactedAt:         time.Unix(item.CreatedAt, 0).UTC(),
	}
	if item.Source.ID != "" {
		id := item.Source.ID
		tx.GatewayPayoutID = &id
	}
	if item.Source.UTR != "" {
		utr := item.Source.UTR
		tx.UTR = &utr
	}
	return tx
}
