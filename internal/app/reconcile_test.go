package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/domain"
	"github.com/swiftpay/payout-service/pkg/gatewayclient"
)

// pagedGateway serves a fixed transaction list one page at a time.
type pagedGateway struct {
	stubGateway
	transactions []gatewayclient.Transaction
	calls        int
}

func (g *pagedGateway) ListTransactions(ctx context.Context, creds gatewayclient.Credentials, accountNumber string, from, to time.Time, count, skip int) (*gatewayclient.TransactionList, error) {
	g.calls++
	if skip >= len(g.transactions) {
		return &gatewayclient.TransactionList{Count: 0}, nil
	}
	end := skip + count
	if end > len(g.transactions) {
		end = len(g.transactions)
	}
	items := g.transactions[skip:end]
	return &gatewayclient.TransactionList{Count: len(items), Items: items}, nil
}

func makeTransactions(n int) []gatewayclient.Transaction {
	out := make([]gatewayclient.Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, gatewayclient.Transaction{
			ID:        "txn_" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			Amount:    -1000,
			CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Unix(),
		})
	}
	return out
}

func TestSync_ImportsAllPages(t *testing.T) {
	account := testAccount(uuid.New())
	seen := map[string]bool{}
	var lastSync time.Time

	repo := &stubRepository{
		insertBankTxFn: func(ctx context.Context, tx *domain.BankTransaction) (bool, error) {
			if seen[tx.GatewayTransactionID] {
				return false, nil
			}
			seen[tx.GatewayTransactionID] = true
			return true, nil
		},
		updateLastSyncFn: func(ctx context.Context, accountID uuid.UUID, syncedAt time.Time) error {
			lastSync = syncedAt
			return nil
		},
	}
	gateway := &pagedGateway{transactions: makeTransactions(25)}
	engine := NewReconciliationEngine(repo, gateway, 10)

	to := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -30)
	result, err := engine.Sync(context.Background(), account, from, to)
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if result.Imported != 25 {
		t.Errorf("expected 25 imported, got %d", result.Imported)
	}
	if gateway.calls != 3 {
		t.Errorf("expected 3 pages of 10, got %d calls", gateway.calls)
	}
	if !lastSync.Equal(to) {
		t.Errorf("last sync should advance to the window end, got %v", lastSync)
	}
}

func TestSync_SecondRunImportsNothing(t *testing.T) {
	account := testAccount(uuid.New())
	seen := map[string]bool{}
	repo := &stubRepository{
		insertBankTxFn: func(ctx context.Context, tx *domain.BankTransaction) (bool, error) {
			if seen[tx.GatewayTransactionID] {
				return false, nil
			}
			seen[tx.GatewayTransactionID] = true
			return true, nil
		},
		updateLastSyncFn: func(ctx context.Context, accountID uuid.UUID, syncedAt time.Time) error {
			return nil
		},
	}
	gateway := &pagedGateway{transactions: makeTransactions(8)}
	engine := NewReconciliationEngine(repo, gateway, 100)

	to := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -7)

	first, err := engine.Sync(context.Background(), account, from, to)
	if err != nil {
		t.Fatalf("first Sync returned error: %v", err)
	}
	if first.Imported != 8 {
		t.Fatalf("expected 8 imported on first run, got %d", first.Imported)
	}

	second, err := engine.Sync(context.Background(), account, from, to)
	if err != nil {
		t.Fatalf("second Sync returned error: %v", err)
	}
	if second.Imported != 0 {
		t.Errorf("re-running the same window must import nothing, got %d", second.Imported)
	}
	if second.Fetched != 8 {
		t.Errorf("re-run should still fetch the 8 rows, got %d", second.Fetched)
	}
}

func TestSync_PartialFailureKeepsLastSync(t *testing.T) {
	account := testAccount(uuid.New())
	inserted := 0
	repo := &stubRepository{
		insertBankTxFn: func(ctx context.Context, tx *domain.BankTransaction) (bool, error) {
			if inserted == 5 {
				return false, errors.New("connection reset")
			}
			inserted++
			return true, nil
		},
		updateLastSyncFn: func(ctx context.Context, accountID uuid.UUID, syncedAt time.Time) error {
			t.Error("last sync must not advance after a partial failure")
			return nil
		},
	}
	gateway := &pagedGateway{transactions: makeTransactions(10)}
	engine := NewReconciliationEngine(repo, gateway, 100)

	to := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	result, err := engine.Sync(context.Background(), account, to.AddDate(0, 0, -7), to)
	if err == nil {
		t.Fatal("expected an error from the failed insert")
	}
	if result.Imported != 5 {
		t.Errorf("result should report the 5 rows imported before the failure, got %d", result.Imported)
	}
}

func TestSync_RejectsBadWindows(t *testing.T) {
	account := testAccount(uuid.New())
	engine := NewReconciliationEngine(&stubRepository{}, &stubGateway{}, 100)

	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	if _, err := engine.Sync(context.Background(), account, now, now.AddDate(0, 0, -1)); !errors.Is(err, ErrInvalidSyncWindow) {
		t.Errorf("expected ErrInvalidSyncWindow for inverted window, got %v", err)
	}
	if _, err := engine.Sync(context.Background(), account, now.AddDate(0, 0, -1), now.Add(time.Hour)); !errors.Is(err, ErrSyncWindowFuture) {
		t.Errorf("expected ErrSyncWindowFuture for future end, got %v", err)
	}
}

func TestSyncAccount_StartsFromLastSyncMarker(t *testing.T) {
	accountID := uuid.New()
	marker := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	var gotFrom time.Time
	gateway := &stubGateway{
		listTransactionsFn: func(ctx context.Context, creds gatewayclient.Credentials, accountNumber string, from, to time.Time, count, skip int) (*gatewayclient.TransactionList, error) {
			gotFrom = from
			return &gatewayclient.TransactionList{}, nil
		},
	}
	repo := &stubRepository{
		findAccountFn: func(ctx context.Context, id uuid.UUID) (*domain.PayoutAccount, error) {
			account := testAccount(accountID)
			account.LastSyncAt = &marker
			return account, nil
		},
		updateLastSyncFn: func(ctx context.Context, id uuid.UUID, syncedAt time.Time) error {
			return nil
		},
	}
	engine := NewReconciliationEngine(repo, gateway, 100)
	engine.now = func() time.Time { return now }

	if _, err := engine.SyncAccount(context.Background(), accountID, 30*24*time.Hour); err != nil {
		t.Fatalf("SyncAccount returned error: %v", err)
	}
	if !gotFrom.Equal(marker) {
		t.Errorf("sync should resume from the last-sync marker, got %v", gotFrom)
	}
}
