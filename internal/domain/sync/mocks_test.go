package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"florin/internal/domain/account"
	"florin/internal/domain/item"
	"florin/internal/domain/transaction"
	"florin/internal/infrastructure/aggregator"
)

type mockAPI struct {
	ExchangePublicTokenFunc func(ctx context.Context, publicToken string) (*aggregator.ExchangeTokenResponse, error)
	GetAccountsFunc         func(ctx context.Context, accessToken string) (*aggregator.GetAccountsResponse, error)
	GetAccountBalancesFunc  func(ctx context.Context, accessToken string) (*aggregator.GetAccountsResponse, error)
	SyncTransactionsFunc    func(ctx context.Context, accessToken string, cursor *string) (*aggregator.SyncTransactionsResponse, error)
}

func (m *mockAPI) ExchangePublicToken(ctx context.Context, publicToken string) (*aggregator.ExchangeTokenResponse, error) {
	return m.ExchangePublicTokenFunc(ctx, publicToken)
}

func (m *mockAPI) GetAccounts(ctx context.Context, accessToken string) (*aggregator.GetAccountsResponse, error) {
	return m.GetAccountsFunc(ctx, accessToken)
}

func (m *mockAPI) GetAccountBalances(ctx context.Context, accessToken string) (*aggregator.GetAccountsResponse, error) {
	return m.GetAccountBalancesFunc(ctx, accessToken)
}

func (m *mockAPI) SyncTransactions(ctx context.Context, accessToken string, cursor *string) (*aggregator.SyncTransactionsResponse, error) {
	return m.SyncTransactionsFunc(ctx, accessToken, cursor)
}

type mockItemRepo struct {
	CreateFunc             func(ctx context.Context, params item.CreateParams) (*item.Item, error)
	GetByIDFunc            func(ctx context.Context, id string) (*item.Item, error)
	ListActiveByUserIDFunc func(ctx context.Context, userID int64) ([]*item.Item, error)
	UpdateCursorFunc       func(ctx context.Context, id string, cursor *string, syncedAt time.Time) error
	UpdateStatusFunc       func(ctx context.Context, id string, status item.Status) error
	MarkErrorFunc          func(ctx context.Context, id string, code, message string) error
	UpdateSyncProgressFunc func(ctx context.Context, id string, progress item.Progress) error
	GetSyncProgressFunc    func(ctx context.Context, id string) (*item.Progress, error)
}

func (m *mockItemRepo) Create(ctx context.Context, params item.CreateParams) (*item.Item, error) {
	return m.CreateFunc(ctx, params)
}

func (m *mockItemRepo) GetByID(ctx context.Context, id string) (*item.Item, error) {
	return m.GetByIDFunc(ctx, id)
}

func (m *mockItemRepo) ListActiveByUserID(ctx context.Context, userID int64) ([]*item.Item, error) {
	return m.ListActiveByUserIDFunc(ctx, userID)
}

func (m *mockItemRepo) UpdateCursor(ctx context.Context, id string, cursor *string, syncedAt time.Time) error {
	if m.UpdateCursorFunc == nil {
		return nil
	}
	return m.UpdateCursorFunc(ctx, id, cursor, syncedAt)
}

func (m *mockItemRepo) UpdateStatus(ctx context.Context, id string, status item.Status) error {
	return m.UpdateStatusFunc(ctx, id, status)
}

func (m *mockItemRepo) MarkError(ctx context.Context, id string, code, message string) error {
	if m.MarkErrorFunc == nil {
		return nil
	}
	return m.MarkErrorFunc(ctx, id, code, message)
}

func (m *mockItemRepo) UpdateSyncProgress(ctx context.Context, id string, progress item.Progress) error {
	if m.UpdateSyncProgressFunc == nil {
		return nil
	}
	return m.UpdateSyncProgressFunc(ctx, id, progress)
}

func (m *mockItemRepo) GetSyncProgress(ctx context.Context, id string) (*item.Progress, error) {
	return m.GetSyncProgressFunc(ctx, id)
}

type mockAccountRepo struct {
	CreateFunc                  func(ctx context.Context, params account.CreateParams) (*account.Account, error)
	GetByIDFunc                 func(ctx context.Context, id string) (*account.Account, error)
	ListByUserIDFunc            func(ctx context.Context, userID int64) ([]*account.Account, error)
	ListLinkedByItemIDFunc      func(ctx context.Context, itemID string) ([]*account.Account, error)
	FindByProviderAccountIDFunc func(ctx context.Context, itemID, providerAccountID string) (*account.Account, error)
	UpdateBalancesFunc          func(ctx context.Context, id string, current, available decimal.Decimal) error
}

func (m *mockAccountRepo) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	return m.CreateFunc(ctx, params)
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id string) (*account.Account, error) {
	return m.GetByIDFunc(ctx, id)
}

func (m *mockAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	return m.ListByUserIDFunc(ctx, userID)
}

func (m *mockAccountRepo) ListLinkedByItemID(ctx context.Context, itemID string) ([]*account.Account, error) {
	return m.ListLinkedByItemIDFunc(ctx, itemID)
}

func (m *mockAccountRepo) FindByProviderAccountID(ctx context.Context, itemID, providerAccountID string) (*account.Account, error) {
	return m.FindByProviderAccountIDFunc(ctx, itemID, providerAccountID)
}

func (m *mockAccountRepo) UpdateBalances(ctx context.Context, id string, current, available decimal.Decimal) error {
	return m.UpdateBalancesFunc(ctx, id, current, available)
}

type mockTxRepo struct {
	GetByProviderIDFunc    func(ctx context.Context, providerTransactionID string) (*transaction.Transaction, error)
	UpsertFunc             func(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error)
	DeleteByProviderIDFunc func(ctx context.Context, providerTransactionID string) error
	CountByAccountIDFunc   func(ctx context.Context, accountID string) (int64, error)
}

func (m *mockTxRepo) GetByProviderID(ctx context.Context, providerTransactionID string) (*transaction.Transaction, error) {
	return m.GetByProviderIDFunc(ctx, providerTransactionID)
}

func (m *mockTxRepo) Upsert(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error) {
	return m.UpsertFunc(ctx, params)
}

func (m *mockTxRepo) DeleteByProviderID(ctx context.Context, providerTransactionID string) error {
	return m.DeleteByProviderIDFunc(ctx, providerTransactionID)
}

func (m *mockTxRepo) CountByAccountID(ctx context.Context, accountID string) (int64, error) {
	return m.CountByAccountIDFunc(ctx, accountID)
}

// memoryLocker is an in-memory Locker with real mutual-exclusion semantics.
type memoryLocker struct {
	mu      sync.Mutex
	held    map[string]string // userID/kind -> lockID
	nextID  int
	refused int
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: map[string]string{}}
}

func (l *memoryLocker) key(userID int64, kind string) string {
	return fmt.Sprintf("%d/%s", userID, kind)
}

func (l *memoryLocker) Acquire(_ context.Context, userID int64, kind string) AcquireResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.key(userID, kind)
	if _, ok := l.held[k]; ok {
		l.refused++
		return AcquireResult{Acquired: false, Message: "a " + kind + " is already running for this user, try again later"}
	}
	l.nextID++
	id := fmt.Sprintf("%s#%d", k, l.nextID)
	l.held[k] = id
	return AcquireResult{Acquired: true, LockID: id}
}

func (l *memoryLocker) Release(_ context.Context, lockID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, id := range l.held {
		if id == lockID {
			delete(l.held, k)
			return true
		}
	}
	return false
}

func (l *memoryLocker) ForceReleaseAll(_ context.Context, userID int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := fmt.Sprintf("%d/", userID)
	var n int64
	for k := range l.held {
		if strings.HasPrefix(k, prefix) {
			delete(l.held, k)
			n++
		}
	}
	return n
}

// identityCipher stores tokens in the clear; good enough for orchestration tests.
type identityCipher struct{}

func (identityCipher) Encrypt(plaintext string) (string, error)  { return plaintext, nil }
func (identityCipher) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
}

type notifierCall struct {
	userID          int64
	institutionName string
	state           item.SyncState
	transactions    int
}

func (n *recordingNotifier) HistoricalSyncFinished(_ context.Context, userID int64, institutionName string, state item.SyncState, transactions int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifierCall{userID, institutionName, state, transactions})
}

func (n *recordingNotifier) last(t *testing.T) notifierCall {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) == 0 {
		t.Fatal("expected a notification, got none")
	}
	return n.calls[len(n.calls)-1]
}

type serviceMocks struct {
	api      *mockAPI
	locker   *memoryLocker
	items    *mockItemRepo
	accounts *mockAccountRepo
	txs      *mockTxRepo
	notifier *recordingNotifier
}

// newTestService wires a Service with no-op logging, synchronous spawning,
// instant sleeps, and a fixed clock. Tests tweak the mocks afterwards.
func newTestService() (*Service, *serviceMocks) {
	m := &serviceMocks{
		api:      &mockAPI{},
		locker:   newMemoryLocker(),
		items:    &mockItemRepo{},
		accounts: &mockAccountRepo{},
		txs:      &mockTxRepo{},
		notifier: &recordingNotifier{},
	}
	s := NewService(m.api, m.locker, m.items, m.accounts, m.txs, identityCipher{}, m.notifier, zap.NewNop())
	s.spawn = func(fn func()) { fn() }
	s.retrySleep = func(context.Context, time.Duration) error { return nil }
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s, m
}

func activeItem(id string, userID int64) *item.Item {
	return &item.Item{
		ID:                   id,
		UserID:               userID,
		EncryptedAccessToken: "token-" + id,
		InstitutionID:        "ins_1",
		InstitutionName:      "First Platypus Bank",
		Status:               item.StatusActive,
	}
}

func linkedAccount(id, itemID, providerID string) *account.Account {
	return &account.Account{
		ID:                id,
		UserID:            1,
		ItemID:            &itemID,
		ProviderAccountID: &providerID,
		Name:              "Checking",
		Type:              account.TypeChecking,
		CurrencyCode:      "USD",
	}
}

func feedTransaction(id, accountID string, amount string) aggregator.Transaction {
	return aggregator.Transaction{
		ID:           id,
		AccountID:    accountID,
		Amount:       decimal.RequireFromString(amount),
		CurrencyCode: "USD",
		DateString:   "2025-05-30",
		Name:         "STARBUCKS STORE 123",
		MerchantName: "Starbucks",
		Category:     []string{"Food and Drink", "Coffee Shop"},
		Pending:      false,
	}
}
