package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"florin/internal/domain/account"
	"florin/internal/domain/item"
	"florin/internal/domain/sync"
	"florin/internal/domain/transaction"
	"florin/internal/infrastructure/aggregator"
	"florin/internal/shared/middleware"
)

// Stub implementations with just enough behavior to route requests through
// real services.

type stubItemRepo struct {
	items    map[string]*item.Item
	progress map[string]*item.Progress
	marked   map[string]string
	statuses map[string]item.Status
}

func newStubItemRepo() *stubItemRepo {
	return &stubItemRepo{
		items:    map[string]*item.Item{},
		progress: map[string]*item.Progress{},
		marked:   map[string]string{},
		statuses: map[string]item.Status{},
	}
}

func (s *stubItemRepo) Create(_ context.Context, params item.CreateParams) (*item.Item, error) {
	it := &item.Item{ID: params.ID, UserID: params.UserID, InstitutionName: params.InstitutionName, Status: item.StatusActive}
	s.items[it.ID] = it
	return it, nil
}

func (s *stubItemRepo) GetByID(_ context.Context, id string) (*item.Item, error) {
	it, ok := s.items[id]
	if !ok {
		return nil, item.ErrItemNotFound
	}
	return it, nil
}

func (s *stubItemRepo) ListActiveByUserID(context.Context, int64) ([]*item.Item, error) {
	return nil, nil
}

func (s *stubItemRepo) UpdateCursor(context.Context, string, *string, time.Time) error { return nil }

func (s *stubItemRepo) UpdateStatus(_ context.Context, id string, status item.Status) error {
	s.statuses[id] = status
	return nil
}

func (s *stubItemRepo) MarkError(_ context.Context, id string, code, _ string) error {
	s.marked[id] = code
	return nil
}

func (s *stubItemRepo) UpdateSyncProgress(_ context.Context, id string, progress item.Progress) error {
	s.progress[id] = &progress
	return nil
}

func (s *stubItemRepo) GetSyncProgress(_ context.Context, id string) (*item.Progress, error) {
	if _, ok := s.items[id]; !ok {
		return nil, item.ErrItemNotFound
	}
	return s.progress[id], nil
}

type stubAccountRepo struct{}

func (stubAccountRepo) Create(_ context.Context, p account.CreateParams) (*account.Account, error) {
	return &account.Account{ID: "acc-" + p.ProviderAccountID}, nil
}
func (stubAccountRepo) GetByID(context.Context, string) (*account.Account, error) {
	return nil, account.ErrAccountNotFound
}
func (stubAccountRepo) ListByUserID(context.Context, int64) ([]*account.Account, error) {
	return nil, nil
}
func (stubAccountRepo) ListLinkedByItemID(context.Context, string) ([]*account.Account, error) {
	return nil, nil
}
func (stubAccountRepo) FindByProviderAccountID(context.Context, string, string) (*account.Account, error) {
	return nil, nil
}
func (stubAccountRepo) UpdateBalances(context.Context, string, decimal.Decimal, decimal.Decimal) error {
	return nil
}

type stubTxRepo struct{}

func (stubTxRepo) GetByProviderID(context.Context, string) (*transaction.Transaction, error) {
	return nil, transaction.ErrTransactionNotFound
}
func (stubTxRepo) Upsert(context.Context, transaction.UpsertParams) (*transaction.Transaction, error) {
	return &transaction.Transaction{}, nil
}
func (stubTxRepo) DeleteByProviderID(context.Context, string) error    { return nil }
func (stubTxRepo) CountByAccountID(context.Context, string) (int64, error) { return 0, nil }

type stubLocker struct{}

func (stubLocker) Acquire(context.Context, int64, string) sync.AcquireResult {
	return sync.AcquireResult{Acquired: true, LockID: "lock-1"}
}
func (stubLocker) Release(context.Context, string) bool          { return true }
func (stubLocker) ForceReleaseAll(context.Context, int64) int64  { return 0 }

type stubCipher struct{}

func (stubCipher) Encrypt(s string) (string, error) { return s, nil }
func (stubCipher) Decrypt(s string) (string, error) { return s, nil }

type stubAPI struct {
	exchange func(ctx context.Context, publicToken string) (*aggregator.ExchangeTokenResponse, error)
}

func (s stubAPI) ExchangePublicToken(ctx context.Context, publicToken string) (*aggregator.ExchangeTokenResponse, error) {
	return s.exchange(ctx, publicToken)
}
func (stubAPI) GetAccounts(context.Context, string) (*aggregator.GetAccountsResponse, error) {
	return &aggregator.GetAccountsResponse{}, nil
}
func (stubAPI) GetAccountBalances(context.Context, string) (*aggregator.GetAccountsResponse, error) {
	return &aggregator.GetAccountsResponse{}, nil
}
func (stubAPI) SyncTransactions(context.Context, string, *string) (*aggregator.SyncTransactionsResponse, error) {
	return &aggregator.SyncTransactionsResponse{NextCursor: "c1"}, nil
}

type testEnv struct {
	router   chi.Router
	itemRepo *stubItemRepo
}

func newTestEnv(t *testing.T, api aggregator.API) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	itemRepo := newStubItemRepo()

	syncs := sync.NewService(api, stubLocker{}, itemRepo, stubAccountRepo{}, stubTxRepo{}, stubCipher{}, nil, logger)
	items := item.NewService(api, itemRepo, stubAccountRepo{}, stubCipher{}, stubLocker{}, nil, logger)

	syncHandler := NewSyncHandler(syncs, logger)
	itemHandler := NewItemHandler(items, syncs, logger)
	webhookHandler := NewWebhookHandler(items, itemRepo, syncs, logger)

	r := chi.NewRouter()
	r.Post("/webhooks/aggregator", webhookHandler.HandleWebhook)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Post("/api/items", itemHandler.HandleLink)
		r.Delete("/api/items/{itemID}", itemHandler.HandleDisconnect)
		r.Post("/api/items/{itemID}/sync", syncHandler.HandleStartHistoricalSync)
		r.Get("/api/items/{itemID}/sync/status", syncHandler.HandleSyncStatus)
		r.Post("/api/sync/transactions", syncHandler.HandleSyncTransactions)
		r.Post("/api/sync/balances", syncHandler.HandleSyncBalances)
	})

	return &testEnv{router: r, itemRepo: itemRepo}
}

func authedRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("X-User-Id", "7")
	return req
}

func TestSyncTransactionsEndpoint(t *testing.T) {
	env := newTestEnv(t, stubAPI{})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/sync/transactions", ""))

	require.Equal(t, http.StatusOK, rec.Code)

	var summary sync.SyncSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(7), summary.UserID)
	assert.Empty(t, summary.Errors)
}

func TestSyncEndpointsRequireIdentity(t *testing.T) {
	env := newTestEnv(t, stubAPI{})

	for _, path := range []string{"/api/sync/transactions", "/api/sync/balances"} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestLinkItemEndpoint(t *testing.T) {
	api := stubAPI{
		exchange: func(_ context.Context, publicToken string) (*aggregator.ExchangeTokenResponse, error) {
			require.Equal(t, "public-abc", publicToken)
			return &aggregator.ExchangeTokenResponse{AccessToken: "access-1", ItemID: "item-1"}, nil
		},
	}
	env := newTestEnv(t, api)

	body := `{"publicToken":"public-abc","institutionId":"ins_1","institutionName":"First Platypus Bank"}`
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/items", body))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp linkItemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "item-1", resp.Item.ID)
	assert.NotEmpty(t, resp.SyncID)
}

func TestLinkItemRequiresPublicToken(t *testing.T) {
	env := newTestEnv(t, stubAPI{})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/items", `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisconnectUnknownItem(t *testing.T) {
	env := newTestEnv(t, stubAPI{})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/items/item-missing", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncStatusWithoutSync(t *testing.T) {
	env := newTestEnv(t, stubAPI{})
	env.itemRepo.items["item-1"] = &item.Item{ID: "item-1", UserID: 7, Status: item.StatusActive}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/items/item-1/sync/status", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoricalSyncEndpointsHideForeignItems(t *testing.T) {
	env := newTestEnv(t, stubAPI{})
	env.itemRepo.items["item-1"] = &item.Item{ID: "item-1", UserID: 9, Status: item.StatusActive}
	env.itemRepo.progress["item-1"] = &item.Progress{SyncID: "sync-1", State: item.SyncStateSyncing}

	// Caller is user 7; the item belongs to user 9.
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/items/item-1/sync", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/items/item-1/sync/status", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookItemError(t *testing.T) {
	env := newTestEnv(t, stubAPI{})
	env.itemRepo.items["item-1"] = &item.Item{ID: "item-1", UserID: 7, Status: item.StatusActive}

	body := `{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"item-1","error":{"error_code":"ITEM_LOGIN_REQUIRED","error_message":"credentials changed"}}`
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/aggregator", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ITEM_LOGIN_REQUIRED", env.itemRepo.marked["item-1"])
}

func TestWebhookPendingExpiration(t *testing.T) {
	env := newTestEnv(t, stubAPI{})
	env.itemRepo.items["item-1"] = &item.Item{ID: "item-1", UserID: 7, Status: item.StatusActive}

	body := `{"webhook_type":"ITEM","webhook_code":"PENDING_EXPIRATION","item_id":"item-1"}`
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/aggregator", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, item.StatusPendingExpiration, env.itemRepo.statuses["item-1"])
}

func TestWebhookAlwaysAnswers200(t *testing.T) {
	env := newTestEnv(t, stubAPI{})

	cases := map[string]string{
		"malformed":       `{not json`,
		"unknown item":    `{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"nope"}`,
		"unhandled event": `{"webhook_type":"ASSETS","webhook_code":"PRODUCT_READY","item_id":"item-1"}`,
	}
	for name, body := range cases {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/aggregator", strings.NewReader(body)))
		assert.Equal(t, http.StatusOK, rec.Code, name)
	}
}
