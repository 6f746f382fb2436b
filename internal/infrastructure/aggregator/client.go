// Package aggregator is a typed client for the external account-aggregation
// provider. It carries no business logic; failures are classified into the
// tagged error types and propagate as-is for the sync layer to handle.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://production.aggregator.example.com"
	defaultTimeout = 60 * time.Second

	exchangeTokenPath    = "/item/public_token/exchange"
	getAccountsPath      = "/accounts/get"
	getBalancesPath      = "/accounts/balance/get"
	syncTransactionsPath = "/transactions/sync"

	// syncPageSize is the number of change-feed entries requested per page.
	syncPageSize = 100
)

// API is the provider surface the sync layer depends on.
type API interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeTokenResponse, error)
	GetAccounts(ctx context.Context, accessToken string) (*GetAccountsResponse, error)
	GetAccountBalances(ctx context.Context, accessToken string) (*GetAccountsResponse, error)
	SyncTransactions(ctx context.Context, accessToken string, cursor *string) (*SyncTransactionsResponse, error)
}

// Client handles communication with the aggregation provider API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
}

// Ensure Client implements API
var _ API = (*Client)(nil)

// Config holds client construction options.
type Config struct {
	BaseURL  string
	ClientID string
	Secret   string
	Timeout  time.Duration
}

// NewClient creates a new aggregation provider client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		clientID:   cfg.ClientID,
		secret:     cfg.Secret,
	}
}

// ExchangePublicToken exchanges a short-lived public token for a long-lived
// access token and the provider item id.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeTokenResponse, error) {
	body := map[string]any{"public_token": publicToken}

	var resp ExchangeTokenResponse
	if err := c.post(ctx, exchangeTokenPath, "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAccounts fetches the accounts of one item.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*GetAccountsResponse, error) {
	var resp GetAccountsResponse
	if err := c.post(ctx, getAccountsPath, accessToken, map[string]any{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAccountBalances fetches real-time balances for the accounts of one item.
func (c *Client) GetAccountBalances(ctx context.Context, accessToken string) (*GetAccountsResponse, error) {
	var resp GetAccountsResponse
	if err := c.post(ctx, getBalancesPath, accessToken, map[string]any{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncTransactions fetches one page of the incremental change feed. A nil
// cursor requests the feed from the beginning.
func (c *Client) SyncTransactions(ctx context.Context, accessToken string, cursor *string) (*SyncTransactionsResponse, error) {
	body := map[string]any{"count": syncPageSize}
	if cursor != nil {
		body["cursor"] = *cursor
	}

	var resp SyncTransactionsResponse
	if err := c.post(ctx, syncTransactionsPath, accessToken, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// post executes one JSON request against the provider. Non-200 responses are
// classified into the tagged error types; undecodable 200 bodies become
// MalformedResponseError.
func (c *Client) post(ctx context.Context, path, accessToken string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Secret", c.secret)
	if accessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failures are worth retrying.
		return &TransientError{Code: "REQUEST_FAILED", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &MalformedResponseError{StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return classifyError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &MalformedResponseError{StatusCode: resp.StatusCode, Cause: err}
	}

	return nil
}
