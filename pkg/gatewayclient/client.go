/**
 * @description
 * This package provides a client for the external payout provider's API. It
 * encapsulates the logic for making authenticated HTTP requests to the
 * gateway's endpoints, handling request body construction, and parsing
 * responses.
 *
 * Credentials are per payout account (key/secret over basic auth), so they are
 * passed per call rather than held by the client. Payout creation carries an
 * idempotency key header so a retried request cannot double-pay.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, net/url, time: Standard Go libraries.
 */
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a client for the payout gateway API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new gateway API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Credentials authenticate one payout account against the gateway.
type Credentials struct {
	Key    string
	Secret string
}

// PayoutRequest is the payload for creating a direct payout.
type PayoutRequest struct {
	AccountNumber     string            `json:"account_number"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	Mode              string            `json:"mode"`
	Purpose           string            `json:"purpose"`
	FundAccountID     string            `json:"fund_account_id,omitempty"`
	QueueIfLowBalance bool              `json:"queue_if_low_balance"`
	ReferenceID       string            `json:"reference_id,omitempty"`
	Narration         string            `json:"narration,omitempty"`
	Notes             map[string]string `json:"notes,omitempty"`
}

// Payout is the gateway's payout resource.
type Payout struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	UTR           string `json:"utr,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Amount        int64  `json:"amount"`
	ReferenceID   string `json:"reference_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// PayoutLinkRequest is the payload for creating a gateway-hosted payout link.
type PayoutLinkRequest struct {
	AccountNumber string      `json:"account_number"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency"`
	Description   string      `json:"description,omitempty"`
	Contact       LinkContact `json:"contact"`
	SendSMS       bool        `json:"send_sms"`
	SendEmail     bool        `json:"send_email"`
	ReferenceID   string      `json:"reference_id,omitempty"`
}

// LinkContact is the payee contact a payout link is delivered to.
type LinkContact struct {
	Name    string `json:"name,omitempty"`
	Contact string `json:"contact,omitempty"`
	Email   string `json:"email,omitempty"`
}

// PayoutLink is the gateway's payout-link resource.
type PayoutLink struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ShortURL    string `json:"short_url,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// Transaction is one account statement entry reported by the gateway.
type Transaction struct {
	ID          string            `json:"id"`
	AccountNo   string            `json:"account_number"`
	Amount      int64             `json:"amount"`
	Credit      int64             `json:"credit"`
	Debit       int64             `json:"debit"`
	CreatedAt   int64             `json:"created_at"` // unix seconds
	Source      TransactionSource `json:"source"`
}

// TransactionSource links a statement entry back to the payout that caused it.
type TransactionSource struct {
	ID   string `json:"id"` // e.g. pout_… for payouts
	UTR  string `json:"utr,omitempty"`
	Mode string `json:"mode,omitempty"`
}

// TransactionList is the paginated collection envelope for transactions.
type TransactionList struct {
	Count int           `json:"count"`
	Items []Transaction `json:"items"`
}

// ErrorResponse represents an error from the gateway API.
type ErrorResponse struct {
	ErrorBody struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.ErrorBody.Code != "" || e.ErrorBody.Description != "" {
		return fmt.Sprintf("gateway api error: %s - %s", e.ErrorBody.Code, e.ErrorBody.Description)
	}
	return "unknown gateway api error"
}

// CreatePayout creates a direct bank/UPI payout.
func (c *Client) CreatePayout(ctx context.Context, creds Credentials, idempotencyKey string, req PayoutRequest) (*Payout, error) {
	var payout Payout
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["X-Payout-Idempotency"] = idempotencyKey
	}
	if err := c.do(ctx, creds, http.MethodPost, "/v1/payouts", req, headers, &payout); err != nil {
		return nil, err
	}
	return &payout, nil
}

// CreatePayoutLink creates a gateway-hosted payout link delivered to the payee.
func (c *Client) CreatePayoutLink(ctx context.Context, creds Credentials, req PayoutLinkRequest) (*PayoutLink, error) {
	var link PayoutLink
	if err := c.do(ctx, creds, http.MethodPost, "/v1/payout-links", req, nil, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// GetPayout fetches the current state of a payout. Used as the poll fallback
// when webhook delivery is unavailable.
func (c *Client) GetPayout(ctx context.Context, creds Credentials, payoutID string) (*Payout, error) {
	var payout Payout
	if err := c.do(ctx, creds, http.MethodGet, "/v1/payouts/"+url.PathEscape(payoutID), nil, nil, &payout); err != nil {
		return nil, err
	}
	return &payout, nil
}

// CancelPayout cancels a queued payout. The gateway rejects cancellation once
// the payout has left the queue.
func (c *Client) CancelPayout(ctx context.Context, creds Credentials, payoutID string) (*Payout, error) {
	var payout Payout
	if err := c.do(ctx, creds, http.MethodPost, "/v1/payouts/"+url.PathEscape(payoutID)+"/cancel", nil, nil, &payout); err != nil {
		return nil, err
	}
	return &payout, nil
}

// CancelPayoutLink cancels an issued payout link.
func (c *Client) CancelPayoutLink(ctx context.Context, creds Credentials, linkID string) (*PayoutLink, error) {
	var link PayoutLink
	if err := c.do(ctx, creds, http.MethodPost, "/v1/payout-links/"+url.PathEscape(linkID)+"/cancel", nil, nil, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// ListTransactions fetches one page of account transactions in [from, to].
// Callers page through results with count/skip; the gateway caps count at 100.
func (c *Client) ListTransactions(ctx context.Context, creds Credentials, accountNumber string, from, to time.Time, count, skip int) (*TransactionList, error) {
	q := url.Values{}
	q.Set("account_number", accountNumber)
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	q.Set("count", strconv.Itoa(count))
	q.Set("skip", strconv.Itoa(skip))

	var list TransactionList
	if err := c.do(ctx, creds, http.MethodGet, "/v1/transactions?"+q.Encode(), nil, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// do executes one authenticated request against the gateway.
func (c *Client) do(ctx context.Context, creds Credentials, method, path string, payload interface{}, headers map[string]string, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal gateway request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(creds.Key, creds.Secret)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute gateway request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=gateway_client path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return fmt.Errorf("gateway request failed (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=gateway_client path=%s status=%d code=%q description=%q", path, resp.StatusCode, errResp.ErrorBody.Code, errResp.ErrorBody.Description)
		return &errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}
