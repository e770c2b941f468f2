/**
 * @description
 * This package provides a client for the external notification service that
 * delivers step-up OTPs over SMS and email. Delivery mechanics live entirely
 * on the other side of this HTTP boundary; the payout-service only hands over
 * the destination and the message.
 */
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the notification service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new notification service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type sendSMSRequest struct {
	Mobile  string `json:"mobile"`
	Message string `json:"message"`
}

type sendEmailRequest struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SendSMS delivers one SMS to the given mobile number.
func (c *Client) SendSMS(ctx context.Context, mobile, message string) error {
	return c.post(ctx, "/internal/notifications/sms", sendSMSRequest{Mobile: mobile, Message: message})
}

// SendEmail delivers one email to the given address.
func (c *Client) SendEmail(ctx context.Context, email, subject, message string) error {
	return c.post(ctx, "/internal/notifications/email", sendEmailRequest{Email: email, Subject: subject, Message: message})
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("notifier base url is empty")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to notifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notifier returned error status %d", resp.StatusCode)
	}
	return nil
}
