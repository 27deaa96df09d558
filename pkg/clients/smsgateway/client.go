// Package smsgateway provides the HTTP client for the text message gateway
// and the notification formatting sent to the reviewer.
package smsgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JackBeStrong/email-auto-reply/pkg/models"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With("module", "smsgateway-client"),
	}
}

type sendRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// SendSMS sends one text message. Gateway-reported failures come back in the
// result rather than as an error; only transport problems error out.
func (c *Client) SendSMS(ctx context.Context, phoneNumber, message string) (*models.NotificationResult, error) {
	payload, err := json.Marshal(sendRequest{PhoneNumber: phoneNumber, Message: message})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sms/send", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send SMS: %w", err)
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status sending SMS: %s", resp.Status)
	}

	var result models.NotificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode SMS response: %w", err)
	}

	if result.Success {
		c.logger.InfoContext(ctx, "SMS sent", "phone_number", phoneNumber, "sms_message_id", result.MessageID)
	} else {
		c.logger.ErrorContext(ctx, "SMS gateway reported failure", "error", result.Error)
	}

	return &result, nil
}

// HealthCheck reports whether the gateway responds on its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway health check failed: %w", err)
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms gateway unhealthy: %s", resp.Status)
	}

	return nil
}

func (c *Client) closeBody(ctx context.Context, resp *http.Response) {
	err := resp.Body.Close()
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
	}
}
