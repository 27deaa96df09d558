// Package emailmonitor provides the HTTP client for the inbox monitor
// service, the source of pending emails.
package emailmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
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
		logger:     logger.With("module", "emailmonitor-client"),
	}
}

type pendingEmailsResponse struct {
	Emails []*models.EmailDetail `json:"emails"`
}

// PendingEmails returns the emails the monitor has not yet handed to a
// workflow.
func (c *Client) PendingEmails(ctx context.Context) ([]*models.EmailDetail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/emails/pending", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending emails: %w", err)
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status fetching pending emails: %s", resp.Status)
	}

	var body pendingEmailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode pending emails: %w", err)
	}

	c.logger.InfoContext(ctx, "Fetched pending emails", "count", len(body.Emails))

	return body.Emails, nil
}

// EmailDetails returns one email by message ID, or nil when the monitor does
// not know it.
func (c *Client) EmailDetails(ctx context.Context, messageID string) (*models.EmailDetail, error) {
	endpoint := c.baseURL + "/emails/" + url.PathEscape(messageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch email %s: %w", messageID, err)
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode == http.StatusNotFound {
		c.logger.WarnContext(ctx, "Email not found in monitor", "message_id", messageID)

		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status fetching email %s: %s", messageID, resp.Status)
	}

	var email models.EmailDetail
	if err := json.NewDecoder(resp.Body).Decode(&email); err != nil {
		return nil, fmt.Errorf("failed to decode email %s: %w", messageID, err)
	}

	return &email, nil
}

// UpdateStatus reports a workflow outcome back to the monitor so the email
// is not served as pending again.
func (c *Client) UpdateStatus(ctx context.Context, messageID string, status models.EmailStatus) error {
	payload, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("failed to marshal status update: %w", err)
	}

	endpoint := c.baseURL + "/emails/" + url.PathEscape(messageID) + "/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to update status for %s: %w", messageID, err)
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status updating email %s: %s", messageID, resp.Status)
	}

	c.logger.InfoContext(ctx, "Updated email status", "message_id", messageID, "status", status)

	return nil
}

// HealthCheck reports whether the monitor responds on its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email monitor health check failed: %w", err)
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email monitor unhealthy: %s", resp.Status)
	}

	return nil
}

func (c *Client) closeBody(ctx context.Context, resp *http.Response) {
	err := resp.Body.Close()
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
	}
}
