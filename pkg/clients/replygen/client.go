// Package replygen provides the HTTP client for the reply generator service.
// Generation calls can run for a while, so the client carries a much longer
// timeout than the other service clients.
package replygen

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

const defaultTimeout = 120 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With("module", "replygen-client"),
	}
}

type generateRequest struct {
	EmailMessageID      string `json:"email_message_id"`
	ContextInstructions string `json:"context_instructions,omitempty"`
}

// GenerateReply asks the generator for a draft reply to the given email.
// Edit instructions, when present, steer the regeneration.
func (c *Client) GenerateReply(ctx context.Context, messageID, editInstructions string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		EmailMessageID:      messageID,
		ContextInstructions: editInstructions,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	if editInstructions != "" {
		c.logger.InfoContext(ctx, "Generating reply with edit instructions",
			"message_id", messageID, "instructions", editInstructions)
	} else {
		c.logger.InfoContext(ctx, "Generating reply", "message_id", messageID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-reply", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply for %s: %w", messageID, err)
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("email %s not known to reply generator", messageID)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status generating reply for %s: %s", messageID, resp.Status)
	}

	var body models.GeneratedReply
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode generated reply: %w", err)
	}

	c.logger.InfoContext(ctx, "Reply generated", "message_id", messageID, "length", body.ReplyLength)

	return body.ReplyText, nil
}

// HealthCheck reports whether the generator responds on its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reply generator health check failed: %w", err)
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reply generator unhealthy: %s", resp.Status)
	}

	return nil
}

func (c *Client) closeBody(ctx context.Context, resp *http.Response) {
	err := resp.Body.Close()
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
	}
}
