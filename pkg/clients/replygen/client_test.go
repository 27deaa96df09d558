package replygen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JackBeStrong/email-auto-reply/pkg/log"
)

func TestGenerateReply(t *testing.T) {
	var received generateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/generate-reply", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"message_id": "<a@example.com>",
			"reply_text": "Sounds good, see you then.",
			"reply_length": 26,
			"generated_at": "2026-01-02T15:04:05Z"
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, log.WithModule("test"))

	reply, err := client.GenerateReply(context.Background(), "<a@example.com>", "")
	require.NoError(t, err)

	assert.Equal(t, "Sounds good, see you then.", reply)
	assert.Equal(t, "<a@example.com>", received.EmailMessageID)
	assert.Empty(t, received.ContextInstructions)
}

func TestGenerateReply_WithEditInstructions(t *testing.T) {
	var received generateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message_id": "<a@example.com>", "reply_text": "Shorter.", "reply_length": 8}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, log.WithModule("test"))

	reply, err := client.GenerateReply(context.Background(), "<a@example.com>", "make it shorter")
	require.NoError(t, err)

	assert.Equal(t, "Shorter.", reply)
	assert.Equal(t, "make it shorter", received.ContextInstructions)
}

func TestGenerateReply_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, log.WithModule("test"))

	_, err := client.GenerateReply(context.Background(), "<missing@example.com>", "")
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, log.WithModule("test"))
	assert.NoError(t, client.HealthCheck(context.Background()))
}
