package smsgateway

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

func TestSendSMS(t *testing.T) {
	var received sendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sms/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "message_id": "sms-42"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, log.WithModule("test"))

	result, err := client.SendSMS(context.Background(), "+15551234567", "hello")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "sms-42", result.MessageID)
	assert.Equal(t, "+15551234567", received.PhoneNumber)
	assert.Equal(t, "hello", received.Message)
}

func TestSendSMS_GatewayFailureIsNotATransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false, "error": "device offline"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, log.WithModule("test"))

	result, err := client.SendSMS(context.Background(), "+15551234567", "hello")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "device offline", result.Error)
}

func TestSendSMS_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, log.WithModule("test"))

	_, err := client.SendSMS(context.Background(), "+15551234567", "hello")
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
