package smsgateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatNotification_Condensed(t *testing.T) {
	message := FormatNotification(
		"Alice Smith <alice@example.com>",
		"Meeting tomorrow?",
		"Are you free tomorrow at 10?",
		"Sure, 10 works for me.",
		FormatCondensed,
	)

	assert.Contains(t, message, "Alice Smith")
	assert.Contains(t, message, `"Are you free tomorrow at 10?"`)
	assert.Contains(t, message, `Draft: "Sure, 10 works for me."`)
	assert.Contains(t, message, "1=Send 2=Edit 3=Ignore")
	assert.NotContains(t, message, "Subject:")
}

func TestFormatNotification_Multipart(t *testing.T) {
	message := FormatNotification(
		"Alice Smith <alice@example.com>",
		"Meeting tomorrow?",
		"Are you free tomorrow at 10?",
		"Sure, 10 works for me.",
		FormatMultipart,
	)

	assert.Contains(t, message, "From: Alice Smith")
	assert.Contains(t, message, "Subject: Meeting tomorrow?")
	assert.Contains(t, message, "Reply: 1=Send 2=Edit 3=Ignore")
}

func TestFormatNotification_TruncatesLongBody(t *testing.T) {
	body := strings.Repeat("a", 200)

	message := FormatNotification("bob@example.com", "hi", body, "ok", FormatCondensed)

	assert.Contains(t, message, strings.Repeat("a", 80)+"...")
	assert.NotContains(t, message, strings.Repeat("a", 81))
}

func TestFormatNotification_TruncatesLongReply(t *testing.T) {
	reply := strings.Repeat("b", 300)

	message := FormatNotification("bob@example.com", "hi", "short", reply, FormatCondensed)

	assert.Contains(t, message, strings.Repeat("b", 150)+"...")
	assert.NotContains(t, message, strings.Repeat("b", 151))
}

func TestExtractSenderName(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		expected string
	}{
		{name: "display name", from: "Alice Smith <alice@example.com>", expected: "Alice Smith"},
		{name: "bare address", from: "bob@example.com", expected: "bob"},
		{name: "angle brackets without name", from: "<carol@example.com>", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractSenderName(tt.from))
		})
	}
}
