package smsgateway

import (
	"fmt"
	"strings"
)

// Format selects the notification layout.
type Format string

const (
	FormatCondensed Format = "condensed"
	FormatMultipart Format = "multipart"
)

const (
	maxBodyPreviewLength  = 80
	maxReplyPreviewLength = 150
)

// FormatNotification renders the review prompt for one draft reply. The
// condensed layout targets a single text message; multipart spells out each
// field on its own line.
func FormatNotification(emailFrom, emailSubject, emailBodyPreview, draftReply string, format Format) string {
	senderName := extractSenderName(emailFrom)
	bodyPreview := truncate(emailBodyPreview, maxBodyPreviewLength)
	replyPreview := truncate(draftReply, maxReplyPreviewLength)

	if format == FormatMultipart {
		return fmt.Sprintf("📧 From: %s\nSubject: %s\nBody: \"%s\"\nDraft: \"%s\"\nReply: 1=Send 2=Edit 3=Ignore",
			senderName, emailSubject, bodyPreview, replyPreview)
	}

	return fmt.Sprintf("📧 %s: \"%s\"\nDraft: \"%s\"\n1=Send 2=Edit 3=Ignore",
		senderName, bodyPreview, replyPreview)
}

// extractSenderName reduces a From header to a short display name: the
// display part of "Name <addr>", otherwise the local part of the address.
func extractSenderName(emailFrom string) string {
	if name, _, found := strings.Cut(emailFrom, "<"); found {
		return strings.TrimSpace(name)
	}

	local, _, _ := strings.Cut(emailFrom, "@")

	return local
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	return string(runes[:max]) + "..."
}
