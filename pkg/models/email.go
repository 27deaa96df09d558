package models

import "time"

// EmailStatus is the status vocabulary reported back to the email source.
type EmailStatus string

const (
	EmailStatusOrchestrating EmailStatus = "orchestrating"
	EmailStatusSent          EmailStatus = "sent"
	EmailStatusIgnored       EmailStatus = "ignored"
	EmailStatusTimeout       EmailStatus = "timeout"
)

// EmailDetail is a normalized email record as served by the email source.
type EmailDetail struct {
	MessageID   string    `json:"message_id"`
	Subject     string    `json:"subject"`
	FromAddress string    `json:"from_address"`
	ToAddresses []string  `json:"to_addresses"`
	BodyText    string    `json:"body_text"`
	InReplyTo   string    `json:"in_reply_to,omitempty"`
	References  string    `json:"references,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	Status      string    `json:"status,omitempty"`
}

// GeneratedReply is the reply oracle's answer for one email.
type GeneratedReply struct {
	MessageID   string `json:"message_id"`
	ReplyText   string `json:"reply_text"`
	ReplyLength int    `json:"reply_length"`
	GeneratedAt string `json:"generated_at"`
}

// NotificationResult reports the outcome of one outbound text message.
type NotificationResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// InboundMessage is one text message received from the reviewer, regardless
// of whether it arrived over the webhook or the queue receiver.
type InboundMessage struct {
	PhoneNumber string    `json:"phone_number"`
	Message     string    `json:"message"`
	ReceivedAt  time.Time `json:"received_at"`
}
