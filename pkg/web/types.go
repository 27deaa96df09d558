package web

// SMSWebhookPayload is the inner message object of an SMS gateway webhook
// delivery.
type SMSWebhookPayload struct {
	MessageID   string `json:"messageId"`
	Message     string `json:"message"     validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	SimNumber   int    `json:"simNumber,omitempty"`
	ReceivedAt  string `json:"receivedAt,omitempty"`
}

// SMSWebhookRequest is the envelope the SMS gateway posts when the reviewer
// texts back. Only the payload matters for routing; the envelope fields are
// kept for logging.
type SMSWebhookRequest struct {
	DeviceID  string            `json:"deviceId"`
	Event     string            `json:"event"`
	ID        string            `json:"id"`
	Payload   SMSWebhookPayload `json:"payload" validate:"required"`
	WebhookID string            `json:"webhookId"`
}
