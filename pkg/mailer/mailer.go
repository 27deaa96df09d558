// Package mailer sends approved replies over SMTP as proper threaded
// responses to the original email.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"
)

// Config holds the SMTP connection settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
}

// Mailer sends reply emails through one SMTP account.
type Mailer struct {
	client *mail.Client
	config Config
	logger *slog.Logger
}

// NewMailer creates a mailer for the given SMTP account.
func NewMailer(config Config, logger *slog.Logger) (*Mailer, error) {
	client, err := mail.NewClient(config.Host,
		mail.WithPort(config.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(config.Username),
		mail.WithPassword(config.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return &Mailer{
		client: client,
		config: config,
		logger: logger.With("module", "mailer"),
	}, nil
}

// SendReply sends body as a reply to the original email and returns the
// Message-ID of the outgoing message. The In-Reply-To and References headers
// keep the reply in the original thread.
func (m *Mailer) SendReply(ctx context.Context, to, subject, body, inReplyTo, references string) (string, error) {
	msg := mail.NewMsg()

	if err := msg.From(m.config.FromAddress); err != nil {
		return "", fmt.Errorf("invalid from address: %w", err)
	}

	if err := msg.To(to); err != nil {
		return "", fmt.Errorf("invalid recipient address: %w", err)
	}

	msg.Subject(replySubject(subject))
	msg.SetBodyString(mail.TypeTextPlain, body)
	msg.SetMessageID()

	if inReplyTo != "" {
		msg.SetGenHeader(mail.HeaderInReplyTo, inReplyTo)
	}

	if references != "" {
		msg.SetGenHeader(mail.HeaderReferences, references)
	}

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to send reply to %s: %w", to, err)
	}

	messageID := msg.GetMessageID()

	m.logger.InfoContext(ctx, "Reply sent", "to", to, "reply_message_id", messageID)

	return messageID, nil
}

// replySubject prefixes the subject with "Re: " unless it already carries
// one in any casing.
func replySubject(subject string) string {
	if subject == "" {
		return "Re: No subject"
	}

	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}

	return "Re: " + subject
}
