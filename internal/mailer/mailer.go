// Package mailer delivers generated emails through the Resend API.
package mailer

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/autosendmail/autosendmail/internal/logger"
)

const sendTimeout = 30 * time.Second

// Mailer sends a single plain-text email, wrapped in minimal HTML, to one
// recipient. It holds only the API client and is safe for concurrent use.
type Mailer struct {
	client *resend.Client
	log    *logger.Logger
}

// New creates a Mailer using the given Resend API key.
func New(apiKey string, log *logger.Logger) *Mailer {
	return &Mailer{
		client: resend.NewClient(apiKey),
		log:    log.WithComponent("mailer"),
	}
}

// Send delivers one email and returns the Resend message ID.
// Errors propagate to the caller; there is no retry.
func (m *Mailer) Send(ctx context.Context, fromEmail, fromName, toEmail, subject, body string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	sender := FormatSender(fromEmail, fromName)

	m.log.Info().
		Str("from", sender).
		Str("to", toEmail).
		Str("subject", subject).
		Msg("sending email")

	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    sender,
		To:      []string{toEmail},
		Subject: subject,
		Html:    RenderHTML(body),
	})
	if err != nil {
		return "", fmt.Errorf("resend send failed: %w", err)
	}

	m.log.Info().Str("message_id", sent.Id).Msg("email sent")
	return sent.Id, nil
}

// FormatSender builds the From header: "Name <email>" when a display name
// is present, the bare address otherwise.
func FormatSender(email, name string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

// RenderHTML wraps a plain-text body in a minimal styled HTML document.
// The text is escaped and newlines become line breaks; no other markup.
func RenderHTML(body string) string {
	escaped := html.EscapeString(body)
	withBreaks := strings.ReplaceAll(escaped, "\n", "<br>\n")
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', sans-serif; font-size: 15px; line-height: 1.8; color: #333; padding: 20px;">
%s
</body>
</html>`, withBreaks)
}
