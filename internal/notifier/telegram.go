// Package notifier reports task outcomes to a Telegram chat. Delivery is
// best effort: failures are logged and swallowed, never propagated.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/autosendmail/autosendmail/internal/logger"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	notifyTimeout  = 10 * time.Second
)

// Telegram posts result notifications via the Telegram bot API.
// It is a no-op unless both the bot token and chat ID are configured.
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	log      *logger.Logger
}

// NewTelegram creates a Telegram notifier. When token or chat ID is
// missing the notifier is disabled and every call returns immediately.
func NewTelegram(botToken, chatID string, log *logger.Logger) *Telegram {
	t := &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: notifyTimeout},
		log:      log.WithComponent("notifier"),
	}
	if !t.Enabled() {
		t.log.Warn().Msg("telegram notifications disabled (TG_BOT_TOKEN or TG_CHAT_ID not set)")
	}
	return t
}

// Enabled reports whether notifications will actually be sent.
func (t *Telegram) Enabled() bool {
	return t.botToken != "" && t.chatID != ""
}

// NotifySuccess reports a completed email delivery.
func (t *Telegram) NotifySuccess(ctx context.Context, accountName, toEmail, subject string) {
	msg := fmt.Sprintf(
		"<b>Email sent</b>\nAccount: %s\nRecipient: %s\nSubject: %s",
		html.EscapeString(accountName),
		html.EscapeString(toEmail),
		html.EscapeString(subject),
	)
	t.send(ctx, msg)
}

// NotifyFailure reports a failed task firing.
func (t *Telegram) NotifyFailure(ctx context.Context, accountName, toEmail, errText string) {
	msg := fmt.Sprintf(
		"<b>Email failed</b>\nAccount: %s\nRecipient: %s\nError: %s",
		html.EscapeString(accountName),
		html.EscapeString(toEmail),
		html.EscapeString(errText),
	)
	t.send(ctx, msg)
}

// sendMessageRequest is the Telegram sendMessage payload.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *Telegram) send(ctx context.Context, text string) {
	if !t.Enabled() {
		return
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		t.log.Error().Err(err).Msg("failed to encode telegram payload")
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.log.Error().Err(err).Msg("failed to build telegram request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Error().Err(err).Msg("telegram notification failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.log.Error().Int("status", resp.StatusCode).Msg("telegram notification rejected")
		return
	}

	t.log.Debug().Msg("telegram notification delivered")
}
