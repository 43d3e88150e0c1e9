// Package platform provides notification sinks for the notifier.
package platform

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gitlab_notify/internal/notify"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers notifications as messages to a single chat.
type Telegram struct {
	api    telegramAPI
	chatID int64
	log    *slog.Logger
}

// NewTelegram creates a Telegram sink with the given bot token and chat.
func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

// Create sends one notification message. Delivery failures are logged;
// the notifier does not retry.
func (t *Telegram) Create(id string, opts notify.Options) {
	var b strings.Builder
	b.WriteString(opts.Title)
	b.WriteString("\n")
	b.WriteString(opts.Message)

	msg := tgbotapi.NewMessage(t.chatID, b.String())
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("send notification", "id", id, "error", err)
	}
}

// SetBadgeText records the unread count. Telegram has no badge surface, so
// the count is only visible in logs.
func (t *Telegram) SetBadgeText(text string) {
	t.log.Debug("unread badge", "text", text)
}
