package platform

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gitlab_notify/internal/notify"
)

type fakeAPI struct {
	sent    []tgbotapi.MessageConfig
	sendErr error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.sendErr
}

func newTestTelegram(api telegramAPI) *Telegram {
	return &Telegram{
		api:    api,
		chatID: 42,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestCreate(t *testing.T) {
	api := &fakeAPI{}
	tg := newTestTelegram(api)

	tg.Create("15_Issue_830_closed_2015-12-04T10:33:58.089Z", notify.Options{
		Type:    "basic",
		Title:   "sue445/example",
		Message: "[Issue] #445 TestIssue closed",
	})

	if len(api.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(api.sent))
	}
	msg := api.sent[0]
	if msg.ChatID != 42 {
		t.Errorf("chat id = %d, want 42", msg.ChatID)
	}
	want := "sue445/example\n[Issue] #445 TestIssue closed"
	if msg.Text != want {
		t.Errorf("text = %q, want %q", msg.Text, want)
	}
	if !msg.DisableWebPagePreview {
		t.Error("expected link previews disabled")
	}
}

func TestCreateSendFailure(t *testing.T) {
	api := &fakeAPI{sendErr: fmt.Errorf("telegram unavailable")}
	tg := newTestTelegram(api)

	// Delivery failures are logged, not propagated.
	tg.Create("some-id", notify.Options{Title: "t", Message: "m"})
	tg.SetBadgeText("1")
}
