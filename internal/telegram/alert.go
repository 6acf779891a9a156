package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of *tgbotapi.BotAPI used to post messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Alert struct {
	Kind      string
	AccountID string
	Message   string
	Err       error
	Fields    map[string]string
}

func (a Alert) text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ %s\n%s", a.Kind, a.Message)
	if a.AccountID != "" {
		fmt.Fprintf(&sb, "\naccount: %s", a.AccountID)
	}
	for k, v := range a.Fields {
		fmt.Fprintf(&sb, "\n%s: %s", k, v)
	}
	if a.Err != nil {
		fmt.Fprintf(&sb, "\nerror: %s", a.Err)
	}
	return sb.String()
}

// Notifier logs every alert at error level and forwards it to the ops chat
// when one is configured. Delivery failures are logged only.
type Notifier struct {
	api    Sender
	chatID int64
	log    zerolog.Logger
}

func NewNotifier(api Sender, chatID int64, log zerolog.Logger) *Notifier {
	return &Notifier{api: api, chatID: chatID, log: log.With().Str("component", "alerts").Logger()}
}

func (n *Notifier) Alert(_ context.Context, a Alert) {
	ev := n.log.Error().Err(a.Err).Str("alert", a.Kind).Str("account_id", a.AccountID)
	for k, v := range a.Fields {
		ev = ev.Str(k, v)
	}
	ev.Msg(a.Message)

	if n.api == nil || n.chatID == 0 {
		return
	}
	if _, err := n.api.Send(tgbotapi.NewMessage(n.chatID, a.text())); err != nil {
		n.log.Error().Err(err).Str("alert", a.Kind).Msg("send telegram alert")
	}
}
