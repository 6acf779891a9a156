package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/sorapixel/studio/internal/ledger"
	"github.com/sorapixel/studio/internal/models"
)

type StatsSource interface {
	Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error)
}

type Ledger interface {
	Balance(ctx context.Context, accountID string) (ledger.Balance, error)
	Credit(ctx context.Context, accountID string, amount int) (int, error)
}

// OpsBot answers operator commands in the alert chat. Messages from any other
// chat are ignored.
type OpsBot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	chatID int64
	stats  StatsSource
	ledger Ledger
	log    zerolog.Logger
	now    func() time.Time
}

func NewOpsBot(api *tgbotapi.BotAPI, chatID int64, stats StatsSource, l Ledger, log zerolog.Logger) *OpsBot {
	return &OpsBot{
		api:    api,
		sender: api,
		chatID: chatID,
		stats:  stats,
		ledger: l,
		log:    log.With().Str("component", "ops_bot").Logger(),
		now:    time.Now,
	}
}

func (b *OpsBot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Int64("chat_id", b.chatID).Msg("ops bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *OpsBot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != b.chatID || !msg.IsCommand() {
		return
	}
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "stats":
		b.handleStats(ctx, args)
	case "balance":
		b.handleBalance(ctx, args)
	case "grant":
		b.handleGrant(ctx, args)
	default:
		b.sendText("Commands:\n/stats [hours]\n/balance <account>\n/grant <account> <tokens>")
	}
}

func (b *OpsBot) handleStats(ctx context.Context, args []string) {
	hours := 24
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			hours = n
		}
	}
	rows, err := b.stats.Summary(ctx, b.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		b.log.Error().Err(err).Msg("load usage summary")
		b.sendText("Could not load stats.")
		return
	}
	if len(rows) == 0 {
		b.sendText(fmt.Sprintf("No generations in the last %dh.", hours))
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Last %dh:", hours)
	for _, r := range rows {
		fmt.Fprintf(&sb, "\n%s: %d runs, %d in / %d out tokens", r.Kind, r.Generations, r.InputTokens, r.OutputTokens)
	}
	b.sendText(sb.String())
}

func (b *OpsBot) handleBalance(ctx context.Context, args []string) {
	if len(args) != 1 {
		b.sendText("Usage: /balance <account>")
		return
	}
	bal, err := b.ledger.Balance(ctx, args[0])
	if err != nil {
		b.replyLedgerError(err)
		return
	}
	b.sendText(fmt.Sprintf("%s: %d tokens, free tier %d/%d", args[0], bal.TokenBalance, bal.FreeTierUsed, bal.FreeLimit))
}

func (b *OpsBot) handleGrant(ctx context.Context, args []string) {
	if len(args) != 2 {
		b.sendText("Usage: /grant <account> <tokens>")
		return
	}
	amount, err := strconv.Atoi(args[1])
	if err != nil || amount <= 0 {
		b.sendText("Tokens must be a positive number.")
		return
	}
	balance, err := b.ledger.Credit(ctx, args[0], amount)
	if err != nil {
		b.replyLedgerError(err)
		return
	}
	b.log.Info().Str("account_id", args[0]).Int("amount", amount).Msg("tokens granted from ops chat")
	b.sendText(fmt.Sprintf("Granted %d tokens to %s. Balance: %d", amount, args[0], balance))
}

func (b *OpsBot) replyLedgerError(err error) {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		b.sendText("Account not found.")
		return
	}
	b.log.Error().Err(err).Msg("ops ledger command")
	b.sendText("Ledger unavailable, try again later.")
}

func (b *OpsBot) sendText(text string) {
	if _, err := b.sender.Send(tgbotapi.NewMessage(b.chatID, text)); err != nil {
		b.log.Error().Err(err).Msg("send text")
	}
}
