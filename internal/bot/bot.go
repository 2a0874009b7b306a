// Package bot implements the operator command interface over Telegram
// getUpdates long polling. It answers status queries and can force an
// immediate watch cycle.
package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"earnwatch/internal/domain"
	"earnwatch/internal/logger"
	"earnwatch/internal/telegram"
	"earnwatch/internal/watcher"
)

const (
	// longPollWait is how long getUpdates holds the request server-side.
	longPollWait = 30 * time.Second

	// errorBackoff is the pause after a failed poll before retrying.
	errorBackoff = 5 * time.Second

	latestLimit = 5
)

// Transport is the Telegram surface the bot needs.
type Transport interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) error
	GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]telegram.Update, error)
}

// StatusStore provides the persisted numbers for operator reports.
type StatusStore interface {
	GetStats(ctx context.Context) (*domain.StoreStats, error)
	GetLatest(ctx context.Context, limit int) ([]domain.StoredListing, error)
}

// CycleForcer triggers an immediate watch cycle.
type CycleForcer interface {
	ForceCycle(ctx context.Context) (domain.CycleResult, error)
}

// Bot long-polls for operator commands and dispatches them.
type Bot struct {
	transport    Transport
	store        StatusStore
	forcer       CycleForcer
	state        *watcher.RunState
	pollInterval time.Duration
	logger       logger.Logger
}

// New creates a command bot. pollInterval is the watcher's scheduled
// interval and feeds the health indicator in /status.
func New(transport Transport, store StatusStore, forcer CycleForcer, state *watcher.RunState, pollInterval time.Duration, log logger.Logger) *Bot {
	return &Bot{
		transport:    transport,
		store:        store,
		forcer:       forcer,
		state:        state,
		pollInterval: pollInterval,
		logger:       log,
	}
}

// Run long-polls getUpdates until the context is cancelled. Poll
// failures are logged and retried after a short backoff; the loop
// itself never returns an error.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("Command poller started")

	var offset int64
	for {
		if ctx.Err() != nil {
			b.logger.Info("Command poller stopped")
			return
		}

		updates, err := b.transport.GetUpdates(ctx, offset, longPollWait)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("Command poller stopped")
				return
			}
			b.logger.Error("getUpdates failed", logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update telegram.Update) {
	if update.Message == nil {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	chatID := update.Message.Chat.ID
	if text == "" || chatID == 0 {
		return
	}

	cmd := parseCommand(text)
	handler := b.handlerFor(cmd)
	if handler == nil {
		return
	}

	b.logger.Info("Handling command",
		logger.String("command", cmd),
		logger.Int64("chat_id", chatID))
	handler(ctx, strconv.FormatInt(chatID, 10))
}

// parseCommand extracts the command word from a message, dropping
// arguments and any @botname suffix ("/status@MyBot args" -> "/status").
func parseCommand(text string) string {
	cmd := strings.Fields(text)[0]
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func (b *Bot) handlerFor(cmd string) func(context.Context, string) {
	switch cmd {
	case "/status":
		return b.cmdStatus
	case "/test":
		return b.cmdTest
	case "/latest":
		return b.cmdLatest
	case "/force":
		return b.cmdForce
	case "/help", "/start":
		return b.cmdHelp
	default:
		return nil
	}
}

func (b *Bot) reply(ctx context.Context, chatID, text, parseMode string) {
	if err := b.transport.SendMessage(ctx, chatID, text, parseMode); err != nil {
		b.logger.Error("Failed to send reply",
			logger.String("chat_id", chatID),
			logger.Error(err))
	}
}
