// Package notify renders canonical listing records into Telegram HTML
// messages and delivers them to the configured notification chat.
package notify

import (
	"context"
	"html"
	"strconv"
	"strings"

	"earnwatch/internal/domain"
	"earnwatch/internal/logger"
	"earnwatch/internal/telegram"
)

// placeholder replaces empty display fields in rendered messages.
const placeholder = "—"

// deadlineDateLen truncates ISO timestamps to calendar-date precision.
const deadlineDateLen = 10

// Messenger delivers a rendered message to a chat.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) error
}

// Sender delivers listing notifications to a single preconfigured chat.
type Sender struct {
	messenger Messenger
	chatID    string
	logger    logger.Logger
}

// NewSender creates a Sender for the given notification chat.
func NewSender(messenger Messenger, chatID string, log logger.Logger) *Sender {
	return &Sender{
		messenger: messenger,
		chatID:    chatID,
		logger:    log,
	}
}

// Send formats and delivers a single listing notification. Delivery
// failure is logged and reported as false, never propagated: the
// orchestrator leaves the listing pending and the next cycle retries.
func (s *Sender) Send(ctx context.Context, listing domain.Listing) bool {
	text := FormatListing(listing)

	if err := s.messenger.SendMessage(ctx, s.chatID, text, telegram.ParseModeHTML); err != nil {
		s.logger.Error("notification send failed",
			logger.String("listing_id", listing.ID),
			logger.String("title", listing.Title),
			logger.Error(err),
		)
		return false
	}

	s.logger.Info("notification sent",
		logger.String("listing_id", listing.ID),
		logger.String("title", listing.Title),
		logger.String("url", listing.URL),
	)
	return true
}

// FormatListing renders the fixed notification template: a headline
// with category tag and linked title, an optional reward line, and an
// optional due-date line truncated to the calendar date. Every field
// drawn from source data is HTML-escaped so listing text can not
// inject markup into the rendered message.
func FormatListing(listing domain.Listing) string {
	tab := listing.Tab
	if tab == "" {
		tab = "bounty"
	}
	title := listing.Title
	if title == "" {
		title = placeholder
	}
	region := placeholder
	if listing.Region != nil {
		region = *listing.Region
	}

	lines := []string{
		"🆕 <a href=\"" + listing.URL + "\">" + html.EscapeString(title) + "</a> — [" +
			html.EscapeString(strings.ToUpper(tab)) + "] (" + html.EscapeString(region) + ")",
	}

	if listing.RewardAmount != nil {
		reward := strconv.FormatFloat(*listing.RewardAmount, 'f', -1, 64)
		if listing.RewardToken != nil && *listing.RewardToken != "" {
			reward += " " + html.EscapeString(*listing.RewardToken)
		}
		lines = append(lines, "💰 Reward: "+reward)
	}

	if listing.Deadline != nil && *listing.Deadline != "" {
		due := *listing.Deadline
		if len(due) > deadlineDateLen {
			due = due[:deadlineDateLen]
		}
		lines = append(lines, "⏰ Due: "+html.EscapeString(due))
	}

	return strings.Join(lines, "\n")
}
