package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"earnwatch/internal/domain"
	"earnwatch/internal/logger"
	"earnwatch/internal/telegram"
	"earnwatch/internal/watcher"
)

const helpText = "📋 Commands:\n" +
	"/status — watcher health and counters\n" +
	"/test — send a test message\n" +
	"/latest — last 5 listings\n" +
	"/force — run a fetch/notify cycle now\n" +
	"/help — this message"

func (b *Bot) cmdHelp(ctx context.Context, chatID string) {
	b.reply(ctx, chatID, helpText, "")
}

func (b *Bot) cmdTest(ctx context.Context, chatID string) {
	b.reply(ctx, chatID, "✅ test ok", "")
}

func (b *Bot) cmdStatus(ctx context.Context, chatID string) {
	snap := b.state.Snapshot()

	lines := []string{
		"📊 <b>Status</b>",
		"🩺 Health: " + b.healthIndicator(snap),
		fmt.Sprintf("⏱ Uptime: %s", snap.Uptime().Round(time.Second)),
		fmt.Sprintf("🔄 Poll interval: %s", b.pollInterval),
		"📅 Last check: " + formatTime(snap.LastCheckAt),
		"✅ Last success: " + formatTime(snap.LastSuccessAt),
		"❌ Last error: " + formatError(snap.LastError),
	}

	stats, err := b.store.GetStats(ctx)
	if err != nil {
		b.logger.Error("Failed to load store stats", logger.Error(err))
		lines = append(lines, "", "📦 Store stats unavailable")
		b.reply(ctx, chatID, strings.Join(lines, "\n"), telegram.ParseModeHTML)
		return
	}

	lines = append(lines, "",
		fmt.Sprintf("📦 Total in DB: %d", stats.Total),
		fmt.Sprintf("📨 Notified: %d", stats.Notified),
	)
	if stats.LastTitle != nil {
		lines = append(lines, "🆕 Last: "+formatLastListing(stats))
	}

	b.reply(ctx, chatID, strings.Join(lines, "\n"), telegram.ParseModeHTML)
}

func (b *Bot) cmdLatest(ctx context.Context, chatID string) {
	rows, err := b.store.GetLatest(ctx, latestLimit)
	if err != nil {
		b.logger.Error("Failed to load latest listings", logger.Error(err))
		b.reply(ctx, chatID, "❌ DB error", "")
		return
	}
	if len(rows) == 0 {
		b.reply(ctx, chatID, "📭 No listings recorded yet", "")
		return
	}

	lines := []string{fmt.Sprintf("📋 <b>Last %d:</b>", len(rows))}
	for _, row := range rows {
		lines = append(lines, "\n"+formatStoredListing(row))
	}

	b.reply(ctx, chatID, strings.Join(lines, "\n"), telegram.ParseModeHTML)
}

// cmdForce triggers an immediate cycle. The cycle runs in its own
// goroutine so the command loop keeps serving other commands while a
// slow fetch is in flight; the outcome is reported as a second message.
func (b *Bot) cmdForce(ctx context.Context, chatID string) {
	b.reply(ctx, chatID, "⏳ Starting cycle…", "")

	go func() {
		start := time.Now()
		result, err := b.forcer.ForceCycle(ctx)
		if err != nil {
			b.reply(ctx, chatID, forceErrorText(err), "")
			return
		}

		b.reply(ctx, chatID, fmt.Sprintf(
			"✅ done: new=%d, notified=%d, skipped=%d, duration=%.1fs",
			result.New, result.Notified, result.Skipped,
			time.Since(start).Seconds()), "")
	}()
}

func forceErrorText(err error) string {
	var cooldown *watcher.CooldownError
	switch {
	case errors.Is(err, watcher.ErrCycleRunning):
		return "⏳ A cycle is already running, try again shortly"
	case errors.As(err, &cooldown):
		return fmt.Sprintf("🕐 Cooldown: wait another %ds",
			int(cooldown.Remaining.Seconds())+1)
	default:
		return "❌ Cycle failed: " + html.EscapeString(err.Error())
	}
}

// healthIndicator classifies liveness from the last check timestamp:
// the watcher is stalled once two poll intervals pass without a check.
func (b *Bot) healthIndicator(snap watcher.StateSnapshot) string {
	if snap.LastCheckAt == nil {
		return "❓ unknown"
	}
	if time.Since(*snap.LastCheckAt) > 2*b.pollInterval {
		return "⚠️ stalled"
	}
	return "✅ alive"
}

func formatLastListing(stats *domain.StoreStats) string {
	title := html.EscapeString(deref(stats.LastTitle, "?"))
	tab := strings.ToUpper(html.EscapeString(deref(stats.LastTab, "?")))
	region := html.EscapeString(deref(stats.LastRegion, "—"))

	if stats.LastURL != nil && *stats.LastURL != "" {
		return fmt.Sprintf(`<a href="%s">%s</a> — [%s] (%s)`,
			html.EscapeString(*stats.LastURL), title, tab, region)
	}
	return fmt.Sprintf("%s — [%s] (%s)", title, tab, region)
}

func formatStoredListing(row domain.StoredListing) string {
	title := html.EscapeString(row.Title)
	if title == "" {
		title = "—"
	}
	tab := strings.ToUpper(html.EscapeString(row.Tab))
	region := html.EscapeString(deref(row.Region, "—"))
	seen := row.FirstSeenAt.UTC().Format("2006-01-02 15:04:05")

	return fmt.Sprintf("<a href=\"%s\">%s</a> — [%s]\n  🌍 %s | 🕐 %s",
		html.EscapeString(row.URL), title, tab, region, seen)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "—"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func formatError(msg string) string {
	if msg == "" {
		return "—"
	}
	return html.EscapeString(msg)
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
