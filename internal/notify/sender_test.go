package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earnwatch/internal/domain"
	"earnwatch/internal/logger"
	"earnwatch/internal/notify"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

type fakeMessenger struct {
	chatID    string
	text      string
	parseMode string
	calls     int
	err       error
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID, text, parseMode string) error {
	f.calls++
	f.chatID = chatID
	f.text = text
	f.parseMode = parseMode
	return f.err
}

func TestFormatListingFull(t *testing.T) {
	listing := domain.Listing{
		ID:           "a1",
		Tab:          "bounty",
		Title:        "Build X",
		URL:          "https://superteam.fun/listings/s1/bounty",
		Region:       strPtr("Global"),
		RewardAmount: floatPtr(500),
		RewardToken:  strPtr("USDC"),
		Deadline:     strPtr("2026-09-30T23:59:59.000Z"),
	}

	got := notify.FormatListing(listing)

	want := "🆕 <a href=\"https://superteam.fun/listings/s1/bounty\">Build X</a> — [BOUNTY] (Global)\n" +
		"💰 Reward: 500 USDC\n" +
		"⏰ Due: 2026-09-30"
	assert.Equal(t, want, got)
}

func TestFormatListingMinimal(t *testing.T) {
	listing := domain.Listing{
		ID:  "a2",
		Tab: "project",
		URL: "https://superteam.fun/listings/s2/project",
	}

	got := notify.FormatListing(listing)

	assert.Equal(t, "🆕 <a href=\"https://superteam.fun/listings/s2/project\">—</a> — [PROJECT] (—)", got)
}

func TestFormatListingEscapesMarkup(t *testing.T) {
	listing := domain.Listing{
		ID:     "a3",
		Tab:    "bounty",
		Title:  `Build <b>fast</b> & "cheap"`,
		URL:    "https://superteam.fun/listings/s3/bounty",
		Region: strPtr("<Global>"),
	}

	got := notify.FormatListing(listing)

	assert.NotContains(t, got, "<b>")
	assert.Contains(t, got, "Build &lt;b&gt;fast&lt;/b&gt; &amp; &#34;cheap&#34;")
	assert.Contains(t, got, "(&lt;Global&gt;)")
}

func TestFormatListingRewardWithoutToken(t *testing.T) {
	listing := domain.Listing{
		ID:           "a4",
		Tab:          "bounty",
		Title:        "Build X",
		URL:          "https://superteam.fun/listings/s4/bounty",
		RewardAmount: floatPtr(1250.5),
	}

	assert.Contains(t, notify.FormatListing(listing), "💰 Reward: 1250.5")
}

func TestSendSuccess(t *testing.T) {
	messenger := &fakeMessenger{}
	sender := notify.NewSender(messenger, "-100500", logger.NewNopLogger())

	ok := sender.Send(context.Background(), domain.Listing{
		ID:    "a1",
		Tab:   "bounty",
		Title: "Build X",
		URL:   "https://superteam.fun/listings/s1/bounty",
	})

	require.True(t, ok)
	assert.Equal(t, 1, messenger.calls)
	assert.Equal(t, "-100500", messenger.chatID)
	assert.Equal(t, "HTML", messenger.parseMode)
	assert.Contains(t, messenger.text, "Build X")
}

func TestSendFailureReturnsFalse(t *testing.T) {
	messenger := &fakeMessenger{err: errors.New("telegram down")}
	sender := notify.NewSender(messenger, "-100500", logger.NewNopLogger())

	ok := sender.Send(context.Background(), domain.Listing{ID: "a1", URL: "u"})

	assert.False(t, ok)
	assert.Equal(t, 1, messenger.calls)
}
