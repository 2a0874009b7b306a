package watcher

import (
	"context"

	"earnwatch/internal/domain"
	"earnwatch/internal/source"
)

// ListingSource provides the current batch of raw listings, their
// detail records, and the normalization into canonical records.
type ListingSource interface {
	// FetchListings returns the current batch of listing summaries.
	// An error means the batch could not be fetched at all and the
	// cycle must abort.
	FetchListings(ctx context.Context) ([]source.Summary, error)

	// FetchDetail returns the detail record for a listing, or nil on
	// any failure.
	FetchDetail(ctx context.Context, slug string) *source.Detail

	// Normalise builds the canonical listing record from a summary
	// and its optional detail.
	Normalise(item source.Summary, detail *source.Detail) domain.Listing
}

// ListingStore persists canonical records and their notification
// state.
type ListingStore interface {
	// Upsert inserts or refreshes a listing row, reporting whether
	// this call performed the insert branch.
	Upsert(ctx context.Context, listing domain.Listing) (bool, error)

	// NeedsNotification reports whether the row exists with
	// notified_at still null.
	NeedsNotification(ctx context.Context, id string) (bool, error)

	// MarkNotified records a confirmed successful send.
	MarkNotified(ctx context.Context, id string) error
}

// Sender delivers one listing notification, reporting success.
type Sender interface {
	Send(ctx context.Context, listing domain.Listing) bool
}

// MetricsTracker records completed cycle outcomes.
type MetricsTracker interface {
	RecordCycle(ctx context.Context, result domain.CycleResult)
}
