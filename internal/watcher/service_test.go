package watcher_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earnwatch/internal/domain"
	"earnwatch/internal/logger"
	"earnwatch/internal/source"
	"earnwatch/internal/watcher"
)

func strPtr(s string) *string { return &s }

// fakeSource serves a fixed batch and detail map, delegating the pure
// normalization to the real source client.
type fakeSource struct {
	listings   []source.Summary
	fetchErr   error
	details    map[string]*source.Detail
	fetchGate  chan struct{} // when set, FetchListings blocks until closed
	fetchCalls int
}

func (f *fakeSource) FetchListings(context.Context) ([]source.Summary, error) {
	f.fetchCalls++
	if f.fetchGate != nil {
		<-f.fetchGate
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.listings, nil
}

func (f *fakeSource) FetchDetail(_ context.Context, slug string) *source.Detail {
	return f.details[slug]
}

func (f *fakeSource) Normalise(item source.Summary, detail *source.Detail) domain.Listing {
	return source.NewClient("https://example.invalid/api", time.Second, logger.NewNopLogger()).
		Normalise(item, detail)
}

type fakeRow struct {
	listing  domain.Listing
	notified bool
}

// fakeStore is an in-memory ListingStore with per-id error injection.
type fakeStore struct {
	rows       map[string]*fakeRow
	upsertErr  map[string]error
	checkErr   map[string]error
	markErr    map[string]error
	upsertIDs  []string
	markedIDs  []string
	checkCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*fakeRow{}}
}

func (f *fakeStore) Upsert(_ context.Context, listing domain.Listing) (bool, error) {
	if err := f.upsertErr[listing.ID]; err != nil {
		return false, err
	}
	f.upsertIDs = append(f.upsertIDs, listing.ID)
	if row, ok := f.rows[listing.ID]; ok {
		row.listing = listing
		return false, nil
	}
	f.rows[listing.ID] = &fakeRow{listing: listing}
	return true, nil
}

func (f *fakeStore) NeedsNotification(_ context.Context, id string) (bool, error) {
	f.checkCalls++
	if err := f.checkErr[id]; err != nil {
		return false, err
	}
	row, ok := f.rows[id]
	return ok && !row.notified, nil
}

func (f *fakeStore) MarkNotified(_ context.Context, id string) error {
	if err := f.markErr[id]; err != nil {
		return err
	}
	row, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	row.notified = true
	f.markedIDs = append(f.markedIDs, id)
	return nil
}

// fakeSender records sends and can fail per listing id.
type fakeSender struct {
	failIDs map[string]bool
	sentIDs []string
}

func (f *fakeSender) Send(_ context.Context, listing domain.Listing) bool {
	if f.failIDs[listing.ID] {
		return false
	}
	f.sentIDs = append(f.sentIDs, listing.ID)
	return true
}

type fakeMetrics struct {
	recorded []domain.CycleResult
}

func (f *fakeMetrics) RecordCycle(_ context.Context, result domain.CycleResult) {
	f.recorded = append(f.recorded, result)
}

func newTestService(src *fakeSource, store *fakeStore, sender *fakeSender, cfg watcher.Config) (*watcher.Service, *fakeMetrics) {
	if cfg.MaxNotifsPerRun == 0 {
		cfg.MaxNotifsPerRun = 10
	}
	metrics := &fakeMetrics{}
	svc := watcher.NewService(src, store, sender, metrics, cfg, logger.NewNopLogger())
	return svc, metrics
}

func TestCycleEndToEnd(t *testing.T) {
	src := &fakeSource{
		listings: []source.Summary{{ID: "a1", Slug: "s1", Type: "bounty", Title: "Build X"}},
		details:  map[string]*source.Detail{"s1": {Region: strPtr("Global")}},
	}
	store := newFakeStore()
	sender := &fakeSender{}
	svc, metrics := newTestService(src, store, sender, watcher.Config{})

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.CycleResult{New: 1, Notified: 1, Skipped: 0}, result)
	assert.Equal(t, []string{"a1"}, sender.sentIDs)
	require.Contains(t, store.rows, "a1")
	assert.True(t, store.rows["a1"].notified)
	require.Len(t, metrics.recorded, 1)
	assert.Equal(t, result, metrics.recorded[0])

	snap := svc.State().Snapshot()
	assert.NotNil(t, snap.LastCheckAt)
	assert.NotNil(t, snap.LastSuccessAt)
	assert.Empty(t, snap.LastError)
}

func TestEmptyBatchEndsCycleSuccessfully(t *testing.T) {
	src := &fakeSource{}
	svc, metrics := newTestService(src, newFakeStore(), &fakeSender{}, watcher.Config{})

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.CycleResult{}, result)
	require.Len(t, metrics.recorded, 1)
	assert.NotNil(t, svc.State().Snapshot().LastSuccessAt)
}

func TestPerRunCapDefersRemainingListings(t *testing.T) {
	var listings []source.Summary
	for i := 1; i <= 15; i++ {
		listings = append(listings, source.Summary{
			ID:    fmt.Sprintf("a%d", i),
			Slug:  fmt.Sprintf("s%d", i),
			Type:  "bounty",
			Title: fmt.Sprintf("Listing %d", i),
		})
	}
	src := &fakeSource{listings: listings}
	store := newFakeStore()
	sender := &fakeSender{}
	svc, _ := newTestService(src, store, sender, watcher.Config{MaxNotifsPerRun: 10})

	first, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CycleResult{New: 10, Notified: 10, Skipped: 0}, first)
	assert.Len(t, sender.sentIDs, 10)

	// Same 15 items next cycle: the first 10 are already notified,
	// the deferred 5 are picked up now.
	second, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CycleResult{New: 5, Notified: 5, Skipped: 0}, second)
	assert.Len(t, sender.sentIDs, 15)

	// No id was notified twice.
	seen := map[string]bool{}
	for _, id := range sender.sentIDs {
		assert.False(t, seen[id], "duplicate notification for %s", id)
		seen[id] = true
	}
}

func TestRegionBlockedListingIsStoredButSuppressed(t *testing.T) {
	src := &fakeSource{
		listings: []source.Summary{{ID: "a1", Slug: "s1", Type: "bounty", Title: "US only"}},
		details:  map[string]*source.Detail{"s1": {Region: strPtr("US")}},
	}
	store := newFakeStore()
	sender := &fakeSender{}
	svc, _ := newTestService(src, store, sender, watcher.Config{})

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.CycleResult{New: 1, Notified: 0, Skipped: 1}, result)
	assert.Empty(t, sender.sentIDs)
	require.Contains(t, store.rows, "a1")
	assert.False(t, store.rows["a1"].notified, "region suppression must not consume notified state")
}

func TestSenderFailureLeavesListingRetryable(t *testing.T) {
	src := &fakeSource{
		listings: []source.Summary{{ID: "a1", Slug: "s1", Type: "bounty", Title: "Build X"}},
	}
	store := newFakeStore()
	sender := &fakeSender{failIDs: map[string]bool{"a1": true}}
	svc, _ := newTestService(src, store, sender, watcher.Config{})

	first, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CycleResult{New: 1, Notified: 0, Skipped: 0}, first)
	assert.False(t, store.rows["a1"].notified)

	// Next cycle the send succeeds and the same listing goes out.
	sender.failIDs = nil
	second, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.CycleResult{New: 0, Notified: 1, Skipped: 0}, second)
	assert.Equal(t, []string{"a1"}, sender.sentIDs)
	assert.True(t, store.rows["a1"].notified)
}

func TestMalformedItemNeverTouchesStore(t *testing.T) {
	src := &fakeSource{
		listings: []source.Summary{{ID: "a1", Title: "no slug at all"}},
	}
	store := newFakeStore()
	sender := &fakeSender{}
	svc, _ := newTestService(src, store, sender, watcher.Config{})

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.CycleResult{}, result)
	assert.Empty(t, store.upsertIDs)
	assert.Zero(t, store.checkCalls)
	assert.Empty(t, sender.sentIDs)
}

func TestBatchFetchErrorAbortsCycle(t *testing.T) {
	src := &fakeSource{fetchErr: errors.New("api unreachable")}
	store := newFakeStore()
	svc, metrics := newTestService(src, store, &fakeSender{}, watcher.Config{})

	result, err := svc.RunCycle(context.Background())
	require.Error(t, err)

	assert.Equal(t, domain.CycleResult{}, result)
	assert.Empty(t, metrics.recorded, "aborted cycle must not record metrics")

	snap := svc.State().Snapshot()
	assert.Contains(t, snap.LastError, "api unreachable")
	assert.NotNil(t, snap.LastCheckAt)
	assert.Nil(t, snap.LastSuccessAt)
}

func TestPerItemFailureDoesNotAbortCycle(t *testing.T) {
	src := &fakeSource{
		listings: []source.Summary{
			{ID: "a1", Slug: "s1", Type: "bounty", Title: "First"},
			{ID: "a2", Slug: "s2", Type: "bounty", Title: "Broken"},
			{ID: "a3", Slug: "s3", Type: "bounty", Title: "Third"},
		},
	}
	store := newFakeStore()
	store.upsertErr = map[string]error{"a2": errors.New("connection reset")}
	sender := &fakeSender{}
	svc, _ := newTestService(src, store, sender, watcher.Config{})

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.CycleResult{New: 2, Notified: 2, Skipped: 0}, result)
	assert.Equal(t, []string{"a1", "a3"}, sender.sentIDs)
}

func TestStoreCheckFailureSkipsOnlyThatItem(t *testing.T) {
	src := &fakeSource{
		listings: []source.Summary{
			{ID: "a1", Slug: "s1", Type: "bounty", Title: "Pending"},
			{ID: "a2", Slug: "s2", Type: "bounty", Title: "Fresh"},
		},
	}
	store := newFakeStore()
	// a1 already exists unnotified; its eligibility check fails this cycle.
	store.rows["a1"] = &fakeRow{}
	store.checkErr = map[string]error{"a1": errors.New("timeout")}
	sender := &fakeSender{}
	svc, _ := newTestService(src, store, sender, watcher.Config{})

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.CycleResult{New: 1, Notified: 1, Skipped: 0}, result)
	assert.Equal(t, []string{"a2"}, sender.sentIDs)
}

func TestExistingPendingListingIsEligible(t *testing.T) {
	src := &fakeSource{
		listings: []source.Summary{{ID: "a1", Slug: "s1", Type: "bounty", Title: "Seen before"}},
	}
	store := newFakeStore()
	store.rows["a1"] = &fakeRow{} // seen in an earlier cycle, never notified
	sender := &fakeSender{}
	svc, _ := newTestService(src, store, sender, watcher.Config{})

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.CycleResult{New: 0, Notified: 1, Skipped: 0}, result)
	assert.Equal(t, []string{"a1"}, sender.sentIDs)
}

func TestForceCycleReportsAlreadyRunning(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{fetchGate: gate}
	svc, _ := newTestService(src, newFakeStore(), &fakeSender{}, watcher.Config{ForceCooldown: time.Minute})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunCycle(context.Background())
	}()

	// Wait until the scheduled cycle is inside FetchListings.
	require.Eventually(t, func() bool { return src.fetchCalls > 0 }, time.Second, time.Millisecond)

	_, err := svc.ForceCycle(context.Background())
	assert.ErrorIs(t, err, watcher.ErrCycleRunning)

	close(gate)
	<-done
}

func TestForceCycleCooldown(t *testing.T) {
	src := &fakeSource{}
	svc, _ := newTestService(src, newFakeStore(), &fakeSender{}, watcher.Config{ForceCooldown: time.Minute})

	_, err := svc.ForceCycle(context.Background())
	require.NoError(t, err)

	_, err = svc.ForceCycle(context.Background())
	var cooldownErr *watcher.CooldownError
	require.ErrorAs(t, err, &cooldownErr)
	assert.Positive(t, cooldownErr.Remaining)
}

func TestScheduledCycleIgnoresForceCooldown(t *testing.T) {
	src := &fakeSource{}
	svc, _ := newTestService(src, newFakeStore(), &fakeSender{}, watcher.Config{ForceCooldown: time.Minute})

	_, err := svc.ForceCycle(context.Background())
	require.NoError(t, err)

	// The periodic path is not subject to the force cooldown.
	_, err = svc.RunCycle(context.Background())
	assert.NoError(t, err)
}

func TestMarkNotifiedFailureStillCountsSend(t *testing.T) {
	src := &fakeSource{
		listings: []source.Summary{{ID: "a1", Slug: "s1", Type: "bounty", Title: "Build X"}},
	}
	store := newFakeStore()
	store.markErr = map[string]error{"a1": errors.New("write failed")}
	sender := &fakeSender{}
	svc, _ := newTestService(src, store, sender, watcher.Config{})

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	// The message went out, so it counts against the cap even though
	// the mark failed.
	assert.Equal(t, domain.CycleResult{New: 1, Notified: 1, Skipped: 0}, result)
	assert.False(t, store.rows["a1"].notified)
}
