// Package watcher implements the fetch -> store -> filter -> notify
// cycle over Earn listings, with idempotent notification state
// tracking and a per-run notification cap.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"earnwatch/internal/domain"
	"earnwatch/internal/logger"
	"earnwatch/internal/source"
)

// Config holds the orchestrator settings.
type Config struct {
	// MaxNotifsPerRun caps how many notifications a single cycle may
	// send before deferring the rest to the next cycle.
	MaxNotifsPerRun int

	// ForceCooldown is the minimum gap between operator-forced runs.
	ForceCooldown time.Duration
}

// Service orchestrates one bounded unit of work per cycle: pull a
// batch from the source, upsert each item, filter by region, notify,
// and record success back into the store.
type Service struct {
	source  ListingSource
	store   ListingStore
	sender  Sender
	metrics MetricsTracker
	cfg     Config
	logger  logger.Logger
	state   *RunState

	// runMu serializes cycles: the scheduled loop blocks on it, a
	// forced run try-locks it. Held for the whole cycle, it is the
	// {Idle, Running} state machine.
	runMu       sync.Mutex
	forceMu     sync.Mutex
	lastForceAt time.Time
}

// NewService creates the cycle orchestrator.
func NewService(src ListingSource, store ListingStore, sender Sender, metrics MetricsTracker, cfg Config, log logger.Logger) *Service {
	return &Service{
		source:  src,
		store:   store,
		sender:  sender,
		metrics: metrics,
		cfg:     cfg,
		logger:  log,
		state:   NewRunState(),
	}
}

// State returns the shared run state for read-only consumers.
func (s *Service) State() *RunState {
	return s.state
}

// RunCycle executes one full cycle, waiting for any in-flight cycle to
// finish first. Used by the scheduled loop.
func (s *Service) RunCycle(ctx context.Context) (domain.CycleResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.cycle(ctx)
}

// ForceCycle executes one cycle out-of-band for an operator. It never
// queues: when a cycle is in flight it returns ErrCycleRunning, and
// within the cooldown window after a previous forced run it returns a
// CooldownError with the remaining wait.
func (s *Service) ForceCycle(ctx context.Context) (domain.CycleResult, error) {
	if !s.runMu.TryLock() {
		return domain.CycleResult{}, ErrCycleRunning
	}
	defer s.runMu.Unlock()

	s.forceMu.Lock()
	if !s.lastForceAt.IsZero() {
		if remaining := s.cfg.ForceCooldown - time.Since(s.lastForceAt); remaining > 0 {
			s.forceMu.Unlock()
			return domain.CycleResult{}, &CooldownError{Remaining: remaining}
		}
	}
	s.forceMu.Unlock()

	defer func() {
		s.forceMu.Lock()
		s.lastForceAt = time.Now()
		s.forceMu.Unlock()
	}()

	return s.cycle(ctx)
}

// cycle runs a single pass. Only a batch-fetch failure aborts it; any
// per-item failure affects that item alone. Callers hold runMu.
func (s *Service) cycle(ctx context.Context) (domain.CycleResult, error) {
	log := s.logger.With(logger.String("cycle_id", uuid.New().String()))
	start := time.Now()
	s.state.markCheck()

	var result domain.CycleResult

	listings, err := s.source.FetchListings(ctx)
	if err != nil {
		s.state.setError(err)
		log.Error("listing fetch failed, aborting cycle", logger.Error(err))
		return result, fmt.Errorf("fetch listings: %w", err)
	}

	if len(listings) == 0 {
		log.Info("no listings returned from API")
		s.finishCycle(ctx, log, result, start)
		return result, nil
	}

	log.Info("fetched listings", logger.Int("count", len(listings)))

	for i := range listings {
		if result.Notified >= s.cfg.MaxNotifsPerRun {
			// Remaining items are deferred, not lost: their
			// notified_at stays null and the next cycle picks
			// them up.
			log.Info("per-run notification cap reached",
				logger.Int("cap", s.cfg.MaxNotifsPerRun),
				logger.Int("deferred", len(listings)-i),
			)
			break
		}
		s.processListing(ctx, log, listings[i], &result)
	}

	s.finishCycle(ctx, log, result, start)
	return result, nil
}

func (s *Service) finishCycle(ctx context.Context, log logger.Logger, result domain.CycleResult, start time.Time) {
	s.state.markSuccess()
	if s.metrics != nil {
		s.metrics.RecordCycle(ctx, result)
	}
	log.Info("cycle completed",
		logger.Int("new", result.New),
		logger.Int("notified", result.Notified),
		logger.Int("skipped", result.Skipped),
		logger.Duration("duration", time.Since(start)),
	)
}

// processListing walks one item through the per-item state machine:
// detail fetch -> normalise -> upsert -> eligibility -> filter -> send.
func (s *Service) processListing(ctx context.Context, log logger.Logger, item source.Summary, result *domain.CycleResult) {
	if item.Slug == "" {
		// Malformed item: counts toward nothing and never touches
		// the store.
		log.Debug("skipping listing without slug", logger.String("title", item.Title))
		return
	}

	detail := s.source.FetchDetail(ctx, item.Slug)
	listing := s.source.Normalise(item, detail)

	isNew, err := s.store.Upsert(ctx, listing)
	if err != nil {
		// Row state unknown: do not notify this round rather than
		// risk a duplicate send. The next cycle re-observes it.
		log.Error("listing upsert failed",
			logger.String("listing_id", listing.ID),
			logger.Error(err),
		)
		return
	}
	if isNew {
		result.New++
	}

	eligible := isNew
	if !eligible {
		pending, checkErr := s.store.NeedsNotification(ctx, listing.ID)
		if checkErr != nil {
			log.Error("notification state check failed",
				logger.String("listing_id", listing.ID),
				logger.Error(checkErr),
			)
			return
		}
		eligible = pending
	}
	if !eligible {
		return
	}

	if !domain.IsGlobalRegion(listing.Region) {
		result.Skipped++
		log.Debug("suppressed region-restricted listing",
			logger.String("listing_id", listing.ID),
			logger.String("region", *listing.Region),
			logger.String("title", listing.Title),
		)
		return
	}

	if !s.sender.Send(ctx, listing) {
		// notified_at stays null; the next cycle retries.
		return
	}
	result.Notified++

	if err := s.store.MarkNotified(ctx, listing.ID); err != nil {
		// The message went out; on the next cycle this row still
		// reads as pending and may be sent again. At-least-once is
		// the accepted failure mode here.
		log.Error("failed to mark listing notified",
			logger.String("listing_id", listing.ID),
			logger.Error(err),
		)
	}
}
