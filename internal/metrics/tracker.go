// Package metrics tracks cycle outcome counters. Counters live in
// Redis (with TTL, for operator-facing stats that survive restarts)
// and are mirrored into Prometheus for scraping.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"earnwatch/internal/domain"
	"earnwatch/internal/logger"
)

const (
	// KeyPrefix is the prefix for all watcher metrics keys.
	KeyPrefix = "earnwatch:metrics"

	// KeyLastCycle is the Redis key for the last completed cycle timestamp.
	KeyLastCycle = KeyPrefix + ":last_cycle"

	// CounterTTL bounds how long idle counters linger.
	CounterTTL = 30 * 24 * time.Hour
)

// Tracker records cycle outcomes in Redis. A nil Tracker is valid and
// drops every write, so the pipeline runs unchanged without Redis.
type Tracker struct {
	client redis.UniversalClient
	logger logger.Logger
}

// NewTracker creates a Redis-backed metrics tracker.
func NewTracker(client redis.UniversalClient, log logger.Logger) *Tracker {
	return &Tracker{
		client: client,
		logger: log,
	}
}

func counterKey(name string) string {
	return fmt.Sprintf("%s:%s", KeyPrefix, name)
}

// RecordCycle adds one cycle's counters and refreshes the last-cycle
// timestamp. Failures are logged, never propagated: metrics must not
// affect the notification pipeline.
func (t *Tracker) RecordCycle(ctx context.Context, result domain.CycleResult) {
	observeCycle(result)

	if t == nil || t.client == nil {
		return
	}

	pipe := t.client.Pipeline()
	for name, delta := range map[string]int{
		"cycles":   1,
		"new":      result.New,
		"notified": result.Notified,
		"skipped":  result.Skipped,
	} {
		if delta == 0 && name != "cycles" {
			continue
		}
		key := counterKey(name)
		pipe.IncrBy(ctx, key, int64(delta))
		pipe.Expire(ctx, key, CounterTTL)
	}
	pipe.Set(ctx, KeyLastCycle, time.Now().UTC().Format(time.RFC3339), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Warn("failed to record cycle metrics", logger.Error(err))
	}
}

// Counters returns the accumulated counter values. Missing keys read
// as zero.
func (t *Tracker) Counters(ctx context.Context) (map[string]int64, error) {
	if t == nil || t.client == nil {
		return map[string]int64{}, nil
	}

	names := []string{"cycles", "new", "notified", "skipped"}
	counters := make(map[string]int64, len(names))
	for _, name := range names {
		val, err := t.client.Get(ctx, counterKey(name)).Int64()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("read counter %s: %w", name, err)
		}
		counters[name] = val
	}
	return counters, nil
}

// LastCycleAt returns the timestamp of the last completed cycle, or
// nil when no cycle has been recorded.
func (t *Tracker) LastCycleAt(ctx context.Context) (*time.Time, error) {
	if t == nil || t.client == nil {
		return nil, nil
	}

	raw, err := t.client.Get(ctx, KeyLastCycle).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last cycle timestamp: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("parse last cycle timestamp: %w", err)
	}
	return &ts, nil
}
