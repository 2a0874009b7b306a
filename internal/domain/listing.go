// Package domain contains the core domain models for the watcher service.
package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// Listing is the canonical, store-ready representation of one listing
// from the Earn API. It is the unit that flows through the whole
// fetch -> store -> filter -> notify pipeline.
type Listing struct {
	ID           string   `db:"id"            json:"id"`
	Tab          string   `db:"tab"           json:"tab"`
	Title        string   `db:"title"         json:"title"`
	Slug         string   `db:"-"             json:"slug"`
	URL          string   `db:"url"           json:"url"`
	Region       *string  `db:"region"        json:"region,omitempty"`
	IsGlobal     bool     `db:"is_global"     json:"is_global"`
	RewardAmount *float64 `db:"-"             json:"reward_amount,omitempty"`
	RewardToken  *string  `db:"-"             json:"reward_token,omitempty"`
	Deadline     *string  `db:"-"             json:"deadline,omitempty"`
}

// StoredListing is the persisted form of a Listing. NotifiedAt is nil
// until a notification for this listing has been confirmed sent; it
// transitions to a timestamp exactly once and never reverts.
type StoredListing struct {
	ID          string     `db:"id"            json:"id"`
	Tab         string     `db:"tab"           json:"tab"`
	Title       string     `db:"title"         json:"title"`
	URL         string     `db:"url"           json:"url"`
	Region      *string    `db:"region"        json:"region,omitempty"`
	IsGlobal    bool       `db:"is_global"     json:"is_global"`
	FirstSeenAt time.Time  `db:"first_seen_at" json:"first_seen_at"`
	LastSeenAt  time.Time  `db:"last_seen_at"  json:"last_seen_at"`
	NotifiedAt  *time.Time `db:"notified_at"   json:"notified_at,omitempty"`
}

// CycleResult holds the outcome counters of one polling cycle.
type CycleResult struct {
	New      int `json:"new"`
	Notified int `json:"notified"`
	Skipped  int `json:"skipped"`
}

// StoreStats holds aggregate numbers over the listings table for
// operator reporting.
type StoreStats struct {
	Total         int64      `json:"total"`
	Notified      int64      `json:"notified"`
	LastFirstSeen *time.Time `json:"last_first_seen,omitempty"`
	LastTitle     *string    `json:"last_title,omitempty"`
	LastTab       *string    `json:"last_tab,omitempty"`
	LastRegion    *string    `json:"last_region,omitempty"`
	LastURL       *string    `json:"last_url,omitempty"`
}

// globalKeywords are region values that mean "no geographic
// restriction". Matching is case-insensitive and whitespace-trimmed.
var globalKeywords = map[string]struct{}{
	"global":    {},
	"worldwide": {},
	"remote":    {},
	"online":    {},
}

// IsGlobalRegion reports whether a listing region carries no
// geographic restriction. A nil or empty region is global; otherwise
// the trimmed, lowercased value must be one of the global keywords.
//
// This predicate is the single source of truth for geographic
// eligibility: both the source normalization (is_global column) and
// the notification filter use it, so the two can not drift apart.
func IsGlobalRegion(region *string) bool {
	if region == nil {
		return true
	}
	r := strings.ToLower(strings.TrimSpace(*region))
	if r == "" {
		return true
	}
	_, ok := globalKeywords[r]
	return ok
}
