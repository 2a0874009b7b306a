// Package source fetches listing summaries and per-listing detail
// records from the Earn API and normalizes them into canonical
// listing records.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"earnwatch/internal/domain"
	"earnwatch/internal/logger"
)

// listingSiteURL is the public site prefix used to build canonical
// listing URLs. It is distinct from the API base URL.
const listingSiteURL = "https://superteam.fun/listings"

// defaultTab is used when a listing summary carries no type.
const defaultTab = "bounty"

// Summary is one raw item from the listings endpoint.
type Summary struct {
	ID           string   `json:"id"`
	Slug         string   `json:"slug"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	RewardAmount *float64 `json:"rewardAmount"`
	Token        *string  `json:"token"`
	Deadline     *string  `json:"deadline"`
}

// Detail is the per-listing detail record. Only the detail endpoint
// carries the region field.
type Detail struct {
	Region *string `json:"region"`
}

// Client talks to the Earn listings API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

// NewClient creates an Earn API client. All requests share the given
// timeout.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// FetchListings returns the current batch of listing summaries.
//
// Unlike detail fetches, a failure here is returned to the caller: the
// orchestrator treats a failed batch fetch as a cycle abort, which
// keeps "legitimately empty" distinguishable from "fetch failed".
func (c *Client) FetchListings(ctx context.Context) ([]Summary, error) {
	url := c.baseURL + "/listings"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listings endpoint returned status %d", resp.StatusCode)
	}

	var listings []Summary
	if err = json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, fmt.Errorf("decode listings response: %w", err)
	}

	c.logger.Debug("fetched listings",
		logger.String("url", url),
		logger.Int("count", len(listings)),
		logger.Duration("duration", time.Since(start)),
	)
	return listings, nil
}

// FetchDetail returns the full detail record for a listing, or nil on
// any failure. Detail failures are logged and swallowed: a missing
// detail only means the region is unknown, which the pipeline treats
// as unrestricted.
func (c *Client) FetchDetail(ctx context.Context, slug string) *Detail {
	url := fmt.Sprintf("%s/listings/details/%s", c.baseURL, slug)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		c.logger.Warn("create detail request failed",
			logger.String("slug", slug),
			logger.Error(err),
		)
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("fetch detail failed",
			logger.String("slug", slug),
			logger.Error(err),
		)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("detail endpoint returned non-OK status",
			logger.String("slug", slug),
			logger.Int("status_code", resp.StatusCode),
		)
		return nil
	}

	var detail Detail
	if err = json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		c.logger.Warn("decode detail response failed",
			logger.String("slug", slug),
			logger.Error(err),
		)
		return nil
	}

	return &detail
}

// Normalise builds the canonical listing record from a summary and its
// optional detail. The mapping is deterministic and pure: the listing
// id falls back to the slug, the URL is derived from slug and type,
// and the region comes only from the detail record. An absent detail
// leaves the region nil, which counts as global.
func (c *Client) Normalise(item Summary, detail *Detail) domain.Listing {
	tab := item.Type
	if tab == "" {
		tab = defaultTab
	}

	id := item.ID
	if id == "" {
		id = item.Slug
	}

	var region *string
	if detail != nil && detail.Region != nil && strings.TrimSpace(*detail.Region) != "" {
		region = detail.Region
	}

	return domain.Listing{
		ID:           id,
		Tab:          tab,
		Title:        item.Title,
		Slug:         item.Slug,
		URL:          fmt.Sprintf("%s/%s/%s", listingSiteURL, item.Slug, tab),
		Region:       region,
		IsGlobal:     domain.IsGlobalRegion(region),
		RewardAmount: item.RewardAmount,
		RewardToken:  item.Token,
		Deadline:     item.Deadline,
	}
}
