// Package telegram is a thin client for the two Bot API methods the
// watcher needs: sendMessage for outgoing notifications and replies,
// and getUpdates for the operator command long-poll.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"earnwatch/internal/logger"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

const (
	// sendTimeout bounds a single sendMessage call.
	sendTimeout = 15 * time.Second

	// pollMargin is added on top of the long-poll wait so the HTTP
	// request outlives the server-side hold.
	pollMargin = 5 * time.Second

	// maxErrorBodyBytes caps how much of an error response is kept
	// for logging.
	maxErrorBodyBytes = 512
)

// ParseModeHTML requests Telegram's HTML rendering for a message.
const ParseModeHTML = "HTML"

// Update is one entry from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming chat message.
type Message struct {
	Text string `json:"text"`
	Chat Chat   `json:"chat"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Client calls the Telegram Bot API for a single bot token.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  logger.Logger
}

// NewClient creates a client against the production Bot API.
func NewClient(token string, log logger.Logger) *Client {
	return NewClientWithBaseURL(DefaultBaseURL, token, log)
}

// NewClientWithBaseURL creates a client against a custom API base URL.
// Used by tests to point at a local server.
func NewClientWithBaseURL(baseURL, token string, log logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		// No client-level timeout: getUpdates holds the connection
		// for the long-poll wait, so deadlines come from contexts.
		client: &http.Client{},
		logger: log,
	}
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// SendMessage delivers a text message to a chat. Web page previews are
// disabled so listing links stay compact. A non-OK API response is
// returned as an error.
func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendMessage payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	apiResp, err := decodeResponse(resp)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("sendMessage rejected: %s", apiResp.Description)
	}
	return nil
}

// GetUpdates long-polls for incoming messages after the given offset.
// The server holds the request up to wait; the HTTP deadline adds a
// small margin on top so a healthy long poll is never cut short.
func (c *Client) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(int(wait.Seconds())))
	params.Set("allowed_updates", `["message"]`)
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	reqCtx, cancel := context.WithTimeout(ctx, wait+pollMargin)
	defer cancel()

	reqURL := c.methodURL("getUpdates") + "?" + params.Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create getUpdates request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	defer resp.Body.Close()

	apiResp, err := decodeResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("getUpdates rejected: %s", apiResp.Description)
	}

	var updates []Update
	if err = json.Unmarshal(apiResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func decodeResponse(resp *http.Response) (*apiResponse, error) {
	var apiResp apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("status %d: decode response: %w", resp.StatusCode, err)
	}
	if apiResp.Description == "" && resp.StatusCode != http.StatusOK {
		apiResp.Description = "status " + strconv.Itoa(resp.StatusCode)
	}
	return &apiResp, nil
}
