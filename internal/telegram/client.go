package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"

	// pollTimeout is the server-side long-poll hold, in seconds.
	pollTimeout = 120

	maxSendAttempts = 5
	sendRetryDelay  = 5 * time.Second
)

// Client is a minimal Bot API client: long-poll retrieval and message
// delivery, nothing more.
type Client struct {
	base       string
	httpClient *http.Client
	retryDelay time.Duration
}

// New creates a client for the bot identified by token.
func New(baseURL, token string) *Client {
	return &Client{
		base: baseURL + "/bot" + token,
		// The client-side timeout must outlast the server-side long-poll
		// hold.
		httpClient: &http.Client{Timeout: 200 * time.Second},
		retryDelay: sendRetryDelay,
	}
}

// GetUpdates long-polls for updates with ids greater than or equal to
// offset. An empty batch after the server-side hold elapses is not an error.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	v := url.Values{}
	v.Set("timeout", strconv.Itoa(pollTimeout))
	v.Set("offset", strconv.FormatInt(offset, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/getUpdates", strings.NewReader(v.Encode()))
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	defer resp.Body.Close()

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("getUpdates: decode response: %w", err)
	}
	if !r.OK {
		return nil, fmt.Errorf("getUpdates: server replied not ok (status %d)", resp.StatusCode)
	}

	var updates []Update
	if err := json.Unmarshal(r.Result, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: decode result: %w", err)
	}
	return updates, nil
}

// SendMessage delivers text to a chat, retrying transient failures a bounded
// number of times before giving up. Persistent failure surfaces as an error
// after the last attempt; it never blocks the caller indefinitely.
func (c *Client) SendMessage(chatID int64, text string) error {
	v := url.Values{}
	v.Set("chat_id", strconv.FormatInt(chatID, 10))
	v.Set("text", text)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		lastErr = c.post("/sendMessage", v)
		if lastErr == nil {
			return nil
		}
		log.Printf("telegram: sendMessage to %d failed (attempt %d/%d): %v",
			chatID, attempt, maxSendAttempts, lastErr)
		if attempt < maxSendAttempts {
			time.Sleep(c.retryDelay)
		}
	}
	return fmt.Errorf("sendMessage: giving up after %d attempts: %w", maxSendAttempts, lastErr)
}

func (c *Client) post(path string, v url.Values) error {
	resp, err := c.httpClient.PostForm(c.base+path, v)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !r.OK {
		return fmt.Errorf("server replied not ok (status %d)", resp.StatusCode)
	}
	return nil
}
