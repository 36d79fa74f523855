// Package swarm implements the satellite relay client for the Swarm Hive
// API. Hive authenticates with a form-encoded login that issues a session
// cookie, then serves undelivered messages as JSON with base64 payloads.
package swarm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/viu-hydromet/wx-ingest/internal/domain"
)

// ErrAuthentication marks a rejected login or an expired session. The run
// is aborted rather than retried with the same credentials.
var ErrAuthentication = errors.New("swarm authentication failed")

// Client talks to a Swarm Hive relay. It implements
// pipeline.MessageFetcher.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Hive client. The session cookie issued at login is
// carried by the client's cookie jar.
func NewClient(baseURL, username, password string, timeout time.Duration, logger *slog.Logger) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		logger: logger,
	}
}

// Login establishes a Hive session. A non-200 response means bad
// credentials and returns ErrAuthentication.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"username": {c.username},
		"password": {c.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // body content is irrelevant

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAuthentication, resp.StatusCode)
	}

	c.logger.Info("swarm session established", "base_url", c.baseURL)
	return nil
}

// hiveMessage mirrors one element of the Hive messages response.
type hiveMessage struct {
	PacketID   int64  `json:"packetId"`
	Data       string `json:"data"`
	HiveRxTime string `json:"hiveRxTime"`
}

// FetchMessages pulls up to count undelivered messages, newest first as
// the relay serves them. Messages without a data payload or with
// undecodable base64 are skipped with a warning.
func (c *Client) FetchMessages(ctx context.Context, count int) ([]domain.RawMessage, error) {
	u := fmt.Sprintf("%s/api/v1/messages?%s", c.baseURL, url.Values{
		"count":  {fmt.Sprint(count)},
		"status": {"0"},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create messages request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messages request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", ErrAuthentication, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("hive API error: status %d: %s", resp.StatusCode, body)
	}

	var hiveMsgs []hiveMessage
	if err := json.NewDecoder(resp.Body).Decode(&hiveMsgs); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}

	messages := make([]domain.RawMessage, 0, len(hiveMsgs))
	for _, hm := range hiveMsgs {
		if hm.Data == "" {
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(hm.Data)
		if err != nil {
			c.logger.Warn("skipping message with undecodable payload",
				"packet_id", hm.PacketID, "error", err)
			continue
		}
		messages = append(messages, domain.RawMessage{
			ID:          hm.PacketID,
			Payload:     string(payload),
			ReceiptTime: parseRxTime(hm.HiveRxTime),
		})
	}
	return messages, nil
}

// parseRxTime handles the two timestamp shapes Hive has been seen to
// emit. A zero time is fine: the payload carries the authoritative
// reading time.
func parseRxTime(raw string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
