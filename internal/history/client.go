// ABOUTME: HTTP client for the durable conversation history endpoint.
// ABOUTME: Fetched once at session start to seed the message log before the socket opens.

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2389/coven-client/internal/msglog"
)

// Entry is the wire shape of one durable history record.
type Entry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	ToolID    string    `json:"tool_id,omitempty"`
	ToolName  string    `json:"tool_name,omitempty"`
	ToolInput string    `json:"tool_input,omitempty"`
}

// Client fetches conversation history from the gateway HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a history client for the given gateway base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch returns the durable history for a session, oldest first.
func (c *Client) Fetch(ctx context.Context, sessionKey string) ([]msglog.Entry, error) {
	url := fmt.Sprintf("%s/api/sessions/%s/history", c.baseURL, sessionKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("history endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var raw []Entry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}

	entries := make([]msglog.Entry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, toLogEntry(e))
	}
	return entries, nil
}

// toLogEntry maps a history record to a message log entry.
func toLogEntry(e Entry) msglog.Entry {
	kind := msglog.Kind(e.Kind)
	switch kind {
	case msglog.KindMessage, msglog.KindStream, msglog.KindToolUse,
		msglog.KindMetaAgent, msglog.KindError, msglog.KindSystem:
	default:
		kind = msglog.KindMessage
	}

	return msglog.Entry{
		ID:        e.ID,
		Role:      e.Role,
		Content:   e.Content,
		Timestamp: e.Timestamp,
		Kind:      kind,
		ToolID:    e.ToolID,
		ToolName:  e.ToolName,
		ToolInput: e.ToolInput,
	}
}
