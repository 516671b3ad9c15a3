// ABOUTME: Polls the gateway status endpoint after a not-ready close.
// ABOUTME: Owns recovery for provisioning backends so the session manager never storms them.

package readiness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Defaults for the polling schedule.
const (
	DefaultInterval = 3 * time.Second
	DefaultTimeout  = 5 * time.Minute
)

// ErrTimeout is returned when the engine does not report ready in time.
var ErrTimeout = errors.New("engine did not become ready in time")

// statusResponse is the gateway's readiness report.
type statusResponse struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
}

// Poller watches the gateway status endpoint until the remote execution
// environment reports ready. Used when the session socket closes with the
// not-ready code: the connection manager raises that signal instead of
// retrying, and the poller decides when a reconnect is worth attempting.
type Poller struct {
	baseURL  string
	token    string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithTimeout overrides the overall polling budget.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) { p.timeout = d }
}

// NewPoller creates a readiness poller. Pass nil logger for default.
func NewPoller(baseURL, token string, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		token:    token,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With("component", "readiness"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WaitReady blocks until the engine reports ready, the budget runs out, or
// ctx is cancelled. Poll failures are logged and retried; only the budget
// or the context ends the wait.
func (p *Poller) WaitReady(ctx context.Context, sessionKey string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		ready, err := p.check(ctx, sessionKey)
		if err != nil {
			p.logger.Debug("readiness check failed", "error", err)
		} else if ready {
			p.logger.Info("engine ready", "session_key", sessionKey)
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// check performs one status request.
func (p *Poller) check(ctx context.Context, sessionKey string) (bool, error) {
	url := fmt.Sprintf("%s/api/sessions/%s/status", p.baseURL, sessionKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("polling status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("decoding status: %w", err)
	}
	return status.Ready, nil
}
