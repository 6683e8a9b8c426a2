// ABOUTME: Reconnecting SSE client for the gateway's narration channel.
// ABOUTME: One logical session per channel: session id handshake, narration events, health probe.

package status

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/2389/parley/internal/api"
)

// State is the connection state of the narration channel.
type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Config holds channel timing and transport settings.
type Config struct {
	BaseURL string
	Token   string

	// InitialBackoff doubles per reconnect attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MaxAttempts bounds consecutive reconnect attempts. Exhausting it closes
	// the channel for good; the in-flight request is unaffected.
	MaxAttempts int

	// HealthInterval is how often the session is probed; zero disables probing.
	HealthInterval time.Duration

	HTTPClient *http.Client
}

// Channel is one logical narration session. It carries no data required for
// correctness: if it never connects, the request it narrates still completes
// over the main exchange. All channel failures are logged, never returned.
type Channel struct {
	cfg         Config
	logger      *slog.Logger
	onNarration func(string)

	mu           sync.Mutex
	state        State
	sessionID    string
	sessionReady chan struct{}
	connCancel   context.CancelFunc

	rootCtx    context.Context
	rootCancel context.CancelFunc
	done       chan struct{}
}

// Open starts a channel and begins connecting immediately. onNarration is
// invoked for each narration event in arrival order; consumers keep only the
// latest. Pass nil logger for slog.Default.
func Open(cfg Config, onNarration func(string), logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		cfg:          cfg,
		logger:       logger.With("component", "status"),
		onNarration:  onNarration,
		state:        StateConnecting,
		sessionReady: make(chan struct{}),
		rootCtx:      ctx,
		rootCancel:   cancel,
		done:         make(chan struct{}),
	}

	go c.run()
	if cfg.HealthInterval > 0 {
		go c.healthLoop()
	}
	return c
}

// SessionID waits for the session-identifier handshake, bounded by ctx.
// Returns false when the channel has not produced a session id in time; the
// caller proceeds without narration rather than blocking the turn.
func (c *Channel) SessionID(ctx context.Context) (string, bool) {
	select {
	case <-c.sessionReady:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.sessionID, true
	case <-ctx.Done():
		return "", false
	case <-c.rootCtx.Done():
		return "", false
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears the channel down deterministically. Safe to call repeatedly
// and from any state.
func (c *Channel) Close() {
	c.rootCancel()
	<-c.done
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = s
	}
	c.mu.Unlock()
}

// kick aborts the current connection, forcing the run loop to recreate it
// ahead of visible socket failure. Used by the health probe.
func (c *Channel) kick() {
	c.mu.Lock()
	cancel := c.connCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run drives the connect/reconnect state machine until the channel closes or
// the reconnect bound is exhausted.
func (c *Channel) run() {
	defer close(c.done)
	defer c.setStateClosed()

	reconnects := 0
	for {
		if c.rootCtx.Err() != nil {
			return
		}

		connCtx, cancel := context.WithCancel(c.rootCtx)
		c.mu.Lock()
		c.connCancel = cancel
		c.mu.Unlock()

		opened, err := c.stream(connCtx)
		kicked := connCtx.Err() != nil && c.rootCtx.Err() == nil
		cancel()

		if c.rootCtx.Err() != nil {
			return
		}

		if err != nil {
			c.logger.Warn("narration channel dropped", "opened", opened, "error", err)
		}

		if kicked {
			// Health probe forced a teardown; recreate immediately.
			reconnects = 0
			c.setState(StateReconnecting)
			continue
		}

		if opened {
			// A connection that actually opened resets the failure budget.
			reconnects = 0
		}

		if reconnects >= c.cfg.MaxAttempts {
			c.logger.Warn("narration channel reconnect bound exhausted",
				"attempts", reconnects)
			return
		}

		delay := Backoff(c.cfg.InitialBackoff, c.cfg.MaxBackoff, reconnects)
		reconnects++
		c.setState(StateReconnecting)

		select {
		case <-time.After(delay):
		case <-c.rootCtx.Done():
			return
		}
	}
}

func (c *Channel) setStateClosed() {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

// stream opens one SSE connection and consumes events until it fails or is
// cancelled. Returns whether the connection actually opened.
func (c *Channel) stream(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+api.PathStatusStream, nil)
	if err != nil {
		return false, fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("connecting narration channel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("narration channel returned status %d", resp.StatusCode)
	}

	c.setState(StateOpen)
	c.logger.Debug("narration channel open")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var dataLines []string
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		}
		if line != "" {
			// event:/id:/comment lines carry nothing we use
			continue
		}
		if len(dataLines) == 0 {
			continue
		}

		payload := strings.Join(dataLines, "\n")
		dataLines = nil
		c.handleEvent(payload)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return true, fmt.Errorf("reading narration stream: %w", err)
	}
	return true, nil
}

func (c *Channel) handleEvent(payload string) {
	var event api.StatusEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		c.logger.Debug("ignoring malformed status event", "error", err)
		return
	}
	if event.Type != api.StatusEventType {
		return
	}

	if event.SessionID != "" {
		c.mu.Lock()
		if c.sessionID == "" {
			c.sessionID = event.SessionID
			close(c.sessionReady)
			c.logger.Debug("narration session established", "session_id", event.SessionID)
		}
		c.mu.Unlock()
		return
	}

	if event.Message != "" && c.onNarration != nil {
		c.onNarration(event.Message)
	}
}

// healthLoop probes session validity periodically. An invalid session forces
// an immediate teardown-and-recreate of the stream connection.
func (c *Channel) healthLoop() {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.rootCtx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			sessionID := c.sessionID
			c.mu.Unlock()
			if sessionID == "" {
				continue
			}
			if !c.probe(sessionID) {
				c.logger.Debug("session reported invalid, recreating channel")
				c.kick()
			}
		}
	}
}

// probe returns false only on an explicit invalid-session answer; transport
// errors are treated as valid so a flaky health endpoint cannot churn the
// stream.
func (c *Channel) probe(sessionID string) bool {
	ctx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+api.PathStatusHealth, nil)
	if err != nil {
		return true
	}
	req.Header.Set(api.SessionHeader, sessionID)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		c.logger.Debug("health probe failed", "error", err)
		return true
	}
	defer resp.Body.Close()

	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return true
	}
	return health.SessionValid
}
