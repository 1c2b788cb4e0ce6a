// Package client implements the connection lifecycle a frontend follows:
// authenticate, open the live channel, resync server state, then stay
// live until the link drops and the cycle restarts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"market-live/transport"
)

// State is the synchronizer's connection state. Transitions only move
// forward within one attempt; any failure resets to Disconnected, and a
// fatal auth failure stays there until new credentials arrive.
type State string

const (
	StateDisconnected   State = "DISCONNECTED"
	StateConnecting     State = "CONNECTING"
	StateAuthenticating State = "AUTHENTICATING"
	StateResyncing      State = "RESYNCING"
	StateLive           State = "LIVE"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// ServerSnapshot is what a resync pulls: authoritative state replacing
// anything the client accumulated before the disconnect.
type ServerSnapshot struct {
	TotalUnread   int             `json:"unread"`
	Notifications json.RawMessage `json:"notifications"`
}

// Handler receives live envelopes once the synchronizer reaches Live.
type Handler func(envelope transport.Envelope)

// Synchronizer drives one user's connection to the server. Not safe for
// concurrent Run calls; a frontend owns exactly one.
type Synchronizer struct {
	baseURL  string
	wsURL    string
	tokens   TokenStore
	handler  Handler
	http     *http.Client
	log      *slog.Logger
	state    State
	onState  func(State)
	snapshot ServerSnapshot
}

func NewSynchronizer(baseURL, wsURL string, tokens TokenStore, handler Handler, log *slog.Logger) *Synchronizer {
	return &Synchronizer{
		baseURL: baseURL,
		wsURL:   wsURL,
		tokens:  tokens,
		handler: handler,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
		state:   StateDisconnected,
	}
}

// OnStateChange registers an observer, mainly for the terminal UI and tests.
func (s *Synchronizer) OnStateChange(fn func(State)) {
	s.onState = fn
}

func (s *Synchronizer) State() State {
	return s.state
}

// Snapshot returns the state pulled during the last successful resync.
func (s *Synchronizer) Snapshot() ServerSnapshot {
	return s.snapshot
}

func (s *Synchronizer) transition(next State) {
	s.state = next
	s.log.Info("connection state changed", slog.String("state", string(next)))
	if s.onState != nil {
		s.onState(next)
	}
}

// Login authenticates and stores the token. A synchronizer that holds a
// stale token can skip this and let Run pick it up from the store.
func (s *Synchronizer) Login(email, password string) error {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	resp, err := s.http.Post(s.baseURL+"/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected with status %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("login response: %w", err)
	}
	return s.tokens.Save(body.Token)
}

// Run loops connect, resync, live until the context is canceled. Transient
// failures back off exponentially and retry; an expired or rejected token
// clears the store and returns, since only the user can supply new
// credentials.
func (s *Synchronizer) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.attempt(ctx)
		switch {
		case err == nil:
			// Clean close after a Live session: reconnect promptly.
			backoff = initialBackoff
		case isAuthFailure(err):
			s.log.Warn("authentication rejected, credentials required")
			_ = s.tokens.Clear()
			s.transition(StateDisconnected)
			return err
		default:
			s.log.Warn("connection attempt failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))
			s.transition(StateDisconnected)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

type authError struct{ cause error }

func (e authError) Error() string { return "authentication failed: " + e.cause.Error() }

func isAuthFailure(err error) bool {
	var ae authError
	return errors.As(err, &ae)
}

// attempt runs one full cycle: dial, resync, then pump live events until
// the socket closes.
func (s *Synchronizer) attempt(ctx context.Context) error {
	s.transition(StateConnecting)

	s.transition(StateAuthenticating)
	token, err := s.tokens.Load()
	if err != nil {
		return err
	}
	if token == "" {
		return authError{cause: fmt.Errorf("no stored token")}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, s.wsURL+"?token="+token, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return authError{cause: err}
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	s.transition(StateResyncing)
	if err := s.resync(ctx, token); err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	s.transition(StateLive)
	return s.pump(ctx, conn)
}

// resync pulls the authoritative unread total and notification list. Until
// this succeeds the session never reaches Live, so the UI can never show
// state older than the reconnect.
func (s *Synchronizer) resync(ctx context.Context, token string) error {
	var totals struct {
		Unread int `json:"unread"`
	}
	if err := s.get(ctx, token, "/unread", &totals); err != nil {
		return err
	}

	var notifications struct {
		Notifications json.RawMessage `json:"notifications"`
	}
	if err := s.get(ctx, token, "/notifications", &notifications); err != nil {
		return err
	}

	s.snapshot = ServerSnapshot{
		TotalUnread:   totals.Unread,
		Notifications: notifications.Notifications,
	}
	return nil
}

func (s *Synchronizer) get(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return authError{cause: fmt.Errorf("token rejected on %s", path)}
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, raw)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *Synchronizer) pump(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		var envelope transport.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if envelope.Kind == transport.KindAuthExpired {
			return authError{cause: fmt.Errorf("session expired")}
		}
		if s.handler != nil {
			s.handler(envelope)
		}
	}
}
