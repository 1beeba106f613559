// Package transport is the chat client's websocket connection to the socket
// server. It owns the connection.Tracker for that socket: every dial, drop
// and reconnect is reflected there before anything else observes it.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"petchat/internal/chat/metrics"
	"petchat/internal/chat/models"
	"petchat/internal/chat/token"
	"petchat/internal/connection"
	dErrors "petchat/pkg/domain-errors"

	"github.com/gorilla/websocket"
)

const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = 2 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
)

// InboundHandler receives every envelope read from the server. It runs on
// the read goroutine and must not block for long.
type InboundHandler func(ctx context.Context, env *models.Envelope)

// Client is a reconnecting websocket client. Emit is safe for concurrent use.
type Client struct {
	url     string
	token   string
	tracker *connection.Tracker
	dialer  *websocket.Dialer

	logger            *slog.Logger
	metrics           *metrics.Metrics
	inbound           InboundHandler
	reconnectAttempts int
	reconnectDelay    time.Duration
	writeTimeout      time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithInboundHandler sets the callback for server events.
func WithInboundHandler(h InboundHandler) Option {
	return func(c *Client) {
		c.inbound = h
	}
}

// WithReconnect overrides the retry budget. Attempt n waits n*delay.
func WithReconnect(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts >= 0 {
			c.reconnectAttempts = attempts
		}
		if delay > 0 {
			c.reconnectDelay = delay
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// New builds a client for url. tok may be empty for servers without auth.
func New(url, tok string, tracker *connection.Tracker, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "chat url is required")
	}
	if tracker == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "connection tracker is required")
	}
	c := &Client{
		url:               url,
		token:             tok,
		tracker:           tracker,
		dialer:            &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:            slog.Default(),
		reconnectAttempts: defaultReconnectAttempts,
		reconnectDelay:    defaultReconnectDelay,
		writeTimeout:      defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Tracker returns the status tracker this client drives.
func (c *Client) Tracker() *connection.Tracker {
	return c.tracker
}

// Dial opens one connection. The tracker goes connecting, then connected on
// success or disconnected on failure.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeUnavailable, "transport closed")
	}
	c.mu.Unlock()

	c.tracker.MarkConnecting()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", token.BearerHeader(c.token))
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.tracker.MarkDisconnected()
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return dErrors.Wrap(err, dErrors.CodeUnauthorized, "chat server rejected token")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to connect to chat server")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		c.tracker.MarkDisconnected()
		return dErrors.New(dErrors.CodeUnavailable, "transport closed")
	}
	c.conn = conn
	c.mu.Unlock()

	c.tracker.MarkConnected()
	c.logger.InfoContext(ctx, "chat_transport_connected", "url", c.url)
	return nil
}

// Run dials if needed, then reads until ctx is cancelled or Close is
// called. A dropped connection is redialled with linear backoff; Run
// returns an unavailable error once the retry budget is spent, or the
// unauthorized error as soon as the server rejects the token.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if !c.tracker.IsConnected() {
		if err := c.Dial(ctx); err != nil {
			if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
				return err
			}
			if err := c.reconnect(ctx); err != nil {
				return err
			}
		}
	}

	for {
		err := c.readLoop(ctx)
		c.dropConn()
		if c.isClosed() {
			return ctx.Err()
		}
		c.logger.WarnContext(ctx, "chat_transport_disconnected", "error", err)
		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.reconnectAttempts; attempt++ {
		delay := time.Duration(attempt) * c.reconnectDelay
		c.logger.InfoContext(ctx, "chat_transport_reconnecting", "attempt", attempt, "delay_ms", delay.Milliseconds())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		lastErr = c.Dial(ctx)
		if lastErr == nil {
			c.recordReconnect("success")
			return nil
		}
		c.recordReconnect("failure")
		if c.isClosed() {
			return ctx.Err()
		}
		if dErrors.HasCode(lastErr, dErrors.CodeUnauthorized) {
			// A rejected token stays rejected; retrying only hammers the server.
			c.logger.ErrorContext(ctx, "chat_transport_unauthorized", "attempt", attempt)
			return lastErr
		}
	}
	c.logger.ErrorContext(ctx, "chat_transport_gave_up", "attempts", c.reconnectAttempts, "error", lastErr)
	if lastErr == nil {
		return dErrors.New(dErrors.CodeUnavailable, "chat server unreachable")
	}
	return dErrors.Wrap(lastErr, dErrors.CodeUnavailable, "chat server unreachable after retries")
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return dErrors.New(dErrors.CodeUnavailable, "not connected")
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			c.logger.WarnContext(ctx, "chat_transport_bad_frame", "error", err, "sample", string(sample))
			continue
		}
		if c.metrics != nil {
			c.metrics.IncrementReceived(env.Event.String())
		}
		if c.inbound != nil {
			c.inbound(ctx, &env)
		}
	}
}

// Emit writes env as one JSON text frame. It fails with unavailable when the
// socket is not connected.
func (c *Client) Emit(ctx context.Context, env *models.Envelope) error {
	if env == nil {
		return dErrors.New(dErrors.CodeBadRequest, "envelope is required")
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !c.tracker.IsConnected() {
		return dErrors.New(dErrors.CodeUnavailable, "chat transport is not connected")
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to set write deadline")
	}
	if err := conn.WriteJSON(env); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write "+env.Event.String())
	}
	if c.metrics != nil {
		c.metrics.IncrementEmitted(env.Event.String())
	}
	return nil
}

// Close sends a close frame and marks the tracker disconnected. Run returns
// after Close. Further Dial calls fail.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.tracker.MarkDisconnected()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
	// The peer may already be gone; the close frame is best effort.
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return conn.Close()
}

func (c *Client) dropConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.tracker.MarkDisconnected()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) recordReconnect(outcome string) {
	if c.metrics != nil {
		c.metrics.IncrementReconnect(outcome)
	}
}
