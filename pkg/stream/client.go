/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package stream maintains the single persistent connection to the upstream
// telemetry source and hands decoded fleet batches to a handler.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

var (
	errAlreadyStarted = errors.New("stream client already started")
	errClientClosed   = errors.New("stream client closed")
)

// DefaultRetryDelay is the fixed wait between a disconnect and the next
// connection attempt.
const DefaultRetryDelay = 3 * time.Second

// Handler receives every decoded batch, in arrival order, on the read
// goroutine. It must not call Close.
type Handler func(batch []models.MachineSnapshot)

// StateListener is notified after every state change.
type StateListener func(ConnectionState)

type timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timer

func defaultAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Client keeps at most one logical connection open and reconnects after a
// fixed delay. Only one retry timer is ever outstanding.
type Client struct {
	url        string
	handler    Handler
	logger     logger.Logger
	dialer     Dialer
	retryDelay time.Duration
	readLimit  int64
	listeners  []StateListener
	afterFunc  afterFunc
	metrics    *clientMetrics

	mu            sync.Mutex
	state         ConnectionState
	conn          Conn
	retryTimer    timer
	started       bool
	closed        bool
	ctx           context.Context
	cancel        context.CancelFunc
	stopWatch     func() bool
	lastConnected time.Time

	wg   sync.WaitGroup
	done chan struct{}

	attempts  atomic.Uint64
	batches   atomic.Uint64
	malformed atomic.Uint64
}

type Option func(*Client)

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

func WithStateListener(l StateListener) Option {
	return func(c *Client) {
		c.listeners = append(c.listeners, l)
	}
}

// WithReadLimit caps the size of a single inbound message in bytes.
func WithReadLimit(limit int64) Option {
	return func(c *Client) {
		c.readLimit = limit
	}
}

func withAfterFunc(fn afterFunc) Option {
	return func(c *Client) {
		c.afterFunc = fn
	}
}

func NewClient(url string, handler Handler, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		url:        url,
		handler:    handler,
		logger:     log,
		dialer:     &WebsocketDialer{},
		retryDelay: DefaultRetryDelay,
		afterFunc:  defaultAfterFunc,
		state:      StateIdle,
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.metrics = newClientMetrics(url)

	return c
}

// Start launches the first connection attempt and returns immediately.
// Cancelling ctx has the same effect as Close.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return errClientClosed
	}

	if c.started {
		c.mu.Unlock()
		return errAlreadyStarted
	}

	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.stopWatch = context.AfterFunc(ctx, func() { _ = c.Close() })

	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info().Str("url", c.url).Dur("retry_delay", c.retryDelay).Msg("Starting telemetry stream client")

	go func() {
		defer c.wg.Done()

		c.connect()
	}()

	return nil
}

func (c *Client) connect() {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return
	}

	c.stopRetryLocked()
	changed := c.setStateLocked(StateConnecting)
	ctx := c.ctx

	c.mu.Unlock()

	c.notifyState(changed, StateConnecting)

	attempt := c.attempts.Add(1)
	c.metrics.add(c.metrics.attempts)

	conn, err := c.dialer.DialContext(ctx, c.url)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn().
				Err(err).
				Str("url", c.url).
				Uint64("attempt", attempt).
				Dur("retry_in", c.retryDelay).
				Msg("Failed to connect to telemetry stream")
		}

		c.handleDisconnect()

		return
	}

	if c.readLimit > 0 {
		conn.SetReadLimit(c.readLimit)
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		_ = conn.Close()

		return
	}

	c.stopRetryLocked()
	c.conn = conn
	c.lastConnected = time.Now()
	changed = c.setStateLocked(StateConnected)
	c.wg.Add(1)

	c.mu.Unlock()

	c.logger.Info().Str("url", c.url).Uint64("attempt", attempt).Msg("Connected to telemetry stream")
	c.notifyState(changed, StateConnected)

	go c.readLoop(conn)
}

func (c *Client) readLoop(conn Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}

			closed := c.closed
			c.mu.Unlock()

			_ = conn.Close()

			if closed {
				return
			}

			c.logger.Warn().Err(err).Str("url", c.url).Msg("Telemetry stream disconnected")
			c.handleDisconnect()

			return
		}

		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	batch, err := decodeUpdate(data)

	switch {
	case errors.Is(err, errIgnoredMessage):
		c.logger.Debug().Err(err).Msg("Ignoring stream message")
	case err != nil:
		c.malformed.Add(1)
		c.metrics.add(c.metrics.malformed)

		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Discarding malformed stream message")
	default:
		c.batches.Add(1)
		c.metrics.add(c.metrics.batches)

		c.handler(batch)
	}
}

// handleDisconnect schedules the single retry unless one is already pending.
func (c *Client) handleDisconnect() {
	c.metrics.add(c.metrics.failures)

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return
	}

	changed := c.setStateLocked(StateDisconnected)

	if c.retryTimer == nil {
		c.retryTimer = c.afterFunc(c.retryDelay, c.retry)
	}

	c.mu.Unlock()

	c.notifyState(changed, StateDisconnected)
}

func (c *Client) retry() {
	c.mu.Lock()

	c.retryTimer = nil

	if c.closed {
		c.mu.Unlock()
		return
	}

	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()

	c.connect()
}

func (c *Client) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Client) setStateLocked(s ConnectionState) bool {
	if c.state == s {
		return false
	}

	c.state = s

	return true
}

func (c *Client) notifyState(changed bool, s ConnectionState) {
	if !changed {
		return
	}

	for _, l := range c.listeners {
		l(s)
	}
}

// Close tears the client down: the pending retry is cancelled, an in-flight
// dial is aborted and the active connection is closed. No connection attempt
// happens afterwards. Every caller of Close blocks until the read goroutine
// has exited.
func (c *Client) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		<-c.done

		return nil
	}

	c.closed = true
	c.stopRetryLocked()

	conn := c.conn
	c.conn = nil

	changed := c.setStateLocked(StateClosed)
	cancel := c.cancel
	stopWatch := c.stopWatch

	c.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}

	if cancel != nil {
		cancel()
	}

	var err error
	if conn != nil {
		err = conn.Close()
	}

	c.wg.Wait()
	close(c.done)

	c.logger.Info().Str("url", c.url).Msg("Telemetry stream client closed")
	c.notifyState(changed, StateClosed)

	return err
}

func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Stats reports connection counters for status endpoints.
func (c *Client) Stats() models.StreamStatus {
	c.mu.Lock()
	state := c.state
	last := c.lastConnected
	c.mu.Unlock()

	status := models.StreamStatus{
		State:            state.String(),
		URL:              c.url,
		ConnectAttempts:  c.attempts.Load(),
		BatchesApplied:   c.batches.Load(),
		MalformedPayload: c.malformed.Load(),
	}

	if !last.IsZero() {
		status.LastConnected = &last
	}

	return status
}
