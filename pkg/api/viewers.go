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

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/fleetwatch/pkg/fleet"
	fwHttp "github.com/carverauto/fleetwatch/pkg/http"
	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

const (
	viewerWriteTimeout = 10 * time.Second
	viewerPongWait     = 60 * time.Second
	viewerPingInterval = 30 * time.Second
)

// viewer holds at most one pending payload. A newer update replaces an unsent
// one, so a slow viewer only ever misses intermediate states.
type viewer struct {
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

type viewerHub struct {
	mu      sync.Mutex
	viewers map[*viewer]struct{}
	logger  logger.Logger
}

func newViewerHub(log logger.Logger) *viewerHub {
	return &viewerHub{
		viewers: make(map[*viewer]struct{}),
		logger:  log,
	}
}

func (h *viewerHub) add(v *viewer) {
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()
}

func (h *viewerHub) remove(v *viewer) {
	h.mu.Lock()
	delete(h.viewers, v)
	h.mu.Unlock()
}

func (h *viewerHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.viewers)
}

func (h *viewerHub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for v := range h.viewers {
		v.offer(payload)
	}
}

func (h *viewerHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for v := range h.viewers {
		v.cancel()
	}
}

func (v *viewer) offer(payload []byte) {
	select {
	case v.send <- payload:
		return
	default:
	}

	select {
	case <-v.send:
	default:
	}

	select {
	case v.send <- payload:
	default:
	}
}

// NotifyChange schedules a viewer update. It never blocks and coalesces
// bursts into one push, so it is safe to call from a registry subscriber.
func (s *APIServer) NotifyChange() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Run pushes an update to every viewer after each NotifyChange until ctx is
// cancelled.
func (s *APIServer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.viewers.closeAll()

			return nil
		case <-s.changed:
			if s.viewers.count() == 0 {
				continue
			}

			payload, err := s.viewerPayload()
			if err != nil {
				s.logger.Error().Err(err).Msg("Failed to build viewer update")

				continue
			}

			s.viewers.broadcast(payload)
		}
	}
}

func (s *APIServer) viewerPayload() ([]byte, error) {
	views, snapshots := s.machineViews()

	update := models.ViewerUpdate{
		Machines:  views,
		Summary:   fleet.Summarize(snapshots),
		Connected: s.streamStatus().State == "connected",
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal viewer update: %w", err)
	}

	payload, err := json.Marshal(models.StreamMessage{Type: models.MessageTypeUpdate, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal viewer message: %w", err)
	}

	return payload, nil
}

func (s *APIServer) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if fwHttp.OriginAllowed(s.corsConfig, origin) {
		return true
	}

	s.logger.Warn().Str("origin", origin).Msg("WebSocket connection rejected: origin not allowed")

	return false
}

// handleViewerStream upgrades to a websocket and pushes the current fleet
// state on connect and after every change. Payloads are produced by Run,
// which must be running.
func (s *APIServer) handleViewerStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkWebSocketOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("origin", r.Header.Get("Origin")).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	v := &viewer{
		conn:   conn,
		send:   make(chan []byte, 1),
		ctx:    ctx,
		cancel: cancel,
	}

	s.viewers.add(v)

	s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Viewer connected")

	defer func() {
		s.viewers.remove(v)
		cancel()

		_ = conn.Close()

		s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Viewer disconnected")
	}()

	// The first payload also comes from Run so it can never overwrite a newer one.
	s.NotifyChange()

	go s.readViewer(v)

	s.writeViewer(v)
}

// readViewer discards client frames; it exists to process control frames and
// notice disconnects.
func (s *APIServer) readViewer(v *viewer) {
	defer v.cancel()

	_ = v.conn.SetReadDeadline(time.Now().Add(viewerPongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(viewerPongWait))
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("Viewer read error")
			}

			return
		}
	}
}

func (s *APIServer) writeViewer(v *viewer) {
	ticker := time.NewTicker(viewerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.ctx.Done():
			_ = v.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))

			return
		case payload := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(viewerWriteTimeout))

			if err := v.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to write viewer update")

				return
			}
		case <-ticker.C:
			if err := v.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(viewerWriteTimeout)); err != nil {
				return
			}
		}
	}
}
