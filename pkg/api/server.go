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

// Package api serves the fleet dashboard API and the viewer stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/fleetwatch/pkg/fleet"
	"github.com/carverauto/fleetwatch/pkg/health"
	"github.com/carverauto/fleetwatch/pkg/history"
	fwHttp "github.com/carverauto/fleetwatch/pkg/http"
	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

var errInvalidRange = errors.New("end must not be before start")

// NewAPIServer creates a new API server instance with the given configuration.
func NewAPIServer(config models.CORSConfig, options ...func(server *APIServer)) *APIServer {
	s := &APIServer{
		router:     mux.NewRouter(),
		corsConfig: config,
		logger:     logger.FromZerolog(logger.WithComponent("api")),
		changed:    make(chan struct{}, 1),
	}

	for _, o := range options {
		o(s)
	}

	s.viewers = newViewerHub(s.logger)

	s.setupRoutes()

	return s
}

func WithMachineSource(m MachineSource) func(server *APIServer) {
	return func(server *APIServer) {
		server.machines = m
	}
}

func WithStreamStatus(st StatusSource) func(server *APIServer) {
	return func(server *APIServer) {
		server.status = st
	}
}

// WithHistoryGateway enables the history endpoint. Without it the endpoint
// answers with an empty series.
func WithHistoryGateway(gw history.Gateway) func(server *APIServer) {
	return func(server *APIServer) {
		server.history = gw
	}
}

func WithLogger(log logger.Logger) func(server *APIServer) {
	return func(server *APIServer) {
		server.logger = log
	}
}

func (s *APIServer) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return fwHttp.CommonMiddleware(next, s.corsConfig, s.logger)
	})

	// Routes live on the root router: a subrouter turns a method mismatch into 404.
	s.router.HandleFunc("/api/machines", s.getMachines).Methods(http.MethodGet)
	s.router.HandleFunc("/api/machines/{id}", s.getMachine).Methods(http.MethodGet)
	s.router.HandleFunc("/api/machines/{id}/health", s.getMachineHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/machines/{id}/dismiss", s.dismissMachine).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/api/machines/{id}/history", s.getMachineHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/api/summary", s.getSummary).Methods(http.MethodGet)
	s.router.HandleFunc("/api/status", s.getStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/stream", s.handleViewerStream).Methods(http.MethodGet)

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, "Not found", http.StatusNotFound)
	})
}

// Handler exposes the router, mostly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.router
}

func (s *APIServer) visibleEntries() []models.RegistryEntry {
	if s.machines == nil {
		return nil
	}

	return s.machines.ListVisible()
}

func machineView(entry *models.RegistryEntry) models.MachineView {
	return models.MachineView{
		MachineSnapshot: entry.Snapshot,
		Hidden:          entry.Hidden,
		Health:          health.Evaluate(&entry.Snapshot),
	}
}

func (s *APIServer) machineViews() ([]models.MachineView, []models.MachineSnapshot) {
	entries := s.visibleEntries()

	views := make([]models.MachineView, 0, len(entries))
	snapshots := make([]models.MachineSnapshot, 0, len(entries))

	for i := range entries {
		views = append(views, machineView(&entries[i]))
		snapshots = append(snapshots, entries[i].Snapshot)
	}

	return views, snapshots
}

func (s *APIServer) streamStatus() models.StreamStatus {
	if s.status == nil {
		return models.StreamStatus{State: "idle"}
	}

	return s.status.Stats()
}

// @Summary Get visible machines
// @Description Visible machines with their health assessment, in first-seen order.
// @Tags Machines
// @Produce json
// @Success 200 {array} models.MachineView
// @Router /api/machines [get]
func (s *APIServer) getMachines(w http.ResponseWriter, _ *http.Request) {
	views, _ := s.machineViews()

	writeJSONResponse(w, views, s.logger)
}

// @Summary Get machine
// @Description One registry entry, hidden or not.
// @Tags Machines
// @Param id path string true "Hostname"
// @Success 200 {object} models.MachineView
// @Failure 404 {object} models.ErrorResponse
// @Router /api/machines/{id} [get]
func (s *APIServer) getMachine(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}

	writeJSONResponse(w, machineView(&entry), s.logger)
}

func (s *APIServer) getMachineHealth(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}

	writeJSONResponse(w, health.Evaluate(&entry.Snapshot), s.logger)
}

func (s *APIServer) lookup(w http.ResponseWriter, r *http.Request) (models.RegistryEntry, bool) {
	id := mux.Vars(r)["id"]

	if s.machines == nil {
		writeError(w, "Machine not found", http.StatusNotFound)
		return models.RegistryEntry{}, false
	}

	entry, ok := s.machines.Get(id)
	if !ok {
		writeError(w, "Machine not found", http.StatusNotFound)
		return models.RegistryEntry{}, false
	}

	return entry, true
}

// @Summary Dismiss machine
// @Description Hides a machine until it reports online again. Unknown ids are a no-op.
// @Tags Machines
// @Param id path string true "Hostname"
// @Success 204
// @Router /api/machines/{id}/dismiss [post]
func (s *APIServer) dismissMachine(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if s.machines != nil && !s.machines.Dismiss(id) {
		s.logger.Debug().Str("hostname", id).Msg("Dismiss had no effect")
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary Get machine history
// @Description Past samples between start and end, oldest first. Failures yield an empty array.
// @Tags Machines
// @Param id path string true "Hostname"
// @Param start query string false "Start time"
// @Param end query string false "End time"
// @Success 200 {array} models.HistorySample
// @Failure 400 {object} models.ErrorResponse
// @Router /api/machines/{id}/history [get]
func (s *APIServer) getMachineHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	start, end, err := parseTimeRange(r.URL.Query())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultHistoryTimeout)
	defer cancel()

	samples := history.FetchOrEmpty(ctx, s.history, s.logger, id, start, end)

	writeJSONResponse(w, samples, s.logger)
}

func (s *APIServer) getSummary(w http.ResponseWriter, _ *http.Request) {
	_, snapshots := s.machineViews()

	writeJSONResponse(w, fleet.Summarize(snapshots), s.logger)
}

func (s *APIServer) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, s.streamStatus(), s.logger)
}

// Start serves until ctx is cancelled, then shuts the server down and closes
// every viewer connection.
func (s *APIServer) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting API server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	s.viewers.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}

func writeJSONResponse(w http.ResponseWriter, data interface{}, log logger.Logger) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// parseTimeRange reads optional start and end query parameters. A missing
// bound stays zero so the history gateway picks its own default.
func parseTimeRange(query url.Values) (start, end time.Time, err error) {
	if v := query.Get("start"); v != "" {
		start, err = history.ParseTimestamp(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start time format: %w", err)
		}
	}

	if v := query.Get("end"); v != "" {
		end, err = history.ParseTimestamp(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end time format: %w", err)
		}
	}

	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, errInvalidRange
	}

	return start, end, nil
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(statusCode)

	errResponse := models.ErrorResponse{
		Message: message,
		Status:  statusCode,
	}

	if err := json.NewEncoder(w).Encode(errResponse); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
