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
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/fleetwatch/pkg/history"
	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultHistoryTimeout  = 15 * time.Second
)

// MachineSource is the registry surface the API reads and mutates.
type MachineSource interface {
	ListVisible() []models.RegistryEntry
	Get(id string) (models.RegistryEntry, bool)
	Dismiss(id string) bool
}

// StatusSource reports upstream stream connection state.
type StatusSource interface {
	Stats() models.StreamStatus
}

type APIServer struct {
	router     *mux.Router
	corsConfig models.CORSConfig
	machines   MachineSource
	status     StatusSource
	history    history.Gateway
	logger     logger.Logger
	viewers    *viewerHub
	changed    chan struct{}
}
