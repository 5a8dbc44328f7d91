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

package models

import (
	"encoding/json"
	"time"
)

// MessageTypeUpdate tags a stream message carrying a full fleet batch.
const MessageTypeUpdate = "update"

// StreamMessage is the envelope used on both the upstream telemetry stream and
// the viewer stream.
type StreamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ViewerUpdate is the payload pushed to dashboard viewers after every change.
type ViewerUpdate struct {
	Machines  []MachineView `json:"machines"`
	Summary   FleetSummary  `json:"summary"`
	Connected bool          `json:"connected"`
	Timestamp time.Time     `json:"timestamp"`
}

// StreamStatus exposes connection health of the upstream stream client.
type StreamStatus struct {
	State            string     `json:"state"`
	URL              string     `json:"url"`
	ConnectAttempts  uint64     `json:"connect_attempts"`
	BatchesApplied   uint64     `json:"batches_applied"`
	MalformedPayload uint64     `json:"malformed_payloads"`
	LastConnected    *time.Time `json:"last_connected,omitempty"`
}

// ErrorResponse is the JSON body returned on API errors.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}
