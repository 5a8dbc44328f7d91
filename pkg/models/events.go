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

import "time"

// CloudEvent follows the CloudEvents 1.0 JSON envelope.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// MachineLivenessEvent is the CloudEvent payload for a registry transition.
type MachineLivenessEvent struct {
	Hostname       string        `json:"hostname"`
	PreviousStatus MachineStatus `json:"previous_status,omitempty"`
	CurrentStatus  MachineStatus `json:"current_status"`
	FirstSeen      bool          `json:"first_seen"`
	LastSeen       string        `json:"last_seen,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
