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

// FleetSummary is recomputed on demand from the visible online machines.
type FleetSummary struct {
	AvgCPU       float64 `json:"avg_cpu"`
	TotalRAMUsed float64 `json:"total_ram_used"`
	TotalNetDown float64 `json:"total_net_down"`
	TotalNetUp   float64 `json:"total_net_up"`
	OnlineCount  int     `json:"online_count"`
	VisibleCount int     `json:"visible_count"`
}

// HealthTier classifies a health score.
type HealthTier string

const (
	HealthExcellent HealthTier = "EXCELLENT"
	HealthWarning   HealthTier = "WARNING"
	HealthCritical  HealthTier = "CRITICAL"
)

// AdvisoryTier classifies the advisory message.
type AdvisoryTier string

const (
	AdvisoryOptimal         AdvisoryTier = "OPTIMAL"
	AdvisoryAttentionNeeded AdvisoryTier = "ATTENTION_NEEDED"
	AdvisorySuggestion      AdvisoryTier = "SUGGESTION"
)

// Advisory is the single headline recommendation for a machine.
type Advisory struct {
	Status  AdvisoryTier `json:"status"`
	Message string       `json:"message"`
}

// HealthAssessment is derived per machine and never persisted.
type HealthAssessment struct {
	Score    int        `json:"score"`
	Status   HealthTier `json:"status"`
	Reasons  []string   `json:"reasons"`
	Advisory Advisory   `json:"advisory"`
}

// MachineView pairs a visible machine with its assessment for API consumers.
type MachineView struct {
	MachineSnapshot
	Hidden bool             `json:"hidden"`
	Health HealthAssessment `json:"health"`
}
