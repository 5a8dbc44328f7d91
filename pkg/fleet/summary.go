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

// Package fleet computes fleet-wide aggregates over the visible machines.
package fleet

import (
	"github.com/carverauto/fleetwatch/pkg/models"
)

// Summarize aggregates the online subset of visible. AvgCPU is zero when no
// machine is online.
func Summarize(visible []models.MachineSnapshot) models.FleetSummary {
	summary := models.FleetSummary{VisibleCount: len(visible)}

	var cpuTotal float64

	for i := range visible {
		m := &visible[i]
		if !m.IsOnline() {
			continue
		}

		summary.OnlineCount++
		cpuTotal += m.CPUPercent
		summary.TotalRAMUsed += m.RAMUsed
		summary.TotalNetDown += m.NetRecvSpeed
		summary.TotalNetUp += m.NetSentSpeed
	}

	if summary.OnlineCount > 0 {
		summary.AvgCPU = cpuTotal / float64(summary.OnlineCount)
	}

	return summary
}
