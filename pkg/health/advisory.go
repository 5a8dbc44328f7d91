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

package health

import (
	"github.com/carverauto/fleetwatch/pkg/models"
)

// Advise produces the headline advisory. Each family contributes at most one
// issue and one improvement; only the first of each is surfaced.
func Advise(snapshot *models.MachineSnapshot) models.Advisory {
	var issues, improvements []string

	add := func(issue, improvement string) {
		if issue != "" {
			issues = append(issues, issue)
		}

		improvements = append(improvements, improvement)
	}

	switch {
	case snapshot.CPUPercent > 85:
		add("CPU is bottlenecking performance.", "Upgrade Processor (CPU) or reduce background tasks.")
	case snapshot.CPUPercent > 60:
		add("", "Consider upgrading CPU for smoother multitasking.")
	}

	switch {
	case snapshot.RAMPercent > 90:
		add("Critical Memory shortage.", "Immediate RAM upgrade required (add 8GB+).")
	case snapshot.RAMPercent > 75:
		add("", "RAM usage is high. Adding more memory will improve stability.")
	}

	if snapshot.DiskPercent > 90 {
		add("Storage is critically low.", "Free up space or add a new SSD.")
	}

	if snapshot.GPU != nil && snapshot.GPU.Temperature > 85 {
		add("GPU Overheating detected.", "Check cooling system / thermal paste.")
	}

	switch {
	case len(issues) > 0:
		return models.Advisory{
			Status:  models.AdvisoryAttentionNeeded,
			Message: issues[0] + " " + improvements[0],
		}
	case len(improvements) > 0:
		return models.Advisory{
			Status:  models.AdvisorySuggestion,
			Message: improvements[0],
		}
	default:
		return models.Advisory{
			Status:  models.AdvisoryOptimal,
			Message: optimalMessage,
		}
	}
}
