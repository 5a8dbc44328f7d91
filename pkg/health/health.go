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

// Package health scores a machine snapshot and picks a single headline
// advisory for it.
package health

import (
	"github.com/carverauto/fleetwatch/pkg/models"
)

const (
	maxScore = 100

	criticalThreshold = 50
	warningThreshold  = 80

	optimalMessage = "System is running at peak efficiency. No hardware upgrades needed at this time."
)

// penalty is one branch of a metric family. Within a family only the first
// matching branch applies.
type penalty struct {
	threshold float64
	points    int
	reason    string
}

type family struct {
	value    func(*models.MachineSnapshot) float64
	branches []penalty
}

//nolint:gochecknoglobals // fixed scoring table
var scoreFamilies = []family{
	{
		value: func(s *models.MachineSnapshot) float64 { return s.CPUPercent },
		branches: []penalty{
			{threshold: 90, points: 20, reason: "Critical CPU Load"},
			{threshold: 70, points: 10, reason: "High CPU Load"},
		},
	},
	{
		value: func(s *models.MachineSnapshot) float64 { return s.RAMPercent },
		branches: []penalty{
			{threshold: 90, points: 20, reason: "Critical RAM Usage"},
			{threshold: 80, points: 10, reason: "High RAM Usage"},
		},
	},
	{
		value: func(s *models.MachineSnapshot) float64 { return s.DiskPercent },
		branches: []penalty{
			{threshold: 90, points: 15, reason: "Disk Near Full"},
		},
	},
}

// ReasonOffline is reported for any machine whose status is not online.
const ReasonOffline = "Machine Offline"

// Evaluate computes the health assessment of a snapshot. It is pure and safe
// for concurrent use.
func Evaluate(snapshot *models.MachineSnapshot) models.HealthAssessment {
	score, reasons := Score(snapshot)

	return models.HealthAssessment{
		Score:    score,
		Status:   Tier(score),
		Reasons:  reasons,
		Advisory: Advise(snapshot),
	}
}

// Score returns the 0-100 score and the ordered penalty reasons.
func Score(snapshot *models.MachineSnapshot) (int, []string) {
	score := maxScore
	reasons := make([]string, 0, len(scoreFamilies)+1)

	for _, f := range scoreFamilies {
		v := f.value(snapshot)

		for _, b := range f.branches {
			if v > b.threshold {
				score -= b.points
				reasons = append(reasons, b.reason)

				break
			}
		}
	}

	if snapshot.Status == models.MachineOffline {
		score = 0
		reasons = append(reasons, ReasonOffline)
	}

	return score, reasons
}

// Tier maps a score to its tier. Boundaries are exclusive: 80 is EXCELLENT
// and 50 is WARNING.
func Tier(score int) models.HealthTier {
	switch {
	case score < criticalThreshold:
		return models.HealthCritical
	case score < warningThreshold:
		return models.HealthWarning
	default:
		return models.HealthExcellent
	}
}
