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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carverauto/fleetwatch/pkg/models"
)

func snapshot(status models.MachineStatus, cpu, ram, disk float64) *models.MachineSnapshot {
	return &models.MachineSnapshot{
		Hostname: "host-1",
		Status:   status,
		MachineMetrics: models.MachineMetrics{
			CPUPercent:  cpu,
			RAMPercent:  ram,
			DiskPercent: disk,
		},
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		snapshot   *models.MachineSnapshot
		wantScore  int
		wantTier   models.HealthTier
		wantReason []string
	}{
		{
			name:       "healthy",
			snapshot:   snapshot(models.MachineOnline, 10, 10, 10),
			wantScore:  100,
			wantTier:   models.HealthExcellent,
			wantReason: []string{},
		},
		{
			name:       "critical cpu lands exactly on excellent boundary",
			snapshot:   snapshot(models.MachineOnline, 95, 50, 10),
			wantScore:  80,
			wantTier:   models.HealthExcellent,
			wantReason: []string{"Critical CPU Load"},
		},
		{
			name:       "high cpu and high ram",
			snapshot:   snapshot(models.MachineOnline, 75, 85, 10),
			wantScore:  80,
			wantTier:   models.HealthExcellent,
			wantReason: []string{"High CPU Load", "High RAM Usage"},
		},
		{
			name:       "thresholds are exclusive",
			snapshot:   snapshot(models.MachineOnline, 70, 80, 90),
			wantScore:  100,
			wantTier:   models.HealthExcellent,
			wantReason: []string{},
		},
		{
			name:       "everything critical",
			snapshot:   snapshot(models.MachineOnline, 99, 99, 99),
			wantScore:  45,
			wantTier:   models.HealthCritical,
			wantReason: []string{"Critical CPU Load", "Critical RAM Usage", "Disk Near Full"},
		},
		{
			name:       "warning tier",
			snapshot:   snapshot(models.MachineOnline, 95, 95, 10),
			wantScore:  60,
			wantTier:   models.HealthWarning,
			wantReason: []string{"Critical CPU Load", "Critical RAM Usage"},
		},
		{
			name:       "offline forces zero",
			snapshot:   snapshot(models.MachineOffline, 0, 0, 0),
			wantScore:  0,
			wantTier:   models.HealthCritical,
			wantReason: []string{ReasonOffline},
		},
		{
			name:       "offline keeps earlier reasons",
			snapshot:   snapshot(models.MachineOffline, 95, 10, 95),
			wantScore:  0,
			wantTier:   models.HealthCritical,
			wantReason: []string{"Critical CPU Load", "Disk Near Full", ReasonOffline},
		},
		{
			name:       "out of range values do not panic",
			snapshot:   snapshot(models.MachineOnline, 250, -5, 1e9),
			wantScore:  65,
			wantTier:   models.HealthWarning,
			wantReason: []string{"Critical CPU Load", "Disk Near Full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Evaluate(tt.snapshot)

			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantTier, got.Status)
			assert.Equal(t, tt.wantReason, got.Reasons)
		})
	}
}

func TestTierBoundaries(t *testing.T) {
	t.Parallel()

	assert.Equal(t, models.HealthCritical, Tier(49))
	assert.Equal(t, models.HealthWarning, Tier(50))
	assert.Equal(t, models.HealthWarning, Tier(79))
	assert.Equal(t, models.HealthExcellent, Tier(80))
	assert.Equal(t, models.HealthExcellent, Tier(100))
}

func TestAdvise(t *testing.T) {
	t.Parallel()

	hot := snapshot(models.MachineOnline, 10, 10, 10)
	hot.GPU = &models.GPUInfo{Name: "RTX", Temperature: 91}

	coolGPU := snapshot(models.MachineOnline, 10, 10, 10)
	coolGPU.GPU = &models.GPUInfo{Name: "RTX", Temperature: 85}

	tests := []struct {
		name     string
		snapshot *models.MachineSnapshot
		want     models.Advisory
	}{
		{
			name:     "optimal",
			snapshot: snapshot(models.MachineOnline, 10, 10, 10),
			want:     models.Advisory{Status: models.AdvisoryOptimal, Message: optimalMessage},
		},
		{
			name:     "cpu issue",
			snapshot: snapshot(models.MachineOnline, 95, 10, 10),
			want: models.Advisory{
				Status:  models.AdvisoryAttentionNeeded,
				Message: "CPU is bottlenecking performance. Upgrade Processor (CPU) or reduce background tasks.",
			},
		},
		{
			name:     "cpu suggestion",
			snapshot: snapshot(models.MachineOnline, 65, 10, 10),
			want: models.Advisory{
				Status:  models.AdvisorySuggestion,
				Message: "Consider upgrading CPU for smoother multitasking.",
			},
		},
		{
			name:     "ram suggestion",
			snapshot: snapshot(models.MachineOnline, 10, 80, 10),
			want: models.Advisory{
				Status:  models.AdvisorySuggestion,
				Message: "RAM usage is high. Adding more memory will improve stability.",
			},
		},
		{
			name:     "issue pairs with the first improvement overall",
			snapshot: snapshot(models.MachineOnline, 65, 95, 10),
			want: models.Advisory{
				Status:  models.AdvisoryAttentionNeeded,
				Message: "Critical Memory shortage. Consider upgrading CPU for smoother multitasking.",
			},
		},
		{
			name:     "disk issue",
			snapshot: snapshot(models.MachineOnline, 10, 10, 95),
			want: models.Advisory{
				Status:  models.AdvisoryAttentionNeeded,
				Message: "Storage is critically low. Free up space or add a new SSD.",
			},
		},
		{
			name:     "gpu overheating",
			snapshot: hot,
			want: models.Advisory{
				Status:  models.AdvisoryAttentionNeeded,
				Message: "GPU Overheating detected. Check cooling system / thermal paste.",
			},
		},
		{
			name:     "gpu at threshold is fine",
			snapshot: coolGPU,
			want:     models.Advisory{Status: models.AdvisoryOptimal, Message: optimalMessage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Advise(tt.snapshot))
		})
	}
}

func TestEvaluateHeadlineIssueOnly(t *testing.T) {
	t.Parallel()

	got := Evaluate(snapshot(models.MachineOnline, 95, 95, 95))

	assert.Equal(t, models.AdvisoryAttentionNeeded, got.Advisory.Status)
	assert.True(t, strings.HasPrefix(got.Advisory.Message, "CPU is bottlenecking performance."))
	assert.NotContains(t, got.Advisory.Message, "Memory")
}
