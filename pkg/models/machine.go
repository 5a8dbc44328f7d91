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

// MachineStatus is the liveness reported for a machine by the telemetry source.
type MachineStatus string

const (
	MachineOnline  MachineStatus = "online"
	MachineOffline MachineStatus = "offline"
)

// GPUInfo describes the optional GPU block of a machine report.
type GPUInfo struct {
	Name        string  `json:"name"`
	Load        float64 `json:"load"`
	MemoryTotal float64 `json:"memory_total"`
	MemoryUsed  float64 `json:"memory_used"`
	Temperature float64 `json:"temperature"`
}

// ProcessInfo is one entry of the top-N process list.
type ProcessInfo struct {
	PID           int     `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// MachineMetrics holds every metric an agent reports. It is shared by live
// snapshots and historical samples.
type MachineMetrics struct {
	CPUPercent       float64 `json:"cpu_percent"`
	CPUFreqCurrent   float64 `json:"cpu_freq_current"`
	CPUFreqMax       float64 `json:"cpu_freq_max"`
	CPUCoresPhysical int     `json:"cpu_cores_physical"`
	CPUCoresLogical  int     `json:"cpu_cores_logical"`

	RAMPercent  float64 `json:"ram_percent"`
	RAMTotal    float64 `json:"ram_total"`
	RAMUsed     float64 `json:"ram_used"`
	SwapPercent float64 `json:"swap_percent"`
	SwapTotal   float64 `json:"swap_total"`
	SwapUsed    float64 `json:"swap_used"`

	DiskTotal      float64 `json:"disk_total"`
	DiskUsed       float64 `json:"disk_used"`
	DiskPercent    float64 `json:"disk_percent"`
	DiskReadSpeed  float64 `json:"disk_read_speed"`
	DiskWriteSpeed float64 `json:"disk_write_speed"`

	NetSentSpeed float64 `json:"net_sent_speed"`
	NetRecvSpeed float64 `json:"net_recv_speed"`

	UptimeSeconds float64 `json:"uptime_seconds"`
	ProcessCount  int     `json:"process_count"`
	OSInfo        string  `json:"os_info"`

	GPU          *GPUInfo      `json:"gpu,omitempty"`
	TopProcesses []ProcessInfo `json:"top_processes,omitempty"`
}

// MachineSnapshot is a complete point-in-time report of one machine. A later
// snapshot for the same hostname replaces the earlier one entirely.
type MachineSnapshot struct {
	Hostname string        `json:"hostname"`
	Status   MachineStatus `json:"status"`
	LastSeen string        `json:"last_seen"`
	MachineMetrics
}

// IsOnline reports whether the snapshot carries the online status. Anything
// else, including an unknown status string, is treated as offline.
func (m *MachineSnapshot) IsOnline() bool {
	return m.Status == MachineOnline
}

// Clone returns a deep copy so callers cannot mutate registry-owned data.
func (m *MachineSnapshot) Clone() MachineSnapshot {
	out := *m

	if m.GPU != nil {
		gpu := *m.GPU
		out.GPU = &gpu
	}

	if m.TopProcesses != nil {
		out.TopProcesses = append([]ProcessInfo(nil), m.TopProcesses...)
	}

	return out
}

// RegistryEntry wraps a snapshot with the viewer-side dismissal flag.
type RegistryEntry struct {
	Snapshot MachineSnapshot `json:"snapshot"`
	Hidden   bool            `json:"hidden"`
}

// MachineTransition records a liveness change observed while applying a batch.
// From is empty when the machine was seen for the first time.
type MachineTransition struct {
	Hostname string        `json:"hostname"`
	From     MachineStatus `json:"from,omitempty"`
	To       MachineStatus `json:"to"`
	LastSeen string        `json:"last_seen"`
}
