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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", input: `"3s"`, want: 3 * time.Second},
		{name: "nanoseconds", input: `1500000000`, want: 1500 * time.Millisecond},
		{name: "bad string", input: `"soon"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var d Duration

			err := json.Unmarshal([]byte(tc.input), &d)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errInvalidDuration))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, time.Duration(d))
		})
	}
}

func TestFleetConfigDefaultsAndValidate(t *testing.T) {
	t.Parallel()

	cfg := &FleetConfig{}
	cfg.ApplyDefaults()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultStreamURL, cfg.Stream.URL)
	assert.Equal(t, DefaultRetryDelay, time.Duration(cfg.Stream.RetryDelay))
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.NotNil(t, cfg.Logging)
}

func TestFleetConfigValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*FleetConfig)
		want   error
	}{
		{
			name:   "http scheme",
			mutate: func(c *FleetConfig) { c.Stream.URL = "http://localhost:8000/ws" },
			want:   errStreamURLScheme,
		},
		{
			name:   "negative retry",
			mutate: func(c *FleetConfig) { c.Stream.RetryDelay = Duration(-time.Second) },
			want:   errRetryDelayInvalid,
		},
		{
			name: "two history sources",
			mutate: func(c *FleetConfig) {
				c.History.BaseURL = "http://history:8000"
				c.History.CNPG = &CNPGDatabase{Host: "db"}
			},
			want: errHistorySourceConflict,
		},
		{
			name:   "cnpg without host",
			mutate: func(c *FleetConfig) { c.History.CNPG = &CNPGDatabase{} },
			want:   errCNPGHostRequired,
		},
		{
			name:   "nats without stream",
			mutate: func(c *FleetConfig) { c.Events.NATSURL = "nats://localhost:4222" },
			want:   errEventsStreamRequired,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := &FleetConfig{}
			cfg.ApplyDefaults()
			tc.mutate(cfg)

			assert.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}
}

func TestMachineSnapshotJSON(t *testing.T) {
	t.Parallel()

	payload := `{
		"hostname": "node-01",
		"status": "online",
		"cpu_percent": 42.5,
		"ram_used": 1024,
		"net_recv_speed": 10,
		"gpu": {"name": "RTX", "temperature": 71},
		"top_processes": [{"pid": 1, "name": "init", "cpu_percent": 0.1, "memory_percent": 0.2}],
		"last_seen": "2025-01-02T03:04:05"
	}`

	var snap MachineSnapshot
	require.NoError(t, json.Unmarshal([]byte(payload), &snap))

	assert.Equal(t, "node-01", snap.Hostname)
	assert.True(t, snap.IsOnline())
	assert.InDelta(t, 42.5, snap.CPUPercent, 0.001)
	assert.InDelta(t, 1024.0, snap.RAMUsed, 0.001)
	require.NotNil(t, snap.GPU)
	assert.InDelta(t, 71.0, snap.GPU.Temperature, 0.001)
	require.Len(t, snap.TopProcesses, 1)
	assert.Equal(t, "2025-01-02T03:04:05", snap.LastSeen)
}

func TestMachineSnapshotClone(t *testing.T) {
	t.Parallel()

	orig := MachineSnapshot{
		Hostname: "node-01",
		MachineMetrics: MachineMetrics{
			GPU:          &GPUInfo{Name: "A100"},
			TopProcesses: []ProcessInfo{{PID: 7, Name: "db"}},
		},
	}

	clone := orig.Clone()
	clone.GPU.Name = "changed"
	clone.TopProcesses[0].Name = "changed"

	assert.Equal(t, "A100", orig.GPU.Name)
	assert.Equal(t, "db", orig.TopProcesses[0].Name)
}

func TestUnknownStatusIsNotOnline(t *testing.T) {
	t.Parallel()

	snap := MachineSnapshot{Status: "rebooting"}
	assert.False(t, snap.IsOnline())
}
