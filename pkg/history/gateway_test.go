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

package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

func TestFetchOrEmpty(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	sample := models.HistorySample{Timestamp: start, MachineMetrics: models.MachineMetrics{CPUPercent: 12}}

	tests := []struct {
		name    string
		samples []models.HistorySample
		err     error
		want    []models.HistorySample
	}{
		{name: "passes samples through", samples: []models.HistorySample{sample}, want: []models.HistorySample{sample}},
		{name: "failure degrades to empty", err: ErrUnavailable, want: []models.HistorySample{}},
		{name: "nil result becomes empty", want: []models.HistorySample{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			gw := NewMockGateway(ctrl)

			gw.EXPECT().
				FetchHistory(gomock.Any(), "alpha", start, end).
				Return(tt.samples, tt.err).
				Times(1)

			got := FetchOrEmpty(context.Background(), gw, logger.NewTestLogger(), "alpha", start, end)

			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchOrEmptyWithoutGateway(t *testing.T) {
	t.Parallel()

	got := FetchOrEmpty(context.Background(), nil, logger.NewTestLogger(), "alpha", time.Time{}, time.Time{})

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	now := time.Now()

	assert.ErrorIs(t, validateRequest("", now, now), ErrEmptyMachineID)
	assert.ErrorIs(t, validateRequest("a", now, now.Add(-time.Minute)), ErrInvalidRange)
	assert.NoError(t, validateRequest("a", time.Time{}, now))
	assert.NoError(t, validateRequest("a", now, now))
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2025-06-01T12:30:15Z", want: want},
		{in: "2025-06-01T14:30:15+02:00", want: want},
		{in: "2025-06-01T12:30:15", want: want},
		{in: "2025-06-01T12:30:15.250000", want: want.Add(250 * time.Millisecond)},
		{in: "2025-06-01 12:30:15", want: want},
	}

	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s parsed as %s", tt.in, got)
	}

	_, err := ParseTimestamp("yesterday")
	assert.True(t, errors.Is(err, errUnparsableTimestamp))
}
