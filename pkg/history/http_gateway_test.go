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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleetwatch/pkg/logger"
)

func TestHTTPGatewayFetchHistory(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"timestamp": "2025-06-01T12:02:00", "cpu_percent": 30, "ram_percent": 40},
			{"timestamp": "2025-06-01T12:01:00", "cpu_percent": 20, "net_recv_speed": 1024},
			{"timestamp": "not a time", "cpu_percent": 99},
			{"timestamp": "2025-06-01T09:00:00", "cpu_percent": 5},
		})
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(srv.URL+"/", logger.NewTestLogger())
	require.NoError(t, err)

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	samples, err := gw.FetchHistory(context.Background(), "lab box/1", start, end)
	require.NoError(t, err)

	assert.Equal(t, "/machines/lab%20box%2F1/history", gotPath)
	assert.Equal(t, "end=2025-06-01T13%3A00%3A00Z&start=2025-06-01T12%3A00%3A00Z", gotQuery)

	require.Len(t, samples, 2)
	assert.Equal(t, start.Add(time.Minute), samples[0].Timestamp)
	assert.InDelta(t, 20, samples[0].CPUPercent, 0)
	assert.InDelta(t, 1024, samples[0].NetRecvSpeed, 0)
	assert.InDelta(t, 30, samples[1].CPUPercent, 0)
}

func TestHTTPGatewayOpenRange(t *testing.T) {
	t.Parallel()

	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[{"timestamp":"2020-01-01T00:00:00Z","cpu_percent":1}]`))
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(srv.URL, logger.NewTestLogger(), WithTimeout(time.Second))
	require.NoError(t, err)

	samples, err := gw.FetchHistory(context.Background(), "alpha", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Empty(t, gotQuery)
	assert.Len(t, samples, 1)
}

func TestHTTPGatewayErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/machines/broken/history" {
			_, _ = w.Write([]byte(`{"detail":`))
			return
		}

		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(srv.URL, logger.NewTestLogger(), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = gw.FetchHistory(context.Background(), "alpha", time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "502")

	_, err = gw.FetchHistory(context.Background(), "broken", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode history")

	_, err = gw.FetchHistory(context.Background(), "", time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrEmptyMachineID)
}

func TestHTTPGatewayUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw, err := NewHTTPGateway(url, logger.NewTestLogger())
	require.NoError(t, err)

	_, err = gw.FetchHistory(context.Background(), "alpha", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewHTTPGatewayRejectsBadURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "collector:8000", "ftp://collector", "http://"} {
		_, err := NewHTTPGateway(raw, logger.NewTestLogger())
		assert.ErrorIs(t, err, errInvalidBaseURL, raw)
	}
}
