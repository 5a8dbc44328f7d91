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
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxHistoryBody     = 16 << 20
)

var errInvalidBaseURL = errors.New("history base url must be absolute http(s)")

// wireSample mirrors the upstream JSON, whose timestamps may lack a zone.
type wireSample struct {
	Timestamp string `json:"timestamp"`
	models.MachineMetrics
}

// HTTPGateway queries GET {base}/machines/{id}/history.
type HTTPGateway struct {
	baseURL *url.URL
	client  *http.Client
	logger  logger.Logger
}

type HTTPOption func(*HTTPGateway)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(g *HTTPGateway) {
		g.client = client
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(g *HTTPGateway) {
		if d > 0 {
			g.client.Timeout = d
		}
	}
}

func NewHTTPGateway(baseURL string, log logger.Logger, opts ...HTTPOption) (*HTTPGateway, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidBaseURL, err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", errInvalidBaseURL, baseURL)
	}

	g := &HTTPGateway{
		baseURL: u,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  log,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *HTTPGateway) requestURL(machineID string, start, end time.Time) string {
	u := *g.baseURL
	u.RawPath = g.baseURL.EscapedPath() + "/machines/" + url.PathEscape(machineID) + "/history"
	u.Path = g.baseURL.Path + "/machines/" + machineID + "/history"

	q := url.Values{}
	if !start.IsZero() {
		q.Set("start", start.UTC().Format(time.RFC3339))
	}

	if !end.IsZero() {
		q.Set("end", end.UTC().Format(time.RFC3339))
	}

	u.RawQuery = q.Encode()

	return u.String()
}

// FetchHistory returns samples sorted oldest first. Samples outside
// [start, end] are dropped because the upstream may ignore the range.
func (g *HTTPGateway) FetchHistory(
	ctx context.Context, machineID string, start, end time.Time,
) ([]models.HistorySample, error) {
	if err := validateRequest(machineID, start, end); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.requestURL(machineID, start, end), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build history request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	}

	var wire []wireSample
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxHistoryBody)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode history for %s: %w", machineID, err)
	}

	return g.convert(machineID, wire, start, end), nil
}

func (g *HTTPGateway) convert(machineID string, wire []wireSample, start, end time.Time) []models.HistorySample {
	samples := make([]models.HistorySample, 0, len(wire))

	for i := range wire {
		ts, err := ParseTimestamp(wire[i].Timestamp)
		if err != nil {
			g.logger.Debug().Err(err).Str("hostname", machineID).Msg("Skipping history sample")
			continue
		}

		if !start.IsZero() && ts.Before(start) {
			continue
		}

		if !end.IsZero() && ts.After(end) {
			continue
		}

		samples = append(samples, models.HistorySample{
			Timestamp:      ts,
			MachineMetrics: wire[i].MachineMetrics,
		})
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	return samples
}
