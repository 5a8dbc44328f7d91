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

// Package history reads past metric samples for a machine from an external
// service. The core never stores history itself.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

//go:generate mockgen -destination=mock_gateway.go -package=history github.com/carverauto/fleetwatch/pkg/history Gateway

var (
	ErrUnavailable    = errors.New("history service unavailable")
	ErrInvalidRange   = errors.New("invalid history time range")
	ErrEmptyMachineID = errors.New("machine id is required")
)

// Gateway returns the samples of one machine between start and end, oldest
// first. An empty result means no history yet.
type Gateway interface {
	FetchHistory(ctx context.Context, machineID string, start, end time.Time) ([]models.HistorySample, error)
}

func validateRequest(machineID string, start, end time.Time) error {
	if machineID == "" {
		return ErrEmptyMachineID
	}

	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return ErrInvalidRange
	}

	return nil
}

// FetchOrEmpty degrades any gateway failure to an empty series. A nil gateway
// means history is not configured.
func FetchOrEmpty(
	ctx context.Context, gw Gateway, log logger.Logger, machineID string, start, end time.Time,
) []models.HistorySample {
	if gw == nil {
		return []models.HistorySample{}
	}

	samples, err := gw.FetchHistory(ctx, machineID, start, end)
	if err != nil {
		log.Warn().
			Err(err).
			Str("hostname", machineID).
			Time("start", start).
			Time("end", end).
			Msg("History fetch failed, returning empty series")

		return []models.HistorySample{}
	}

	if samples == nil {
		return []models.HistorySample{}
	}

	return samples
}
