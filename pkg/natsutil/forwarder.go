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

package natsutil

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

const (
	defaultForwarderBuffer = 1024
	publishTimeout         = 5 * time.Second
)

// TransitionPublisher is implemented by EventPublisher.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, tr models.MachineTransition) error
}

// LivenessForwarder decouples registry writers from NATS: Enqueue never
// blocks and Run publishes in order on its own goroutine.
type LivenessForwarder struct {
	pub     TransitionPublisher
	queue   chan models.MachineTransition
	logger  logger.Logger
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewLivenessForwarder(pub TransitionPublisher, log logger.Logger, buffer int) *LivenessForwarder {
	if buffer <= 0 {
		buffer = defaultForwarderBuffer
	}

	return &LivenessForwarder{
		pub:    pub,
		queue:  make(chan models.MachineTransition, buffer),
		logger: log,
	}
}

// Enqueue drops transitions when the buffer is full.
func (f *LivenessForwarder) Enqueue(transitions []models.MachineTransition) {
	for _, tr := range transitions {
		select {
		case f.queue <- tr:
		default:
			f.dropped.Add(1)
			f.logger.Warn().Str("hostname", tr.Hostname).Msg("Liveness event queue full, dropping transition")
		}
	}
}

// Run publishes queued transitions until ctx is cancelled.
func (f *LivenessForwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tr := <-f.queue:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := f.pub.PublishTransition(pubCtx, tr)
			cancel()

			if err != nil {
				f.failed.Add(1)
				f.logger.Warn().Err(err).Str("hostname", tr.Hostname).Msg("Failed to publish liveness event")
			}
		}
	}
}

func (f *LivenessForwarder) Dropped() uint64 { return f.dropped.Load() }

func (f *LivenessForwarder) Failed() uint64 { return f.failed.Load() }
