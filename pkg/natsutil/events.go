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

// Package natsutil publishes fleet events to NATS JetStream.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

const (
	livenessEventType   = "com.carverauto.fleetwatch.machine.liveness"
	livenessEventSource = "fleetwatch/registry"
)

var errStreamRequired = errors.New("jetstream stream name is required")

// Publisher is the part of jetstream.JetStream used to publish.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventPublisher publishes CloudEvents to a JetStream subject.
type EventPublisher struct {
	js      Publisher
	subject string
	logger  logger.Logger
}

func NewEventPublisher(js Publisher, subject string, log logger.Logger) *EventPublisher {
	if subject == "" {
		subject = models.DefaultSubject
	}

	return &EventPublisher{
		js:      js,
		subject: subject,
		logger:  log,
	}
}

// PublishTransition publishes one registry liveness transition.
func (p *EventPublisher) PublishTransition(ctx context.Context, tr models.MachineTransition) error {
	now := time.Now().UTC()

	data := models.MachineLivenessEvent{
		Hostname:       tr.Hostname,
		PreviousStatus: tr.From,
		CurrentStatus:  tr.To,
		FirstSeen:      tr.From == "",
		LastSeen:       tr.LastSeen,
		Timestamp:      now,
	}

	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          livenessEventSource,
		Type:            livenessEventType,
		DataContentType: "application/json",
		Subject:         p.subject,
		Time:            &now,
		Data:            data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal liveness event: %w", err)
	}

	ack, err := p.js.Publish(ctx, p.subject, payload, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("failed to publish liveness event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("hostname", tr.Hostname).
		Str("subject", p.subject).
		Uint64("seq", ack.Sequence).
		Msg("Published liveness event")

	return nil
}

// Connect opens a NATS connection whose lifecycle callbacks are logged.
func Connect(natsURL string, tlsCfg *models.TLSConfig, log logger.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("fleetwatch"),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	if tlsCfg != nil {
		tc, err := TLSConfig(tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tc))
	}

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")

	return nc, nil
}

// CreateEventPublisher ensures streamName exists and captures subject, then
// returns a publisher for it. A non-empty domain selects a JetStream domain.
func CreateEventPublisher(
	ctx context.Context, nc *nats.Conn, domain, streamName, subject string, log logger.Logger,
) (*EventPublisher, error) {
	if streamName == "" {
		return nil, errStreamRequired
	}

	var (
		js  jetstream.JetStream
		err error
	)

	if domain != "" {
		js, err = jetstream.NewWithDomain(nc, domain)
	} else {
		js, err = jetstream.New(nc)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if subject == "" {
		subject = models.DefaultSubject
	}

	if err := ensureStream(ctx, js, streamName, subject); err != nil {
		return nil, err
	}

	log.Info().Str("stream", streamName).Str("subject", subject).Msg("JetStream event publisher ready")

	return NewEventPublisher(js, subject, log), nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, streamName, subject string) error {
	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream %s: %w", streamName, err)
		}

		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{subject},
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}

		return nil
	}

	cfg := stream.CachedInfo().Config

	subjects := ensureSubjectList(append([]string(nil), cfg.Subjects...), subject)
	if len(subjects) == len(cfg.Subjects) {
		return nil
	}

	cfg.Subjects = subjects

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to add subject %s to stream %s: %w", subject, streamName, err)
	}

	return nil
}

// ensureSubjectList appends subject unless an existing entry already covers
// it, including through * and > wildcards.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, s := range subjects {
		if subjectMatches(s, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

func subjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, token := range pt {
		if token == ">" {
			return len(st) > i
		}

		if i >= len(st) {
			return false
		}

		if token != "*" && token != st[i] {
			return false
		}
	}

	return len(pt) == len(st)
}
