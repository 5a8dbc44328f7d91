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

package stream

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const streamMeterName = "github.com/carverauto/fleetwatch/pkg/stream"

//nolint:gochecknoglobals // fallback for rejected instruments
var noopMeter = noop.NewMeterProvider().Meter(streamMeterName)

type clientMetrics struct {
	attempts  metric.Int64Counter
	failures  metric.Int64Counter
	batches   metric.Int64Counter
	malformed metric.Int64Counter
	attrs     metric.MeasurementOption
}

// newClientMetrics falls back to no-op instruments when the meter rejects an
// instrument.
func newClientMetrics(url string) *clientMetrics {
	meter := otel.Meter(streamMeterName)

	m := &clientMetrics{
		attrs: metric.WithAttributes(attribute.String("stream.url", url)),
	}

	m.attempts = counter(meter, "fleetwatch_stream_connect_attempts", "Connection attempts to the telemetry source")
	m.failures = counter(meter, "fleetwatch_stream_connect_failures", "Failed connection attempts and dropped connections")
	m.batches = counter(meter, "fleetwatch_stream_batches", "Update batches handed to the registry")
	m.malformed = counter(meter, "fleetwatch_stream_malformed_payloads", "Discarded malformed stream messages")

	return m
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)

		c, _ = noopMeter.Int64Counter(name)
	}

	return c
}

func (m *clientMetrics) add(c metric.Int64Counter) {
	c.Add(context.Background(), 1, m.attrs)
}
