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

package registry

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	registryMeterName = "github.com/carverauto/fleetwatch/pkg/registry"

	metricMachinesTotalName  = "fleetwatch_registry_machines"
	metricMachinesOnlineName = "fleetwatch_registry_machines_online"
	metricMachinesHiddenName = "fleetwatch_registry_machines_hidden"
	metricBatchesAppliedName = "fleetwatch_registry_batches_applied"
)

// registryObservatory holds the latest published counts for the gauges.
type registryObservatory struct {
	total          atomic.Int64
	online         atomic.Int64
	hidden         atomic.Int64
	batchesApplied atomic.Int64
}

func (o *registryObservatory) observe(v *view) {
	var online, hidden int64

	for _, e := range v.entries {
		if e.Snapshot.IsOnline() {
			online++
		}

		if e.Hidden {
			hidden++
		}
	}

	o.total.Store(int64(len(v.entries)))
	o.online.Store(online)
	o.hidden.Store(hidden)
}

var (
	//nolint:gochecknoglobals // metric observers are shared singletons
	registryMetricsOnce sync.Once
	//nolint:gochecknoglobals // metric observers are shared singletons
	registryMetricsData = &registryObservatory{}
	//nolint:gochecknoglobals // kept to retain callback
	registryMetricsRegistration metric.Registration
)

func initRegistryMetrics() {
	registryMetricsOnce.Do(func() {
		meter := otel.Meter(registryMeterName)

		total, err := meter.Int64ObservableGauge(
			metricMachinesTotalName,
			metric.WithDescription("Machines known to the registry"),
		)
		if err != nil {
			otel.Handle(err)
			return
		}

		online, err := meter.Int64ObservableGauge(
			metricMachinesOnlineName,
			metric.WithDescription("Machines whose latest report is online"),
		)
		if err != nil {
			otel.Handle(err)
			return
		}

		hidden, err := meter.Int64ObservableGauge(
			metricMachinesHiddenName,
			metric.WithDescription("Machines dismissed by a viewer"),
		)
		if err != nil {
			otel.Handle(err)
			return
		}

		batches, err := meter.Int64ObservableCounter(
			metricBatchesAppliedName,
			metric.WithDescription("Snapshot batches applied to the registry"),
		)
		if err != nil {
			otel.Handle(err)
			return
		}

		registryMetricsRegistration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(total, registryMetricsData.total.Load())
			o.ObserveInt64(online, registryMetricsData.online.Load())
			o.ObserveInt64(hidden, registryMetricsData.hidden.Load())
			o.ObserveInt64(batches, registryMetricsData.batchesApplied.Load())

			return nil
		}, total, online, hidden, batches)
		if err != nil {
			otel.Handle(err)
		}
	})
}
