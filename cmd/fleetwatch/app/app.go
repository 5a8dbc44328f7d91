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

// Package app wires the fleetwatch service together.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/fleetwatch/pkg/api"
	"github.com/carverauto/fleetwatch/pkg/config"
	"github.com/carverauto/fleetwatch/pkg/history"
	"github.com/carverauto/fleetwatch/pkg/lifecycle"
	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
	"github.com/carverauto/fleetwatch/pkg/natsutil"
	"github.com/carverauto/fleetwatch/pkg/registry"
	"github.com/carverauto/fleetwatch/pkg/stream"
	"github.com/carverauto/fleetwatch/pkg/version"
)

const serviceName = "fleetwatch"

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
}

// LoadConfig reads, defaults and validates the service configuration.
func LoadConfig(ctx context.Context, path string) (*models.FleetConfig, error) {
	var cfg models.FleetConfig

	if err := config.NewConfig(nil).LoadAndValidate(ctx, path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// Run boots the service and blocks until ctx is cancelled or a component
// fails.
func Run(ctx context.Context, opts Options) error {
	cfg, err := LoadConfig(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}

	return runWithConfig(ctx, cfg)
}

func runWithConfig(ctx context.Context, cfg *models.FleetConfig) error {
	mainLogger, err := lifecycle.CreateComponentLogger(ctx, "fleetwatch-main", cfg.Logging)
	if err != nil {
		return err
	}

	if _, metricsErr := logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		OTel:           &cfg.Logging.OTel,
	}); metricsErr != nil && !errors.Is(metricsErr, logger.ErrOTelMetricsDisabled) {
		return metricsErr
	}

	defer func() {
		if shutdownErr := lifecycle.ShutdownLogger(); shutdownErr != nil {
			mainLogger.Error().Err(shutdownErr).Msg("Error shutting down logger")
		}
	}()

	reg := registry.NewMachineRegistry(mainLogger.WithComponent("registry"))

	gateway, closeGateway, err := buildHistoryGateway(ctx, &cfg.History, mainLogger.WithComponent("history"))
	if err != nil {
		return err
	}
	defer closeGateway()

	var apiServer *api.APIServer

	streamOpts := []stream.Option{
		stream.WithRetryDelay(time.Duration(cfg.Stream.RetryDelay)),
		stream.WithStateListener(func(state stream.ConnectionState) {
			mainLogger.Info().Str("state", state.String()).Msg("Telemetry stream state changed")
			apiServer.NotifyChange()
		}),
	}

	if cfg.Stream.ReadLimit > 0 {
		streamOpts = append(streamOpts, stream.WithReadLimit(cfg.Stream.ReadLimit))
	}

	client := stream.NewClient(cfg.Stream.URL, reg.ApplySnapshotBatch, mainLogger.WithComponent("stream"), streamOpts...)

	apiOptions := []func(server *api.APIServer){
		api.WithMachineSource(reg),
		api.WithStreamStatus(client),
		api.WithLogger(mainLogger.WithComponent("api")),
	}

	if gateway != nil {
		apiOptions = append(apiOptions, api.WithHistoryGateway(gateway))
	}

	apiServer = api.NewAPIServer(cfg.CORS, apiOptions...)

	reg.Subscribe(func(registry.Change) { apiServer.NotifyChange() })

	forwarder, closeEvents, err := buildEventForwarder(ctx, &cfg.Events, mainLogger.WithComponent("events"))
	if err != nil {
		return err
	}
	defer closeEvents()

	if forwarder != nil {
		reg.Subscribe(func(change registry.Change) {
			if len(change.Transitions) > 0 {
				forwarder.Enqueue(change.Transitions)
			}
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return apiServer.Start(gctx, cfg.ListenAddr)
	})

	g.Go(func() error {
		return apiServer.Run(gctx)
	})

	if forwarder != nil {
		g.Go(func() error {
			return forwarder.Run(gctx)
		})
	}

	g.Go(func() error {
		if err := client.Start(gctx); err != nil {
			return fmt.Errorf("failed to start stream client: %w", err)
		}

		<-gctx.Done()

		if err := client.Close(); err != nil {
			mainLogger.Debug().Err(err).Msg("Error closing telemetry stream connection")
		}

		return nil
	})

	mainLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("listen_addr", cfg.ListenAddr).
		Str("stream_url", cfg.Stream.URL).
		Msg("Fleetwatch started")

	err = g.Wait()

	mainLogger.Info().Msg("Fleetwatch stopped")

	return err
}

// buildHistoryGateway returns a nil gateway when no history source is
// configured.
func buildHistoryGateway(
	ctx context.Context, cfg *models.HistoryConfig, log logger.Logger,
) (history.Gateway, func(), error) {
	noop := func() {}

	switch {
	case cfg.BaseURL != "":
		gw, err := history.NewHTTPGateway(cfg.BaseURL, log, history.WithTimeout(time.Duration(cfg.Timeout)))
		if err != nil {
			return nil, noop, err
		}

		return gw, noop, nil
	case cfg.CNPG != nil:
		pool, err := history.NewCNPGPool(ctx, cfg.CNPG, log)
		if err != nil {
			return nil, noop, err
		}

		gw, err := history.NewCNPGGateway(pool, cfg.CNPG.Table, log)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}

		return gw, pool.Close, nil
	default:
		log.Info().Msg("No history source configured, history requests return no data")

		return nil, noop, nil
	}
}

// buildEventForwarder connects to NATS when events are enabled. The returned
// cleanup drains the connection.
func buildEventForwarder(
	ctx context.Context, cfg *models.EventsConfig, log logger.Logger,
) (*natsutil.LivenessForwarder, func(), error) {
	noop := func() {}

	if cfg.NATSURL == "" {
		return nil, noop, nil
	}

	nc, err := natsutil.Connect(cfg.NATSURL, cfg.TLS, log)
	if err != nil {
		return nil, noop, err
	}

	pub, err := natsutil.CreateEventPublisher(ctx, nc, cfg.Domain, cfg.Stream, cfg.Subject, log)
	if err != nil {
		nc.Close()
		return nil, noop, err
	}

	cleanup := func() {
		if err := nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
	}

	return natsutil.NewLivenessForwarder(pub, log, 0), cleanup, nil
}
