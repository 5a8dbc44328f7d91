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
	"net/url"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

const (
	defaultHistoryTable = "machine_metrics"
	defaultHistoryLimit = 5000
	defaultLookback     = 24 * time.Hour
)

var (
	errInvalidTable = errors.New("invalid history table name")

	//nolint:gochecknoglobals // identifier whitelist
	tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// Querier is the subset of *pgxpool.Pool used for reads.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// CNPGGateway reads samples from a Timescale hypertable keyed by hostname
// and timestamp.
type CNPGGateway struct {
	db    Querier
	table string
	limit int
	log   logger.Logger
}

// NewCNPGPool dials the configured CNPG cluster and returns a pgx pool for
// history reads.
func NewCNPGPool(ctx context.Context, cfg *models.CNPGDatabase, log logger.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cnpgConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("cnpg: failed to parse connection string: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = cfg.MaxConnections
	}

	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("cnpg: failed to initialize pool: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("Connected to CNPG/Timescale history store")

	return pool, nil
}

func cnpgConnString(cfg *models.CNPGDatabase) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	connURL := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   "/" + cfg.Database,
	}

	if cfg.Username != "" {
		if cfg.Password != "" {
			connURL.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			connURL.User = url.User(cfg.Username)
		}
	}

	query := connURL.Query()

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	query.Set("sslmode", sslMode)

	if cfg.ApplicationName != "" {
		query.Set("application_name", cfg.ApplicationName)
	}

	connURL.RawQuery = query.Encode()

	return connURL.String()
}

func NewCNPGGateway(db Querier, table string, log logger.Logger) (*CNPGGateway, error) {
	if table == "" {
		table = defaultHistoryTable
	}

	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", errInvalidTable, table)
	}

	return &CNPGGateway{
		db:    db,
		table: table,
		limit: defaultHistoryLimit,
		log:   log,
	}, nil
}

const cnpgHistorySelect = `
SELECT
	timestamp,
	cpu_percent, cpu_freq_current, cpu_freq_max, cpu_cores_physical, cpu_cores_logical,
	ram_percent, ram_total, ram_used, swap_percent, swap_total, swap_used,
	disk_total, disk_used, disk_percent, disk_read_speed, disk_write_speed,
	net_sent_speed, net_recv_speed,
	uptime_seconds, process_count, COALESCE(os_info, ''),
	gpu, top_processes
FROM `

func (g *CNPGGateway) query() string {
	return cnpgHistorySelect + g.table + `
WHERE hostname = $1
  AND timestamp BETWEEN $2 AND $3
ORDER BY timestamp ASC
LIMIT $4`
}

// FetchHistory defaults a zero range to the last 24 hours.
func (g *CNPGGateway) FetchHistory(
	ctx context.Context, machineID string, start, end time.Time,
) ([]models.HistorySample, error) {
	if err := validateRequest(machineID, start, end); err != nil {
		return nil, err
	}

	if end.IsZero() {
		end = time.Now()
	}

	if start.IsZero() {
		start = end.Add(-defaultLookback)
	}

	rows, err := g.db.Query(ctx, g.query(), machineID, start.UTC(), end.UTC(), g.limit)
	if err != nil {
		return nil, fmt.Errorf("cnpg history for %s: %w", machineID, err)
	}
	defer rows.Close()

	samples, err := gatherHistorySamples(rows)
	if err != nil {
		return nil, err
	}

	g.log.Debug().
		Str("hostname", machineID).
		Int("samples", len(samples)).
		Msg("Loaded machine history")

	return samples, nil
}

func gatherHistorySamples(rows pgx.Rows) ([]models.HistorySample, error) {
	samples := make([]models.HistorySample, 0)

	for rows.Next() {
		sample, err := scanHistorySample(rows)
		if err != nil {
			return nil, err
		}

		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cnpg history rows: %w", err)
	}

	return samples, nil
}

func scanHistorySample(row pgx.Row) (models.HistorySample, error) {
	var (
		s         models.HistorySample
		m         = &s.MachineMetrics
		gpuRaw    []byte
		topProcs  []byte
		cores     [2]int32
		processes int32
	)

	if err := row.Scan(
		&s.Timestamp,
		&m.CPUPercent, &m.CPUFreqCurrent, &m.CPUFreqMax, &cores[0], &cores[1],
		&m.RAMPercent, &m.RAMTotal, &m.RAMUsed, &m.SwapPercent, &m.SwapTotal, &m.SwapUsed,
		&m.DiskTotal, &m.DiskUsed, &m.DiskPercent, &m.DiskReadSpeed, &m.DiskWriteSpeed,
		&m.NetSentSpeed, &m.NetRecvSpeed,
		&m.UptimeSeconds, &processes, &m.OSInfo,
		&gpuRaw, &topProcs,
	); err != nil {
		return models.HistorySample{}, fmt.Errorf("cnpg history scan: %w", err)
	}

	m.CPUCoresPhysical = int(cores[0])
	m.CPUCoresLogical = int(cores[1])
	m.ProcessCount = int(processes)
	s.Timestamp = s.Timestamp.UTC()

	if len(gpuRaw) > 0 {
		var gpu models.GPUInfo
		if err := json.Unmarshal(gpuRaw, &gpu); err != nil {
			return models.HistorySample{}, fmt.Errorf("cnpg history gpu: %w", err)
		}

		m.GPU = &gpu
	}

	if len(topProcs) > 0 {
		if err := json.Unmarshal(topProcs, &m.TopProcesses); err != nil {
			return models.HistorySample{}, fmt.Errorf("cnpg history top_processes: %w", err)
		}
	}

	return s, nil
}
