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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/carverauto/fleetwatch/pkg/logger"
)

var (
	errInvalidDuration       = errors.New("invalid duration")
	errStreamURLRequired     = errors.New("stream.url is required")
	errStreamURLScheme       = errors.New("stream.url must use ws or wss")
	errListenAddrRequired    = errors.New("listen_addr is required")
	errRetryDelayInvalid     = errors.New("stream.retry_delay must be positive")
	errHistorySourceConflict = errors.New("history: configure either base_url or cnpg, not both")
	errCNPGHostRequired      = errors.New("history.cnpg.host is required")
	errEventsStreamRequired  = errors.New("events.stream is required when events.nats_url is set")
)

const (
	DefaultStreamURL  = "ws://localhost:8000/ws"
	DefaultRetryDelay = 3 * time.Second
	DefaultListenAddr = ":8090"
	DefaultSubject    = "fleet.machines.liveness"
)

// Duration is a time.Duration that unmarshals from "3s" style strings or from
// a number of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// StreamConfig configures the upstream telemetry connection.
type StreamConfig struct {
	URL        string   `json:"url"`
	RetryDelay Duration `json:"retry_delay"`
	ReadLimit  int64    `json:"read_limit"`
}

// CNPGDatabase configures the Timescale history reader.
type CNPGDatabase struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	Database        string   `json:"database"`
	Username        string   `json:"username"`
	Password        string   `json:"password"`
	SSLMode         string   `json:"ssl_mode"`
	ApplicationName string   `json:"application_name"`
	MaxConnections  int32    `json:"max_connections"`
	MaxConnLifetime Duration `json:"max_conn_lifetime"`
	Table           string   `json:"table"`
}

// HistoryConfig selects the external history service. Both fields empty means
// history is unavailable and the API always answers with no data.
type HistoryConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout Duration      `json:"timeout"`
	CNPG    *CNPGDatabase `json:"cnpg,omitempty"`
}

// TLSConfig points at PEM files for mutual TLS.
type TLSConfig struct {
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	CAFile     string `json:"ca_file"`
	ServerName string `json:"server_name,omitempty"`
}

// EventsConfig enables liveness events on NATS JetStream.
type EventsConfig struct {
	NATSURL string     `json:"nats_url"`
	Domain  string     `json:"domain,omitempty"`
	Stream  string     `json:"stream"`
	Subject string     `json:"subject"`
	TLS     *TLSConfig `json:"tls,omitempty"`
}

// CORSConfig controls cross-origin access to the dashboard API.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// FleetConfig is the top-level service configuration.
type FleetConfig struct {
	ListenAddr string         `json:"listen_addr"`
	Stream     StreamConfig   `json:"stream"`
	History    HistoryConfig  `json:"history"`
	Events     EventsConfig   `json:"events"`
	CORS       CORSConfig     `json:"cors"`
	Logging    *logger.Config `json:"logging"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *FleetConfig) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}

	if c.Stream.URL == "" {
		c.Stream.URL = DefaultStreamURL
	}

	if c.Stream.RetryDelay == 0 {
		c.Stream.RetryDelay = Duration(DefaultRetryDelay)
	}

	if c.Events.NATSURL != "" && c.Events.Subject == "" {
		c.Events.Subject = DefaultSubject
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}
}

// Validate implements config.Validator.
func (c *FleetConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errListenAddrRequired
	}

	if strings.TrimSpace(c.Stream.URL) == "" {
		return errStreamURLRequired
	}

	u, err := url.Parse(c.Stream.URL)
	if err != nil {
		return fmt.Errorf("invalid stream.url: %w", err)
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: %q", errStreamURLScheme, u.Scheme)
	}

	if c.Stream.RetryDelay <= 0 {
		return errRetryDelayInvalid
	}

	if c.History.BaseURL != "" && c.History.CNPG != nil {
		return errHistorySourceConflict
	}

	if c.History.CNPG != nil && strings.TrimSpace(c.History.CNPG.Host) == "" {
		return errCNPGHostRequired
	}

	if c.Events.NATSURL != "" && c.Events.Stream == "" {
		return errEventsStreamRequired
	}

	return nil
}
