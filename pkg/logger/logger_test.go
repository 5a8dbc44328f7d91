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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	err := Init(context.Background(), &Config{Level: "debug", Debug: true, Output: "stdout"})
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(context.Background(), &Config{Level: "loud"})
	assert.Error(t, err)
}

func TestSetDebug(t *testing.T) {
	SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())

	SetDebug(false)
	assert.Equal(t, zerolog.InfoLevel, GetLogger().GetLevel())
}

func TestWithComponent(t *testing.T) {
	componentLogger := WithComponent("test-component")

	assert.NotEqual(t, zerolog.Disabled, componentLogger.GetLevel())
}

func TestLoggerWithComponentAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := FromZerolog(zerolog.New(&buf)).
		WithComponent("registry").
		WithFields(map[string]interface{}{"hostname": "alpha"})

	l.Info().Msg("applied")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, "registry", line["component"])
	assert.Equal(t, "alpha", line["hostname"])
	assert.Equal(t, "applied", line["message"])
}

func TestNewTestLoggerDiscards(t *testing.T) {
	t.Parallel()

	l := NewTestLogger()
	l.Error().Msg("dropped")
	l.WithComponent("x").Warn().Msg("dropped")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotEmpty(t, config.Level)
	assert.NotEmpty(t, config.Output)
	assert.Equal(t, defaultServiceName, config.OTel.ServiceName)
}

func TestDefaultOTelConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_LOGS_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_HEADERS", "x-token = abc, tenant=fleet")
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_TIMEOUT", "2s")

	cfg := DefaultOTelConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4317", cfg.Endpoint)
	assert.Equal(t, map[string]string{"x-token": "abc", "tenant": "fleet"}, cfg.Headers)
	assert.Equal(t, Duration(2*time.Second), cfg.BatchTimeout)
}

func TestDurationUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Duration
		wantErr bool
	}{
		{name: "string", input: `"5s"`, want: Duration(5 * time.Second)},
		{name: "nanoseconds", input: `1000000000`, want: Duration(time.Second)},
		{name: "garbage string", input: `"soon"`, wantErr: true},
		{name: "wrong type", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				assert.ErrorIs(t, err, errInvalidDuration)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestNewOTELWriterRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewOTELWriter(context.Background(), OTelConfig{})
	require.ErrorIs(t, err, ErrOTelLoggingDisabled)

	_, err = NewOTELWriter(context.Background(), OTelConfig{Enabled: true})
	require.ErrorIs(t, err, ErrOTelEndpointRequired)
}

func TestInitializeMetricsDisabled(t *testing.T) {
	t.Parallel()

	_, err := InitializeMetrics(context.Background(), MetricsConfig{})
	assert.ErrorIs(t, err, ErrOTelMetricsDisabled)
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	out, cut := truncateString("short", 10)
	assert.Equal(t, "short", out)
	assert.False(t, cut)

	out, cut = truncateString(strings.Repeat("a", 20), 10)
	assert.Equal(t, "aaaaaaa...", out)
	assert.True(t, cut)

	// multi-byte runes are never split
	out, cut = truncateString("ééééé", 6)
	assert.True(t, cut)
	assert.Equal(t, "é...", out)
}

func TestFlattenAttributes(t *testing.T) {
	t.Parallel()

	attrs, truncated := flattenAttributes(map[string]interface{}{
		"count":  float64(3),
		"ok":     true,
		"nested": map[string]interface{}{"a": "b"},
		"none":   nil,
		"big":    strings.Repeat("x", maxAttributeValueLength+1),
	})

	assert.Equal(t, "3", attrs["count"])
	assert.Equal(t, "true", attrs["ok"])
	assert.JSONEq(t, `{"a":"b"}`, attrs["nested"])
	assert.Equal(t, "null", attrs["none"])
	assert.Equal(t, []string{"big"}, truncated)
}

type failingWriter struct{}

var errWrite = errors.New("write failed")

func (failingWriter) Write([]byte) (int, error) { return 0, errWrite }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer

	n, err := NewMultiWriter(&a, &b).Write([]byte("line"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "line", a.String())
	assert.Equal(t, "line", b.String())

	_, err = NewMultiWriter(&a, failingWriter{}).Write([]byte("x"))
	assert.ErrorIs(t, err, errWrite)
}

func TestSeverityFromLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "WARN", severityFromLevel("warning").String())
	assert.Equal(t, "FATAL", severityFromLevel("panic").String())
	assert.Equal(t, "INFO", severityFromLevel("bogus").String())
}
