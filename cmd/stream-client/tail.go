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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/fleetwatch/pkg/models"
)

var errUnexpectedMessage = errors.New("unexpected message type")

// tail prints every viewer update until ctx is cancelled or the server
// closes the stream.
func tail(ctx context.Context, wsURL, origin string, out io.Writer) error {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()

			return fmt.Errorf("failed to connect (%s): %w", resp.Status, err)
		}

		return fmt.Errorf("failed to connect: %w", err)
	}

	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			return fmt.Errorf("read failed: %w", err)
		}

		update, err := decodeUpdate(data)
		if err != nil {
			fmt.Fprintf(out, "skipping message: %v\n", err)
			continue
		}

		render(out, &update)
	}
}

func decodeUpdate(data []byte) (models.ViewerUpdate, error) {
	var msg models.StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.ViewerUpdate{}, fmt.Errorf("invalid message: %w", err)
	}

	if msg.Type != models.MessageTypeUpdate {
		return models.ViewerUpdate{}, fmt.Errorf("%w: %q", errUnexpectedMessage, msg.Type)
	}

	var update models.ViewerUpdate
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		return models.ViewerUpdate{}, fmt.Errorf("invalid update payload: %w", err)
	}

	return update, nil
}

func render(out io.Writer, u *models.ViewerUpdate) {
	link := "disconnected"
	if u.Connected {
		link = "connected"
	}

	fmt.Fprintf(out, "=== %s upstream=%s online=%d/%d avg_cpu=%.1f%% ===\n",
		u.Timestamp.Format(time.RFC3339), link, u.Summary.OnlineCount, u.Summary.VisibleCount, u.Summary.AvgCPU)

	for i := range u.Machines {
		m := &u.Machines[i]

		fmt.Fprintf(out, "%-24s %-8s cpu=%5.1f%% ram=%5.1f%% disk=%5.1f%% health=%3d %s\n",
			m.Hostname, m.Status, m.CPUPercent, m.RAMPercent, m.DiskPercent, m.Health.Score, m.Health.Status)
	}
}
