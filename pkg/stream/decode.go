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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/carverauto/fleetwatch/pkg/models"
)

var (
	errIgnoredMessage = errors.New("ignored message type")
	errMalformed      = errors.New("malformed stream message")
	errMissingBatch   = errors.New("update message without data")
)

// decodeUpdate extracts the machine batch from an update envelope. Messages
// with any other type return errIgnoredMessage; everything else that fails is
// wrapped in errMalformed.
func decodeUpdate(payload []byte) ([]models.MachineSnapshot, error) {
	var msg models.StreamMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}

	if msg.Type != models.MessageTypeUpdate {
		return nil, fmt.Errorf("%w: %q", errIgnoredMessage, msg.Type)
	}

	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return nil, fmt.Errorf("%w: %w", errMalformed, errMissingBatch)
	}

	var batch []models.MachineSnapshot
	if err := json.Unmarshal(msg.Data, &batch); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}

	return batch, nil
}
