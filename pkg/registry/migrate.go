/*-
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
	"encoding/json"
	"fmt"

	"github.com/mfreeman451/killswitch/pkg/models"
)

// legacyArity is the record size written before the file was versioned:
// (hostname, device_hash, ips, macs, last_request, enable).
const legacyArity = 6

// migrateLegacy upgrades a version-less document. Legacy records carry no
// role or update time: the role defaults to server, so a migrated host is
// only halted in the second phase until its next update reports the real
// role, and last_update starts at last_request.
func migrateLegacy(data []byte) ([]models.Record, error) {
	var records []models.Record

	err := forEachOrdered(data, func(key string, raw json.RawMessage) error {
		var fields []json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("%w: host %s: %w", errLegacyRecord, key, err)
		}

		switch len(fields) {
		case models.RecordArity:
			var r models.Record
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("%w: host %s: %w", errLegacyRecord, key, err)
			}

			records = append(records, r)

			return nil
		case legacyArity:
			r, err := legacyRecord(fields)
			if err != nil {
				return fmt.Errorf("%w: host %s: %w", errLegacyRecord, key, err)
			}

			if r.DeviceHash == "" {
				r.DeviceHash = key
			}

			records = append(records, r)

			return nil
		default:
			return fmt.Errorf("%w: host %s has %d fields", errLegacyRecord, key, len(fields))
		}
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func legacyRecord(fields []json.RawMessage) (models.Record, error) {
	r := models.Record{Server: true}

	var lastRequest float64

	targets := []interface{}{
		&r.Hostname,
		&r.DeviceHash,
		&r.IPs,
		&r.MACs,
		&lastRequest,
		&r.Enabled,
	}

	for i, target := range targets {
		if err := json.Unmarshal(fields[i], target); err != nil {
			return r, fmt.Errorf("index %d: %w", i, err)
		}
	}

	r.LastRequest = int64(lastRequest)
	r.LastUpdate = r.LastRequest

	return r, nil
}
