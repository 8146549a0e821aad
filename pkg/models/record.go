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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// RecordArity is the number of fields in a durable device record.
const RecordArity = 8

var (
	errRecordArity = errors.New("device record has wrong arity")
	errRecordField = errors.New("device record field has wrong type")
)

// Record is the durable and transport form of a Device. It is encoded as a
// fixed-arity JSON array:
//
//	[hostname, device_hash, ips, macs, server, last_request, last_update, enabled]
//
// Field order and arity are part of the on-disk format.
type Record struct {
	Hostname    string
	DeviceHash  string
	IPs         []string
	MACs        []string
	Server      bool
	LastRequest int64 // unix seconds
	LastUpdate  int64 // unix seconds
	Enabled     bool
}

// ToRecord converts a device into its durable record.
func ToRecord(d *Device) Record {
	return Record{
		Hostname:    d.Hostname,
		DeviceHash:  d.DeviceHash,
		IPs:         slices.Clone(d.IPs),
		MACs:        slices.Clone(d.MACs),
		Server:      d.Role.IsServer(),
		LastRequest: d.LastRequest.Unix(),
		LastUpdate:  d.LastUpdate.Unix(),
		Enabled:     d.Enabled,
	}
}

// FromRecord converts a durable record back into a device. Timestamps come
// back in UTC with whole-second precision.
func FromRecord(r Record) *Device {
	return &Device{
		Hostname:    r.Hostname,
		DeviceHash:  r.DeviceHash,
		IPs:         slices.Clone(r.IPs),
		MACs:        slices.Clone(r.MACs),
		Role:        RoleFromServerFlag(r.Server),
		LastRequest: time.Unix(r.LastRequest, 0).UTC(),
		LastUpdate:  time.Unix(r.LastUpdate, 0).UTC(),
		Enabled:     r.Enabled,
	}
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([RecordArity]interface{}{
		r.Hostname,
		r.DeviceHash,
		nonNil(r.IPs),
		nonNil(r.MACs),
		r.Server,
		r.LastRequest,
		r.LastUpdate,
		r.Enabled,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	if len(fields) != RecordArity {
		return fmt.Errorf("%w: got %d fields, want %d", errRecordArity, len(fields), RecordArity)
	}

	targets := []interface{}{
		&r.Hostname,
		&r.DeviceHash,
		&r.IPs,
		&r.MACs,
		&r.Server,
		&r.LastRequest,
		&r.LastUpdate,
		&r.Enabled,
	}

	for i, target := range targets {
		if err := json.Unmarshal(fields[i], target); err != nil {
			return fmt.Errorf("%w: index %d: %w", errRecordField, i, err)
		}
	}

	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
