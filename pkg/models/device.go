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

// Package models pkg/models/device.go holds the device model shared by the
// registry, the heartbeat protocol and the API.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"
)

// IdentityLength is the length of a hex encoded SHA-256 identity hash.
const IdentityLength = sha256.Size * 2

// Role decides which phase of a phased command applies to a device.
type Role string

const (
	RoleApp    Role = "app"    // halted during the first phase
	RoleServer Role = "server" // halted during the second phase
)

// RoleFromServerFlag maps the wire "server" flag onto a Role.
func RoleFromServerFlag(server bool) Role {
	if server {
		return RoleServer
	}

	return RoleApp
}

// IsServer reports whether the role is RoleServer.
func (r Role) IsServer() bool {
	return r == RoleServer
}

// Device is a single registered host.
type Device struct {
	Hostname    string    `json:"hostname"`
	DeviceHash  string    `json:"device_hash"`
	IPs         []string  `json:"ips"`
	MACs        []string  `json:"macs"`
	Role        Role      `json:"role"`
	LastRequest time.Time `json:"last_request"`
	LastUpdate  time.Time `json:"last_update"`
	Enabled     bool      `json:"enabled"`
}

// NewDevice builds an enabled device stamped with now and its identity hash.
func NewDevice(hostname string, ips, macs []string, role Role, now time.Time) *Device {
	now = now.UTC()

	d := &Device{
		Hostname:    hostname,
		IPs:         slices.Clone(ips),
		MACs:        slices.Clone(macs),
		Role:        role,
		LastRequest: now,
		LastUpdate:  now,
		Enabled:     true,
	}
	d.Rehash()

	return d
}

// ComputeIdentity derives the identity hash of a host. The MAC list is hashed
// in the order given, rendered the way the fleet's existing hosts.json
// identities were minted: hostname followed by ['mac1', 'mac2'].
func ComputeIdentity(hostname string, macs []string) string {
	var b strings.Builder

	b.WriteString(hostname)
	b.WriteByte('[')

	for i, mac := range macs {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteByte('\'')
		b.WriteString(mac)
		b.WriteByte('\'')
	}

	b.WriteByte(']')

	sum := sha256.Sum256([]byte(b.String()))

	return hex.EncodeToString(sum[:])
}

// CanonicalMACs lower-cases MAC addresses, uses ':' separators and sorts them,
// so enumeration order on the host no longer affects the identity.
func CanonicalMACs(macs []string) []string {
	out := make([]string, len(macs))

	for i, mac := range macs {
		out[i] = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
	}

	slices.Sort(out)

	return out
}

// ValidIdentity reports whether h looks like an identity hash.
func ValidIdentity(h string) bool {
	if len(h) != IdentityLength {
		return false
	}

	_, err := hex.DecodeString(h)

	return err == nil
}

// Rehash recomputes DeviceHash from Hostname and MACs and returns it.
func (d *Device) Rehash() string {
	d.DeviceHash = ComputeIdentity(d.Hostname, d.MACs)

	return d.DeviceHash
}

// Inactive reports whether the device has been silent for longer than timeout.
func (d *Device) Inactive(now time.Time, timeout time.Duration) bool {
	return now.Sub(d.LastRequest) > timeout
}

// Clone returns a deep copy.
func (d *Device) Clone() Device {
	c := *d
	c.IPs = slices.Clone(d.IPs)
	c.MACs = slices.Clone(d.MACs)

	return c
}

// Equal compares two devices field by field.
func (d *Device) Equal(o *Device) bool {
	return d.Hostname == o.Hostname &&
		d.DeviceHash == o.DeviceHash &&
		slices.Equal(d.IPs, o.IPs) &&
		slices.Equal(d.MACs, o.MACs) &&
		d.Role == o.Role &&
		d.LastRequest.Equal(o.LastRequest) &&
		d.LastUpdate.Equal(o.LastUpdate) &&
		d.Enabled == o.Enabled
}

func (d *Device) String() string {
	return "Device(name='" + d.Hostname + "' identifier=('" + d.DeviceHash + "'; " +
		strings.Join(d.MACs, ",") + "; " + strings.Join(d.IPs, ",") + "))"
}
