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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIdentityDeterministic(t *testing.T) {
	macs := []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02"}

	first := ComputeIdentity("web-01", macs)
	second := ComputeIdentity("web-01", macs)

	assert.Equal(t, first, second)
	assert.Len(t, first, IdentityLength)
	assert.True(t, ValidIdentity(first))
}

func TestComputeIdentityMatchesLegacyFormat(t *testing.T) {
	// sha256("host1['aa:bb', 'cc:dd']"), as minted for existing hosts.json entries.
	assert.Equal(t,
		"f2a3b69ea3962652797700b4d5e22063269a5b63972fbe1a3060eebc8cfb3d3d",
		ComputeIdentity("host1", []string{"aa:bb", "cc:dd"}))

	assert.Equal(t, ComputeIdentity("", nil), ComputeIdentity("", []string{}))
}

func TestComputeIdentitySensitivity(t *testing.T) {
	base := ComputeIdentity("db-01", []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02"})

	variants := map[string]string{
		"hostname changed": ComputeIdentity("db-02", []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02"}),
		"mac changed":      ComputeIdentity("db-01", []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:03"}),
		"mac removed":      ComputeIdentity("db-01", []string{"aa:bb:cc:dd:ee:01"}),
		"mac order":        ComputeIdentity("db-01", []string{"aa:bb:cc:dd:ee:02", "aa:bb:cc:dd:ee:01"}),
		"hostname case":    ComputeIdentity("DB-01", []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02"}),
	}

	seen := map[string]string{}

	for name, h := range variants {
		assert.NotEqual(t, base, h, name)

		if other, ok := seen[h]; ok {
			t.Errorf("%s collides with %s", name, other)
		}

		seen[h] = name
	}
}

func TestCanonicalMACs(t *testing.T) {
	got := CanonicalMACs([]string{"AA-BB-CC-DD-EE-02", " aa:bb:cc:dd:ee:01"})
	assert.Equal(t, []string{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02"}, got)

	a := ComputeIdentity("h", CanonicalMACs([]string{"aa:bb", "cc:dd"}))
	b := ComputeIdentity("h", CanonicalMACs([]string{"CC-DD", "aa:bb"}))
	assert.Equal(t, a, b)
}

func TestValidIdentity(t *testing.T) {
	assert.False(t, ValidIdentity(""))
	assert.False(t, ValidIdentity("abc"))
	assert.False(t, ValidIdentity(string(make([]byte, IdentityLength))))
	assert.True(t, ValidIdentity(ComputeIdentity("x", nil)))
}

func TestDeviceInactive(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	timeout := 75 * time.Second

	d := NewDevice("h", nil, nil, RoleApp, now.Add(-76*time.Second))
	assert.True(t, d.Inactive(now, timeout))

	d = NewDevice("h", nil, nil, RoleApp, now.Add(-74*time.Second))
	assert.False(t, d.Inactive(now, timeout))
}

func TestRecordRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 891_000_000, time.FixedZone("X", 3600))

	devices := []*Device{
		NewDevice("app-01", []string{"10.0.0.5"}, []string{"aa:bb:cc:dd:ee:01"}, RoleApp, now),
		NewDevice("srv-01", []string{"10.0.0.6", "fe80::1"}, []string{"aa:bb:cc:dd:ee:02", "aa:bb:cc:dd:ee:03"}, RoleServer, now),
		NewDevice("bare", nil, nil, RoleServer, now),
	}
	devices[1].Enabled = false
	devices[1].LastUpdate = now.Add(-time.Hour)

	for _, d := range devices {
		t.Run(d.Hostname, func(t *testing.T) {
			data, err := json.Marshal(ToRecord(d))
			require.NoError(t, err)

			var r Record
			require.NoError(t, json.Unmarshal(data, &r))

			got := FromRecord(r)

			want := d.Clone()
			want.LastRequest = want.LastRequest.Truncate(time.Second)
			want.LastUpdate = want.LastUpdate.Truncate(time.Second)

			assert.True(t, want.Equal(got), "want %+v got %+v", want, got)
			assert.Equal(t, time.UTC, got.LastRequest.Location())
		})
	}
}

func TestRecordWireLayout(t *testing.T) {
	r := Record{
		Hostname:    "h",
		DeviceHash:  "abc",
		IPs:         []string{"10.0.0.1"},
		MACs:        nil,
		Server:      true,
		LastRequest: 100,
		LastUpdate:  50,
		Enabled:     true,
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `["h","abc",["10.0.0.1"],[],true,100,50,true]`, string(data))
}

func TestRecordRejectsWrongArity(t *testing.T) {
	var r Record

	err := json.Unmarshal([]byte(`["h","abc",[],[],100,true]`), &r)
	assert.ErrorIs(t, err, errRecordArity)

	err = json.Unmarshal([]byte(`["h","abc",[],[],"yes",1,1,true]`), &r)
	assert.ErrorIs(t, err, errRecordField)
}
