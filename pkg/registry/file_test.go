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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfreeman451/killswitch/pkg/models"
)

func TestFilePersisterCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "hosts.json")
	p := NewFilePersister(path, nil)

	records, err := p.Load()
	require.NoError(t, err)
	assert.Empty(t, records)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"hosts":{}}`, string(data))
}

func TestFilePersisterRoundTripKeepsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	p := NewFilePersister(path, nil)

	now := time.Unix(1_700_000_000, 0).UTC()

	var want []models.Record

	for _, name := range []string{"zeta", "alpha", "mid"} {
		d := models.NewDevice(name, []string{"10.0.0.1"}, []string{"aa:" + name}, models.RoleServer, now)
		want = append(want, models.ToRecord(d))
	}

	require.NoError(t, p.Save(want))

	got, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerm), info.Mode().Perm())

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFilePersisterEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), filePerm))

	records, err := NewFilePersister(path, nil).Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFilePersisterRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":7,"hosts":{}}`), filePerm))

	_, err := NewFilePersister(path, nil).Load()
	require.ErrorIs(t, err, errUnsupportedVersion)
}

func TestFilePersisterRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"hosts":{"abc":[1,2]}}`), filePerm))

	_, err := NewFilePersister(path, nil).Load()
	require.ErrorIs(t, err, errMalformedDocument)
}

func TestFilePersisterMigratesLegacyDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.json")

	hash := models.ComputeIdentity("db-01", []string{"aa:bb"})
	legacy := `{"` + hash + `": ["db-01", "` + hash + `", ["10.0.0.5"], ["aa:bb"], 1700000000.25, true]}`

	require.NoError(t, os.WriteFile(path, []byte(legacy), filePerm))

	records, err := NewFilePersister(path, nil).Load()
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "db-01", r.Hostname)
	assert.Equal(t, hash, r.DeviceHash)
	assert.Equal(t, []string{"10.0.0.5"}, r.IPs)
	assert.True(t, r.Server)
	assert.True(t, r.Enabled)
	assert.Equal(t, int64(1_700_000_000), r.LastRequest)
	assert.Equal(t, r.LastRequest, r.LastUpdate)

	backup, err := os.ReadFile(path + ".v0.bak")
	require.NoError(t, err)
	assert.Equal(t, legacy, string(backup))

	var doc struct {
		Version int                        `json:"version"`
		Hosts   map[string]json.RawMessage `json:"hosts"`
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, FileVersion, doc.Version)
	assert.Contains(t, doc.Hosts, hash)
}

func TestFilePersisterRejectsLegacyArity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"abc": ["x", "abc", [], []]}`), filePerm))

	_, err := NewFilePersister(path, nil).Load()
	require.ErrorIs(t, err, errLegacyRecord)
}

func TestStoreWithFilePersisterSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.json")

	s, err := New(NewFilePersister(path, nil))
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0).UTC()
	app := models.NewDevice("app-01", []string{"10.0.0.2"}, []string{"aa:02"}, models.RoleApp, now)
	srv := models.NewDevice("srv-01", []string{"10.0.0.3"}, []string{"aa:03"}, models.RoleServer, now)

	for _, d := range []*models.Device{app, srv} {
		_, err := s.Add(d)
		require.NoError(t, err)
	}

	reopened, err := New(NewFilePersister(path, nil))
	require.NoError(t, err)

	all := reopened.All()
	require.Len(t, all, 2)
	assert.True(t, app.Equal(&all[0]))
	assert.True(t, srv.Equal(&all[1]))
}
