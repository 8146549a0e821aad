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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	ListenAddr string   `json:"listen_addr" toml:"listen_addr"`
	Timeout    Duration `json:"timeout" toml:"timeout"`
	validated  bool
}

var errMissingListen = errors.New("listen_addr required")

func (c *sampleConfig) Validate() error {
	if c.ListenAddr == "" {
		return errMissingListen
	}

	c.validated = true

	return nil
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAndValidateJSON(t *testing.T) {
	path := writeFile(t, "cloud.json", `{"listen_addr": ":5000", "timeout": "75s"}`)

	var cfg sampleConfig
	require.NoError(t, LoadAndValidate(path, &cfg))

	assert.Equal(t, ":5000", cfg.ListenAddr)
	assert.Equal(t, 75*time.Second, cfg.Timeout.Std())
	assert.True(t, cfg.validated)
}

func TestLoadAndValidateTOML(t *testing.T) {
	path := writeFile(t, "cloud.toml", "listen_addr = \":6000\"\ntimeout = \"2m\"\n")

	var cfg sampleConfig
	require.NoError(t, LoadAndValidate(path, &cfg))

	assert.Equal(t, ":6000", cfg.ListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.Timeout.Std())
}

func TestLoadAndValidateFailsValidation(t *testing.T) {
	path := writeFile(t, "cloud.json", `{"timeout": "1s"}`)

	var cfg sampleConfig
	assert.ErrorIs(t, LoadAndValidate(path, &cfg), errMissingListen)
}

func TestLoadFileMissing(t *testing.T) {
	var cfg sampleConfig
	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "nope.json"), &cfg))
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", input: `"90s"`, want: 90 * time.Second},
		{name: "nanoseconds", input: `1000`, want: time.Microsecond},
		{name: "bad string", input: `"soon"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := d.UnmarshalJSON([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Std())
		})
	}
}

func TestDurationOrDefault(t *testing.T) {
	assert.Equal(t, Duration(time.Minute), Duration(0).OrDefault(time.Minute))
	assert.Equal(t, Duration(time.Second), Duration(time.Second).OrDefault(time.Minute))
}
