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

package grpc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestNoSecurityProvider(t *testing.T) {
	provider := &NoSecurityProvider{}

	opt, err := provider.GetServerCredentials(context.Background())
	require.NoError(t, err)
	require.NotNil(t, opt)

	s := grpc.NewServer(opt)
	defer s.Stop()

	assert.NoError(t, provider.Close())
}

func TestMTLSProvider(t *testing.T) {
	log := logger.NewTestLogger()

	t.Run("loads server credentials", func(t *testing.T) {
		dir := t.TempDir()
		generateTestCertificates(t, dir)

		provider, err := NewMTLSProvider(&SecurityConfig{Mode: SecurityModeMTLS, CertDir: dir}, log)
		require.NoError(t, err)

		opt, err := provider.GetServerCredentials(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, opt)
		assert.NoError(t, provider.Close())
	})

	t.Run("missing config", func(t *testing.T) {
		_, err := NewMTLSProvider(nil, log)
		require.ErrorIs(t, err, errSecurityConfigRequired)
	})

	t.Run("missing cert dir", func(t *testing.T) {
		_, err := NewMTLSProvider(&SecurityConfig{Mode: SecurityModeMTLS}, log)
		require.ErrorIs(t, err, errCertDirRequired)
	})

	t.Run("missing CA", func(t *testing.T) {
		dir := t.TempDir()
		generateTestCertificates(t, dir)
		require.NoError(t, os.Remove(filepath.Join(dir, "root.pem")))

		_, err := NewMTLSProvider(&SecurityConfig{Mode: SecurityModeMTLS, CertDir: dir}, log)
		require.ErrorIs(t, err, errFailedToLoadServerCreds)
		assert.ErrorIs(t, err, errFailedToReadCACert)
	})

	t.Run("garbage CA", func(t *testing.T) {
		dir := t.TempDir()
		generateTestCertificates(t, dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "root.pem"), []byte("not a cert"), 0o600))

		_, err := NewMTLSProvider(&SecurityConfig{Mode: SecurityModeMTLS, CertDir: dir}, log)
		require.ErrorIs(t, err, errFailedToAppendCACert)
	})
}

func TestSpiffeProvider(t *testing.T) {
	if _, err := os.Stat("/run/spire/sockets/agent.sock"); err == nil {
		t.Skip("workload API present; invalid trust domain case only")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewSpiffeProvider(ctx, &SecurityConfig{
		Mode:        SecurityModeSpiffe,
		TrustDomain: "invalid trust domain",
	}, logger.NewTestLogger())
	require.ErrorIs(t, err, errInvalidTrustDomain)
}

func TestNewSecurityProvider(t *testing.T) {
	dir := t.TempDir()
	generateTestCertificates(t, dir)

	tests := []struct {
		name    string
		config  *SecurityConfig
		wantErr error
	}{
		{name: "nil config"},
		{name: "empty mode", config: &SecurityConfig{}},
		{name: "none", config: &SecurityConfig{Mode: SecurityModeNone}},
		{name: "mtls", config: &SecurityConfig{Mode: SecurityModeMTLS, CertDir: dir}},
		{name: "unknown", config: &SecurityConfig{Mode: "kerberos"}, wantErr: errUnknownSecurityMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewSecurityProvider(context.Background(), tt.config, logger.NewTestLogger())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)

			opt, err := provider.GetServerCredentials(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, opt)
			assert.NoError(t, provider.Close())
		})
	}
}
