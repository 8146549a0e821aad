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

// Package grpc pkg/grpc/security.go provides transport security for the
// authority's gRPC health endpoint.
package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

type SecurityMode string

const (
	SecurityModeNone   SecurityMode = "none"
	SecurityModeSpiffe SecurityMode = "spiffe"
	SecurityModeMTLS   SecurityMode = "mtls"

	defaultWorkloadSocket = "unix:/run/spire/sockets/agent.sock"
)

// SecurityConfig selects how the health endpoint authenticates callers.
// In mtls mode CertDir must hold server.pem, server-key.pem and root.pem.
type SecurityConfig struct {
	Mode           SecurityMode `json:"mode" toml:"mode"`
	CertDir        string       `json:"cert_dir" toml:"cert_dir"`
	TrustDomain    string       `json:"trust_domain" toml:"trust_domain"`
	WorkloadSocket string       `json:"workload_socket" toml:"workload_socket"`
}

// NoSecurityProvider implements SecurityProvider with no security (development only).
type NoSecurityProvider struct{}

func (*NoSecurityProvider) GetServerCredentials(context.Context) (grpc.ServerOption, error) {
	return grpc.Creds(insecure.NewCredentials()), nil
}

func (*NoSecurityProvider) Close() error {
	return nil
}

// MTLSProvider implements SecurityProvider with mutual TLS from files.
type MTLSProvider struct {
	serverCreds credentials.TransportCredentials
}

func NewMTLSProvider(config *SecurityConfig, log logger.Logger) (*MTLSProvider, error) {
	if config == nil {
		return nil, errSecurityConfigRequired
	}

	if config.CertDir == "" {
		return nil, errCertDirRequired
	}

	log.Info().Str("cert_dir", config.CertDir).Msg("Loading server credentials")

	creds, err := loadServerCredentials(config.CertDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadServerCreds, err)
	}

	return &MTLSProvider{serverCreds: creds}, nil
}

func loadServerCredentials(certDir string) (credentials.TransportCredentials, error) {
	certificate, err := tls.LoadX509KeyPair(
		filepath.Join(certDir, "server.pem"),
		filepath.Join(certDir, "server-key.pem"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadServerCert, err)
	}

	caCert, err := os.ReadFile(filepath.Join(certDir, "root.pem"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToReadCACert, err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errFailedToAppendCACert
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{certificate},
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}), nil
}

func (p *MTLSProvider) GetServerCredentials(context.Context) (grpc.ServerOption, error) {
	return grpc.Creds(p.serverCreds), nil
}

func (*MTLSProvider) Close() error {
	return nil
}

// SpiffeProvider implements SecurityProvider using the SPIFFE workload API.
type SpiffeProvider struct {
	trustDomain spiffeid.TrustDomain
	client      *workloadapi.Client
	source      *workloadapi.X509Source
	log         logger.Logger
	closeOnce   sync.Once
}

func NewSpiffeProvider(ctx context.Context, config *SecurityConfig, log logger.Logger) (*SpiffeProvider, error) {
	var td spiffeid.TrustDomain

	if config.TrustDomain != "" {
		parsed, err := spiffeid.TrustDomainFromString(config.TrustDomain)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidTrustDomain, err)
		}

		td = parsed
	}

	socket := config.WorkloadSocket
	if socket == "" {
		socket = defaultWorkloadSocket
	}

	client, err := workloadapi.New(ctx, workloadapi.WithAddr(socket))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedWorkloadAPIClient, err)
	}

	source, err := workloadapi.NewX509Source(ctx, workloadapi.WithClient(client))
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("%w: %w", errFailedToCreateX509Source, err)
	}

	return &SpiffeProvider{
		trustDomain: td,
		client:      client,
		source:      source,
		log:         log,
	}, nil
}

func (p *SpiffeProvider) GetServerCredentials(context.Context) (grpc.ServerOption, error) {
	authorizer := tlsconfig.AuthorizeAny()
	if !p.trustDomain.IsZero() {
		authorizer = tlsconfig.AuthorizeMemberOf(p.trustDomain)
	}

	tlsConfig := tlsconfig.MTLSServerConfig(p.source, p.source, authorizer)

	return grpc.Creds(credentials.NewTLS(tlsConfig)), nil
}

func (p *SpiffeProvider) Close() error {
	var err error

	p.closeOnce.Do(func() {
		if p.source != nil {
			if err = p.source.Close(); err != nil {
				p.log.Warn().Err(err).Msg("Failed to close X.509 source")

				return
			}
		}

		if p.client != nil {
			err = p.client.Close()
		}
	})

	return err
}

// NewSecurityProvider creates the appropriate security provider based on mode.
// A nil config means no security.
func NewSecurityProvider(ctx context.Context, config *SecurityConfig, log logger.Logger) (SecurityProvider, error) {
	if config == nil || config.Mode == "" {
		return &NoSecurityProvider{}, nil
	}

	log.Info().Str("mode", string(config.Mode)).Msg("Creating security provider")

	switch config.Mode {
	case SecurityModeNone:
		return &NoSecurityProvider{}, nil
	case SecurityModeMTLS:
		return NewMTLSProvider(config, log)
	case SecurityModeSpiffe:
		return NewSpiffeProvider(ctx, config, log)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownSecurityMode, config.Mode)
	}
}
