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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfreeman451/killswitch/pkg/grpc"
	"github.com/mfreeman451/killswitch/pkg/logger"
	ggrpc "google.golang.org/grpc"
)

const (
	MaxRecvSize     = 4 * 1024 * 1024 // 4MB
	MaxSendSize     = 4 * 1024 * 1024 // 4MB
	ShutdownTimeout = 10 * time.Second
)

var errServiceRequired = errors.New("service required")

// Service defines the interface that all services must implement.
// Start must return once the service is running.
type Service interface {
	Start(context.Context) error
	Stop(context.Context) error
}

// GRPCServiceRegistrar is a function type for registering gRPC services.
type GRPCServiceRegistrar func(*ggrpc.Server) error

// ServerOptions holds configuration for creating a server. An empty
// ListenAddr disables the gRPC health endpoint.
type ServerOptions struct {
	ListenAddr           string
	ServiceName          string
	Service              Service
	RegisterGRPCServices []GRPCServiceRegistrar
	Security             *grpc.SecurityConfig
	Logger               logger.Logger
}

// RunServer starts a service with the provided options and blocks until a
// signal arrives, ctx ends, or the service or gRPC server fails.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	if opts.Service == nil {
		return errServiceRequired
	}

	log := opts.Logger
	if log == nil {
		log = logger.Wrap(logger.WithComponent("lifecycle"))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info().Str("service", opts.ServiceName).Msg("Starting service")

	errChan := make(chan error, 2)

	var grpcServer *grpc.Server

	if opts.ListenAddr != "" {
		srv, closeSecurity, err := setupGRPCServer(ctx, opts, log)
		if err != nil {
			return fmt.Errorf("failed to setup gRPC server: %w", err)
		}

		defer closeSecurity()

		grpcServer = srv

		go func() {
			if err := grpcServer.Start(); err != nil {
				errChan <- err
			}
		}()
	}

	if err := opts.Service.Start(ctx); err != nil {
		if grpcServer != nil {
			grpcServer.Stop(context.Background())
		}

		return fmt.Errorf("failed to start %s: %w", opts.ServiceName, err)
	}

	if grpcServer != nil {
		grpcServer.SetServingStatus(opts.ServiceName, true)
	}

	return handleShutdown(ctx, cancel, grpcServer, opts.Service, errChan, log)
}

func setupGRPCServer(ctx context.Context, opts *ServerOptions, log logger.Logger) (*grpc.Server, func(), error) {
	serverOpts := []grpc.ServerOption{
		grpc.WithMaxRecvSize(MaxRecvSize),
		grpc.WithMaxSendSize(MaxSendSize),
	}

	provider, err := grpc.NewSecurityProvider(ctx, opts.Security, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create security provider: %w", err)
	}

	closeSecurity := func() {
		if err := provider.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close security provider")
		}
	}

	creds, err := provider.GetServerCredentials(ctx)
	if err != nil {
		closeSecurity()

		return nil, nil, fmt.Errorf("failed to get server credentials: %w", err)
	}

	serverOpts = append(serverOpts, grpc.WithServerOptions(creds))

	grpcServer := grpc.NewServer(opts.ListenAddr, log, serverOpts...)
	grpcServer.SetServingStatus(opts.ServiceName, false)

	for _, register := range opts.RegisterGRPCServices {
		if err := register(grpcServer.GetGRPCServer()); err != nil {
			log.Warn().Err(err).Msg("Failed to register gRPC service")
		}
	}

	return grpcServer, closeSecurity, nil
}

func handleShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	grpcServer *grpc.Server,
	svc Service,
	errChan chan error,
	log logger.Logger) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigChan)

	var runErr error

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, initiating shutdown")
	case err := <-errChan:
		log.Error().Err(err).Msg("Server error, initiating shutdown")

		runErr = fmt.Errorf("service error: %w", err)
	case <-ctx.Done():
		log.Info().Msg("Context canceled, initiating shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	cancel()

	if grpcServer != nil {
		grpcServer.Stop(shutdownCtx)
	}

	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during service shutdown")

		return errors.Join(runErr, fmt.Errorf("shutdown error: %w", err))
	}

	return runErr
}
