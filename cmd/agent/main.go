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

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfreeman451/killswitch/pkg/agent"
	"github.com/mfreeman451/killswitch/pkg/config"
	"github.com/mfreeman451/killswitch/pkg/lifecycle"
	"github.com/mfreeman451/killswitch/pkg/models"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Optional agent config file (.json or .toml)")
	dryRun := flag.Bool("dry-run", false, "Log halt requests instead of powering off")
	app := flag.Bool("app", false, "Register as an application host (halted in the first phase)")
	flag.Parse()

	var cfg agent.Config
	if *configPath != "" {
		if err := config.LoadFile(*configPath, &cfg); err != nil {
			return err
		}
	}

	cfg.ApplyEnv()

	if *dryRun {
		cfg.DryRun = true
	}

	if *app {
		cfg.Role = models.RoleApp
	}

	if err := lifecycle.InitializeLogger(cfg.Logging); err != nil {
		return err
	}

	agentLogger, err := lifecycle.CreateComponentLogger("killswitch-agent", cfg.Logging)
	if err != nil {
		return err
	}

	a, err := agent.New(&cfg, agentLogger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := a.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		agentLogger.Warn().Err(err).Msg("Failed to notify authority of shutdown")
	}

	return runErr
}
