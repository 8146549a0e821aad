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

	"github.com/mfreeman451/killswitch/pkg/cloud"
	"github.com/mfreeman451/killswitch/pkg/config"
	"github.com/mfreeman451/killswitch/pkg/lifecycle"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/killswitch/cloud.json", "Path to cloud config file (.json or .toml)")
	flag.Parse()

	var cfg cloud.Config
	if err := config.LoadAndValidate(*configPath, &cfg); err != nil {
		return err
	}

	if err := lifecycle.InitializeLogger(cfg.Logging); err != nil {
		return err
	}

	mainLogger, err := lifecycle.CreateComponentLogger("killswitch-cloud", cfg.Logging)
	if err != nil {
		return err
	}

	ctx := context.Background()

	server, err := cloud.NewServer(ctx, &cfg, mainLogger)
	if err != nil {
		return err
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ListenAddr:  cfg.GrpcAddr,
		ServiceName: "killswitch.Authority",
		Service:     server,
		Security:    cfg.Security,
		Logger:      mainLogger,
	})
}
