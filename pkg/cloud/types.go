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

package cloud

import (
	"sync"
	"time"

	"github.com/mfreeman451/killswitch/pkg/cloud/alerts"
	"github.com/mfreeman451/killswitch/pkg/cloud/api"
	"github.com/mfreeman451/killswitch/pkg/command"
	"github.com/mfreeman451/killswitch/pkg/config"
	"github.com/mfreeman451/killswitch/pkg/db"
	"github.com/mfreeman451/killswitch/pkg/events"
	"github.com/mfreeman451/killswitch/pkg/grpc"
	"github.com/mfreeman451/killswitch/pkg/heartbeat"
	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/metrics"
	"github.com/mfreeman451/killswitch/pkg/models"
	"github.com/mfreeman451/killswitch/pkg/monitor"
	"github.com/mfreeman451/killswitch/pkg/registry"
	"github.com/mfreeman451/killswitch/pkg/ups"
)

// Delays are the lengths of the two phases of a phased command.
type Delays struct {
	KillFirst  config.Duration `json:"kill_first" toml:"kill_first"`
	KillSecond config.Duration `json:"kill_second" toml:"kill_second"`
}

// ClientIntervals are handed to clients in update responses.
type ClientIntervals struct {
	PingInterval   config.Duration `json:"ping_interval" toml:"ping_interval"`
	UpdateInterval config.Duration `json:"update_interval" toml:"update_interval"`
}

type Identity struct {
	SortMACs bool `json:"sort_macs" toml:"sort_macs"`
}

type Storage struct {
	RegistryPath    string          `json:"registry_path" toml:"registry_path"`
	DBPath          string          `json:"db_path" toml:"db_path"`
	Retention       config.Duration `json:"retention" toml:"retention"`
	CleanupInterval config.Duration `json:"cleanup_interval" toml:"cleanup_interval"`
}

type Config struct {
	ListenAddr      string                 `json:"listen_addr" toml:"listen_addr"`
	GrpcAddr        string                 `json:"grpc_addr" toml:"grpc_addr"`
	MaxConnections  int                    `json:"max_connections" toml:"max_connections"`
	MaxBodyBytes    int64                  `json:"max_body_bytes" toml:"max_body_bytes"`
	APIKey          string                 `json:"api_key" toml:"api_key"`
	StatusPush      config.Duration        `json:"status_push" toml:"status_push"`
	InactiveTimeout config.Duration        `json:"inactive_timeout" toml:"inactive_timeout"`
	MonitorInterval config.Duration        `json:"monitor_interval" toml:"monitor_interval"`
	Delays          Delays                 `json:"delays" toml:"delays"`
	Client          ClientIntervals        `json:"client" toml:"client"`
	Identity        Identity               `json:"identity" toml:"identity"`
	Storage         Storage                `json:"storage" toml:"storage"`
	Logging         *logger.Config         `json:"logging" toml:"logging"`
	Webhooks        []alerts.WebhookConfig `json:"webhooks,omitempty" toml:"webhooks"`
	Telegram        alerts.TelegramConfig  `json:"telegram" toml:"telegram"`
	UPS             ups.Config             `json:"ups" toml:"ups"`
	Metrics         models.MetricsConfig   `json:"metrics" toml:"metrics"`
	Security        *grpc.SecurityConfig   `json:"security" toml:"security"`
}

// Server is the authority: it owns the registry, the phased command timer
// and everything that reacts to device transitions.
type Server struct {
	mu        sync.Mutex
	config    *Config
	logger    logger.Logger
	now       func() time.Time
	registry  *registry.Store
	timer     *command.Timer
	bus       *events.Bus
	monitor   *monitor.Monitor
	handler   *heartbeat.Handler
	db        db.Service
	notifier  alerts.Notifier
	metrics   metrics.MetricCollector
	ups       *ups.Watcher
	apiServer *api.APIServer
	cancel    func()
	wg        sync.WaitGroup
}
