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

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mfreeman451/killswitch/pkg/command"
	"github.com/mfreeman451/killswitch/pkg/config"
	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
)

const (
	defaultMaxConnections    = 256
	defaultMaxBodyBytes      = 64 << 10
	defaultStatusPush        = time.Second
	defaultEventLimit        = 100
	defaultReadHeaderTimeout = 10 * time.Second
	apiKeyHeader             = "X-API-Key"
	defaultTriggerSource     = "api"
)

// StatusSnapshot is the authority state shown on the status endpoints and
// pushed over the websocket. Phase and devices are read at Timestamp.
type StatusSnapshot struct {
	Phase       command.Phase    `json:"phase"`
	Status      command.Status   `json:"status"`
	KillFirst   int              `json:"kill_first"`
	KillSecond  int              `json:"kill_second"`
	Remaining   int              `json:"remaining"`
	LastTrigger *command.Trigger `json:"last_trigger,omitempty"`
	Devices     []DeviceView     `json:"devices"`
	Total       int              `json:"total"`
	Enabled     int              `json:"enabled"`
	Timestamp   time.Time        `json:"timestamp"`
}

// DeviceView is a registered device with its liveness as seen now.
type DeviceView struct {
	models.Device
	Inactive bool `json:"inactive"`
}

// TriggerRequest is the optional body of the admin trigger endpoint.
type TriggerRequest struct {
	Source string `json:"source"`
}

// TriggerResponse acknowledges an admin trigger.
type TriggerResponse struct {
	TriggeredAt time.Time     `json:"triggered_at"`
	Source      string        `json:"source"`
	Phase       command.Phase `json:"phase"`
}

// Config controls the HTTP binding.
type Config struct {
	ListenAddr     string          `json:"listen_addr" toml:"listen_addr"`
	MaxConnections int             `json:"max_connections" toml:"max_connections"`
	MaxBodyBytes   int64           `json:"max_body_bytes" toml:"max_body_bytes"`
	APIKey         string          `json:"api_key" toml:"api_key"`
	StatusPush     config.Duration `json:"status_push" toml:"status_push"`
}

type APIServer struct {
	mu         sync.Mutex
	router     *mux.Router
	authority  Authority
	config     Config
	logger     logger.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
	done       chan struct{}
	closeOnce  sync.Once
}
