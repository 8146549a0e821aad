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

package agent

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mfreeman451/killswitch/pkg/config"
	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
)

const (
	DefaultEndpoint       = "http://127.0.0.1:5000/client"
	DefaultHashFile       = "device.hash"
	DefaultLogFile        = "killswitch-agent.log"
	DefaultMaxRetries     = 3
	defaultRetryDelay     = 5 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultPingInterval   = 60 * time.Second
	defaultUpdateInterval = 12 * time.Hour
)

// Config drives a single agent process. Environment variables override
// file values, see ApplyEnv.
type Config struct {
	Endpoint       string          `json:"endpoint" toml:"endpoint"`
	HashFile       string          `json:"hash_file" toml:"hash_file"`
	LogFile        string          `json:"log_file" toml:"log_file"`
	Role           models.Role     `json:"role" toml:"role"`
	MaxRetries     int             `json:"max_retries" toml:"max_retries"`
	RetryDelay     config.Duration `json:"retry_delay" toml:"retry_delay"`
	RequestTimeout config.Duration `json:"request_timeout" toml:"request_timeout"`
	PingInterval   config.Duration `json:"ping_interval" toml:"ping_interval"`
	UpdateInterval config.Duration `json:"update_interval" toml:"update_interval"`
	DryRun         bool            `json:"dry_run" toml:"dry_run"`
	HaltCommand    []string        `json:"halt_command" toml:"halt_command"`
	Logging        *logger.Config  `json:"logging" toml:"logging"`
}

// ApplyEnv overlays ENDPOINT, HASH_FILE, LOG_FILE and NOT_SERVER.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ENDPOINT"); v != "" {
		c.Endpoint = v
	}

	if v := os.Getenv("HASH_FILE"); v != "" {
		c.HashFile = v
	}

	if v := os.Getenv("LOG_FILE"); v != "" {
		c.LogFile = v
	}

	switch os.Getenv("NOT_SERVER") {
	case "1":
		c.Role = models.RoleApp
	case "0":
		c.Role = models.RoleServer
	}
}

// Validate fills defaults. Hosts are servers unless configured otherwise.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}

	if c.HashFile == "" {
		c.HashFile = DefaultHashFile
	}

	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}

	switch c.Role {
	case "":
		c.Role = models.RoleServer
	case models.RoleApp, models.RoleServer:
	default:
		return fmt.Errorf("%w: %q", errUnknownRole, c.Role)
	}

	if c.MaxRetries < 0 {
		return errInvalidRetries
	}

	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}

	c.RetryDelay = c.RetryDelay.OrDefault(defaultRetryDelay)
	c.RequestTimeout = c.RequestTimeout.OrDefault(defaultRequestTimeout)
	c.PingInterval = c.PingInterval.OrDefault(defaultPingInterval)
	c.UpdateInterval = c.UpdateInterval.OrDefault(defaultUpdateInterval)

	return nil
}

// Agent keeps one host registered with the authority and halts it when
// a phased command reaches the host's role.
type Agent struct {
	mu         sync.Mutex
	config     *Config
	logger     logger.Logger
	client     *http.Client
	discoverer Discoverer
	halter     Halter
	hashFile   *HashFile
	now        func() time.Time

	hostname       string
	ips            []string
	macs           []string
	deviceHash     string
	lastUpdate     time.Time
	pingInterval   time.Duration
	updateInterval time.Duration
}

// Interface is one address/MAC pair of an up network interface.
type Interface struct {
	Name string
	IP   string
	MAC  string
}
