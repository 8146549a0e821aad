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
	"fmt"
	"time"

	"github.com/mfreeman451/killswitch/pkg/heartbeat"
)

const (
	defaultListenAddr      = ":5000"
	defaultInactiveTimeout = 75 * time.Second
	defaultKillFirst       = 60 * time.Second
	defaultKillSecond      = 120 * time.Second
	defaultRegistryPath    = "hosts.json"
	defaultDBPath          = "killswitch.db"
	defaultRetention       = 30 * 24 * time.Hour
	defaultCleanupInterval = time.Hour
	defaultMetricRetention = 100
	defaultMetricMaxNodes  = 10000
)

// Validate fills defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.InactiveTimeout < 0 {
		return errInvalidInactiveTimeout
	}

	if c.Delays.KillFirst < 0 || c.Delays.KillSecond < 0 {
		return errInvalidDelays
	}

	c.InactiveTimeout = c.InactiveTimeout.OrDefault(defaultInactiveTimeout)
	c.MonitorInterval = c.MonitorInterval.OrDefault(c.InactiveTimeout.Std())
	c.Delays.KillFirst = c.Delays.KillFirst.OrDefault(defaultKillFirst)
	c.Delays.KillSecond = c.Delays.KillSecond.OrDefault(defaultKillSecond)
	c.Client.PingInterval = c.Client.PingInterval.OrDefault(heartbeat.DefaultPingInterval)
	c.Client.UpdateInterval = c.Client.UpdateInterval.OrDefault(heartbeat.DefaultUpdateInterval)

	if c.Storage.RegistryPath == "" {
		c.Storage.RegistryPath = defaultRegistryPath
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = defaultDBPath
	}

	c.Storage.Retention = c.Storage.Retention.OrDefault(defaultRetention)
	c.Storage.CleanupInterval = c.Storage.CleanupInterval.OrDefault(defaultCleanupInterval)

	if c.Metrics.Retention <= 0 {
		c.Metrics.Retention = defaultMetricRetention
	}

	if c.Metrics.MaxNodes <= 0 {
		c.Metrics.MaxNodes = defaultMetricMaxNodes
	}

	if err := c.UPS.Validate(); err != nil {
		return fmt.Errorf("ups: %w", err)
	}

	return nil
}
