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

// Package ups pkg/ups/types.go
package ups

import (
	"errors"
	"time"

	"github.com/mfreeman451/killswitch/pkg/config"
)

const (
	// BatteryRuntimeOID is upsAdvBatteryRunTimeRemaining from the APC
	// PowerNet MIB, reported in TimeTicks.
	BatteryRuntimeOID = ".1.3.6.1.4.1.318.1.1.1.2.2.3.0"

	DefaultInterval  = 50 * time.Second
	DefaultThreshold = 10 * time.Minute

	defaultPort    = 161
	defaultTimeout = time.Second
	defaultRetries = 1
)

var (
	errNoTargets      = errors.New("ups watcher enabled without targets")
	errTargetNil      = errors.New("target configuration is nil")
	errHostRequired   = errors.New("target host is required")
	errUnsupportedVer = errors.New("unsupported SNMP version")
	errNoValue        = errors.New("no runtime value returned")
	errValueType      = errors.New("unexpected runtime value type")
)

// SNMPVersion represents supported SNMP versions.
type SNMPVersion string

const (
	Version1  SNMPVersion = "v1"
	Version2c SNMPVersion = "v2c"
)

// Target is one UPS management card.
type Target struct {
	Name      string          `json:"name" toml:"name"`
	Host      string          `json:"host" toml:"host"`
	Port      uint16          `json:"port" toml:"port"`
	Community string          `json:"community" toml:"community"`
	Version   SNMPVersion     `json:"version" toml:"version"`
	Timeout   config.Duration `json:"timeout" toml:"timeout"`
	Retries   int             `json:"retries" toml:"retries"`
	// OID overrides the runtime OID for non-APC cards. The value must be a
	// TimeTicks or an integer number of seconds.
	OID string `json:"oid,omitempty" toml:"oid"`
}

type Config struct {
	Enabled   bool            `json:"enabled" toml:"enabled"`
	Interval  config.Duration `json:"interval" toml:"interval"`
	Threshold config.Duration `json:"threshold" toml:"threshold"`
	Targets   []Target        `json:"targets" toml:"targets"`
}

// Validate fills defaults and checks every target.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	c.Interval = c.Interval.OrDefault(DefaultInterval)
	c.Threshold = c.Threshold.OrDefault(DefaultThreshold)

	if len(c.Targets) == 0 {
		return errNoTargets
	}

	for i := range c.Targets {
		if err := validateTarget(&c.Targets[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateTarget(target *Target) error {
	if target == nil {
		return errTargetNil
	}

	if target.Host == "" {
		return errHostRequired
	}

	if target.Name == "" {
		target.Name = target.Host
	}

	if target.Port == 0 {
		target.Port = defaultPort
	}

	if target.Community == "" {
		target.Community = "public"
	}

	if target.Version == "" {
		target.Version = Version2c
	}

	if target.Timeout == 0 {
		target.Timeout = config.Duration(defaultTimeout)
	}

	if target.Retries == 0 {
		target.Retries = defaultRetries
	}

	if target.OID == "" {
		target.OID = BatteryRuntimeOID
	}

	return nil
}
