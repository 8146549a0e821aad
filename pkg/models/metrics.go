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

package models

import "time"

// MetricPoint is a single heartbeat observation for a device.
type MetricPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	ResponseTime int64     `json:"response_time"`
	Action       string    `json:"action"`
}

// MetricsConfig controls the in-memory heartbeat metrics.
type MetricsConfig struct {
	Enabled   bool `json:"enabled" toml:"enabled"`
	Retention int  `json:"retention" toml:"retention"`
	MaxNodes  int  `json:"max_nodes" toml:"max_nodes"`
}
