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
	"context"
	"time"

	"github.com/mfreeman451/killswitch/pkg/command"
	"github.com/mfreeman451/killswitch/pkg/db"
	"github.com/mfreeman451/killswitch/pkg/heartbeat"
	"github.com/mfreeman451/killswitch/pkg/models"
)

// Authority is the state the HTTP binding serves.
type Authority interface {
	HandleHeartbeat(ctx context.Context, body []byte) *heartbeat.Response
	QueryStatus() StatusSnapshot
	Devices() []DeviceView
	Device(hash string) (DeviceView, bool)
	DeviceEvents(ctx context.Context, hash string, limit int) ([]db.DeviceEvent, error)
	DeviceMetrics(hash string) []models.MetricPoint
	Triggers() []command.Trigger
	TriggerPhasedCommand(ctx context.Context, source string) (time.Time, error)
}
