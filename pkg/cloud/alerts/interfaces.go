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

// Package alerts pkg/cloud/alerts/interfaces.go

//go:generate mockgen -destination=mock_alerts.go -package=alerts github.com/mfreeman451/killswitch/pkg/cloud/alerts Notifier

package alerts

import (
	"context"
	"errors"
)

var (
	ErrDisabled = errors.New("notifier is disabled")
	ErrCooldown = errors.New("alert is within cooldown period")
)

// Notifier delivers alerts to one backend.
type Notifier interface {
	// Notify sends an alert through the backend.
	Notify(ctx context.Context, alert *Alert) error

	// IsEnabled returns whether the backend is enabled.
	IsEnabled() bool
}
