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
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mfreeman451/killswitch/pkg/cloud/alerts"
	"github.com/mfreeman451/killswitch/pkg/db"
	"github.com/mfreeman451/killswitch/pkg/events"
	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
)

const statusUnknown = "unknown"

// deviceEventRecorder writes device transitions to the event log and turns
// them into alerts.
type deviceEventRecorder struct {
	db          db.Service
	alerter     alerts.Notifier
	logger      logger.Logger
	now         func() time.Time
	getHostname func() string

	mu sync.Mutex
	// silentSince holds the last_request already reported as inactive per
	// device, so one silence is logged once while the monitor keeps firing.
	silentSince map[string]time.Time
}

func newDeviceEventRecorder(d db.Service, alerter alerts.Notifier, log logger.Logger, now func() time.Time) *deviceEventRecorder {
	return &deviceEventRecorder{
		db:      d,
		alerter: alerter,
		logger:  log,
		now:     now,
		getHostname: func() string {
			hostname, err := os.Hostname()
			if err != nil {
				return statusUnknown
			}

			return hostname
		},
		silentSince: make(map[string]time.Time),
	}
}

// subscribe registers the recorder on every event kind.
func (r *deviceEventRecorder) subscribe(bus *events.Bus) {
	bus.OnInactive(r.callback(events.KindInactive))
	bus.OnShutdown(r.callback(events.KindShutdown))
	bus.OnEnable(r.callback(events.KindEnable))
}

func (r *deviceEventRecorder) callback(kind events.Kind) events.Callback {
	return func(ctx context.Context, d models.Device) error {
		return r.process(ctx, kind, d)
	}
}

func (r *deviceEventRecorder) process(ctx context.Context, kind events.Kind, d models.Device) error {
	if !r.firstReport(kind, d) {
		return nil
	}

	now := r.now().UTC()

	if err := r.db.RecordEvent(ctx, &db.DeviceEvent{
		DeviceHash: d.DeviceHash,
		Hostname:   d.Hostname,
		Kind:       string(kind),
		Timestamp:  now,
	}); err != nil {
		r.forget(d.DeviceHash)

		return fmt.Errorf("record %s event: %w", kind, err)
	}

	if err := r.sendAlert(ctx, kind, d, now); err != nil {
		// Only treat the cooldown and disabled alerting as non-errors
		if !errors.Is(err, alerts.ErrCooldown) && !errors.Is(err, alerts.ErrDisabled) {
			return fmt.Errorf("send %s alert: %w", kind, err)
		}

		r.logger.Debug().Str("device_hash", d.DeviceHash).Str("kind", string(kind)).Msg("Alert suppressed")
	}

	return nil
}

// firstReport reports whether the event starts a new episode. Inactive
// events repeat every monitor cycle for the same silence; any other event
// for the device ends the episode.
func (r *deviceEventRecorder) firstReport(kind events.Kind, d models.Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if kind != events.KindInactive {
		delete(r.silentSince, d.DeviceHash)

		return true
	}

	if last, ok := r.silentSince[d.DeviceHash]; ok && last.Equal(d.LastRequest) {
		return false
	}

	r.silentSince[d.DeviceHash] = d.LastRequest

	return true
}

// forget lets the next inactive event for the device be reported again.
func (r *deviceEventRecorder) forget(hash string) {
	r.mu.Lock()
	delete(r.silentSince, hash)
	r.mu.Unlock()
}

func (r *deviceEventRecorder) sendAlert(ctx context.Context, kind events.Kind, d models.Device, now time.Time) error {
	if r.alerter == nil || !r.alerter.IsEnabled() {
		return alerts.ErrDisabled
	}

	alert := &alerts.Alert{
		Timestamp:  now.Format(time.RFC3339),
		Hostname:   d.Hostname,
		DeviceHash: d.DeviceHash,
		Action:     string(kind),
		Details: map[string]any{
			"authority": r.getHostname(),
			"role":      string(d.Role),
			"ips":       d.IPs,
		},
	}

	switch kind {
	case events.KindInactive:
		alert.Level = alerts.Warning
		alert.Title = "Device Inactive"
		alert.Message = fmt.Sprintf("Device '%s' has not checked in since %s",
			d.Hostname, d.LastRequest.UTC().Format(time.RFC3339))
	case events.KindShutdown:
		alert.Level = alerts.Info
		alert.Title = "Device Shutdown"
		alert.Message = fmt.Sprintf("Device '%s' reported a clean shutdown", d.Hostname)
	case events.KindEnable:
		alert.Level = alerts.Info
		alert.Title = "Device Recovered"
		alert.Message = fmt.Sprintf("Device '%s' is back online", d.Hostname)
	}

	return r.alerter.Notify(ctx, alert)
}
