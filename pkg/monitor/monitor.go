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

// Package monitor pkg/monitor/monitor.go periodically scans the registry for
// devices that stopped sending heartbeats.
package monitor

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/mfreeman451/killswitch/pkg/events"
	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
)

var errAlreadyRunning = errors.New("monitor already running")

// Scanner yields the devices that are currently inactive.
type Scanner interface {
	FindInactive() iter.Seq[models.Device]
}

// Firer delivers events to subscribers.
type Firer interface {
	Fire(ctx context.Context, kind events.Kind, d models.Device) error
}

// Monitor fires an inactive event for every inactive device on each cycle,
// so a silent device keeps being reported until it comes back or shuts
// down cleanly.
type Monitor struct {
	scanner  Scanner
	firer    Firer
	interval time.Duration
	logger   logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func New(scanner Scanner, firer Firer, interval time.Duration, log logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Monitor{
		scanner:  scanner,
		firer:    firer,
		interval: interval,
		logger:   log,
	}
}

// Start runs the scan loop until ctx is canceled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()

		return errAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.cancel = cancel
	m.done = done
	m.running = true
	m.mu.Unlock()

	defer func() {
		cancel()
		close(done)

		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.interval).Msg("Liveness monitor started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Liveness monitor stopped")

			return nil
		case <-ticker.C:
			m.ScanOnce(ctx)
		}
	}
}

// Stop cancels the loop and waits for it to exit or for ctx to expire.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScanOnce runs a single cycle and returns the number of inactive devices.
func (m *Monitor) ScanOnce(ctx context.Context) int {
	count := 0

	for d := range m.scanner.FindInactive() {
		if ctx.Err() != nil {
			break
		}

		count++

		m.logger.Warn().
			Str("hostname", d.Hostname).
			Str("device", d.DeviceHash).
			Time("last_request", d.LastRequest).
			Msg("Device inactive")

		// failures are logged by the bus
		_ = m.firer.Fire(ctx, events.KindInactive, d)
	}

	return count
}
