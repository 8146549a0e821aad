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

package ups

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mfreeman451/killswitch/pkg/logger"
)

// TriggerFunc starts a phased command.
type TriggerFunc func(ctx context.Context, source string) error

// Watcher polls UPS battery runtime and triggers the phased command when it
// falls below the threshold. The trigger fires once per low-battery
// episode: it re-arms only after the runtime climbs back to the threshold.
type Watcher struct {
	config  Config
	trigger TriggerFunc
	factory ClientFactory
	logger  logger.Logger

	mu      sync.Mutex
	latched map[string]bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Watcher)

func WithClientFactory(f ClientFactory) Option {
	return func(w *Watcher) {
		w.factory = f
	}
}

func WithLogger(l logger.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

func NewWatcher(cfg Config, trigger TriggerFunc, opts ...Option) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &Watcher{
		config:  cfg,
		trigger: trigger,
		factory: NewSNMPClient,
		logger:  logger.NewTestLogger(),
		latched: make(map[string]bool),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start launches one poller per target and returns immediately.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.config.Enabled {
		return nil
	}

	clients := make([]Client, 0, len(w.config.Targets))

	for i := range w.config.Targets {
		c, err := w.factory(&w.config.Targets[i])
		if err != nil {
			for _, opened := range clients {
				_ = opened.Close()
			}

			return fmt.Errorf("failed to create SNMP client for %s: %w", w.config.Targets[i].Name, err)
		}

		clients = append(clients, c)
	}

	ctx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	for i, c := range clients {
		target := &w.config.Targets[i]

		w.wg.Add(1)

		go w.poll(ctx, target, c)
	}

	w.logger.Info().
		Int("targets", len(clients)).
		Dur("interval", w.config.Interval.Std()).
		Dur("threshold", w.config.Threshold.Std()).
		Msg("UPS watcher started")

	return nil
}

// Stop cancels all pollers and waits for them.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	w.wg.Wait()
}

func (w *Watcher) poll(ctx context.Context, target *Target, c Client) {
	defer w.wg.Done()

	defer func() {
		if err := c.Close(); err != nil {
			w.logger.Debug().Err(err).Str("target", target.Name).Msg("Failed to close SNMP client")
		}
	}()

	ticker := time.NewTicker(w.config.Interval.Std())
	defer ticker.Stop()

	w.Check(ctx, target, c)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx, target, c)
		}
	}
}

// Check reads the runtime once and triggers on a new low-battery episode.
// It reports whether a trigger was issued.
func (w *Watcher) Check(ctx context.Context, target *Target, c Client) bool {
	runtime, err := readRuntime(c, target.OID)
	if err != nil {
		w.logger.Warn().Err(err).Str("target", target.Name).Msg("Failed to read UPS battery runtime")

		return false
	}

	w.logger.Debug().Str("target", target.Name).Dur("runtime", runtime).Msg("UPS battery runtime")

	low := runtime < w.config.Threshold.Std()

	w.mu.Lock()
	wasLatched := w.latched[target.Name]
	w.latched[target.Name] = low
	w.mu.Unlock()

	if !low {
		if wasLatched {
			w.logger.Info().Str("target", target.Name).Dur("runtime", runtime).Msg("UPS battery runtime recovered")
		}

		return false
	}

	if wasLatched {
		return false
	}

	w.logger.Warn().
		Str("target", target.Name).
		Dur("runtime", runtime).
		Msg("UPS battery runtime below threshold, triggering phased command")

	if err := w.trigger(ctx, "ups:"+target.Name); err != nil {
		w.logger.Error().Err(err).Str("target", target.Name).Msg("Failed to trigger phased command")
	}

	return true
}

func readRuntime(c Client, oid string) (time.Duration, error) {
	values, err := c.Get([]string{oid})
	if err != nil {
		return 0, err
	}

	v, ok := values[oid]
	if !ok {
		// gosnmp may report names without the leading dot
		v, ok = values[strings.TrimPrefix(oid, ".")]
	}

	if !ok || v == nil {
		return 0, errNoValue
	}

	switch value := v.(type) {
	case time.Duration:
		return value, nil
	case int:
		return time.Duration(value) * time.Second, nil
	case uint64:
		return time.Duration(value) * time.Second, nil
	default:
		return 0, fmt.Errorf("%w: %T", errValueType, v)
	}
}
