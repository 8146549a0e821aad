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

// Package events pkg/events/bus.go delivers device transitions to
// subscribers registered at startup.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
)

// Kind identifies a device transition.
type Kind string

const (
	KindInactive Kind = "inactive"
	KindShutdown Kind = "shutdown"
	KindEnable   Kind = "enable"
)

var errCallbackPanic = errors.New("callback panicked")

// Callback receives a snapshot of the device that triggered the event.
type Callback func(ctx context.Context, d models.Device) error

// Bus holds the callbacks per kind. Callbacks run synchronously in
// registration order on the goroutine that fires the event.
type Bus struct {
	mu        sync.RWMutex
	callbacks map[Kind][]Callback
	logger    logger.Logger
}

func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Bus{
		callbacks: make(map[Kind][]Callback),
		logger:    log,
	}
}

func (b *Bus) Subscribe(kind Kind, cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.callbacks[kind] = append(b.callbacks[kind], cb)
}

func (b *Bus) OnInactive(cb Callback) { b.Subscribe(KindInactive, cb) }

func (b *Bus) OnShutdown(cb Callback) { b.Subscribe(KindShutdown, cb) }

func (b *Bus) OnEnable(cb Callback) { b.Subscribe(KindEnable, cb) }

// Fire runs every callback of kind. A failing or panicking callback is
// logged and does not prevent the rest from running; all failures are
// joined into the returned error.
func (b *Bus) Fire(ctx context.Context, kind Kind, d models.Device) error {
	b.mu.RLock()
	callbacks := b.callbacks[kind]
	b.mu.RUnlock()

	var errs []error

	for i, cb := range callbacks {
		if err := b.invoke(ctx, cb, d); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", string(kind)).
				Int("callback", i).
				Str("device", d.DeviceHash).
				Msg("Event callback failed")

			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (*Bus) invoke(ctx context.Context, cb Callback, d models.Device) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errCallbackPanic, r)
		}
	}()

	return cb(ctx, d.Clone())
}
