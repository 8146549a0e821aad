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

// Package registry pkg/registry/store.go keeps the authoritative mapping of
// identity hash to device and writes it through to durable storage.
package registry

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
)

const DefaultInactiveTimeout = 75 * time.Second

// Persister stores the full registry snapshot, in storage order.
type Persister interface {
	Load() ([]models.Record, error)
	Save(records []models.Record) error
}

// Store is the in-memory registry. A single mutex serialises all mutations,
// their durable writes and the snapshots taken by readers.
type Store struct {
	mu              sync.RWMutex
	devices         map[string]*models.Device
	order           []string
	persister       Persister
	inactiveTimeout time.Duration
	now             func() time.Time
	logger          logger.Logger
}

type Option func(*Store)

func WithInactiveTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.inactiveTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New loads the registry from p.
func New(p Persister, opts ...Option) (*Store, error) {
	s := &Store{
		devices:         make(map[string]*models.Device),
		persister:       p,
		inactiveTimeout: DefaultInactiveTimeout,
		now:             time.Now,
		logger:          logger.NewTestLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	records, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	for _, r := range records {
		d := models.FromRecord(r)
		stored := d.DeviceHash

		if h := d.Rehash(); h != stored {
			s.logger.Error().
				Str("hostname", d.Hostname).
				Str("stored_hash", stored).
				Str("computed_hash", h).
				Msg("Hash mismatch in registry file, keeping computed identity")
		}

		if _, dup := s.devices[d.DeviceHash]; !dup {
			s.order = append(s.order, d.DeviceHash)
		}

		s.devices[d.DeviceHash] = d
	}

	s.logger.Info().Int("devices", len(s.order)).Msg("Loaded registry")

	return s, nil
}

// InactiveTimeout returns the silence window used by FindInactive.
func (s *Store) InactiveTimeout() time.Duration {
	return s.inactiveTimeout
}

// Get returns a copy of the device stored under hash.
func (s *Store) Get(hash string) (models.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[hash]
	if !ok {
		return models.Device{}, false
	}

	return d.Clone(), true
}

// Len returns the number of registered devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// Add inserts a new device under the identity computed from its hostname
// and MACs, overwriting any DeviceHash the caller set. It returns false
// without writing anything when the identity is already registered.
func (s *Store) Add(d *models.Device) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.Rehash()

	if _, exists := s.devices[d.DeviceHash]; exists {
		return false, nil
	}

	c := d.Clone()

	err := s.commitLocked(func() {
		s.devices[c.DeviceHash] = &c
		s.order = append(s.order, c.DeviceHash)
	})
	if err != nil {
		return false, err
	}

	s.logger.Info().Str("device", c.String()).Msg("Added new device")

	return true, nil
}

// Update overwrites the device stored under d.DeviceHash. When the
// identity fields no longer match that key the entry moves to the
// recomputed hash. Unknown identities are ignored.
func (s *Store) Update(d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := d.DeviceHash
	if _, exists := s.devices[key]; !exists {
		return nil
	}

	c := d.Clone()
	newHash := c.Rehash()

	return s.commitLocked(func() {
		if newHash == key {
			s.devices[key] = &c
		} else {
			s.replaceLocked(key, &c)
		}
	})
}

// Replace moves the entry stored under oldHash to the identity computed
// from d in one step. Unknown oldHash values are ignored.
func (s *Store) Replace(oldHash string, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.devices[oldHash]; !exists {
		return nil
	}

	c := d.Clone()
	c.Rehash()

	err := s.commitLocked(func() {
		s.replaceLocked(oldHash, &c)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("old_hash", oldHash).Str("new_hash", c.DeviceHash).Msg("Replaced device identity")

	return nil
}

// Modify runs fn against a copy of the device under hash and stores the
// result atomically. When fn changes identity fields the entry is moved to
// the recomputed hash. It returns the device before and after the change.
func (s *Store) Modify(hash string, fn func(d *models.Device) error) (before, after models.Device, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.devices[hash]
	if !ok {
		return models.Device{}, models.Device{}, ErrNotFound
	}

	before = cur.Clone()
	work := cur.Clone()

	if err = fn(&work); err != nil {
		return before, before, err
	}

	newHash := work.Rehash()

	err = s.commitLocked(func() {
		if newHash == hash {
			s.devices[hash] = &work
		} else {
			s.replaceLocked(hash, &work)
		}
	})
	if err != nil {
		return before, before, err
	}

	return before, work.Clone(), nil
}

// All returns a snapshot of every device in storage order.
func (s *Store) All() []models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Device, 0, len(s.order))
	for _, h := range s.order {
		out = append(out, s.devices[h].Clone())
	}

	return out
}

// FindInactive yields every enabled device that has not been heard from for
// longer than the inactive timeout. It iterates over a snapshot, so
// consumers may call back into the store.
func (s *Store) FindInactive() iter.Seq[models.Device] {
	return func(yield func(models.Device) bool) {
		now := s.now()

		for _, d := range s.All() {
			if !d.Enabled {
				continue
			}

			if d.Inactive(now, s.inactiveTimeout) && !yield(d) {
				return
			}
		}
	}
}

func (s *Store) replaceLocked(oldHash string, d *models.Device) {
	if _, exists := s.devices[d.DeviceHash]; exists {
		s.devices[d.DeviceHash] = d
		s.order = slices.DeleteFunc(s.order, func(h string) bool { return h == oldHash })
	} else {
		s.devices[d.DeviceHash] = d
		if i := slices.Index(s.order, oldHash); i >= 0 {
			s.order[i] = d.DeviceHash
		}
	}

	delete(s.devices, oldHash)
}

// commitLocked applies a change and writes the registry. When the write
// fails the previous in-memory state is restored.
func (s *Store) commitLocked(apply func()) error {
	prevDevices := maps.Clone(s.devices)
	prevOrder := slices.Clone(s.order)

	apply()

	if err := s.persister.Save(s.recordsLocked()); err != nil {
		s.devices = prevDevices
		s.order = prevOrder

		s.logger.Error().Err(err).Msg("Registry write failed, change rolled back")

		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	return nil
}

func (s *Store) recordsLocked() []models.Record {
	records := make([]models.Record, 0, len(s.order))
	for _, h := range s.order {
		records = append(records, models.ToRecord(s.devices[h]))
	}

	return records
}
