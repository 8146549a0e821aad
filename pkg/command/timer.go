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

// Package command pkg/command/timer.go tracks administrator triggered phased
// commands. The phase is derived from the time elapsed since the latest
// trigger, so the only state is the trigger log itself.
package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mfreeman451/killswitch/pkg/logger"
)

const (
	DefaultFirstPhase  = 60 * time.Second
	DefaultSecondPhase = 120 * time.Second
)

var errUnknownPhase = errors.New("unknown phase")

// Phase is the progress of the latest phased command.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFirst
	PhaseSecond
)

func (p Phase) String() string {
	switch p {
	case PhaseFirst:
		return "first"
	case PhaseSecond:
		return "second"
	case PhaseIdle:
		return "idle"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*p = PhaseIdle
	case "first":
		*p = PhaseFirst
	case "second":
		*p = PhaseSecond
	default:
		return fmt.Errorf("%w: %q", errUnknownPhase, text)
	}

	return nil
}

// Status holds the phase flags handed to devices on every ping.
type Status struct {
	First  bool `json:"first"`
	Second bool `json:"second"`
}

// StatusOf converts a phase into its flags. At most one flag is set.
func StatusOf(p Phase) Status {
	return Status{First: p == PhaseFirst, Second: p == PhaseSecond}
}

// Trigger is a single entry of the trigger log.
type Trigger struct {
	At     time.Time `json:"triggered_at"`
	Source string    `json:"source"`
}

// HistoryStore persists triggers so the current phase survives a restart.
type HistoryStore interface {
	RecordTrigger(ctx context.Context, at time.Time, source string) error
	LoadTriggers(ctx context.Context) ([]Trigger, error)
}

// Timer is safe for concurrent use.
type Timer struct {
	mu      sync.RWMutex
	first   time.Duration
	second  time.Duration
	history []Trigger
	store   HistoryStore
	now     func() time.Time
	logger  logger.Logger
}

type Option func(*Timer)

func WithHistoryStore(s HistoryStore) Option {
	return func(t *Timer) {
		t.store = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Timer) {
		t.now = now
	}
}

func WithLogger(l logger.Logger) Option {
	return func(t *Timer) {
		t.logger = l
	}
}

// sentinel marks "never triggered". It is older than any real trigger so the
// derived phase is idle.
func sentinel() Trigger {
	return Trigger{At: time.Unix(0, 0).UTC(), Source: "sentinel"}
}

// NewTimer creates a timer with the given phase lengths. Non-positive
// lengths fall back to the defaults.
func NewTimer(first, second time.Duration, opts ...Option) *Timer {
	if first <= 0 {
		first = DefaultFirstPhase
	}

	if second <= 0 {
		second = DefaultSecondPhase
	}

	t := &Timer{
		first:   first,
		second:  second,
		history: []Trigger{sentinel()},
		now:     time.Now,
		logger:  logger.NewTestLogger(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Load restores persisted triggers. It is a no-op without a history store.
func (t *Timer) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}

	triggers, err := t.store.LoadTriggers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trigger history: %w", err)
	}

	slices.SortStableFunc(triggers, func(a, b Trigger) int {
		return a.At.Compare(b.At)
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = append([]Trigger{sentinel()}, triggers...)

	t.logger.Info().
		Int("triggers", len(triggers)).
		Str("phase", t.phaseLocked(t.now()).String()).
		Msg("Loaded trigger history")

	return nil
}

// Trigger starts a new phased command at the current time. Repeated
// triggers restart the phase clock. The trigger takes effect even when it
// cannot be persisted; the persistence error is still returned.
func (t *Timer) Trigger(ctx context.Context, source string) (time.Time, error) {
	t.mu.Lock()
	at := t.now().UTC()
	t.history = append(t.history, Trigger{At: at, Source: source})
	t.mu.Unlock()

	t.logger.Warn().Time("at", at).Str("source", source).Msg("Phased command triggered")

	if t.store == nil {
		return at, nil
	}

	if err := t.store.RecordTrigger(ctx, at, source); err != nil {
		return at, fmt.Errorf("failed to persist trigger: %w", err)
	}

	return at, nil
}

// Phase returns the current phase.
func (t *Timer) Phase() Phase {
	return t.PhaseAt(t.now())
}

// PhaseAt returns the phase at the given instant.
func (t *Timer) PhaseAt(now time.Time) Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.phaseLocked(now)
}

func (t *Timer) phaseLocked(now time.Time) Phase {
	elapsed := now.Sub(t.history[len(t.history)-1].At)

	switch {
	case elapsed < t.first:
		return PhaseFirst
	case elapsed < t.first+t.second:
		return PhaseSecond
	default:
		return PhaseIdle
	}
}

// Status returns the phase flags at the current time.
func (t *Timer) Status() Status {
	return StatusOf(t.Phase())
}

// Remaining returns the time left in the current phase, or zero when idle.
func (t *Timer) Remaining() time.Duration {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	last := t.history[len(t.history)-1].At

	switch t.phaseLocked(now) {
	case PhaseFirst:
		return last.Add(t.first).Sub(now)
	case PhaseSecond:
		return last.Add(t.first + t.second).Sub(now)
	case PhaseIdle:
		return 0
	}

	return 0
}

// LastTrigger returns the latest real trigger.
func (t *Timer) LastTrigger() (Trigger, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.history) < 2 {
		return Trigger{}, false
	}

	return t.history[len(t.history)-1], true
}

// History returns the trigger log without the sentinel, oldest first.
func (t *Timer) History() []Trigger {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Clone(t.history[1:])
}

// Durations returns the configured phase lengths.
func (t *Timer) Durations() (first, second time.Duration) {
	return t.first, t.second
}
