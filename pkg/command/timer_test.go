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

package command

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type memHistory struct {
	triggers []Trigger
	fail     bool
}

func (m *memHistory) RecordTrigger(_ context.Context, at time.Time, source string) error {
	if m.fail {
		return errStoreDown
	}

	m.triggers = append(m.triggers, Trigger{At: at, Source: source})

	return nil
}

func (m *memHistory) LoadTriggers(context.Context) ([]Trigger, error) {
	if m.fail {
		return nil, errStoreDown
	}

	return m.triggers, nil
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestTimerIdleBeforeFirstTrigger(t *testing.T) {
	clock := newClock()
	timer := NewTimer(60*time.Second, 120*time.Second, WithClock(clock.Now))

	assert.Equal(t, PhaseIdle, timer.Phase())
	assert.Equal(t, Status{}, timer.Status())
	assert.Empty(t, timer.History())
	assert.Zero(t, timer.Remaining())

	_, ok := timer.LastTrigger()
	assert.False(t, ok)
}

func TestTimerPhaseScenario(t *testing.T) {
	clock := newClock()
	timer := NewTimer(60*time.Second, 120*time.Second, WithClock(clock.Now))

	_, err := timer.Trigger(context.Background(), "test")
	require.NoError(t, err)

	tests := []struct {
		name   string
		offset time.Duration
		phase  Phase
		status Status
	}{
		{"at trigger", 0, PhaseFirst, Status{First: true}},
		{"first phase", 30 * time.Second, PhaseFirst, Status{First: true}},
		{"first boundary", 60 * time.Second, PhaseSecond, Status{Second: true}},
		{"second phase", 90 * time.Second, PhaseSecond, Status{Second: true}},
		{"second boundary", 180 * time.Second, PhaseIdle, Status{}},
		{"expired", 200 * time.Second, PhaseIdle, Status{}},
	}

	start := clock.now

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.now = start.Add(tt.offset)

			assert.Equal(t, tt.phase, timer.Phase())
			assert.Equal(t, tt.status, timer.Status())
			assert.False(t, tt.status.First && tt.status.Second)
		})
	}
}

func TestTimerRetriggerRestartsClock(t *testing.T) {
	clock := newClock()
	timer := NewTimer(60*time.Second, 120*time.Second, WithClock(clock.Now))

	_, err := timer.Trigger(context.Background(), "first")
	require.NoError(t, err)

	clock.advance(90 * time.Second)
	assert.Equal(t, PhaseSecond, timer.Phase())

	_, err = timer.Trigger(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, PhaseFirst, timer.Phase())
	assert.Equal(t, 60*time.Second, timer.Remaining())
	assert.Len(t, timer.History(), 2)

	last, ok := timer.LastTrigger()
	require.True(t, ok)
	assert.Equal(t, "second", last.Source)
}

func TestTimerConcurrentTriggersStayOrdered(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ticks atomic.Int64

	tm := NewTimer(60*time.Second, 120*time.Second, WithClock(func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
	}))

	var wg sync.WaitGroup

	for range 64 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _ = tm.Trigger(context.Background(), "api")
		}()
	}

	wg.Wait()

	history := tm.History()
	require.Len(t, history, 64)
	assert.True(t, slices.IsSortedFunc(history, func(a, b Trigger) int {
		return a.At.Compare(b.At)
	}), "trigger log must be in call order")

	last, ok := tm.LastTrigger()
	require.True(t, ok)
	assert.Equal(t, history[len(history)-1].At, last.At)
}

func TestTimerRemaining(t *testing.T) {
	clock := newClock()
	timer := NewTimer(60*time.Second, 120*time.Second, WithClock(clock.Now))

	_, err := timer.Trigger(context.Background(), "test")
	require.NoError(t, err)

	clock.advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, timer.Remaining())

	clock.advance(60 * time.Second)
	assert.Equal(t, 100*time.Second, timer.Remaining())

	clock.advance(time.Hour)
	assert.Zero(t, timer.Remaining())
}

func TestTimerPersistsTriggers(t *testing.T) {
	clock := newClock()
	store := &memHistory{}
	timer := NewTimer(60*time.Second, 120*time.Second, WithClock(clock.Now), WithHistoryStore(store))

	at, err := timer.Trigger(context.Background(), "api")
	require.NoError(t, err)

	require.Len(t, store.triggers, 1)
	assert.Equal(t, at, store.triggers[0].At)
	assert.Equal(t, "api", store.triggers[0].Source)
}

func TestTimerTriggerSurvivesStoreFailure(t *testing.T) {
	clock := newClock()
	timer := NewTimer(60*time.Second, 120*time.Second, WithClock(clock.Now),
		WithHistoryStore(&memHistory{fail: true}))

	_, err := timer.Trigger(context.Background(), "api")
	require.ErrorIs(t, err, errStoreDown)

	assert.Equal(t, PhaseFirst, timer.Phase())
}

func TestTimerLoadRestoresPhase(t *testing.T) {
	clock := newClock()
	store := &memHistory{triggers: []Trigger{
		{At: clock.now.Add(-70 * time.Second), Source: "recent"},
		{At: clock.now.Add(-time.Hour), Source: "old"},
	}}

	timer := NewTimer(60*time.Second, 120*time.Second, WithClock(clock.Now), WithHistoryStore(store))
	require.NoError(t, timer.Load(context.Background()))

	assert.Equal(t, PhaseSecond, timer.Phase())

	history := timer.History()
	require.Len(t, history, 2)
	assert.Equal(t, "old", history[0].Source)
	assert.Equal(t, "recent", history[1].Source)
}

func TestTimerLoadError(t *testing.T) {
	timer := NewTimer(0, 0, WithHistoryStore(&memHistory{fail: true}))

	require.ErrorIs(t, timer.Load(context.Background()), errStoreDown)
	assert.Equal(t, PhaseIdle, timer.Phase())

	first, second := timer.Durations()
	assert.Equal(t, DefaultFirstPhase, first)
	assert.Equal(t, DefaultSecondPhase, second)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "first", PhaseFirst.String())
	assert.Equal(t, "second", PhaseSecond.String())
	assert.Equal(t, "phase(7)", Phase(7).String())
}

func TestPhaseTextRoundTrip(t *testing.T) {
	for _, p := range []Phase{PhaseIdle, PhaseFirst, PhaseSecond} {
		text, err := p.MarshalText()
		require.NoError(t, err)

		var got Phase
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, p, got)
	}

	var p Phase
	require.ErrorIs(t, p.UnmarshalText([]byte("third")), errUnknownPhase)
}
