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

package monitor

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfreeman451/killswitch/pkg/events"
	"github.com/mfreeman451/killswitch/pkg/models"
)

type staticScanner struct {
	devices []models.Device
}

func (s staticScanner) FindInactive() iter.Seq[models.Device] {
	return slices.Values(s.devices)
}

func silent(names ...string) staticScanner {
	var s staticScanner

	for _, n := range names {
		s.devices = append(s.devices, *models.NewDevice(n, nil, []string{"aa:" + n}, models.RoleApp, time.Now()))
	}

	return s
}

func TestScanOnceFiresPerDevice(t *testing.T) {
	bus := events.NewBus(nil)

	var got []string

	bus.OnInactive(func(_ context.Context, d models.Device) error {
		got = append(got, d.Hostname)

		return nil
	})

	m := New(silent("a", "b"), bus, time.Second, nil)

	assert.Equal(t, 2, m.ScanOnce(context.Background()))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestScanOnceSurvivesCallbackErrors(t *testing.T) {
	bus := events.NewBus(nil)

	var calls int

	bus.OnInactive(func(context.Context, models.Device) error {
		calls++

		return errors.New("notifier down")
	})

	m := New(silent("a", "b", "c"), bus, time.Second, nil)

	assert.Equal(t, 3, m.ScanOnce(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestMonitorLoopAndStop(t *testing.T) {
	bus := events.NewBus(nil)

	var fired atomic.Int32

	bus.OnInactive(func(context.Context, models.Device) error {
		fired.Add(1)

		return nil
	})

	m := New(silent("a"), bus, 10*time.Millisecond, nil)

	errCh := make(chan error, 1)

	go func() {
		errCh <- m.Start(context.Background())
	}()

	require.Eventually(t, func() bool { return fired.Load() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, m.Stop(ctx))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not exit")
	}
}

func TestMonitorExitsOnContextCancel(t *testing.T) {
	m := New(silent(), events.NewBus(nil), time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- m.Start(ctx)
	}()

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor ignored cancellation")
	}
}

func TestStopBeforeStart(t *testing.T) {
	m := New(silent(), events.NewBus(nil), time.Second, nil)

	require.NoError(t, m.Stop(context.Background()))
}
