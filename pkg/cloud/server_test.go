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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mfreeman451/killswitch/pkg/cloud/alerts"
	"github.com/mfreeman451/killswitch/pkg/command"
	"github.com/mfreeman451/killswitch/pkg/config"
	"github.com/mfreeman451/killswitch/pkg/heartbeat"
	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
	"github.com/mfreeman451/killswitch/pkg/ups"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func modelsMetrics() models.MetricsConfig {
	return models.MetricsConfig{Enabled: true}
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o600)
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	dir := t.TempDir()

	return &Config{
		ListenAddr: "127.0.0.1:0",
		Storage: Storage{
			RegistryPath: filepath.Join(dir, "hosts.json"),
			DBPath:       filepath.Join(dir, "killswitch.db"),
		},
		Metrics: modelsMetrics(),
	}
}

func newTestServer(t *testing.T, cfg *Config, clock *testClock, opts ...Option) *Server {
	t.Helper()

	opts = append([]Option{WithClock(clock.Now)}, opts...)

	s, err := NewServer(context.Background(), cfg, logger.NewTestLogger(), opts...)
	require.NoError(t, err)

	return s
}

func heartbeatBody(t *testing.T, v map[string]interface{}) []byte {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)

	return b
}

func register(t *testing.T, s *Server, hostname string, server bool) string {
	t.Helper()

	resp := s.HandleHeartbeat(context.Background(), heartbeatBody(t, map[string]interface{}{
		"act":      "register",
		"hostname": hostname,
		"ips":      []string{"10.0.0.1"},
		"macs":     []string{fmt.Sprintf("aa:bb:cc:dd:ee:%02x", len(hostname))},
		"server":   server,
	}))
	require.False(t, resp.Failed(), "register %s: %v", hostname, resp.Error)
	require.NotEmpty(t, resp.DeviceHash)

	return resp.DeviceHash
}

func ping(t *testing.T, s *Server, hash string) *heartbeat.Response {
	t.Helper()

	return s.HandleHeartbeat(context.Background(), heartbeatBody(t, map[string]interface{}{
		"act":         "ping",
		"device_hash": hash,
	}))
}

func TestConfigValidateDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":5000", cfg.ListenAddr)
	assert.Equal(t, 75*time.Second, cfg.InactiveTimeout.Std())
	assert.Equal(t, 75*time.Second, cfg.MonitorInterval.Std())
	assert.Equal(t, 60*time.Second, cfg.Delays.KillFirst.Std())
	assert.Equal(t, 120*time.Second, cfg.Delays.KillSecond.Std())
	assert.Equal(t, heartbeat.DefaultPingInterval, cfg.Client.PingInterval.Std())
	assert.Equal(t, heartbeat.DefaultUpdateInterval, cfg.Client.UpdateInterval.Std())
	assert.Equal(t, "hosts.json", cfg.Storage.RegistryPath)
	assert.Equal(t, "killswitch.db", cfg.Storage.DBPath)
}

func TestConfigValidateRejects(t *testing.T) {
	cfg := Config{Delays: Delays{KillFirst: config.Duration(-time.Second)}}
	require.ErrorIs(t, cfg.Validate(), errInvalidDelays)

	cfg = Config{InactiveTimeout: config.Duration(-time.Second)}
	require.ErrorIs(t, cfg.Validate(), errInvalidInactiveTimeout)

	cfg = Config{UPS: ups.Config{Enabled: true}}
	require.Error(t, cfg.Validate())
}

func TestConfigLoadsFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud.toml")
	body := `
listen_addr = ":6000"
inactive_timeout = "90s"

[delays]
kill_first = "2m"
kill_second = "3m"

[identity]
sort_macs = true

[[webhooks]]
enabled = true
url = "https://example.invalid/hook"
discord = true
`
	require.NoError(t, writeFile(path, body))

	var cfg Config
	require.NoError(t, config.LoadAndValidate(path, &cfg))

	assert.Equal(t, ":6000", cfg.ListenAddr)
	assert.Equal(t, 90*time.Second, cfg.InactiveTimeout.Std())
	assert.Equal(t, 2*time.Minute, cfg.Delays.KillFirst.Std())
	assert.True(t, cfg.Identity.SortMACs)
	require.Len(t, cfg.Webhooks, 1)
	assert.True(t, cfg.Webhooks[0].Discord)
}

func TestServerHeartbeatFlow(t *testing.T) {
	clock := newTestClock()
	s := newTestServer(t, testConfig(t), clock)

	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	app := register(t, s, "web-01", false)
	srv := register(t, s, "db-01", true)

	resp := ping(t, s, app)
	require.False(t, resp.Failed())
	assert.Equal(t, "pong", resp.Message)
	assert.Equal(t, &[2]bool{false, false}, resp.Status)

	snap := s.QueryStatus()
	assert.Equal(t, command.PhaseIdle, snap.Phase)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 2, snap.Enabled)
	require.Len(t, snap.Devices, 2)
	assert.Equal(t, app, snap.Devices[0].DeviceHash)
	assert.Equal(t, srv, snap.Devices[1].DeviceHash)
	assert.False(t, snap.Devices[0].Inactive)
	assert.Equal(t, 60, snap.KillFirst)
	assert.Equal(t, 120, snap.KillSecond)
	assert.Nil(t, snap.LastTrigger)

	devices := s.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, app, devices[0].DeviceHash)
	assert.Equal(t, srv, devices[1].DeviceHash)

	clock.advance(76 * time.Second)

	view, ok := s.Device(app)
	require.True(t, ok)
	assert.True(t, view.Inactive)

	points := s.DeviceMetrics(app)
	require.NotEmpty(t, points)
	assert.Equal(t, "ping", points[0].Action)
}

func TestServerPhasedCommand(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := alerts.NewMockNotifier(ctrl)

	notifier.EXPECT().IsEnabled().Return(true).AnyTimes()
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, a *alerts.Alert) error {
			assert.Equal(t, "Phased Command Triggered", a.Title)
			assert.Equal(t, "operator", a.Hostname)

			return nil
		})

	clock := newTestClock()
	cfg := testConfig(t)
	s := newTestServer(t, cfg, clock, WithNotifier(notifier))

	app := register(t, s, "web-01", false)

	_, err := s.TriggerPhasedCommand(context.Background(), "operator")
	require.NoError(t, err)

	clock.advance(30 * time.Second)
	assert.Equal(t, &[2]bool{true, false}, ping(t, s, app).Status)

	snap := s.QueryStatus()
	assert.Equal(t, command.PhaseFirst, snap.Phase)
	assert.Equal(t, 30, snap.Remaining)
	require.NotNil(t, snap.LastTrigger)
	assert.Equal(t, "operator", snap.LastTrigger.Source)

	clock.advance(60 * time.Second)
	assert.Equal(t, &[2]bool{false, true}, ping(t, s, app).Status)

	require.NoError(t, s.Stop(context.Background()))

	// a restarted authority resumes the same phase
	restarted := newTestServer(t, cfg, clock)
	t.Cleanup(func() { _ = restarted.Stop(context.Background()) })

	assert.Equal(t, command.PhaseSecond, restarted.QueryStatus().Phase)
	require.Len(t, restarted.Triggers(), 1)

	_, known := restarted.Device(app)
	assert.True(t, known)

	clock.advance(200 * time.Second)
	assert.Equal(t, command.PhaseIdle, restarted.QueryStatus().Phase)
}

func TestServerRecordsDeviceEvents(t *testing.T) {
	clock := newTestClock()
	s := newTestServer(t, testConfig(t), clock)

	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	hash := register(t, s, "web-01", false)

	resp := s.HandleHeartbeat(context.Background(), heartbeatBody(t, map[string]interface{}{
		"act":         "shutdown",
		"device_hash": hash,
	}))
	require.False(t, resp.Failed())

	require.False(t, ping(t, s, hash).Failed())

	evs, err := s.DeviceEvents(context.Background(), hash, 10)
	require.NoError(t, err)
	require.Len(t, evs, 2)

	kinds := []string{evs[0].Kind, evs[1].Kind}
	assert.ElementsMatch(t, []string{"shutdown", "enable"}, kinds)
}

func TestServerStartStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.MonitorInterval = config.Duration(10 * time.Millisecond)
	cfg.Storage.CleanupInterval = config.Duration(10 * time.Millisecond)

	s := newTestServer(t, cfg, newTestClock())

	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), errAlreadyStarted)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Stop(ctx))
}

type lowBatteryClient struct{}

func (lowBatteryClient) Connect() error { return nil }

func (lowBatteryClient) Get(oids []string) (map[string]interface{}, error) {
	return map[string]interface{}{oids[0]: 2 * time.Minute}, nil
}

func (lowBatteryClient) Close() error { return nil }

func TestServerUPSTriggersPhasedCommand(t *testing.T) {
	cfg := testConfig(t)
	cfg.UPS = ups.Config{
		Enabled:  true,
		Interval: config.Duration(10 * time.Millisecond),
		Targets:  []ups.Target{{Name: "rack-a", Host: "10.0.0.50"}},
	}

	clock := newTestClock()
	s := newTestServer(t, cfg, clock, WithUPSClientFactory(func(*ups.Target) (ups.Client, error) {
		return lowBatteryClient{}, nil
	}))

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		return s.QueryStatus().Phase == command.PhaseFirst
	}, 2*time.Second, 10*time.Millisecond)

	// latched: one trigger per low-battery episode
	time.Sleep(50 * time.Millisecond)

	triggers := s.Triggers()
	require.Len(t, triggers, 1)
	assert.Equal(t, "ups:rack-a", triggers[0].Source)
}
