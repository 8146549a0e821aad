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

// Package cloud pkg/cloud/server.go wires the authority together.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/killswitch/pkg/cloud/alerts"
	"github.com/mfreeman451/killswitch/pkg/cloud/api"
	"github.com/mfreeman451/killswitch/pkg/command"
	"github.com/mfreeman451/killswitch/pkg/db"
	"github.com/mfreeman451/killswitch/pkg/events"
	"github.com/mfreeman451/killswitch/pkg/heartbeat"
	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/metrics"
	"github.com/mfreeman451/killswitch/pkg/models"
	"github.com/mfreeman451/killswitch/pkg/monitor"
	"github.com/mfreeman451/killswitch/pkg/registry"
	"github.com/mfreeman451/killswitch/pkg/ups"
)

const staleMetricsAge = 24 * time.Hour

type serverOptions struct {
	db         db.Service
	notifier   alerts.Notifier
	now        func() time.Time
	upsClients ups.ClientFactory
}

type Option func(*serverOptions)

// WithDatabase replaces the sqlite event database.
func WithDatabase(d db.Service) Option {
	return func(o *serverOptions) { o.db = d }
}

// WithNotifier replaces the notifiers built from the webhook and telegram
// settings.
func WithNotifier(n alerts.Notifier) Option {
	return func(o *serverOptions) { o.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(o *serverOptions) { o.now = now }
}

func WithUPSClientFactory(f ups.ClientFactory) Option {
	return func(o *serverOptions) { o.upsClients = f }
}

// NewServer validates cfg, opens storage and restores the registry and the
// trigger history.
func NewServer(ctx context.Context, cfg *Config, log logger.Logger, opts ...Option) (*Server, error) {
	if log == nil {
		log = logger.NewTestLogger()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := serverOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		config: cfg,
		logger: log,
		now:    o.now,
	}

	if o.db == nil {
		database, err := db.New(cfg.Storage.DBPath, component(log, "db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open event database: %w", err)
		}

		o.db = database
	}

	s.db = o.db

	if err := s.initialize(ctx, o); err != nil {
		_ = s.db.Close()

		return nil, err
	}

	return s, nil
}

func (s *Server) initialize(ctx context.Context, o serverOptions) error {
	cfg := s.config

	store, err := registry.New(
		registry.NewFilePersister(cfg.Storage.RegistryPath, component(s.logger, "registry")),
		registry.WithInactiveTimeout(cfg.InactiveTimeout.Std()),
		registry.WithClock(s.now),
		registry.WithLogger(component(s.logger, "registry")),
	)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	s.registry = store

	s.timer = command.NewTimer(
		cfg.Delays.KillFirst.Std(),
		cfg.Delays.KillSecond.Std(),
		command.WithHistoryStore(s.db),
		command.WithClock(s.now),
		command.WithLogger(component(s.logger, "command")),
	)

	if err := s.timer.Load(ctx); err != nil {
		return fmt.Errorf("failed to restore trigger history: %w", err)
	}

	if o.notifier != nil {
		s.notifier = o.notifier
	} else {
		notifier, err := buildNotifier(cfg, s.logger)
		if err != nil {
			return err
		}

		s.notifier = notifier
	}

	if cfg.Metrics.Enabled {
		s.metrics = metrics.NewManager(cfg.Metrics, component(s.logger, "metrics"))
	}

	s.bus = events.NewBus(component(s.logger, "events"))
	newDeviceEventRecorder(s.db, s.notifier, component(s.logger, "device-events"), s.now).subscribe(s.bus)

	s.monitor = monitor.New(s.registry, s.bus, cfg.MonitorInterval.Std(), component(s.logger, "monitor"))

	handlerOpts := []heartbeat.Option{
		heartbeat.WithClock(s.now),
		heartbeat.WithLogger(component(s.logger, "heartbeat")),
	}

	if s.metrics != nil {
		handlerOpts = append(handlerOpts, heartbeat.WithMetrics(s.metrics))
	}

	s.handler = heartbeat.NewHandler(s.registry, s.timer, s.bus, heartbeat.Config{
		PingInterval:   cfg.Client.PingInterval.Std(),
		UpdateInterval: cfg.Client.UpdateInterval.Std(),
		SortMACs:       cfg.Identity.SortMACs,
	}, handlerOpts...)

	if cfg.UPS.Enabled {
		upsOpts := []ups.Option{ups.WithLogger(component(s.logger, "ups"))}
		if o.upsClients != nil {
			upsOpts = append(upsOpts, ups.WithClientFactory(o.upsClients))
		}

		watcher, err := ups.NewWatcher(cfg.UPS, s.triggerFromUPS, upsOpts...)
		if err != nil {
			return fmt.Errorf("failed to create UPS watcher: %w", err)
		}

		s.ups = watcher
	}

	s.apiServer = api.NewAPIServer(s, api.Config{
		ListenAddr:     cfg.ListenAddr,
		MaxConnections: cfg.MaxConnections,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		APIKey:         cfg.APIKey,
		StatusPush:     cfg.StatusPush,
	}, component(s.logger, "api"))

	s.logger.Info().
		Int("devices", s.registry.Len()).
		Str("phase", s.timer.Phase().String()).
		Msg("Authority initialized")

	return nil
}

func buildNotifier(cfg *Config, log logger.Logger) (alerts.Notifier, error) {
	multi := make(alerts.Multi, 0, len(cfg.Webhooks)+1)

	for _, wh := range cfg.Webhooks {
		multi = append(multi, alerts.NewWebhookNotifier(wh, log))
	}

	if cfg.Telegram.Enabled {
		tg, err := alerts.NewTelegramNotifier(cfg.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}

		multi = append(multi, tg)
	}

	return multi, nil
}

func component(log logger.Logger, name string) logger.Logger {
	return logger.Wrap(log.WithComponent(name))
}

// Start opens the HTTP listener and launches the background loops. It
// returns once everything is running.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errAlreadyStarted
	}

	lis, err := s.apiServer.Listen()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.ups != nil {
		if err := s.ups.Start(ctx); err != nil {
			cancel()
			_ = lis.Close()
			s.cancel = nil

			return fmt.Errorf("failed to start UPS watcher: %w", err)
		}
	}

	s.goRun(func() {
		if err := s.apiServer.Serve(lis); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	})

	s.goRun(func() {
		if err := s.monitor.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Liveness monitor failed")
		}
	})

	s.goRun(func() { s.housekeeping(ctx) })

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("Authority started")

	return nil
}

func (s *Server) goRun(fn func()) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		fn()
	}()
}

// Stop shuts the HTTP server down, stops the loops and closes storage.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	var errs []error

	if cancel != nil {
		if err := s.apiServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}

		if err := s.monitor.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("monitor stop: %w", err))
		}

		if s.ups != nil {
			s.ups.Stop()
		}

		cancel()
		s.wg.Wait()
	}

	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	s.logger.Info().Msg("Authority stopped")

	return errors.Join(errs...)
}

func (s *Server) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(s.config.Storage.CleanupInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *Server) cleanup(ctx context.Context) {
	if err := s.db.CleanOldData(ctx, s.config.Storage.Retention.Std()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clean old events")
	}

	if s.metrics != nil {
		s.metrics.CleanupStaleDevices(staleMetricsAge)
	}
}

// TriggerPhasedCommand starts a phased command. The command is in effect
// even when the returned error reports that it could not be persisted.
func (s *Server) TriggerPhasedCommand(ctx context.Context, source string) (time.Time, error) {
	at, err := s.timer.Trigger(ctx, source)

	s.logger.Warn().
		Str("source", source).
		Time("triggered_at", at).
		Err(err).
		Msg("Phased command triggered")

	if s.notifier.IsEnabled() {
		first, second := s.timer.Durations()

		alert := &alerts.Alert{
			Level:     alerts.Error,
			Title:     "Phased Command Triggered",
			Message:   fmt.Sprintf("Phased shutdown requested by %s: applications for %s, then servers for %s", source, first, second),
			Timestamp: at.UTC().Format(time.RFC3339),
			Hostname:  source,
			Action:    "kill_all",
		}

		if nerr := s.notifier.Notify(ctx, alert); nerr != nil && !errors.Is(nerr, alerts.ErrCooldown) {
			s.logger.Error().Err(nerr).Msg("Failed to send trigger alert")
		}
	}

	return at, err
}

func (s *Server) triggerFromUPS(ctx context.Context, source string) error {
	_, err := s.TriggerPhasedCommand(ctx, source)

	return err
}

// QueryStatus returns the phase flags together with every device, both
// evaluated at the same instant.
func (s *Server) QueryStatus() api.StatusSnapshot {
	now := s.now()
	phase := s.timer.PhaseAt(now)
	first, second := s.timer.Durations()

	snap := api.StatusSnapshot{
		Phase:      phase,
		Status:     command.StatusOf(phase),
		KillFirst:  int(first / time.Second),
		KillSecond: int(second / time.Second),
		Remaining:  int(s.timer.Remaining().Round(time.Second) / time.Second),
		Timestamp:  now.UTC(),
	}

	if last, ok := s.timer.LastTrigger(); ok {
		snap.LastTrigger = &last
	}

	all := s.registry.All()
	snap.Devices = make([]api.DeviceView, 0, len(all))
	snap.Total = len(all)

	for _, d := range all {
		snap.Devices = append(snap.Devices, s.view(d, now))

		if d.Enabled {
			snap.Enabled++
		}
	}

	return snap
}

// HandleHeartbeat answers one client request.
func (s *Server) HandleHeartbeat(ctx context.Context, body []byte) *heartbeat.Response {
	return s.handler.HandleRaw(ctx, body)
}

func (s *Server) view(d models.Device, now time.Time) api.DeviceView {
	return api.DeviceView{
		Device:   d,
		Inactive: d.Enabled && d.Inactive(now, s.registry.InactiveTimeout()),
	}
}

func (s *Server) Devices() []api.DeviceView {
	now := s.now()
	all := s.registry.All()
	views := make([]api.DeviceView, 0, len(all))

	for _, d := range all {
		views = append(views, s.view(d, now))
	}

	return views
}

func (s *Server) Device(hash string) (api.DeviceView, bool) {
	d, ok := s.registry.Get(hash)
	if !ok {
		return api.DeviceView{}, false
	}

	return s.view(d, s.now()), true
}

func (s *Server) DeviceEvents(ctx context.Context, hash string, limit int) ([]db.DeviceEvent, error) {
	return s.db.DeviceEvents(ctx, hash, limit)
}

func (s *Server) DeviceMetrics(hash string) []models.MetricPoint {
	if s.metrics == nil {
		return nil
	}

	return s.metrics.GetMetrics(hash)
}

func (s *Server) Triggers() []command.Trigger {
	return s.timer.History()
}

// GetMetricsManager exposes the heartbeat metrics, nil when disabled.
func (s *Server) GetMetricsManager() metrics.MetricCollector {
	return s.metrics
}
