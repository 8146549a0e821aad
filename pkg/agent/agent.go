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

// Package agent is the host-side client of the killswitch authority. It
// registers the host, pings on an interval and powers the host off when
// the phased command reaches the host's role.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mfreeman451/killswitch/pkg/heartbeat"
	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
)

type Option func(*Agent)

func WithDiscoverer(d Discoverer) Option {
	return func(a *Agent) {
		a.discoverer = d
	}
}

func WithHalter(h Halter) Option {
	return func(a *Agent) {
		a.halter = h
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) {
		a.client = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// New validates cfg and builds an agent. Unless overridden the agent
// discovers the local host and halts it with the platform command.
func New(cfg *Config, log logger.Logger, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	a := &Agent{
		config:         cfg,
		logger:         log,
		client:         &http.Client{},
		discoverer:     SystemDiscoverer{},
		hashFile:       NewHashFile(cfg.HashFile),
		now:            time.Now,
		pingInterval:   cfg.PingInterval.Std(),
		updateInterval: cfg.UpdateInterval.Std(),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.halter == nil {
		a.halter = NewExecHalter(cfg, log)
	}

	return a, nil
}

// DeviceHash returns the identity currently in use.
func (a *Agent) DeviceHash() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.deviceHash
}

// Intervals returns the ping and update intervals currently in use.
func (a *Agent) Intervals() (ping, update time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.pingInterval, a.updateInterval
}

// Run connects and then pings until ctx is cancelled or the host is
// halted. It returns ErrRetriesExhausted when the authority cannot be
// reached.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info().
		Str("endpoint", a.config.Endpoint).
		Str("role", string(a.config.Role)).
		Bool("dry_run", a.config.DryRun).
		Msg("Starting agent")

	if err := a.refresh(ctx); err != nil {
		return err
	}

	a.loadHash()

	if err := a.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return err
	}

	if err := a.Update(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Initial update failed")
	}

	for {
		if a.updateDue() {
			if err := a.Update(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("Update failed")
			}
		}

		resp, err := a.post(ctx, heartbeat.ActionPing)

		switch {
		case ctx.Err() != nil:
			return nil
		case rejectedWith(err, heartbeat.UnknownDevice):
			a.logger.Warn().Str("device", a.DeviceHash()).Msg("Authority no longer knows this device, reconnecting")
			a.forget()

			if err := a.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}

				return err
			}
		case err != nil:
			a.logger.Warn().Err(err).Msg("Ping failed")
		default:
			if a.act(ctx, resp) {
				return nil
			}
		}

		ping, _ := a.Intervals()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(ping):
		}
	}
}

// Connect registers and confirms the registration with a ping. A ping
// answered with UnknownDevice drops the cached hash and starts over. At
// most MaxRetries retries follow the first attempt.
func (a *Agent) Connect(ctx context.Context) error {
	attempts := a.config.MaxRetries + 1

	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.config.RetryDelay.Std()):
			}
		}

		if err := a.Register(ctx); err != nil {
			a.logger.Warn().Err(err).Int("attempt", i+1).Msg("Register failed")

			continue
		}

		resp, err := a.post(ctx, heartbeat.ActionPing)
		if rejectedWith(err, heartbeat.UnknownDevice) {
			a.forget()

			continue
		}

		if err != nil {
			a.logger.Warn().Err(err).Int("attempt", i+1).Msg("Ping failed")

			continue
		}

		if resp.Message == "pong" {
			a.logger.Info().Str("device", a.DeviceHash()).Msg("Connected to authority")

			return nil
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempts)
}

// Register announces the host. When the authority already knows the
// identity it returns that hash, which is adopted unless it is already
// cached.
func (a *Agent) Register(ctx context.Context) error {
	resp, err := a.post(ctx, heartbeat.ActionRegister)

	switch {
	case err == nil:
	case rejectedWith(err, heartbeat.AlreadyRegistered) && models.ValidIdentity(resp.DeviceHash):
		if resp.DeviceHash == a.DeviceHash() {
			a.logger.Debug().Str("device", resp.DeviceHash).Msg("Already registered")

			return nil
		}
	default:
		return err
	}

	a.adopt(resp.DeviceHash)
	a.logger.Info().Str("device", resp.DeviceHash).Msg("Registered")

	return nil
}

// Update re-discovers the host and sends its current facts. The
// authority answers with the possibly changed hash and the intervals to
// use from now on.
func (a *Agent) Update(ctx context.Context) error {
	if a.DeviceHash() == "" {
		return errNotConnected
	}

	if err := a.refresh(ctx); err != nil {
		return err
	}

	resp, err := a.post(ctx, heartbeat.ActionUpdate)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if resp.PingInterval > 0 {
		a.pingInterval = time.Duration(resp.PingInterval) * time.Second
	}

	if resp.UpdateInterval > 0 {
		a.updateInterval = time.Duration(resp.UpdateInterval) * time.Second
	}
	ping, update := a.pingInterval, a.updateInterval
	old := a.deviceHash
	a.mu.Unlock()

	hash := resp.DeviceHash
	if hash == "" {
		hash = old
	}

	if hash != old {
		a.logger.Info().Str("old_hash", old).Str("new_hash", hash).Msg("Device hash changed")
	}

	a.adopt(hash)
	a.logger.Debug().Dur("ping_interval", ping).Dur("update_interval", update).Msg("Updated")

	return nil
}

// Shutdown tells the authority the host is going away on purpose.
func (a *Agent) Shutdown(ctx context.Context) error {
	if a.DeviceHash() == "" {
		return errNotConnected
	}

	if _, err := a.post(ctx, heartbeat.ActionShutdown); err != nil {
		return err
	}

	a.save()
	a.logger.Info().Msg("Sent shutdown")

	return nil
}

// act applies a pong. It reports whether the host was halted.
func (a *Agent) act(ctx context.Context, resp *heartbeat.Response) bool {
	if resp.Status == nil {
		return false
	}

	first, second := resp.Status[0], resp.Status[1]

	var reason string

	switch {
	case second:
		reason = "kill_second"
	case first && a.config.Role == models.RoleApp:
		reason = "kill_first"
	case first:
		a.logger.Debug().Msg("Ignoring kill_first for server role")

		return false
	default:
		return false
	}

	a.logger.Warn().Str("reason", reason).Msg("Received halt request")

	if err := a.halter.Halt(ctx, reason); err != nil {
		a.logger.Error().Err(err).Msg("Halt failed, will retry on next ping")

		return false
	}

	return true
}

func (a *Agent) refresh(ctx context.Context) error {
	hostname, err := a.discoverer.Hostname()
	if err != nil {
		return fmt.Errorf("hostname: %w", err)
	}

	ifaces, err := a.discoverer.Interfaces(ctx)
	if err != nil {
		return err
	}

	if len(ifaces) == 0 {
		return errNoInterfaces
	}

	ips := make([]string, 0, len(ifaces))
	macs := make([]string, 0, len(ifaces))

	for _, i := range ifaces {
		ips = append(ips, i.IP)
		macs = append(macs, i.MAC)
	}

	a.mu.Lock()
	a.hostname = hostname
	a.ips = ips
	a.macs = macs
	a.mu.Unlock()

	return nil
}

func (a *Agent) updateDue() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.now().Sub(a.lastUpdate) >= a.updateInterval
}

// loadHash restores the cached identity. A damaged file is ignored and
// the host registers afresh.
func (a *Agent) loadHash() {
	hash, at, err := a.hashFile.Read()
	if err != nil {
		a.logger.Warn().Err(err).Msg("Ignoring cached device hash")

		return
	}

	if hash == "" {
		return
	}

	a.mu.Lock()
	a.deviceHash = hash
	a.lastUpdate = at
	a.mu.Unlock()

	a.logger.Debug().Str("device", hash).Time("last_update", at).Msg("Loaded cached device hash")
}

func (a *Agent) adopt(hash string) {
	a.mu.Lock()
	a.deviceHash = hash
	a.lastUpdate = a.now()
	a.mu.Unlock()

	a.save()
}

func (a *Agent) forget() {
	a.mu.Lock()
	a.deviceHash = ""
	a.mu.Unlock()

	if err := a.hashFile.Clear(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to clear cached device hash")
	}
}

func (a *Agent) save() {
	a.mu.Lock()
	hash, at := a.deviceHash, a.lastUpdate
	a.mu.Unlock()

	if hash == "" {
		return
	}

	if err := a.hashFile.Write(hash, at); err != nil {
		a.logger.Warn().Err(err).Str("file", a.hashFile.Path()).Msg("Failed to save device hash")
	}
}
