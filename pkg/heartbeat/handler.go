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

// Package heartbeat pkg/heartbeat/handler.go binds client requests to the
// registry and the phased command timer.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/killswitch/pkg/command"
	"github.com/mfreeman451/killswitch/pkg/events"
	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
	"github.com/mfreeman451/killswitch/pkg/registry"
)

const (
	DefaultPingInterval   = 60 * time.Second
	DefaultUpdateInterval = 12 * time.Hour
)

// Registry is the subset of the registry store used by the handler.
type Registry interface {
	Get(hash string) (models.Device, bool)
	Add(d *models.Device) (bool, error)
	Modify(hash string, fn func(d *models.Device) error) (before, after models.Device, err error)
}

// StatusSource reports the current phase flags.
type StatusSource interface {
	Status() command.Status
}

// Firer delivers device transitions.
type Firer interface {
	Fire(ctx context.Context, kind events.Kind, d models.Device) error
}

// MetricRecorder receives one observation per handled request.
type MetricRecorder interface {
	AddMetric(deviceHash string, timestamp time.Time, responseTime int64, action string) error
}

type Config struct {
	PingInterval   time.Duration
	UpdateInterval time.Duration
	// SortMACs canonicalises MAC lists before hashing so interface
	// enumeration order does not mint new identities.
	SortMACs bool
}

// Handler is safe for concurrent use; all state lives in the registry and
// the timer.
type Handler struct {
	registry Registry
	status   StatusSource
	events   Firer
	metrics  MetricRecorder
	config   Config
	now      func() time.Time
	logger   logger.Logger
}

type Option func(*Handler)

func WithMetrics(m MetricRecorder) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

func NewHandler(reg Registry, status StatusSource, firer Firer, cfg Config, opts ...Option) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}

	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}

	h := &Handler{
		registry: reg,
		status:   status,
		events:   firer,
		config:   cfg,
		now:      time.Now,
		logger:   logger.NewTestLogger(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// HandleRaw decodes body and handles it.
func (h *Handler) HandleRaw(ctx context.Context, body []byte) *Response {
	req, perr := DecodeRequest(body)
	if perr != nil {
		h.logger.Debug().Err(perr).Msg("Rejected client request")

		return ErrorResponse(perr)
	}

	return h.Handle(ctx, req)
}

// Handle executes a validated request. It never panics; unexpected
// failures become InternalFault responses.
func (h *Handler) Handle(ctx context.Context, req *Request) (resp *Response) {
	if req == nil {
		return ErrorResponse(newError(InvalidType, "empty request"))
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Str("act", string(req.Action)).Msg("Recovered from panic in heartbeat handler")

			resp = ErrorResponse(newError(InternalFault, "%v", r))
		}

		h.record(req, resp, time.Since(start))
	}()

	var err error

	switch req.Action {
	case ActionRegister:
		resp, err = h.register(req)
	case ActionUpdate:
		resp, err = h.update(ctx, req)
	case ActionPing:
		resp, err = h.ping(ctx, req)
	case ActionShutdown:
		resp, err = h.shutdown(ctx, req)
	default:
		err = newError(InvalidType, "act %q", req.Action)
	}

	if err != nil {
		return h.fail(req, err)
	}

	return resp
}

func (h *Handler) fail(req *Request, err error) *Response {
	var perr *Error
	if errors.As(err, &perr) {
		return ErrorResponse(perr)
	}

	h.logger.Error().Err(err).Str("act", string(req.Action)).Str("device", req.DeviceHash).Msg("Failed to handle client request")

	return ErrorResponse(newError(InternalFault, "%v", err))
}

func (h *Handler) record(req *Request, resp *Response, took time.Duration) {
	if h.metrics == nil || resp == nil || resp.Failed() {
		return
	}

	hash := resp.DeviceHash
	if hash == "" {
		hash = req.DeviceHash
	}

	if err := h.metrics.AddMetric(hash, h.now(), took.Microseconds(), string(req.Action)); err != nil {
		h.logger.Debug().Err(err).Str("device", hash).Msg("Failed to record heartbeat metric")
	}
}

func (h *Handler) macs(macs []string) []string {
	if h.config.SortMACs {
		return models.CanonicalMACs(macs)
	}

	return macs
}

func (h *Handler) register(req *Request) (*Response, error) {
	d := models.NewDevice(req.Hostname, req.IPs, h.macs(req.MACs), req.Role(), h.now())

	added, err := h.registry.Add(d)
	if err != nil {
		return nil, err
	}

	if !added {
		return nil, &Error{Kind: AlreadyRegistered, DeviceHash: d.DeviceHash}
	}

	h.logger.Info().Str("hostname", d.Hostname).Str("device", d.DeviceHash).Str("role", string(d.Role)).Msg("Registered device")

	return &Response{DeviceHash: d.DeviceHash}, nil
}

func (h *Handler) update(ctx context.Context, req *Request) (*Response, error) {
	now := h.now().UTC()

	before, after, err := h.registry.Modify(req.DeviceHash, func(d *models.Device) error {
		d.Enabled = true
		d.Hostname = req.Hostname
		d.IPs = req.IPs
		d.MACs = h.macs(req.MACs)
		d.Role = req.Role()
		d.LastRequest = now
		d.LastUpdate = now

		return nil
	})
	if errors.Is(err, registry.ErrNotFound) {
		return nil, newError(NotRegistered, "update")
	}

	if err != nil {
		return nil, err
	}

	h.fireEnable(ctx, before, after)

	updated := before.DeviceHash != after.DeviceHash
	if updated {
		h.logger.Info().
			Str("hostname", after.Hostname).
			Str("old_hash", before.DeviceHash).
			Str("new_hash", after.DeviceHash).
			Msg("Device identity changed")
	}

	return &Response{
		DeviceHash:     after.DeviceHash,
		Updated:        &updated,
		PingInterval:   int(h.config.PingInterval / time.Second),
		UpdateInterval: int(h.config.UpdateInterval / time.Second),
	}, nil
}

func (h *Handler) ping(ctx context.Context, req *Request) (*Response, error) {
	now := h.now().UTC()

	before, after, err := h.registry.Modify(req.DeviceHash, func(d *models.Device) error {
		d.Enabled = true
		d.LastRequest = now

		return nil
	})
	if errors.Is(err, registry.ErrNotFound) {
		return nil, newError(UnknownDevice, "ping")
	}

	if err != nil {
		return nil, err
	}

	h.fireEnable(ctx, before, after)

	return pongResponse(h.status.Status()), nil
}

func (h *Handler) shutdown(ctx context.Context, req *Request) (*Response, error) {
	before, after, err := h.registry.Modify(req.DeviceHash, func(d *models.Device) error {
		d.Enabled = false

		return nil
	})
	if errors.Is(err, registry.ErrNotFound) {
		return nil, newError(UnknownDevice, "shutdown")
	}

	if err != nil {
		return nil, err
	}

	if before.Enabled {
		h.logger.Info().Str("hostname", after.Hostname).Str("device", after.DeviceHash).Msg("Device shut down")

		h.fire(ctx, events.KindShutdown, after)
	}

	return &Response{Message: "ok"}, nil
}

func (h *Handler) fireEnable(ctx context.Context, before, after models.Device) {
	if before.Enabled {
		return
	}

	h.logger.Info().Str("hostname", after.Hostname).Str("device", after.DeviceHash).Msg("Device re-enabled")

	h.fire(ctx, events.KindEnable, after)
}

// fire runs callbacks without failing the request.
func (h *Handler) fire(ctx context.Context, kind events.Kind, d models.Device) {
	if h.events == nil {
		return
	}

	if err := h.events.Fire(ctx, kind, d); err != nil {
		h.logger.Warn().Err(fmt.Errorf("%s callbacks: %w", kind, err)).Str("device", d.DeviceHash).Msg("Event callbacks reported errors")
	}
}
