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

// Package api pkg/cloud/api/server.go serves the heartbeat endpoint and the
// read-only status API.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mfreeman451/killswitch/pkg/command"
	"github.com/mfreeman451/killswitch/pkg/db"
	"github.com/mfreeman451/killswitch/pkg/heartbeat"
	httpx "github.com/mfreeman451/killswitch/pkg/http"
	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
	"golang.org/x/net/netutil"
)

func NewAPIServer(authority Authority, cfg Config, log logger.Logger) *APIServer {
	if log == nil {
		log = logger.NewTestLogger()
	}

	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	cfg.StatusPush = cfg.StatusPush.OrDefault(defaultStatusPush)

	s := &APIServer{
		router:    mux.NewRouter(),
		authority: authority,
		config:    cfg,
		logger:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}

	s.setupRoutes()

	return s
}

func (s *APIServer) setupRoutes() {
	s.router.HandleFunc("/client", s.handleClient).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/devices", s.getDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{hash}", s.getDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{hash}/events", s.getDeviceEvents).Methods(http.MethodGet)
	api.HandleFunc("/devices/{hash}/metrics", s.getDeviceMetrics).Methods(http.MethodGet)
	api.HandleFunc("/triggers", s.getTriggers).Methods(http.MethodGet)
	api.HandleFunc("/admin/trigger", s.postTrigger).Methods(http.MethodPost)
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeFault(w, http.StatusNotFound, heartbeat.UpstreamClientFault, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeFault(w, http.StatusMethodNotAllowed, heartbeat.UpstreamClientFault, "method not allowed")
	})
}

// Handler returns the router wrapped in the shared middleware.
func (s *APIServer) Handler() http.Handler {
	var h http.Handler = s.router

	h = httpx.LoggingMiddleware(s.logger)(h)
	h = httpx.RecoverMiddleware(s.logger, func(w http.ResponseWriter, _ *http.Request, rec interface{}) {
		s.writeFault(w, http.StatusInternalServerError, heartbeat.InternalFault, fmt.Sprint(rec))
	})(h)

	return httpx.CommonMiddleware(h)
}

// Listen opens the configured address capped at MaxConnections concurrent
// connections.
func (s *APIServer) Listen() (net.Listener, error) {
	lis, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}

	return netutil.LimitListener(lis, s.config.MaxConnections), nil
}

// Serve handles requests on lis until Shutdown.
func (s *APIServer) Serve(lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()

		return lis.Close()
	default:
	}

	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("HTTP server listening")

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

// Start listens and serves, blocking until Shutdown.
func (s *APIServer) Start() error {
	lis, err := s.Listen()
	if err != nil {
		return err
	}

	return s.Serve(lis)
}

// Shutdown ends websocket streams and drains in-flight requests. A later
// Serve call returns immediately.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closeOnce.Do(func() { close(s.done) })
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

func (s *APIServer) handleClient(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeFault(w, http.StatusRequestEntityTooLarge, heartbeat.UpstreamClientFault, "request body too large")

			return
		}

		s.writeFault(w, http.StatusBadRequest, heartbeat.UpstreamClientFault, "unreadable request body")

		return
	}

	resp := s.authority.HandleHeartbeat(r.Context(), body)

	status := http.StatusOK
	if resp.Failed() {
		status = heartbeat.ErrorKind(resp.Code).HTTPStatus()
	}

	s.writeJSON(w, status, resp)
}

func (s *APIServer) getStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.authority.QueryStatus())
}

func (s *APIServer) getDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.authority.Devices()
	if devices == nil {
		devices = []DeviceView{}
	}

	s.writeJSON(w, http.StatusOK, devices)
}

// deviceHash returns the validated {hash} path variable or writes a fault.
func (s *APIServer) deviceHash(w http.ResponseWriter, r *http.Request) (string, bool) {
	hash := mux.Vars(r)["hash"]
	if !models.ValidIdentity(hash) {
		s.writeFault(w, http.StatusBadRequest, heartbeat.UpstreamClientFault, "invalid device_hash")

		return "", false
	}

	return hash, true
}

func (s *APIServer) getDevice(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.deviceHash(w, r)
	if !ok {
		return
	}

	device, found := s.authority.Device(hash)
	if !found {
		s.writeFault(w, http.StatusNotFound, heartbeat.UpstreamClientFault, "device not found")

		return
	}

	s.writeJSON(w, http.StatusOK, device)
}

func (s *APIServer) getDeviceEvents(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.deviceHash(w, r)
	if !ok {
		return
	}

	limit := defaultEventLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeFault(w, http.StatusBadRequest, heartbeat.UpstreamClientFault, "invalid limit")

			return
		}

		limit = n
	}

	events, err := s.authority.DeviceEvents(r.Context(), hash, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("device_hash", hash).Msg("Failed to load device events")
		s.writeFault(w, http.StatusInternalServerError, heartbeat.InternalFault, "failed to load events")

		return
	}

	if events == nil {
		events = []db.DeviceEvent{}
	}

	s.writeJSON(w, http.StatusOK, events)
}

func (s *APIServer) getDeviceMetrics(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.deviceHash(w, r)
	if !ok {
		return
	}

	points := s.authority.DeviceMetrics(hash)
	if points == nil {
		points = []models.MetricPoint{}
	}

	s.writeJSON(w, http.StatusOK, points)
}

func (s *APIServer) getTriggers(w http.ResponseWriter, _ *http.Request) {
	triggers := s.authority.Triggers()
	if triggers == nil {
		triggers = []command.Trigger{}
	}

	s.writeJSON(w, http.StatusOK, triggers)
}

func (s *APIServer) authorized(r *http.Request) bool {
	if s.config.APIKey == "" {
		return false
	}

	got := r.Header.Get(apiKeyHeader)

	return subtle.ConstantTimeCompare([]byte(got), []byte(s.config.APIKey)) == 1
}

func (s *APIServer) postTrigger(w http.ResponseWriter, r *http.Request) {
	if s.config.APIKey == "" {
		s.writeFault(w, http.StatusForbidden, heartbeat.UpstreamClientFault, "admin API disabled")

		return
	}

	if !s.authorized(r) {
		s.writeFault(w, http.StatusUnauthorized, heartbeat.UpstreamClientFault, "invalid API key")

		return
	}

	var req TriggerRequest

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.writeFault(w, http.StatusBadRequest, heartbeat.UpstreamClientFault, "unreadable request body")

		return
	}

	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeFault(w, http.StatusBadRequest, heartbeat.UpstreamClientFault, "invalid JSON body")

			return
		}
	}

	if req.Source == "" {
		req.Source = defaultTriggerSource
	}

	at, err := s.authority.TriggerPhasedCommand(r.Context(), req.Source)
	if err != nil {
		// the trigger is in effect even when it could not be persisted
		s.logger.Warn().Err(err).Msg("Phased command trigger not persisted")
	}

	s.writeJSON(w, http.StatusAccepted, TriggerResponse{
		TriggeredAt: at,
		Source:      req.Source,
		Phase:       s.authority.QueryStatus().Phase,
	})
}

func (s *APIServer) writeFault(w http.ResponseWriter, status int, kind heartbeat.ErrorKind, msg string) {
	s.writeJSON(w, status, heartbeat.ErrorResponse(heartbeat.NewError(kind, msg)))
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Error encoding response")
	}
}

func writeDeadline() time.Time {
	return time.Now().Add(10 * time.Second)
}
