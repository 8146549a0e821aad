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

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mfreeman451/killswitch/pkg/heartbeat"
)

const maxResponseBytes = 1 << 20

// outgoing is the request body. Ping and shutdown carry only the action
// and the hash.
type outgoing struct {
	Act        heartbeat.Action `json:"act"`
	DeviceHash *string          `json:"device_hash"`
	Hostname   string           `json:"hostname,omitempty"`
	IPs        []string         `json:"ips,omitempty"`
	MACs       []string         `json:"macs,omitempty"`
	Server     *bool            `json:"server,omitempty"`
}

// rejection wraps a protocol error returned by the authority.
type rejection struct {
	kind    heartbeat.ErrorKind
	message string
}

func (r *rejection) Error() string {
	return fmt.Sprintf("%v: %s (code %d)", errRejected, r.message, int(r.kind))
}

func (*rejection) Unwrap() error {
	return errRejected
}

func rejectedWith(err error, kind heartbeat.ErrorKind) bool {
	var r *rejection

	return errors.As(err, &r) && r.kind == kind
}

// post sends one request. A response with a protocol error is returned
// together with a *rejection so callers can inspect the body.
func (a *Agent) post(ctx context.Context, act heartbeat.Action) (*heartbeat.Response, error) {
	body, err := json.Marshal(a.request(act))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout.Std())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", act, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", act, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", act, err)
	}

	var out heartbeat.Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s returned %d", errUnexpectedStatus, act, resp.StatusCode)
	}

	if out.Failed() {
		return &out, &rejection{kind: heartbeat.ErrorKind(out.Code), message: *out.Error}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", errUnexpectedStatus, act, resp.StatusCode)
	}

	return &out, nil
}

func (a *Agent) request(act heartbeat.Action) outgoing {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := outgoing{Act: act}

	if a.deviceHash != "" {
		h := a.deviceHash
		out.DeviceHash = &h
	}

	if act == heartbeat.ActionRegister || act == heartbeat.ActionUpdate {
		server := a.config.Role.IsServer()
		out.Hostname = a.hostname
		out.IPs = a.ips
		out.MACs = a.macs
		out.Server = &server
	}

	return out
}
