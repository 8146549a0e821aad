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

package heartbeat

import (
	"bytes"
	"encoding/json"

	"github.com/mfreeman451/killswitch/pkg/models"
)

// Action is the operation a client asks for.
type Action string

const (
	ActionRegister Action = "register"
	ActionUpdate   Action = "update"
	ActionPing     Action = "ping"
	ActionShutdown Action = "shutdown"
)

// Request is a validated client request.
type Request struct {
	Action     Action
	DeviceHash string
	Hostname   string
	IPs        []string
	MACs       []string
	Server     bool
}

// Role maps the wire server flag onto a device role.
func (r *Request) Role() models.Role {
	return models.RoleFromServerFlag(r.Server)
}

// wireRequest keeps every field raw so presence and type can be checked
// separately.
type wireRequest struct {
	Act        json.RawMessage `json:"act"`
	DeviceHash json.RawMessage `json:"device_hash"`
	Hostname   json.RawMessage `json:"hostname"`
	IPs        json.RawMessage `json:"ips"`
	MACs       json.RawMessage `json:"macs"`
	Server     json.RawMessage `json:"server"`
}

// DecodeRequest parses and validates a request body. Legacy clients send
// the object encoded as a JSON string, which is unwrapped first.
func DecodeRequest(body []byte) (*Request, *Error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, newError(MissingField, "empty request")
	}

	if body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return nil, newError(InvalidType, "request is not JSON: %v", err)
		}

		body = bytes.TrimSpace([]byte(inner))
	}

	if len(body) == 0 || body[0] != '{' {
		return nil, newError(InvalidType, "request must be an object")
	}

	var w wireRequest
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, newError(InvalidType, "request is not JSON: %v", err)
	}

	return w.validate()
}

// validate checks the action, then the identity for every action except
// register, then the device fields for register and update.
func (w *wireRequest) validate() (*Request, *Error) {
	req := &Request{}

	act, err := stringField("act", w.Act)
	if err != nil {
		return nil, err
	}

	req.Action = Action(act)

	if req.Action != ActionRegister {
		if req.DeviceHash, err = identityField(w.DeviceHash); err != nil {
			return nil, err
		}
	}

	switch req.Action {
	case ActionRegister, ActionUpdate:
		if err := w.validateDevice(req); err != nil {
			return nil, err
		}
	case ActionPing, ActionShutdown:
	default:
		return nil, newError(InvalidType, "act %q", act)
	}

	return req, nil
}

func (w *wireRequest) validateDevice(req *Request) *Error {
	var err *Error

	if req.Hostname, err = stringField("hostname", w.Hostname); err != nil {
		return err
	}

	if req.IPs, err = listField("ips", w.IPs); err != nil {
		return err
	}

	if req.MACs, err = listField("macs", w.MACs); err != nil {
		return err
	}

	if absent(w.Server) {
		return newError(MissingField, "server")
	}

	if err := json.Unmarshal(w.Server, &req.Server); err != nil {
		return newError(InvalidType, "server must be a boolean")
	}

	return nil
}

func absent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func stringField(name string, raw json.RawMessage) (string, *Error) {
	if absent(raw) {
		return "", newError(MissingField, "%s", name)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", newError(InvalidType, "%s must be a string", name)
	}

	if s == "" {
		return "", newError(MissingField, "%s", name)
	}

	return s, nil
}

func listField(name string, raw json.RawMessage) ([]string, *Error) {
	if absent(raw) {
		return nil, newError(MissingField, "%s", name)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, newError(InvalidType, "%s must be a list of strings", name)
	}

	if len(list) == 0 {
		return nil, newError(MissingField, "%s", name)
	}

	return list, nil
}

func identityField(raw json.RawMessage) (string, *Error) {
	if absent(raw) {
		return "", newError(InvalidIdentity, "device_hash is required")
	}

	var h string
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", newError(InvalidIdentity, "device_hash must be a string")
	}

	if !models.ValidIdentity(h) {
		return "", newError(InvalidIdentity, "bad device_hash")
	}

	return h, nil
}
