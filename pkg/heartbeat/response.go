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

import "github.com/mfreeman451/killswitch/pkg/command"

// Response is the body returned for every request. Error is always
// present, null on success.
type Response struct {
	Error      *string `json:"error"`
	Code       int     `json:"code,omitempty"`
	DeviceHash string  `json:"device_hash,omitempty"`

	// update
	Updated        *bool `json:"updated,omitempty"`
	PingInterval   int   `json:"ping_interval,omitempty"`
	UpdateInterval int   `json:"update_interval,omitempty"`

	// ping and shutdown
	Message   string   `json:"message,omitempty"`
	Status    *[2]bool `json:"status,omitempty"`
	KillApps  *bool    `json:"kill_apps,omitempty"`
	KillOther *bool    `json:"kill_other,omitempty"`
}

// ErrorResponse renders a protocol error.
func ErrorResponse(e *Error) *Response {
	msg := e.Error()

	return &Response{
		Error:      &msg,
		Code:       int(e.Kind),
		DeviceHash: e.DeviceHash,
	}
}

// Failed reports whether the response carries an error.
func (r *Response) Failed() bool {
	return r.Error != nil
}

func pongResponse(s command.Status) *Response {
	first, second := s.First, s.Second

	return &Response{
		Message:   "pong",
		Status:    &[2]bool{first, second},
		KillApps:  &first,
		KillOther: &second,
	}
}
