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
	"fmt"
	"net/http"
)

// ErrorKind is a protocol error class. The numeric values are sent to
// clients as "code" and must not change.
type ErrorKind int

const (
	MissingField        ErrorKind = 1
	NotRegistered       ErrorKind = 2
	AlreadyRegistered   ErrorKind = 3
	UnknownDevice       ErrorKind = 4
	InvalidType         ErrorKind = 5
	InvalidIdentity     ErrorKind = 6
	UpstreamClientFault ErrorKind = 8
	InternalFault       ErrorKind = 9
)

func (k ErrorKind) String() string {
	switch k {
	case MissingField:
		return "missing data"
	case NotRegistered:
		return "register first"
	case AlreadyRegistered:
		return "already registered"
	case UnknownDevice:
		return "unknown device"
	case InvalidType:
		return "invalid data"
	case InvalidIdentity:
		return "invalid device_hash"
	case UpstreamClientFault:
		return "external client error"
	case InternalFault:
		return "internal server error"
	default:
		return fmt.Sprintf("unknown error (%d)", int(k))
	}
}

// HTTPStatus is the status code used when the error is returned by the HTTP
// binding. Protocol errors travel in a 200 response; only transport and
// server faults use error statuses.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case UpstreamClientFault:
		return http.StatusBadRequest
	case InternalFault:
		return http.StatusInternalServerError
	case MissingField, NotRegistered, AlreadyRegistered, UnknownDevice, InvalidType, InvalidIdentity:
		return http.StatusOK
	default:
		return http.StatusOK
	}
}

// Error is a protocol error returned to a client.
type Error struct {
	Kind    ErrorKind
	Message string
	// DeviceHash is set for AlreadyRegistered so the client can adopt the
	// existing identity.
	DeviceHash string
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}

	return e.Kind.String() + ": " + e.Message
}

// NewError builds a protocol error for callers outside the handler, such
// as the HTTP binding reporting transport faults.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}
