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

import "errors"

var (
	// ErrRetriesExhausted is returned when register and ping never agree
	// within the configured number of attempts.
	ErrRetriesExhausted = errors.New("could not connect to authority")

	errNoInterfaces      = errors.New("no usable network interfaces")
	errMalformedHashFile = errors.New("malformed hash file")
	errInvalidRetries    = errors.New("max_retries must not be negative")
	errUnexpectedStatus  = errors.New("unexpected HTTP status")
	errRejected          = errors.New("request rejected")
	errNotConnected      = errors.New("no device hash")
	errUnknownRole       = errors.New("unknown role")
)
