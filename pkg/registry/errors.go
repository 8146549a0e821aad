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

package registry

import "errors"

var (
	// ErrPersist wraps failures of the durable write. The in-memory state is
	// rolled back when it is returned.
	ErrPersist = errors.New("failed to persist registry")
	// ErrNotFound is returned by Modify for unknown identities.
	ErrNotFound = errors.New("device not found")

	errUnsupportedVersion = errors.New("unsupported registry file version")
	errMalformedDocument  = errors.New("malformed registry document")
	errLegacyRecord       = errors.New("malformed legacy device record")
)
