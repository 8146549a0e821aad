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

//go:generate mockgen -destination=mock_agent.go -package=agent github.com/mfreeman451/killswitch/pkg/agent Discoverer,Halter

import "context"

// Discoverer reports the identity facts sent to the authority.
type Discoverer interface {
	Hostname() (string, error)
	Interfaces(ctx context.Context) ([]Interface, error)
}

// Halter powers the host off.
type Halter interface {
	Halt(ctx context.Context, reason string) error
}
