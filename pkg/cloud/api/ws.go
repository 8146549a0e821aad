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

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// handleWebSocket pushes a StatusSnapshot on connect and then every
// StatusPush until the client goes away or the server shuts down.
func (s *APIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("WebSocket upgrade failed")

		return
	}

	defer func() { _ = conn.Close() }()

	closed := make(chan struct{})

	go func() {
		defer close(closed)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.config.StatusPush.Std())
	defer ticker.Stop()

	for {
		_ = conn.SetWriteDeadline(writeDeadline())

		if err := conn.WriteJSON(s.authority.QueryStatus()); err != nil {
			s.logger.Debug().Err(err).Msg("WebSocket write failed")

			return
		}

		select {
		case <-closed:
			return
		case <-s.done:
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				writeDeadline(),
			)

			return
		case <-ticker.C:
		}
	}
}
