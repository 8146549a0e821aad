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
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfreeman451/killswitch/pkg/logger"
)

func TestDefaultHaltCommand(t *testing.T) {
	assert.Equal(t, []string{"shutdown", "/s", "/t", "1"}, DefaultHaltCommand("windows"))
	assert.Equal(t, []string{"shutdown", "-P", "now"}, DefaultHaltCommand("linux"))
	assert.Equal(t, []string{"shutdown", "-P", "now"}, DefaultHaltCommand("darwin"))
}

func TestExecHalterDryRun(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "agent.log")
	h := NewExecHalter(&Config{LogFile: logFile, DryRun: true, HaltCommand: []string{"/nonexistent/poweroff"}}, logger.NewTestLogger())
	h.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, h.Halt(context.Background(), "kill_first"))
	require.NoError(t, h.Halt(context.Background(), "kill_second"))

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[2026-05-01T12:00:00Z] Shutdown request from killswitch authority (kill_first).", lines[0])
	assert.Contains(t, lines[1], "(kill_second)")
}

func TestExecHalterRunsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX true and false")
	}

	h := NewExecHalter(&Config{HaltCommand: []string{"true"}}, logger.NewTestLogger())
	require.NoError(t, h.Halt(context.Background(), "kill_second"))

	h.Command = []string{"false"}
	assert.Error(t, h.Halt(context.Background(), "kill_second"))
}
