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
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/mfreeman451/killswitch/pkg/logger"
)

// ExecHalter appends a line to the log file and runs the platform
// shutdown command. With DryRun set only the log line is written.
type ExecHalter struct {
	LogFile string
	Command []string
	DryRun  bool
	Logger  logger.Logger
	now     func() time.Time
}

// NewExecHalter builds a halter from the agent config.
func NewExecHalter(cfg *Config, log logger.Logger) *ExecHalter {
	return &ExecHalter{
		LogFile: cfg.LogFile,
		Command: cfg.HaltCommand,
		DryRun:  cfg.DryRun,
		Logger:  log,
		now:     time.Now,
	}
}

// DefaultHaltCommand returns the power-off command for goos.
func DefaultHaltCommand(goos string) []string {
	if goos == "windows" {
		return []string{"shutdown", "/s", "/t", "1"}
	}

	return []string{"shutdown", "-P", "now"}
}

func (h *ExecHalter) Halt(ctx context.Context, reason string) error {
	now := time.Now
	if h.now != nil {
		now = h.now
	}

	if err := h.appendLog(now(), reason); err != nil {
		h.Logger.Warn().Err(err).Str("file", h.LogFile).Msg("Failed to write halt log")
	}

	argv := h.Command
	if len(argv) == 0 {
		argv = DefaultHaltCommand(runtime.GOOS)
	}

	if h.DryRun {
		h.Logger.Warn().Strs("command", argv).Str("reason", reason).Msg("Dry run, not halting")

		return nil
	}

	h.Logger.Warn().Strs("command", argv).Str("reason", reason).Msg("Halting host")

	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %v: %w: %s", argv, err, out)
	}

	return nil
}

func (h *ExecHalter) appendLog(at time.Time, reason string) error {
	if h.LogFile == "" {
		return nil
	}

	f, err := os.OpenFile(h.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(f, "[%s] Shutdown request from killswitch authority (%s).\n", at.Format(time.RFC3339), reason)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	return err
}
