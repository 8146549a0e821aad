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
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mfreeman451/killswitch/pkg/models"
)

const hashSeparator = "::"

// HashFile caches the device hash between runs as "<epoch seconds>::<hash>",
// where the timestamp is the last successful update.
type HashFile struct {
	path string
}

func NewHashFile(path string) *HashFile {
	return &HashFile{path: path}
}

func (f *HashFile) Path() string {
	return f.path
}

// Read returns an empty hash and zero time when the file does not exist.
func (f *HashFile) Read() (hash string, lastUpdate time.Time, err error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", time.Time{}, nil
	}

	if err != nil {
		return "", time.Time{}, fmt.Errorf("read hash file: %w", err)
	}

	stamp, hash, ok := strings.Cut(strings.TrimSpace(string(data)), hashSeparator)
	if !ok {
		return "", time.Time{}, fmt.Errorf("%w: %s", errMalformedHashFile, f.path)
	}

	secs, err := strconv.ParseFloat(stamp, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return "", time.Time{}, fmt.Errorf("%w: bad timestamp %q", errMalformedHashFile, stamp)
	}

	if !models.ValidIdentity(hash) {
		return "", time.Time{}, fmt.Errorf("%w: bad hash", errMalformedHashFile)
	}

	whole, frac := math.Modf(secs)

	return hash, time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC(), nil
}

// Write replaces the file through a temporary file and a rename.
func (f *HashFile) Write(hash string, lastUpdate time.Time) error {
	secs := float64(lastUpdate.Unix()) + float64(lastUpdate.Nanosecond())/float64(time.Second)
	body := strconv.FormatFloat(secs, 'f', -1, 64) + hashSeparator + hash

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write hash file: %w", err)
	}

	if _, err := tmp.WriteString(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("write hash file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("write hash file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("write hash file: %w", err)
	}

	return nil
}

// Clear removes the cached hash.
func (f *HashFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear hash file: %w", err)
	}

	return nil
}
