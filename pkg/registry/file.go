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

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
)

// FileVersion is the current registry document version.
const FileVersion = 1

const filePerm = 0o600

// FilePersister keeps the registry in a single JSON document:
//
//	{"version": 1, "hosts": {"<hash>": [hostname, hash, ips, macs, server, last_request, last_update, enabled]}}
//
// Host order is preserved. Every Save rewrites the document through a
// temporary file and a rename, so a failed write leaves the previous
// snapshot in place.
type FilePersister struct {
	path   string
	logger logger.Logger
}

func NewFilePersister(path string, log logger.Logger) *FilePersister {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &FilePersister{path: path, logger: log}
}

// Path returns the document location.
func (p *FilePersister) Path() string {
	return p.path
}

// Load reads the registry. A missing file is created empty; a legacy
// version-less document is migrated and rewritten before returning.
func (p *FilePersister) Load() ([]models.Record, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := p.Save(nil); err != nil {
			return nil, err
		}

		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read registry '%s': %w", p.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	version, hosts, err := splitDocument(data)
	if err != nil {
		return nil, err
	}

	switch version {
	case FileVersion:
		return decodeHosts(hosts)
	case 0:
		return p.migrate(data)
	default:
		return nil, fmt.Errorf("%w: %d", errUnsupportedVersion, version)
	}
}

func (p *FilePersister) migrate(data []byte) ([]models.Record, error) {
	records, err := migrateLegacy(data)
	if err != nil {
		return nil, err
	}

	backup := p.path + ".v0.bak"
	if err := os.WriteFile(backup, data, filePerm); err != nil {
		return nil, fmt.Errorf("failed to back up legacy registry: %w", err)
	}

	if err := p.Save(records); err != nil {
		return nil, err
	}

	p.logger.Warn().
		Int("devices", len(records)).
		Str("backup", backup).
		Msg("Migrated legacy registry file to version 1")

	return records, nil
}

// Save writes the full snapshot.
func (p *FilePersister) Save(records []models.Record) error {
	data, err := encodeDocument(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write registry: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to sync registry: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close registry: %w", err)
	}

	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("failed to chmod registry: %w", err)
	}

	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}

	return nil
}

func encodeDocument(records []models.Record) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, `{"version":%d,"hosts":{`, FileVersion)

	for i, r := range records {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(r.DeviceHash)
		if err != nil {
			return nil, err
		}

		value, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to encode device %s: %w", r.DeviceHash, err)
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteString("}}")

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "    "); err != nil {
		return nil, err
	}

	out.WriteByte('\n')

	return out.Bytes(), nil
}

// splitDocument returns the version and the raw hosts object. Documents
// without a version key are legacy (version 0) and the whole document is
// the hosts object.
func splitDocument(data []byte) (int, json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", errMalformedDocument, err)
	}

	rawVersion, ok := top["version"]
	if !ok {
		return 0, data, nil
	}

	var version int
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return 0, nil, fmt.Errorf("%w: version: %w", errMalformedDocument, err)
	}

	hosts, ok := top["hosts"]
	if !ok {
		hosts = json.RawMessage(`{}`)
	}

	return version, hosts, nil
}

func decodeHosts(hosts json.RawMessage) ([]models.Record, error) {
	var records []models.Record

	err := forEachOrdered(hosts, func(key string, raw json.RawMessage) error {
		var r models.Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("%w: host %s: %w", errMalformedDocument, key, err)
		}

		if r.DeviceHash == "" {
			r.DeviceHash = key
		}

		records = append(records, r)

		return nil
	})

	return records, err
}

// forEachOrdered walks a JSON object in document order.
func forEachOrdered(data json.RawMessage, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", errMalformedDocument, err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected object", errMalformedDocument)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", errMalformedDocument, err)
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected key", errMalformedDocument)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: %w", errMalformedDocument, err)
		}

		if err := fn(key, raw); err != nil {
			return err
		}
	}

	_, err = dec.Token()

	return err
}
