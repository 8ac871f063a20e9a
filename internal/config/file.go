package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// ConfigBackend persists non-secret keys. Values come back as text and are
// parsed against the key's declared type.
type ConfigBackend interface {
	Lookup(key string) (raw string, ok bool, err error)
	Store(key string, value any) error
}

func defaultDataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), "civicnav-data")
}

func configFilePath() string {
	if p := os.Getenv("CIVICNAV_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config", "civicnav"), "config.json")
}

// xdgDir resolves $env/civicnav, falling back to ~/homeRel/civicnav and then
// to fallback when there is no home directory.
func xdgDir(env, homeRel, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "civicnav")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, homeRel, "civicnav")
}

// fileBackend is a flat JSON object keyed by dotted names. Numbers and
// booleans are written as JSON scalars so the file stays hand-editable.
type fileBackend struct {
	path string
	data map[string]any
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: map[string]any{}}
	if err := readJSONFile(path, &b.data); err != nil {
		slog.Warn("ignoring unreadable config file", "path", path, "error", err)
		b.data = map[string]any{}
	}
	return b
}

func (b *fileBackend) Lookup(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok || v == nil {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	default:
		return "", true, fmt.Errorf("%s holds a %T, want a scalar", key, v)
	}
}

func (b *fileBackend) Store(key string, value any) error {
	b.data[key] = value
	return writeJSONFile(b.path, b.data)
}

// readJSONFile decodes path into v. A missing file leaves v untouched.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSONFile writes v owner-only, creating parent directories.
func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
