package config

import (
	"fmt"
	"path/filepath"
)

// secretStore supplies secrets that are not kept in the plain config file.
type secretStore interface {
	Get(name string) (string, error)
}

// fileSecrets reads secrets from a 0600 JSON object next to the data dir.
type fileSecrets struct {
	path string
}

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

func (s fileSecrets) Get(name string) (string, error) {
	var secrets map[string]string
	if err := readJSONFile(s.path, &secrets); err != nil {
		return "", fmt.Errorf("reading secrets file: %w", err)
	}
	val, ok := secrets[name]
	if !ok {
		return "", fmt.Errorf("secret %q not found", name)
	}
	return val, nil
}

// SetSecret stores a secret config key (llm.api_key, server.api_token) in the
// secrets file. Environment variables still take precedence at load time.
func SetSecret(key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if !s.secret {
		return fmt.Errorf("%q is not a secret; use config set", key)
	}
	return writeSecret(secretsFilePath(), key, value)
}

func writeSecret(path, name, value string) error {
	secrets := map[string]string{}
	if err := readJSONFile(path, &secrets); err != nil {
		return fmt.Errorf("reading secrets file: %w", err)
	}
	secrets[name] = value
	return writeJSONFile(path, secrets)
}
