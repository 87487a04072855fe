package nodeconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	// dirPermissions is used for missing parent directories.
	dirPermissions = 0750

	// filePermissions is applied to the written document.
	filePermissions = 0600

	// lockRetryInterval is the polling interval while waiting for the lock.
	lockRetryInterval = 100 * time.Millisecond

	// fileName is the document name under the user's config directory.
	fileName = "mfersafe.json"
)

// lockTimeout bounds how long Save waits for a competing writer.
var lockTimeout = 5 * time.Second

// DefaultPath returns $HOME/.config/mfersafe.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", fileName), nil
}

// Load reads the config at path. Any failure yields Default(); it never errors.
func Load(path string) Config {
	cfg, err := LoadStrict(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadStrict is Load without the fallback, for callers that want to report
// why the default record was used.
func LoadStrict(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading node config: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode parses one JSON document. Unknown keys, missing keys, null values
// and trailing data are all rejected.
func Decode(r io.Reader) (Config, error) {
	var doc struct {
		ImpersonatedAccount *string `json:"impersonated_account"`
		Web3RPC             *string `json:"web3_rpc"`
		ListenHostPort      *string `json:"listen_host_port"`
		KeyCacheFilePath    *string `json:"key_cache_file_path"`
		LogFilePath         *string `json:"log_file_path"`
		BatchSize           *int64  `json:"batch_size"`
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Config{}, fmt.Errorf("decoding node config: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decoding node config: trailing data after document")
	}

	var missing []string
	for _, f := range []struct {
		name    string
		present bool
	}{
		{"impersonated_account", doc.ImpersonatedAccount != nil},
		{"web3_rpc", doc.Web3RPC != nil},
		{"listen_host_port", doc.ListenHostPort != nil},
		{"key_cache_file_path", doc.KeyCacheFilePath != nil},
		{"log_file_path", doc.LogFilePath != nil},
		{"batch_size", doc.BatchSize != nil},
	} {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %v", ErrIncomplete, missing)
	}

	return Config{
		ImpersonatedAccount: *doc.ImpersonatedAccount,
		Web3RPC:             *doc.Web3RPC,
		ListenHostPort:      *doc.ListenHostPort,
		KeyCacheFilePath:    *doc.KeyCacheFilePath,
		LogFilePath:         *doc.LogFilePath,
		BatchSize:           *doc.BatchSize,
	}, nil
}

// Save writes cfg to path as 2-space indented JSON, creating parent
// directories as needed. The previous document is replaced atomically.
func Save(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding node config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquiring config lock: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	defer lock.Unlock() //nolint:errcheck // Lock file is released on close regardless

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // Already renamed on success

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // Write error takes precedence
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // Sync error takes precedence
		return fmt.Errorf("syncing temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config: %w", err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing node config: %w", err)
	}
	return nil
}
