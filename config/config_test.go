// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stratastor/partd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "partd.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, found, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, DefaultSocketPath(), cfg.Helper.SocketPath)
	assert.Equal(t, "pkexec", cfg.Helper.Elevate)
	assert.Equal(t, 4096, cfg.Helper.KeyBits)
	assert.Equal(t, 240*time.Hour, cfg.Helper.CallTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Helper.StartTimeout)
	assert.Equal(t, 10*1024*1024, cfg.Helper.MaxOutputBytes)
	assert.EqualValues(t, 10*1024*1024, cfg.Helper.CopyChunkSize)
	assert.Equal(t, "info", cfg.Logger.LogLevel)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
helper:
  socketPath: /tmp/partd-test.sock
  elevate: sudo -n
  keyBits: 2048
  callTimeout: 1h
logger:
  logLevel: debug
`)
	cfg, found, err := Load(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "/tmp/partd-test.sock", cfg.Helper.SocketPath)
	assert.Equal(t, "sudo -n", cfg.Helper.Elevate)
	assert.Equal(t, 2048, cfg.Helper.KeyBits)
	assert.Equal(t, time.Hour, cfg.Helper.CallTimeout)
	assert.Equal(t, "debug", cfg.Logger.LogLevel)
	// untouched keys keep their defaults
	assert.EqualValues(t, 10*1024*1024, cfg.Helper.CopyChunkSize)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PARTD_HELPER_KEYBITS", "3072")
	t.Setenv("PARTD_LOGGER_LOGLEVEL", "warn")

	cfg, _, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, 3072, cfg.Helper.KeyBits)
	assert.Equal(t, "warn", cfg.Logger.LogLevel)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"short key", "helper:\n  keyBits: 1024\n"},
		{"log level", "logger:\n  logLevel: loud\n"},
		{"zero chunk", "helper:\n  copyChunkSize: 0\n"},
		{"output cap above receive limit", "helper:\n  maxOutputBytes: 33554432\n"},
		{"sentry without dsn", "logger:\n  enableSentry: true\n"},
		{"environment", "environment: staging\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ConfigInvalid), "got %v", err)
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	_, _, err := Load(writeConfig(t, "helper: [unterminated\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ConfigLoadFailed))
}

func TestSaveConfigRoundTrip(t *testing.T) {
	saved := instance
	t.Cleanup(func() { instance = saved })

	cfg, _, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	cfg.Helper.CallTimeout = 90 * time.Minute
	cfg.Helper.Elevate = "doas"
	instance = cfg

	path := filepath.Join(t.TempDir(), "nested", "partd.yml")
	require.NoError(t, SaveConfig(path))
	assert.Equal(t, path, GetLoadedConfigPath())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "helper")

	reloaded, found, err := Load(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 90*time.Minute, reloaded.Helper.CallTimeout)
	assert.Equal(t, "doas", reloaded.Helper.Elevate)
}

func TestResolvePath(t *testing.T) {
	t.Setenv("PARTD_CONFIG", "/tmp/from-env.yml")
	assert.Equal(t, "/explicit.yml", resolvePath("/explicit.yml"))
	assert.Equal(t, "/tmp/from-env.yml", resolvePath(""))

	t.Setenv("PARTD_CONFIG", "")
	assert.Equal(t, filepath.Join(GetConfigDir(), "partd.yml"), resolvePath(""))
}

func TestNewLoggerConfig(t *testing.T) {
	assert.Equal(t, "info", NewLoggerConfig(nil).LogLevel)

	cfg := defaults()
	cfg.Logger.LogLevel = "debug"
	assert.Equal(t, "debug", NewLoggerConfig(cfg).LogLevel)
}

func TestEnsureRuntimeDir(t *testing.T) {
	uid := os.Geteuid()

	t.Run("creates private dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "run", "partd-test")
		require.NoError(t, EnsureRuntimeDir(dir, uid))

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

		// existing private dir is accepted
		assert.NoError(t, EnsureRuntimeDir(dir, uid))
	})

	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{"group writable", func(t *testing.T, dir string) {
			require.NoError(t, os.Mkdir(dir, 0700))
			require.NoError(t, os.Chmod(dir, 0770))
		}},
		{"world writable", func(t *testing.T, dir string) {
			require.NoError(t, os.Mkdir(dir, 0700))
			require.NoError(t, os.Chmod(dir, 0777))
		}},
		{"symlink", func(t *testing.T, dir string) {
			target := filepath.Join(filepath.Dir(dir), "elsewhere")
			require.NoError(t, os.Mkdir(target, 0700))
			require.NoError(t, os.Symlink(target, dir))
		}},
		{"regular file", func(t *testing.T, dir string) {
			require.NoError(t, os.WriteFile(dir, nil, 0600))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "partd-test")
			tt.setup(t, dir)

			err := EnsureRuntimeDir(dir, uid)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ConfigUnsafeDir), "got %v", err)
		})
	}

	t.Run("foreign owner", func(t *testing.T) {
		if uid == 0 {
			t.Skip("root owned directories are always trusted")
		}
		dir := filepath.Join(t.TempDir(), "partd-test")
		require.NoError(t, os.Mkdir(dir, 0700))

		err := EnsureRuntimeDir(dir, uid+1)
		assert.True(t, errors.IsCode(err, errors.ConfigUnsafeDir), "got %v", err)
	})
}
