// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/stratastor/partd/internal/constants"
	"github.com/stratastor/partd/pkg/errors"
)

var (
	configDir  string // Directory for configuration files
	runtimeDir string // Directory for the helper socket and PID file
)

func init() {
	if os.Geteuid() == 0 {
		configDir = constants.SystemConfigDir
		runtimeDir = constants.SystemRuntimeDir
		return
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(homeDir, constants.UserConfigDirName)
	} else {
		configDir = filepath.Join(os.TempDir(), constants.UserConfigDirName)
	}
	// The helper runs as root but serves one user, so the socket is per uid
	runtimeDir = filepath.Join(os.TempDir(), "partd-"+strconv.Itoa(os.Getuid()))
}

// GetConfigDir returns the configuration directory: /etc/partd for root,
// ~/.partd otherwise
func GetConfigDir() string {
	return configDir
}

func DefaultSocketPath() string {
	return filepath.Join(runtimeDir, constants.HelperSocketName)
}

func DefaultPIDFile() string {
	return filepath.Join(runtimeDir, constants.HelperPIDFileName)
}

// EnsureRuntimeDir creates dir with mode 0700 for uid, or checks that an
// existing dir is a real directory owned by root or uid that nobody else
// can write to. The helper socket must only live in such a directory.
func EnsureRuntimeDir(dir string, uid int) error {
	if _, err := os.Lstat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
			return errors.Wrap(err, errors.ConfigWriteFailed).WithMetadata("path", dir)
		}
		if err := os.Mkdir(dir, 0700); err != nil && !os.IsExist(err) {
			return errors.Wrap(err, errors.ConfigWriteFailed).WithMetadata("path", dir)
		}
		if uid >= 0 && uid != os.Geteuid() {
			if err := os.Lchown(dir, uid, -1); err != nil {
				return errors.Wrap(err, errors.ConfigWriteFailed).WithMetadata("path", dir)
			}
		}
	}

	info, err := os.Lstat(dir)
	if err != nil {
		return errors.Wrap(err, errors.ConfigUnsafeDir).WithMetadata("path", dir)
	}
	refuse := func(reason string) error {
		return errors.New(errors.ConfigUnsafeDir, reason).WithMetadata("path", dir)
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return refuse("runtime directory is a symlink")
	case !info.IsDir():
		return refuse("runtime path is not a directory")
	case info.Mode().Perm()&0022 != 0:
		return refuse("runtime directory is writable by group or others")
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		if st.Uid != 0 && int(st.Uid) != uid {
			return refuse(fmt.Sprintf("runtime directory is owned by uid %d", st.Uid))
		}
	}
	return nil
}
