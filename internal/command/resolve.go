// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/stratastor/partd/pkg/errors"
)

// Storage tools usually live in sbin, which is often missing from an
// unprivileged user's PATH.
var sbinDirs = []string{"/sbin", "/usr/sbin", "/usr/local/sbin"}

// Resolver maps a program name to the absolute path that will be signed
type Resolver func(name string) (string, error)

// FindExecutable looks name up in PATH, then in the sbin directories
func FindExecutable(name string) (string, error) {
	if filepath.IsAbs(name) {
		if isExecutable(name) {
			return name, nil
		}
		return "", errors.New(errors.ExecutableNotFound, name)
	}

	if p, err := exec.LookPath(name); err == nil {
		if abs, err := filepath.Abs(p); err == nil {
			return abs, nil
		}
		return p, nil
	}

	for _, dir := range sbinDirs {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", errors.New(errors.ExecutableNotFound, name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
