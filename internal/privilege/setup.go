// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package privilege

import (
	"os"
	"path/filepath"

	"github.com/stratastor/logger"
	"github.com/stratastor/partd/config"
)

// NewBridgeFromConfig builds a bridge that launches the helper through the
// configured elevation command. The socket directory is created private to
// the caller, or refused if someone else could replace the socket in it.
func NewBridgeFromConfig(l logger.Logger, cfg *config.Config) (*Bridge, error) {
	if err := config.EnsureRuntimeDir(filepath.Dir(cfg.Helper.SocketPath), os.Geteuid()); err != nil {
		return nil, err
	}
	launcher := &ProcessLauncher{
		Logger:       l,
		Elevate:      cfg.Helper.Elevate,
		Binary:       cfg.Helper.Binary,
		Socket:       cfg.Helper.SocketPath,
		StartTimeout: cfg.Helper.StartTimeout,

		MaxOutputBytes: cfg.Helper.MaxOutputBytes,
	}
	return NewBridge(l, NewSession(cfg.Helper.KeyBits), launcher, Config{
		CallTimeout: cfg.Helper.CallTimeout,
		ChunkSize:   cfg.Helper.CopyChunkSize,
	}), nil
}
