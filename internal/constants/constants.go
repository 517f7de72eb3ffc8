// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package constants

// Build-time variables set via ldflags
var (
	Version   = "v0.0.1-dev" // Set via -X flag during build
	CommitSHA = "unknown"    // Set via -X flag during build
	BuildTime = "unknown"    // Set via -X flag during build
)

const (
	PartdVersion = "v0.0.1"

	// config
	ConfigFileName = "partd.yml"
	ConfigEnvVar   = "PARTD_CONFIG"
	EnvPrefix      = "PARTD"

	// helper
	HelperCommand     = "helper"
	DefaultElevate    = "pkexec"
	HelperSocketName  = "helper.sock"
	HelperPIDFileName = "helper.pid"
	SystemRuntimeDir  = "/run/partd"
	SystemConfigDir   = "/etc/partd"
	UserConfigDirName = ".partd"
)
