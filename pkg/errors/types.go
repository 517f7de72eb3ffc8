/*
 * Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in>
 * Copyright 2024-2025 The StrataSTOR Authors and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

import "google.golang.org/grpc/codes"

const (
	DomainConfig    Domain = "CONFIG"
	DomainCommand   Domain = "CMD"
	DomainPrivilege Domain = "PRIV"
	DomainJob       Domain = "JOB"
	DomainOperation Domain = "OP"
	DomainLifecycle Domain = "LIFECYCLE"
	DomainMisc      Domain = "MISC"
)

// ErrorCode represents unique error identifiers
type ErrorCode int

// Domain represents the subsystem where the error originated
type Domain string

type PartdError struct {
	Code    ErrorCode `json:"code"`
	Domain  Domain    `json:"domain"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	GRPCCode codes.Code `json:"-"`

	// Metadata carries structured context such as the failing job, the
	// command line or the device path. It is rendered into reports and logs.
	Metadata map[string]string `json:"metadata,omitempty"`

	cause error
}

// Error code ranges:
// 1000-1099: Configuration errors
// 1300-1399: Command execution
// 1400-1499: Privilege bridge and helper
// 1500-1599: Lifecycle management
// 1600-1699: Misc program errors
// 2000-2099: Jobs
// 2100-2199: Operations
// 2200-2299: Device model (disk.go)
const (
	// Configuration Errors (1000-1099)
	ConfigNotFound  = 1000 + iota // Config file not found
	ConfigInvalid                 // Invalid config values
	ConfigLoadFailed              // Failed to load config
	ConfigWriteFailed             // Failed to write config
	ConfigUnsafeDir               // Runtime directory is not private
)

const (
	// Command Execution (1300-1399)
	ExecutableNotFound  = 1300 + iota // Program could not be resolved
	ProcessFailure                    // Program exited non-zero or crashed
	CommandInvalidInput               // Invalid command input
	CommandOutputLimit                // Output exceeded the configured bound
)

const (
	// Privilege Errors (1400-1499)
	TransportUnavailable  = 1400 + iota // Helper channel not reachable
	AuthenticationFailure               // Bad signature or replayed counter
	HelperStartFailed                   // Helper could not be launched
	HelperNotRunning                    // Helper has been stopped
	KeyGenerationFailed                 // Signing key could not be created
	CopyFailed                          // Block copy failed
)

const (
	// Lifecycle Management (1500-1599)
	LifecyclePID    = 1500 + iota // PID file operation failed
	LifecycleSignal               // Signal handling error
)

const (
	// Misc (1600-1699)
	PartdMisc     = 1600 + iota // Miscellaneous program error
	NotFoundError               // Not found error
)

const (
	// Jobs (2000-2099)
	JobFailure      = 2000 + iota // A job did not complete
	JobNotSupported               // Filesystem type lacks the required support
)

const (
	// Operations (2100-2199)
	OperationFailure      = 2100 + iota // First failing job within an operation
	NotReversible                       // Undo requested with no safe inverse
	ConflictingTargets                  // Overlapping queued operations
	OperationInvalidState               // Transition not allowed from current state
	OperationInvalidInput               // Operation could not be constructed
)

var errorDefinitions = map[ErrorCode]struct {
	message  string
	domain   Domain
	grpcCode codes.Code
}{
	ConfigNotFound:    {"Configuration file not found", DomainConfig, codes.NotFound},
	ConfigInvalid:     {"Invalid configuration", DomainConfig, codes.InvalidArgument},
	ConfigLoadFailed:  {"Failed to load configuration", DomainConfig, codes.Internal},
	ConfigWriteFailed: {"Failed to write configuration", DomainConfig, codes.Internal},
	ConfigUnsafeDir:   {"Runtime directory is not private", DomainConfig, codes.PermissionDenied},

	ExecutableNotFound: {
		"Executable not found",
		DomainCommand,
		codes.NotFound,
	},
	ProcessFailure: {
		"Command execution failed",
		DomainCommand,
		codes.Aborted,
	},
	CommandInvalidInput: {
		"Invalid command input",
		DomainCommand,
		codes.InvalidArgument,
	},
	CommandOutputLimit: {
		"Command output exceeded limit",
		DomainCommand,
		codes.ResourceExhausted,
	},

	TransportUnavailable: {
		"Privileged helper is unreachable",
		DomainPrivilege,
		codes.Unavailable,
	},
	AuthenticationFailure: {
		"Request authentication failed",
		DomainPrivilege,
		codes.Unauthenticated,
	},
	HelperStartFailed: {
		"Could not obtain administrator privileges",
		DomainPrivilege,
		codes.Unavailable,
	},
	HelperNotRunning: {
		"Privileged helper is not running",
		DomainPrivilege,
		codes.FailedPrecondition,
	},
	KeyGenerationFailed: {
		"Failed to generate signing key",
		DomainPrivilege,
		codes.Internal,
	},
	CopyFailed: {
		"Block copy failed",
		DomainPrivilege,
		codes.Aborted,
	},

	LifecyclePID:    {"PID file operation failed", DomainLifecycle, codes.Internal},
	LifecycleSignal: {"Signal handling error", DomainLifecycle, codes.Internal},

	PartdMisc:     {"Miscellaneous program error", DomainMisc, codes.Unknown},
	NotFoundError: {"Not found", DomainMisc, codes.NotFound},

	JobFailure:      {"Job failed", DomainJob, codes.Aborted},
	JobNotSupported: {"Operation not supported by filesystem", DomainJob, codes.Unimplemented},

	OperationFailure: {
		"Operation failed",
		DomainOperation,
		codes.Aborted,
	},
	NotReversible: {
		"Operation is not reversible",
		DomainOperation,
		codes.FailedPrecondition,
	},
	ConflictingTargets: {
		"Operation conflicts with a queued operation",
		DomainOperation,
		codes.AlreadyExists,
	},
	OperationInvalidState: {
		"Operation is in the wrong state",
		DomainOperation,
		codes.FailedPrecondition,
	},
	OperationInvalidInput: {
		"Invalid operation input",
		DomainOperation,
		codes.InvalidArgument,
	},
}
