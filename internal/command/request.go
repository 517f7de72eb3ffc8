// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"strings"
	"unicode/utf8"

	"github.com/stratastor/partd/pkg/errors"
)

// Characters that are never valid in a program path
var dangerousChars = "&|><$`\\[];{}\x00"

// Upper bound on the number of arguments a privileged request may carry
const maxArgs = 256

// Mode selects how the helper treats the program's output channels
type Mode uint8

const (
	// SeparateChannels returns stdout as output; stderr is only reported
	SeparateChannels Mode = iota
	// MergedChannels returns stdout and stderr interleaved as output
	MergedChannels
)

func (m Mode) String() string {
	switch m {
	case SeparateChannels:
		return "separate"
	case MergedChannels:
		return "merged"
	default:
		return "unknown"
	}
}

// Request is an immutable description of one privileged invocation
type Request struct {
	program string
	args    []string
	input   []byte
	mode    Mode
}

// NewRequest validates and builds a Request. Slices are copied so later
// changes by the caller do not leak into a request that is being signed.
func NewRequest(program string, args []string, input []byte, mode Mode) (Request, error) {
	if err := validateCommand(program, args); err != nil {
		return Request{}, err
	}
	return Request{
		program: program,
		args:    append([]string(nil), args...),
		input:   append([]byte(nil), input...),
		mode:    mode,
	}, nil
}

func (r Request) Program() string { return r.program }

func (r Request) Args() []string { return append([]string(nil), r.args...) }

func (r Request) Input() []byte { return append([]byte(nil), r.input...) }

func (r Request) Mode() Mode { return r.mode }

// CommandLine renders the request for logs
func (r Request) CommandLine() string {
	return strings.TrimSpace(r.program + " " + strings.Join(r.args, " "))
}

// Result is what the helper reports back for a Request
type Result struct {
	Output   []byte
	ExitCode int
	// Success is true when the program ran to completion, whatever its exit code
	Success bool
}

// BlockRange names a byte range on a device. Length is ignored for copy targets.
type BlockRange struct {
	Path   string
	Offset int64
	Length int64
}

func validateRange(r BlockRange) error {
	if !utf8.ValidString(r.Path) {
		return errors.New(errors.CommandInvalidInput, "device path is not valid UTF-8")
	}
	return nil
}

// validateCommand performs security checks on the command and arguments
func validateCommand(name string, args []string) error {
	if name == "" {
		return errors.New(errors.CommandInvalidInput, "empty command")
	}

	if !strings.HasPrefix(name, "/") && strings.ContainsAny(name, "/\\") {
		return errors.New(
			errors.CommandInvalidInput,
			"relative paths are not allowed for commands",
		)
	}

	if strings.ContainsAny(name, dangerousChars) {
		return errors.New(errors.CommandInvalidInput, "command contains invalid characters")
	}

	if strings.Contains(name, "..") {
		return errors.New(errors.CommandInvalidInput, "path traversal not allowed")
	}

	// Requests travel as JSON strings, which cannot carry invalid UTF-8
	// without altering the signed bytes
	if !utf8.ValidString(name) {
		return errors.New(errors.CommandInvalidInput, "command is not valid UTF-8")
	}

	for _, arg := range args {
		if strings.ContainsRune(arg, 0) {
			return errors.New(errors.CommandInvalidInput, "argument contains NUL byte")
		}
		if !utf8.ValidString(arg) {
			return errors.New(errors.CommandInvalidInput, "argument is not valid UTF-8")
		}
	}

	if len(args) > maxArgs {
		return errors.New(errors.CommandInvalidInput, "too many arguments")
	}

	return nil
}
