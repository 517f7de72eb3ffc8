// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package fs is the narrow interface through which jobs learn how to act on
// a particular filesystem type. It does not implement any filesystem logic
// itself, it only maps types to the external tools that do.
package fs

import (
	"github.com/stratastor/partd/pkg/device"
	"github.com/stratastor/partd/pkg/errors"
)

// CommandSupport describes how a capability is provided for a filesystem
type CommandSupport int

const (
	SupportNone CommandSupport = iota // Not available
	SupportCore                       // Provided by the engine (e.g. block copy)
	SupportTool                       // Provided by an external tool
)

// Support is what jobs consume
type Support interface {
	// CreateCommand returns the program and arguments that create a
	// filesystem of type t on path.
	CreateCommand(t device.FileSystemType, path, label string) (string, []string, error)

	// CheckCommand returns the check program for t, ok is false when the
	// type has no checker.
	CheckCommand(t device.FileSystemType, path string) (string, []string, bool)

	// Copy reports how copying a filesystem of type t is supported
	Copy(t device.FileSystemType) CommandSupport
}

// Handler describes the tools for one filesystem type
type Handler struct {
	Create func(path, label string) (string, []string)
	Check  func(path string) (string, []string)
	Copy   CommandSupport
	Move   CommandSupport
	Backup CommandSupport
}

// Table is a Support backed by a map of handlers
type Table struct {
	handlers map[device.FileSystemType]Handler
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{handlers: make(map[device.FileSystemType]Handler)}
}

// Register sets the handler for a filesystem type
func (t *Table) Register(ft device.FileSystemType, h Handler) {
	t.handlers[ft] = h
}

func (t *Table) Handler(ft device.FileSystemType) (Handler, bool) {
	h, ok := t.handlers[ft]
	return h, ok
}

func (t *Table) CreateCommand(ft device.FileSystemType, path, label string) (string, []string, error) {
	h, ok := t.handlers[ft]
	if !ok || h.Create == nil {
		return "", nil, errors.New(errors.JobNotSupported, "cannot create file system").
			WithMetadata("fs_type", string(ft))
	}
	prog, args := h.Create(path, label)
	return prog, args, nil
}

func (t *Table) CheckCommand(ft device.FileSystemType, path string) (string, []string, bool) {
	h, ok := t.handlers[ft]
	if !ok || h.Check == nil {
		return "", nil, false
	}
	prog, args := h.Check(path)
	return prog, args, true
}

func (t *Table) Copy(ft device.FileSystemType) CommandSupport {
	h, ok := t.handlers[ft]
	if !ok {
		return SupportNone
	}
	return h.Copy
}
