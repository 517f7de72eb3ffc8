// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package commandtest provides an in-memory Issuer for tests of code that
// issues privileged commands.
package commandtest

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/stratastor/partd/internal/command"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/report"
)

// Call records one request seen by the fake
type Call struct {
	Program string
	Args    []string
	Input   []byte
	Mode    command.Mode
}

// Copy records one block copy seen by the fake
type Copy struct {
	Source command.BlockRange
	Target command.BlockRange
}

// Issuer is a scripted command.Issuer. Programs listed in ExitCodes return
// that code; programs listed in Errors fail at the transport level.
type Issuer struct {
	mu sync.Mutex

	ExitCodes map[string]int
	Errors    map[string]error
	Outputs   map[string]string
	CopyErr   error

	calls  []Call
	copies []Copy
}

func NewIssuer() *Issuer {
	return &Issuer{
		ExitCodes: make(map[string]int),
		Errors:    make(map[string]error),
		Outputs:   make(map[string]string),
	}
}

func (f *Issuer) Issue(ctx context.Context, req command.Request, rep *report.Report) (command.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := filepath.Base(req.Program())
	f.calls = append(f.calls, Call{
		Program: name,
		Args:    req.Args(),
		Input:   req.Input(),
		Mode:    req.Mode(),
	})

	if err, ok := f.Errors[name]; ok {
		return command.Result{}, err
	}

	out := f.Outputs[name]
	if rep != nil && out != "" {
		rep.Line("%s", out)
	}
	return command.Result{
		Output:   []byte(out),
		ExitCode: f.ExitCodes[name],
		Success:  true,
	}, nil
}

func (f *Issuer) CopyBlocks(
	ctx context.Context,
	src, dst command.BlockRange,
	rep *report.Report,
	progress command.ProgressFunc,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.copies = append(f.copies, Copy{Source: src, Target: dst})
	if f.CopyErr != nil {
		return f.CopyErr
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

// Calls returns the requests seen so far
func (f *Issuer) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Programs returns the program names seen so far, in order
func (f *Issuer) Programs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Program)
	}
	return out
}

// Copies returns the block copies seen so far
func (f *Issuer) Copies() []Copy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Copy(nil), f.copies...)
}

// Resolve is a command.Resolver that accepts any program name
func Resolve(name string) (string, error) {
	if name == "" {
		return "", errors.New(errors.ExecutableNotFound, name)
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	return "/usr/sbin/" + name, nil
}
