// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"
	"github.com/stratastor/logger"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/report"
)

// ProgressFunc receives percent-complete notifications
type ProgressFunc func(percent int)

// Issuer carries requests across the privilege boundary. The privileged
// bridge is the production implementation.
type Issuer interface {
	Issue(ctx context.Context, req Request, rep *report.Report) (Result, error)
	CopyBlocks(ctx context.Context, src, dst BlockRange, rep *report.Report, progress ProgressFunc) error
}

// Executor builds ExternalCommands bound to an Issuer
type Executor struct {
	logger  logger.Logger
	issuer  Issuer
	resolve Resolver
}

// NewExecutor creates an Executor. A nil resolver means FindExecutable.
func NewExecutor(l logger.Logger, issuer Issuer, resolve Resolver) *Executor {
	if resolve == nil {
		resolve = FindExecutable
	}
	return &Executor{logger: l, issuer: issuer, resolve: resolve}
}

// Command prepares a privileged command reporting into a new child of parent
func (e *Executor) Command(parent *report.Report, program string, args ...string) *ExternalCommand {
	var rep *report.Report
	if parent != nil {
		rep = parent.NewChild("")
	}
	return &ExternalCommand{
		executor: e,
		report:   rep,
		program:  program,
		args:     append([]string(nil), args...),
		exitCode: -1,
	}
}

// CopyBlocks copies src.Length bytes from src to dst through the helper
func (e *Executor) CopyBlocks(
	ctx context.Context,
	parent *report.Report,
	src, dst BlockRange,
	progress ProgressFunc,
) error {
	for _, r := range []BlockRange{src, dst} {
		if err := validateRange(r); err != nil {
			return err
		}
	}

	rep := parent
	if parent != nil {
		rep = parent.NewChild(fmt.Sprintf("Copying %s from %s to %s",
			humanize.IBytes(uint64(src.Length)), src.Path, dst.Path))
	}

	e.logger.Debug("Copying blocks",
		"source", src.Path,
		"source_offset", src.Offset,
		"length", src.Length,
		"target", dst.Path,
		"target_offset", dst.Offset)

	if err := e.issuer.CopyBlocks(ctx, src, dst, rep, progress); err != nil {
		if rep != nil {
			rep.Line("Copy failed: %v", err)
			rep.SetStatus("Failed")
		}
		return err
	}
	if rep != nil {
		rep.SetStatus("Success")
	}
	return nil
}

// ExternalCommand is one privileged program invocation
type ExternalCommand struct {
	executor *Executor
	report   *report.Report
	program  string
	args     []string
	input    []byte
	mode     Mode

	output   []byte
	exitCode int
}

// SetInput sets bytes to feed the program on stdin
func (c *ExternalCommand) SetInput(input []byte) *ExternalCommand {
	c.input = append([]byte(nil), input...)
	return c
}

// SetMode selects the output channel mode
func (c *ExternalCommand) SetMode(m Mode) *ExternalCommand {
	c.mode = m
	return c
}

// Run resolves, signs and executes the command. A nil error means the
// program ran and exited with status 0.
func (c *ExternalCommand) Run(ctx context.Context) error {
	if c.report != nil {
		c.report.SetCommand(shellquote.Join(append([]string{c.program}, c.args...)...))
	}

	path, err := c.executor.resolve(c.program)
	if err != nil {
		c.reportLine("Could not find executable %q", c.program)
		return err
	}

	req, err := NewRequest(path, c.args, c.input, c.mode)
	if err != nil {
		c.reportLine("Invalid command: %v", err)
		return err
	}

	res, err := c.executor.issuer.Issue(ctx, req, c.report)
	if err != nil {
		c.executor.logger.Error("Privileged command failed",
			"cmd", req.CommandLine(),
			"err", err)
		c.reportLine("Command failed: %v", err)
		return err
	}

	c.output = res.Output
	c.exitCode = res.ExitCode

	if !res.Success {
		c.reportLine("Command did not complete")
		return errors.New(errors.ProcessFailure, "command did not complete").
			WithMetadata("command", req.CommandLine())
	}
	if res.ExitCode != 0 {
		c.reportLine("Command exited with code %d", res.ExitCode)
		return errors.New(errors.ProcessFailure, fmt.Sprintf("exit code %d", res.ExitCode)).
			WithMetadata("command", req.CommandLine()).
			WithMetadata("exit_code", fmt.Sprintf("%d", res.ExitCode))
	}

	c.executor.logger.Debug("Privileged command finished", "cmd", req.CommandLine())
	return nil
}

func (c *ExternalCommand) reportLine(format string, args ...interface{}) {
	if c.report != nil {
		c.report.Line(format, args...)
	}
}

func (c *ExternalCommand) Output() string {
	return string(c.output)
}

func (c *ExternalCommand) RawOutput() []byte {
	return c.output
}

// ExitCode returns the program's exit code, -1 if it never ran
func (c *ExternalCommand) ExitCode() int {
	return c.exitCode
}

func (c *ExternalCommand) Report() *report.Report {
	return c.report
}
