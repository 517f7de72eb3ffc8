// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package jobs holds the atomic steps operations are made of. A job runs
// one or more privileged commands, records what happened in its own report
// node and, on success, updates the device model to match the disk.
package jobs

import (
	"context"

	"github.com/stratastor/logger"
	"github.com/stratastor/partd/internal/command"
	"github.com/stratastor/partd/pkg/device"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/fs"
	"github.com/stratastor/partd/pkg/report"
)

type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is one atomic step of an operation
type Job interface {
	Description() string
	// Run executes the job and reports into a new child of parent. It
	// never returns an error; Err explains a false result.
	Run(ctx context.Context, parent *report.Report) bool
	Status() Status
	Err() error
}

// Env is what jobs need from their surroundings
type Env struct {
	Logger   logger.Logger
	Executor *command.Executor
	Support  fs.Support
	Backend  *device.CoreBackend
	// Registry resolves operation targets before they run. Nil skips the
	// check.
	Registry *device.Registry
}

// base carries the bookkeeping shared by all jobs
type base struct {
	env    *Env
	status Status
	err    error
}

func (b *base) Status() Status {
	return b.status
}

func (b *base) Err() error {
	return b.err
}

// begin opens the job's report node
func (b *base) begin(parent *report.Report, desc string) *report.Report {
	b.status = StatusPending
	b.err = nil
	b.env.Logger.Debug("Running job", "job", desc)
	if parent == nil {
		parent = report.New("")
	}
	return parent.NewChild("Job: " + desc)
}

// finish records the outcome. A non-nil err fails the job.
func (b *base) finish(rep *report.Report, desc string, err error) bool {
	if err == nil {
		b.status = StatusSucceeded
		rep.SetStatus("Success")
		return true
	}

	b.status = StatusFailed
	b.err = errors.Wrap(err, errors.JobFailure).WithMetadata("job", desc)
	rep.SetStatus("Failed: " + reason(err))
	b.env.Logger.Warn("Job failed", "job", desc, "err", err)
	return false
}

// run executes one privileged command as part of a job
func (b *base) run(ctx context.Context, rep *report.Report, program string, args ...string) error {
	return b.env.Executor.Command(rep, program, args...).Run(ctx)
}

// reason renders err for a report status line
func reason(err error) string {
	var perr *errors.PartdError
	if errors.As(err, &perr) {
		if perr.Details != "" {
			return perr.Details
		}
		return perr.Message
	}
	return err.Error()
}
