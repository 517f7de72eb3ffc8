// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package ops implements user-level changes to the device model. An
// operation is previewed against the in-memory model, queued on a Stack
// and later executed as an ordered list of jobs.
package ops

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stratastor/logger"
	"github.com/stratastor/partd/pkg/device"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/jobs"
	"github.com/stratastor/partd/pkg/report"
)

type State int

const (
	StateCreated State = iota
	StatePreviewed
	StateExecuting
	StateExecuted
	StateFailed
	StateUndoPending
	StateUndone
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePreviewed:
		return "previewed"
	case StateExecuting:
		return "executing"
	case StateExecuted:
		return "executed"
	case StateFailed:
		return "failed"
	case StateUndoPending:
		return "undo-pending"
	case StateUndone:
		return "undone"
	default:
		return "unknown"
	}
}

// Target is a region an operation changes. A zero Partition means the
// whole device.
type Target struct {
	Device    device.Handle
	Partition device.Handle
	FirstByte int64
	LastByte  int64
}

func (t Target) Whole() bool {
	return t.Partition == ""
}

// Overlaps reports whether two targets touch the same bytes of a device
func (t Target) Overlaps(o Target) bool {
	if t.Device != o.Device {
		return false
	}
	if t.Whole() || o.Whole() {
		return true
	}
	return t.FirstByte <= o.LastByte && o.FirstByte <= t.LastByte
}

func deviceTarget(d *device.Device) Target {
	return Target{Device: d.ID, FirstByte: 0, LastByte: d.Capacity() - 1}
}

func partitionTarget(p *device.Partition) Target {
	return Target{
		Device:    p.Device,
		Partition: p.ID,
		FirstByte: p.FirstByte(),
		LastByte:  p.LastByte(),
	}
}

// Operation is one queued change
type Operation interface {
	ID() string
	Description() string
	State() State
	Jobs() []jobs.Job
	Targets() []Target
	TargetsDevice(h device.Handle) bool
	TargetsPartition(h device.Handle) bool

	// Preview applies the change to the in-memory model only
	Preview() error
	Execute(ctx context.Context, parent *report.Report) error
	// Undo reverts a preview in memory, or runs the inverse jobs of an
	// executed operation
	Undo(ctx context.Context, parent *report.Report) error
}

// hooks are the parts of an operation that differ between kinds
type hooks struct {
	preview func()
	revert  func()
	// inverse returns the jobs that undo an executed operation; nil means
	// the operation is not reversible
	inverse func() []jobs.Job
	// undone runs after the inverse jobs succeeded
	undone func()
}

type base struct {
	logger   logger.Logger
	registry *device.Registry
	id       string
	desc     string
	state    State
	jobs     []jobs.Job
	targets  []Target
	hooks    hooks
}

func newBase(env *jobs.Env, desc string, targets []Target, h hooks, js ...jobs.Job) *base {
	return &base{
		logger:   env.Logger,
		registry: env.Registry,
		id:       uuid.New().String(),
		desc:     desc,
		state:    StateCreated,
		jobs:     js,
		targets:  targets,
		hooks:    h,
	}
}

func (o *base) ID() string          { return o.id }
func (o *base) Description() string { return o.desc }
func (o *base) State() State        { return o.state }

func (o *base) Jobs() []jobs.Job {
	return append([]jobs.Job(nil), o.jobs...)
}

func (o *base) Targets() []Target {
	return append([]Target(nil), o.targets...)
}

func (o *base) TargetsDevice(h device.Handle) bool {
	for _, t := range o.targets {
		if t.Device == h {
			return true
		}
	}
	return false
}

func (o *base) TargetsPartition(h device.Handle) bool {
	for _, t := range o.targets {
		if t.Partition == h {
			return true
		}
	}
	return false
}

func (o *base) invalidState(action string) error {
	return errors.New(errors.OperationInvalidState,
		fmt.Sprintf("cannot %s operation in state %s", action, o.state)).
		WithMetadata("operation", o.desc)
}

func (o *base) Preview() error {
	switch o.state {
	case StatePreviewed:
		return nil
	case StateCreated:
	default:
		return o.invalidState("preview")
	}
	if o.hooks.preview != nil {
		o.hooks.preview()
	}
	o.state = StatePreviewed
	return nil
}

// revertPreview undoes Preview. It is a no-op in any other state.
func (o *base) revertPreview() {
	if o.state != StatePreviewed {
		return
	}
	if o.hooks.revert != nil {
		o.hooks.revert()
	}
	o.state = StateCreated
}

// resolve checks that every target still names the same region of the
// registry's model
func (o *base) resolve() error {
	if o.registry == nil {
		return nil
	}
	for _, t := range o.targets {
		if _, ok := o.registry.Device(t.Device); !ok {
			return errors.New(errors.DeviceNotFound, "target device is no longer known").
				WithMetadata("operation", o.desc).
				WithMetadata("device", string(t.Device))
		}
		if t.Whole() {
			continue
		}
		p, ok := o.registry.Partition(t.Partition)
		if !ok || p.Device != t.Device {
			return errors.New(errors.PartitionNotFound, "target partition is no longer known").
				WithMetadata("operation", o.desc).
				WithMetadata("partition", string(t.Partition))
		}
		if p.FirstByte() != t.FirstByte || p.LastByte() != t.LastByte {
			return errors.New(errors.PartitionNotFound, "target partition has moved").
				WithMetadata("operation", o.desc).
				WithMetadata("partition", p.Path)
		}
	}
	return nil
}

// runJobs runs js in order under rep and stops at the first failure
func (o *base) runJobs(ctx context.Context, rep *report.Report, js []jobs.Job) error {
	for i, job := range js {
		if job.Run(ctx, rep) {
			continue
		}

		rep.Line("Completed jobs: %d of %d", i, len(js))
		for _, skipped := range js[i+1:] {
			rep.Line("Not run: %s", skipped.Description())
		}

		cause := job.Err()
		if cause == nil {
			cause = errors.New(errors.JobFailure, job.Description())
		}
		return errors.Wrap(cause, errors.OperationFailure).
			WithMetadata("operation", o.desc).
			WithMetadata("failed_job", job.Description())
	}
	return nil
}

func (o *base) Execute(ctx context.Context, parent *report.Report) error {
	if o.state != StatePreviewed {
		return o.invalidState("execute")
	}
	if err := o.resolve(); err != nil {
		o.logger.Warn("Refusing to execute stale operation", "operation", o.desc, "err", err)
		return err
	}
	if parent == nil {
		parent = report.New("")
	}

	rep := parent.NewChild("Operation: " + o.desc)
	o.state = StateExecuting
	o.logger.Info("Executing operation", "operation", o.desc, "id", o.id)

	if err := o.runJobs(ctx, rep, o.jobs); err != nil {
		o.state = StateFailed
		rep.SetStatus("Failed")
		o.logger.Error("Operation failed", "operation", o.desc, "err", err)
		return err
	}

	o.state = StateExecuted
	rep.SetStatus("Success")
	return nil
}

func (o *base) Undo(ctx context.Context, parent *report.Report) error {
	switch o.state {
	case StatePreviewed:
		o.revertPreview()
		return nil
	case StateExecuted:
	default:
		return o.invalidState("undo")
	}

	if o.hooks.inverse == nil {
		return errors.New(errors.NotReversible, o.desc)
	}
	if err := o.resolve(); err != nil {
		return err
	}
	if parent == nil {
		parent = report.New("")
	}

	rep := parent.NewChild("Undo: " + o.desc)
	o.state = StateUndoPending
	o.logger.Info("Undoing operation", "operation", o.desc, "id", o.id)

	if err := o.runJobs(ctx, rep, o.hooks.inverse()); err != nil {
		o.state = StateFailed
		rep.SetStatus("Failed")
		return err
	}
	if o.hooks.undone != nil {
		o.hooks.undone()
	}
	o.state = StateUndone
	rep.SetStatus("Success")
	return nil
}
