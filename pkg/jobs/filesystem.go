// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/stratastor/partd/internal/command"
	"github.com/stratastor/partd/pkg/device"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/fs"
	"github.com/stratastor/partd/pkg/report"
)

// DeleteFileSystemJob wipes the signatures of a filesystem from its partition
type DeleteFileSystemJob struct {
	base
	partition *device.Partition
	fs        *device.FileSystem
}

// NewDeleteFileSystemJob deletes fs from part. A nil fs means the
// filesystem the partition carries when the job is created.
func NewDeleteFileSystemJob(env *Env, part *device.Partition, fsys *device.FileSystem) *DeleteFileSystemJob {
	if fsys == nil {
		fsys = part.FileSystem()
	}
	return &DeleteFileSystemJob{base: base{env: env}, partition: part, fs: fsys}
}

func (j *DeleteFileSystemJob) Description() string {
	return fmt.Sprintf("Delete file system on %s", j.partition.Path)
}

func (j *DeleteFileSystemJob) Run(ctx context.Context, parent *report.Report) bool {
	rep := j.begin(parent, j.Description())

	if j.fs.IsUnformatted() {
		rep.Line("No file system to delete")
		return j.finish(rep, j.Description(), nil)
	}

	if err := j.run(ctx, rep, "wipefs", "--all", j.partition.Path); err != nil {
		return j.finish(rep, j.Description(), err)
	}
	j.fs.Exists = false
	return j.finish(rep, j.Description(), nil)
}

// CreateFileSystemJob runs the create tool for a filesystem
type CreateFileSystemJob struct {
	base
	partition *device.Partition
	fs        *device.FileSystem
}

func NewCreateFileSystemJob(env *Env, part *device.Partition, fsys *device.FileSystem) *CreateFileSystemJob {
	return &CreateFileSystemJob{base: base{env: env}, partition: part, fs: fsys}
}

func (j *CreateFileSystemJob) Description() string {
	return fmt.Sprintf("Create file system %s on %s", j.fs.Type, j.partition.Path)
}

func (j *CreateFileSystemJob) Run(ctx context.Context, parent *report.Report) bool {
	rep := j.begin(parent, j.Description())

	program, args, err := j.env.Support.CreateCommand(j.fs.Type, j.partition.Path, j.fs.Label)
	if err != nil {
		rep.Line("Creating %s file systems is not supported", j.fs.Type)
		return j.finish(rep, j.Description(), err)
	}
	if err := j.run(ctx, rep, program, args...); err != nil {
		return j.finish(rep, j.Description(), err)
	}
	j.fs.Exists = true
	return j.finish(rep, j.Description(), nil)
}

// CheckFileSystemJob runs the filesystem's checker, when it has one
type CheckFileSystemJob struct {
	base
	partition *device.Partition
	fs        *device.FileSystem
}

func NewCheckFileSystemJob(env *Env, part *device.Partition, fsys *device.FileSystem) *CheckFileSystemJob {
	if fsys == nil {
		fsys = part.FileSystem()
	}
	return &CheckFileSystemJob{base: base{env: env}, partition: part, fs: fsys}
}

func (j *CheckFileSystemJob) Description() string {
	return fmt.Sprintf("Check file system on %s", j.partition.Path)
}

func (j *CheckFileSystemJob) Run(ctx context.Context, parent *report.Report) bool {
	rep := j.begin(parent, j.Description())

	program, args, ok := j.env.Support.CheckCommand(j.fs.Type, j.partition.Path)
	if !ok {
		rep.Line("No checker available for %s, skipping", j.fs.Type)
		return j.finish(rep, j.Description(), nil)
	}
	return j.finish(rep, j.Description(), j.run(ctx, rep, program, args...))
}

// CopyFileSystemJob copies the blocks of a filesystem between partitions
type CopyFileSystemJob struct {
	base
	sourceDevice *device.Device
	source       *device.Partition
	targetDevice *device.Device
	target       *device.Partition
	fs           *device.FileSystem
}

// NewCopyFileSystemJob copies source to target. fsys is the filesystem the
// target carries afterwards; nil means a clone of the source filesystem.
func NewCopyFileSystemJob(
	env *Env,
	srcDev *device.Device, src *device.Partition,
	dstDev *device.Device, dst *device.Partition,
	fsys *device.FileSystem,
) *CopyFileSystemJob {
	return &CopyFileSystemJob{
		base:         base{env: env},
		sourceDevice: srcDev,
		source:       src,
		targetDevice: dstDev,
		target:       dst,
		fs:           fsys,
	}
}

func (j *CopyFileSystemJob) Description() string {
	return fmt.Sprintf("Copy file system on %s to %s", j.source.Path, j.target.Path)
}

func (j *CopyFileSystemJob) Run(ctx context.Context, parent *report.Report) bool {
	rep := j.begin(parent, j.Description())

	srcFS := j.source.FileSystem()
	if j.env.Support.Copy(srcFS.Type) != fs.SupportCore {
		rep.Line("Copying %s file systems is not supported", srcFS.Type)
		return j.finish(rep, j.Description(),
			errors.New(errors.FileSystemUnsupported, string(srcFS.Type)).WithMetadata("action", "copy"))
	}
	if j.target.Length() < j.source.Length() {
		return j.finish(rep, j.Description(), errors.New(errors.PartitionTooSmall,
			fmt.Sprintf("%s < %s", humanize.IBytes(uint64(j.target.Length())), humanize.IBytes(uint64(j.source.Length())))))
	}

	src := command.BlockRange{
		Path:   j.sourceDevice.Path,
		Offset: j.source.FirstByte(),
		Length: j.source.Length(),
	}
	dst := command.BlockRange{
		Path:   j.targetDevice.Path,
		Offset: j.target.FirstByte(),
	}

	var progress command.ProgressFunc
	if j.env.Backend != nil {
		progress = j.env.Backend.EmitProgress
	}
	if err := j.env.Executor.CopyBlocks(ctx, rep, src, dst, progress); err != nil {
		return j.finish(rep, j.Description(), err)
	}

	target := j.fs
	if target == nil {
		target = srcFS.Clone()
		target.FirstSector = j.target.FirstSector
		target.LastSector = j.target.LastSector
	}
	target.Exists = true
	j.target.SetFileSystem(target)
	return j.finish(rep, j.Description(), nil)
}
