// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"fmt"

	"github.com/stratastor/partd/pkg/device"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/fs"
	"github.com/stratastor/partd/pkg/jobs"
)

func checkPartition(dev *device.Device, part *device.Partition) error {
	if part.Device != dev.ID {
		return errors.New(errors.PartitionNotOnDevice, part.Path).
			WithMetadata("device", dev.Path)
	}
	if part.Mounted {
		return errors.New(errors.PartitionMounted, part.Path)
	}
	return nil
}

// CreateFileSystemOperation formats a partition with a new filesystem
type CreateFileSystemOperation struct {
	*base
	part  *device.Partition
	oldFS *device.FileSystem
	newFS *device.FileSystem
}

func NewCreateFileSystemOperation(
	env *jobs.Env,
	dev *device.Device,
	part *device.Partition,
	fsType device.FileSystemType,
	label string,
) (*CreateFileSystemOperation, error) {
	if err := checkPartition(dev, part); err != nil {
		return nil, err
	}
	if _, _, err := env.Support.CreateCommand(fsType, part.Path, label); err != nil {
		return nil, errors.New(errors.FileSystemUnsupported, string(fsType)).
			WithMetadata("action", "create")
	}

	op := &CreateFileSystemOperation{
		part:  part,
		oldFS: part.FileSystem(),
		newFS: device.NewFileSystem(fsType, part.FirstSector, part.LastSector, label),
	}

	var js []jobs.Job
	if !op.oldFS.IsUnformatted() {
		js = append(js, jobs.NewDeleteFileSystemJob(env, part, op.oldFS))
	}
	js = append(js, jobs.NewCreateFileSystemJob(env, part, op.newFS))
	if _, _, ok := env.Support.CheckCommand(fsType, part.Path); ok {
		js = append(js, jobs.NewCheckFileSystemJob(env, part, op.newFS))
	}

	h := hooks{
		preview: func() { part.SetFileSystem(op.newFS) },
		revert:  func() { part.SetFileSystem(op.oldFS) },
	}
	// Only a formerly empty partition can be restored by deleting again
	if op.oldFS.IsUnformatted() {
		h.inverse = func() []jobs.Job {
			return []jobs.Job{jobs.NewDeleteFileSystemJob(env, part, op.newFS)}
		}
		h.undone = func() { part.SetFileSystem(op.oldFS) }
	}

	desc := fmt.Sprintf("Format %s with %s", part.Path, fsType)
	op.base = newBase(env, desc, []Target{partitionTarget(part)}, h, js...)
	return op, nil
}

func (o *CreateFileSystemOperation) NewFileSystem() *device.FileSystem { return o.newFS }
func (o *CreateFileSystemOperation) OldFileSystem() *device.FileSystem { return o.oldFS }

// DeleteFileSystemOperation removes the filesystem of a partition
type DeleteFileSystemOperation struct {
	*base
	part  *device.Partition
	oldFS *device.FileSystem
	newFS *device.FileSystem
}

func NewDeleteFileSystemOperation(
	env *jobs.Env,
	dev *device.Device,
	part *device.Partition,
) (*DeleteFileSystemOperation, error) {
	if err := checkPartition(dev, part); err != nil {
		return nil, err
	}
	if part.FileSystem().IsUnformatted() {
		return nil, errors.New(errors.OperationInvalidInput,
			fmt.Sprintf("%s has no file system", part.Path))
	}

	op := &DeleteFileSystemOperation{
		part:  part,
		oldFS: part.FileSystem(),
		newFS: device.NewFileSystem(device.FSUnformatted, part.FirstSector, part.LastSector, ""),
	}
	h := hooks{
		preview: func() { part.SetFileSystem(op.newFS) },
		revert:  func() { part.SetFileSystem(op.oldFS) },
	}

	desc := fmt.Sprintf("Delete file system on %s", part.Path)
	op.base = newBase(env, desc, []Target{partitionTarget(part)}, h,
		jobs.NewDeleteFileSystemJob(env, part, op.oldFS))
	return op, nil
}

// CopyFileSystemOperation clones a filesystem onto another partition
type CopyFileSystemOperation struct {
	*base
	source *device.Partition
	target *device.Partition
	oldFS  *device.FileSystem
	newFS  *device.FileSystem
}

func NewCopyFileSystemOperation(
	env *jobs.Env,
	srcDev *device.Device, src *device.Partition,
	dstDev *device.Device, dst *device.Partition,
) (*CopyFileSystemOperation, error) {
	if err := checkPartition(srcDev, src); err != nil {
		return nil, err
	}
	if err := checkPartition(dstDev, dst); err != nil {
		return nil, err
	}
	if src.ID == dst.ID {
		return nil, errors.New(errors.OperationInvalidInput, "source and target are the same partition")
	}

	srcFS := src.FileSystem()
	if srcFS.IsUnformatted() {
		return nil, errors.New(errors.OperationInvalidInput,
			fmt.Sprintf("%s has no file system to copy", src.Path))
	}
	if env.Support.Copy(srcFS.Type) != fs.SupportCore {
		return nil, errors.New(errors.FileSystemUnsupported, string(srcFS.Type)).
			WithMetadata("action", "copy")
	}
	if dst.Length() < src.Length() {
		return nil, errors.New(errors.PartitionTooSmall, dst.Path).
			WithMetadata("source", src.Path)
	}

	clone := srcFS.Clone()
	clone.FirstSector = dst.FirstSector
	clone.LastSector = dst.LastSector
	clone.Exists = false

	op := &CopyFileSystemOperation{
		source: src,
		target: dst,
		oldFS:  dst.FileSystem(),
		newFS:  clone,
	}

	js := []jobs.Job{jobs.NewCopyFileSystemJob(env, srcDev, src, dstDev, dst, clone)}
	if _, _, ok := env.Support.CheckCommand(clone.Type, dst.Path); ok {
		js = append(js, jobs.NewCheckFileSystemJob(env, dst, clone))
	}

	h := hooks{
		preview: func() { dst.SetFileSystem(op.newFS) },
		revert:  func() { dst.SetFileSystem(op.oldFS) },
	}

	desc := fmt.Sprintf("Copy %s to %s", src.Path, dst.Path)
	targets := []Target{partitionTarget(src), partitionTarget(dst)}
	op.base = newBase(env, desc, targets, h, js...)
	return op, nil
}
