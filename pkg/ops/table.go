// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"fmt"

	"github.com/stratastor/partd/pkg/device"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/jobs"
)

const (
	// First usable sector for new labels, 1 MiB aligned at 512 byte sectors
	alignedFirstSector = 2048
	// Sectors reserved for the GPT backup header and entries
	gptBackupSectors = 33
)

// CreatePartitionTableOperation replaces the label of a device
type CreatePartitionTableOperation struct {
	*base
	device   *device.Device
	oldTable *device.PartitionTable
	newTable *device.PartitionTable
}

func NewCreatePartitionTableOperation(
	env *jobs.Env,
	dev *device.Device,
	tableType device.TableType,
) (*CreatePartitionTableOperation, error) {
	if tableType != device.TableMSDOS && tableType != device.TableGPT {
		return nil, errors.New(errors.TableTypeUnsupported, string(tableType))
	}
	if dev.Type != device.DeviceTypeDisk {
		return nil, errors.New(errors.OperationInvalidInput,
			fmt.Sprintf("%s cannot carry a partition table", dev.Path))
	}

	last := dev.TotalSectors - 1
	if tableType == device.TableGPT {
		last -= gptBackupSectors
	}
	if last <= alignedFirstSector {
		return nil, errors.New(errors.OperationInvalidInput,
			fmt.Sprintf("%s is too small for a partition table", dev.Path))
	}

	op := &CreatePartitionTableOperation{
		device:   dev,
		oldTable: dev.PartitionTable(),
		newTable: device.NewPartitionTable(tableType, alignedFirstSector, last),
	}

	backend := env.Backend
	if backend == nil {
		backend = device.NewCoreBackend("", "")
	}
	h := hooks{
		preview: func() {
			backend.SetPartitionTableForDevice(dev, op.newTable)
			backend.SetPartitionTableMaxPrimaries(op.newTable, device.DefaultMaxPrimaries(tableType))
		},
		revert: func() {
			backend.SetPartitionTableForDevice(dev, op.oldTable)
		},
	}

	desc := fmt.Sprintf("Create a new partition table (type: %s) on %s", tableType, dev.Path)
	op.base = newBase(env, desc, []Target{deviceTarget(dev)}, h,
		jobs.NewCreatePartitionTableJob(env, dev, op.newTable))
	return op, nil
}

func (o *CreatePartitionTableOperation) NewTable() *device.PartitionTable { return o.newTable }
