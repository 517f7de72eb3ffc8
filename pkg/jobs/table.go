// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"fmt"

	"github.com/stratastor/partd/pkg/device"
	"github.com/stratastor/partd/pkg/errors"
	"github.com/stratastor/partd/pkg/report"
)

// CreatePartitionTableJob writes a new, empty label to a device
type CreatePartitionTableJob struct {
	base
	device *device.Device
	table  *device.PartitionTable
}

func NewCreatePartitionTableJob(env *Env, dev *device.Device, table *device.PartitionTable) *CreatePartitionTableJob {
	return &CreatePartitionTableJob{base: base{env: env}, device: dev, table: table}
}

func (j *CreatePartitionTableJob) Description() string {
	return fmt.Sprintf("Create a new partition table (type: %s) on %s", j.table.Type, j.device.Path)
}

func (j *CreatePartitionTableJob) Run(ctx context.Context, parent *report.Report) bool {
	rep := j.begin(parent, j.Description())

	label, err := partedLabel(j.table.Type)
	if err != nil {
		return j.finish(rep, j.Description(), err)
	}
	if err := j.run(ctx, rep, "parted", "--script", j.device.Path, "mklabel", label); err != nil {
		return j.finish(rep, j.Description(), err)
	}
	j.table.Written = true
	return j.finish(rep, j.Description(), nil)
}

// partedLabel maps a table type to the label name parted expects
func partedLabel(t device.TableType) (string, error) {
	switch t {
	case device.TableMSDOS:
		return "msdos", nil
	case device.TableGPT:
		return "gpt", nil
	default:
		return "", errors.New(errors.TableTypeUnsupported, string(t))
	}
}
