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

// DeactivateVolumeGroupOperation deactivates every active LV of a volume group
type DeactivateVolumeGroupOperation struct {
	*base
	vg  *device.Device
	lvs []string
}

func NewDeactivateVolumeGroupOperation(env *jobs.Env, vg *device.Device) (*DeactivateVolumeGroupOperation, error) {
	if vg.Type != device.DeviceTypeLVM {
		return nil, errors.New(errors.VolumeGroupInvalid, vg.Path)
	}

	var lvs []string
	for _, lv := range vg.LogicalVolumes {
		if lv.Active {
			lvs = append(lvs, lv.Path)
		}
	}
	if len(lvs) == 0 {
		return nil, errors.New(errors.OperationInvalidInput,
			fmt.Sprintf("%s has no active logical volumes", vg.Name))
	}

	op := &DeactivateVolumeGroupOperation{vg: vg, lvs: lvs}
	h := hooks{
		inverse: func() []jobs.Job {
			return []jobs.Job{jobs.NewActivateLogicalVolumeJob(env, vg, op.lvs...)}
		},
	}

	desc := fmt.Sprintf("Deactivate volume group %s", vg.Name)
	op.base = newBase(env, desc, []Target{deviceTarget(vg)}, h,
		jobs.NewDeactivateLogicalVolumeJob(env, vg, lvs...))
	return op, nil
}

// LogicalVolumes returns the LVs the operation deactivates
func (o *DeactivateVolumeGroupOperation) LogicalVolumes() []string {
	return append([]string(nil), o.lvs...)
}
