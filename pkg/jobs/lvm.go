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

// lvChange toggles activation of logical volumes in a volume group
type lvChange struct {
	base
	vg       *device.Device
	lvs      []string
	activate bool
}

func newLVChange(env *Env, vg *device.Device, lvs []string, activate bool) lvChange {
	return lvChange{
		base:     base{env: env},
		vg:       vg,
		lvs:      append([]string(nil), lvs...),
		activate: activate,
	}
}

// targets resolves the LV list. An empty list means every LV that is not
// already in the requested state.
func (j *lvChange) targets() []string {
	if len(j.lvs) > 0 {
		return j.lvs
	}
	var out []string
	for _, lv := range j.vg.LogicalVolumes {
		if lv.Active != j.activate {
			out = append(out, lv.Path)
		}
	}
	return out
}

func (j *lvChange) run(ctx context.Context, parent *report.Report, desc string) bool {
	rep := j.begin(parent, desc)

	flag := "n"
	if j.activate {
		flag = "y"
	}
	for _, path := range j.targets() {
		lv := j.vg.LogicalVolume(path)
		if lv == nil {
			return j.finish(rep, desc, errors.New(errors.VolumeGroupInvalid,
				fmt.Sprintf("%s is not a logical volume of %s", path, j.vg.Path)))
		}
		if err := j.base.run(ctx, rep, "lvm", "lvchange", "--activate", flag, path); err != nil {
			return j.finish(rep, desc, err)
		}
		lv.Active = j.activate
	}
	return j.finish(rep, desc, nil)
}

// DeactivateLogicalVolumeJob deactivates logical volumes of a volume group
type DeactivateLogicalVolumeJob struct {
	lvChange
}

// NewDeactivateLogicalVolumeJob deactivates lvs, or every active LV of vg
// when lvs is empty
func NewDeactivateLogicalVolumeJob(env *Env, vg *device.Device, lvs ...string) *DeactivateLogicalVolumeJob {
	return &DeactivateLogicalVolumeJob{newLVChange(env, vg, lvs, false)}
}

func (j *DeactivateLogicalVolumeJob) Description() string {
	return fmt.Sprintf("Deactivate logical volumes of %s", j.vg.Name)
}

func (j *DeactivateLogicalVolumeJob) Run(ctx context.Context, parent *report.Report) bool {
	return j.run(ctx, parent, j.Description())
}

type ActivateLogicalVolumeJob struct {
	lvChange
}

func NewActivateLogicalVolumeJob(env *Env, vg *device.Device, lvs ...string) *ActivateLogicalVolumeJob {
	return &ActivateLogicalVolumeJob{newLVChange(env, vg, lvs, true)}
}

func (j *ActivateLogicalVolumeJob) Description() string {
	return fmt.Sprintf("Activate logical volumes of %s", j.vg.Name)
}

func (j *ActivateLogicalVolumeJob) Run(ctx context.Context, parent *report.Report) bool {
	return j.run(ctx, parent, j.Description())
}
