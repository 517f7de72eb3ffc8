// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package fs

import "github.com/stratastor/partd/pkg/device"

func withLabel(flag, label string, args ...string) []string {
	if label == "" {
		return args
	}
	return append([]string{flag, label}, args...)
}

// DefaultTable returns the handlers for the common Linux filesystems
func DefaultTable() *Table {
	t := NewTable()

	for _, ft := range []device.FileSystemType{device.FSExt2, device.FSExt3, device.FSExt4} {
		mkfs := "mkfs." + string(ft)
		t.Register(ft, Handler{
			Create: func(path, label string) (string, []string) {
				return mkfs, append([]string{"-qF"}, withLabel("-L", label, path)...)
			},
			Check: func(path string) (string, []string) {
				return "e2fsck", []string{"-f", "-y", "-v", path}
			},
			Copy:   SupportCore,
			Move:   SupportCore,
			Backup: SupportCore,
		})
	}

	t.Register(device.FSXFS, Handler{
		Create: func(path, label string) (string, []string) {
			return "mkfs.xfs", append([]string{"-f"}, withLabel("-L", label, path)...)
		},
		Check: func(path string) (string, []string) {
			return "xfs_repair", []string{"-v", path}
		},
		Copy: SupportCore,
	})

	t.Register(device.FSBtrfs, Handler{
		Create: func(path, label string) (string, []string) {
			return "mkfs.btrfs", append([]string{"-f"}, withLabel("-L", label, path)...)
		},
		Check: func(path string) (string, []string) {
			return "btrfs", []string{"check", "--repair", path}
		},
		Copy: SupportCore,
	})

	t.Register(device.FSFat32, Handler{
		Create: func(path, label string) (string, []string) {
			return "mkfs.fat", append([]string{"-F32", "-I"}, withLabel("-n", label, path)...)
		},
		Check: func(path string) (string, []string) {
			return "fsck.fat", []string{"-a", "-w", "-v", path}
		},
		Copy: SupportCore,
	})

	t.Register(device.FSNTFS, Handler{
		Create: func(path, label string) (string, []string) {
			return "mkfs.ntfs", append([]string{"-Q", "-v", "-F"}, withLabel("-L", label, path)...)
		},
		Check: func(path string) (string, []string) {
			return "ntfsresize", []string{"-P", "-i", "-f", "-v", path}
		},
		Copy: SupportCore,
	})

	t.Register(device.FSSwap, Handler{
		Create: func(path, label string) (string, []string) {
			return "mkswap", withLabel("-L", label, path)
		},
		Copy: SupportCore,
	})

	// No creator or checker for apfs on Linux, but its blocks can be moved.
	t.Register(device.FSApfs, Handler{
		Copy:   SupportCore,
		Move:   SupportCore,
		Backup: SupportCore,
	})

	return t
}
