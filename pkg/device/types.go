// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package device

import "github.com/google/uuid"

// Handle is a stable identifier into a Registry. Operations hold handles,
// never owning references, so their lifetime is decoupled from the model.
type Handle string

// NewHandle returns a fresh random handle
func NewHandle() Handle {
	return Handle(uuid.NewString())
}

// DeviceType distinguishes plain disks from volume manager devices
type DeviceType string

const (
	DeviceTypeDisk DeviceType = "disk"
	DeviceTypeLVM  DeviceType = "lvm_vg"
)

// TableType is the partition table label type
type TableType string

const (
	TableNone  TableType = "none"
	TableMSDOS TableType = "msdos"
	TableGPT   TableType = "gpt"
)

// FileSystemType names a filesystem type known to the model
type FileSystemType string

const (
	FSUnformatted FileSystemType = "unformatted"
	FSUnknown     FileSystemType = "unknown"
	FSExt2        FileSystemType = "ext2"
	FSExt3        FileSystemType = "ext3"
	FSExt4        FileSystemType = "ext4"
	FSXFS         FileSystemType = "xfs"
	FSBtrfs       FileSystemType = "btrfs"
	FSFat32       FileSystemType = "fat32"
	FSNTFS        FileSystemType = "ntfs"
	FSSwap        FileSystemType = "linuxswap"
	FSApfs        FileSystemType = "apfs"
	FSLVM2PV      FileSystemType = "lvm2_pv"
)

// DefaultSectorSize is used when a device does not report its logical sector size
const DefaultSectorSize int64 = 512

// DefaultMaxPrimaries returns the primary partition limit for a label type
func DefaultMaxPrimaries(t TableType) int {
	switch t {
	case TableMSDOS:
		return 4
	case TableGPT:
		return 128
	default:
		return 0
	}
}
