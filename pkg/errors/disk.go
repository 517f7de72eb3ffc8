// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"maps"

	"google.golang.org/grpc/codes"
)

const DomainDevice Domain = "DEVICE"

// Device Model Error Codes (2200-2299)
const (
	DeviceNotFound        = 2200 + iota // Device handle not in the registry
	PartitionNotFound                   // Partition handle not in the registry
	PartitionMounted                    // Partition is in use
	PartitionTooSmall                   // Target cannot hold the source
	PartitionNotOnDevice                // Partition belongs to another device
	TableTypeUnsupported                // Unknown or unsupported table type
	FileSystemUnsupported               // Filesystem type lacks a capability
	VolumeGroupInvalid                  // Device is not a volume group
)

func init() {
	deviceErrorDefinitions := map[ErrorCode]struct {
		message  string
		domain   Domain
		grpcCode codes.Code
	}{
		DeviceNotFound: {
			"Device not found",
			DomainDevice,
			codes.NotFound,
		},
		PartitionNotFound: {
			"Partition not found",
			DomainDevice,
			codes.NotFound,
		},
		PartitionMounted: {
			"Partition is mounted",
			DomainDevice,
			codes.FailedPrecondition,
		},
		PartitionTooSmall: {
			"Target partition is smaller than the source",
			DomainDevice,
			codes.InvalidArgument,
		},
		PartitionNotOnDevice: {
			"Partition does not belong to the device",
			DomainDevice,
			codes.InvalidArgument,
		},
		TableTypeUnsupported: {
			"Partition table type not supported",
			DomainDevice,
			codes.InvalidArgument,
		},
		FileSystemUnsupported: {
			"Filesystem does not support the requested action",
			DomainDevice,
			codes.Unimplemented,
		},
		VolumeGroupInvalid: {
			"Device is not a volume group",
			DomainDevice,
			codes.InvalidArgument,
		},
	}

	maps.Copy(errorDefinitions, deviceErrorDefinitions)
}
