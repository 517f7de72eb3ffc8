// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package device holds the in-memory storage model that operations preview
// against and jobs update once a change has been applied.
package device

// Device represents a physical disk or a volume manager device
type Device struct {
	ID                Handle     `json:"id"`
	Path              string     `json:"path"` // e.g. /dev/sda or /dev/vg0
	Name              string     `json:"name"`
	Type              DeviceType `json:"type"`
	LogicalSectorSize int64      `json:"logical_sector_size"`
	TotalSectors      int64      `json:"total_sectors"`

	// LogicalVolumes is only populated for DeviceTypeLVM
	LogicalVolumes []*LogicalVolume `json:"logical_volumes,omitempty"`

	table *PartitionTable
}

// LogicalVolume is a volume inside a volume group device
type LogicalVolume struct {
	Path   string `json:"path"`
	Active bool   `json:"active"`
}

// NewDevice creates a disk device with the default sector size
func NewDevice(path, name string, totalSectors int64) *Device {
	return &Device{
		ID:                NewHandle(),
		Path:              path,
		Name:              name,
		Type:              DeviceTypeDisk,
		LogicalSectorSize: DefaultSectorSize,
		TotalSectors:      totalSectors,
	}
}

// NewVolumeGroup creates an LVM volume group device with the given LVs, all active
func NewVolumeGroup(path, name string, lvPaths ...string) *Device {
	d := &Device{
		ID:                NewHandle(),
		Path:              path,
		Name:              name,
		Type:              DeviceTypeLVM,
		LogicalSectorSize: DefaultSectorSize,
	}
	for _, p := range lvPaths {
		d.LogicalVolumes = append(d.LogicalVolumes, &LogicalVolume{Path: p, Active: true})
	}
	return d
}

func (d *Device) PartitionTable() *PartitionTable {
	return d.table
}

// SetPartitionTable replaces the partition table of the device. A nil
// table means the device carries no label.
func (d *Device) SetPartitionTable(t *PartitionTable) {
	d.table = t
}

// SectorSize returns the logical sector size, defaulting to 512 bytes
func (d *Device) SectorSize() int64 {
	if d.LogicalSectorSize <= 0 {
		return DefaultSectorSize
	}
	return d.LogicalSectorSize
}

// Capacity returns the device size in bytes
func (d *Device) Capacity() int64 {
	return d.TotalSectors * d.SectorSize()
}

// LogicalVolume looks up a logical volume by path
func (d *Device) LogicalVolume(path string) *LogicalVolume {
	for _, lv := range d.LogicalVolumes {
		if lv.Path == path {
			return lv
		}
	}
	return nil
}

// PartitionTable is the label of a device and the partitions it holds
type PartitionTable struct {
	Type        TableType `json:"type"`
	FirstUsable int64     `json:"first_usable"`
	LastUsable  int64     `json:"last_usable"`
	Partitions  []Handle  `json:"partitions,omitempty"`

	// Written is set once the label has been committed to disk
	Written bool `json:"written"`

	maxPrimaries int
}

// NewPartitionTable creates an empty, unwritten table
func NewPartitionTable(t TableType, firstUsable, lastUsable int64) *PartitionTable {
	return &PartitionTable{
		Type:         t,
		FirstUsable:  firstUsable,
		LastUsable:   lastUsable,
		maxPrimaries: DefaultMaxPrimaries(t),
	}
}

func (t *PartitionTable) MaxPrimaries() int {
	return t.maxPrimaries
}

func (t *PartitionTable) SetMaxPrimaries(n int) {
	t.maxPrimaries = n
}

// Partition is a region of a device, optionally carrying a filesystem
type Partition struct {
	ID          Handle `json:"id"`
	Device      Handle `json:"device"`
	Number      int    `json:"number"`
	Path        string `json:"path"` // e.g. /dev/sda1
	FirstSector int64  `json:"first_sector"`
	LastSector  int64  `json:"last_sector"`
	SectorSize  int64  `json:"sector_size"`
	Mounted     bool   `json:"mounted"`

	fs *FileSystem
}

// NewPartition creates a partition on dev spanning [first, last] sectors
// with an unformatted filesystem.
func NewPartition(dev *Device, number int, path string, first, last int64) *Partition {
	p := &Partition{
		ID:          NewHandle(),
		Device:      dev.ID,
		Number:      number,
		Path:        path,
		FirstSector: first,
		LastSector:  last,
		SectorSize:  dev.SectorSize(),
	}
	p.fs = NewFileSystem(FSUnformatted, first, last, "")
	return p
}

func (p *Partition) FileSystem() *FileSystem {
	return p.fs
}

func (p *Partition) SetFileSystem(fs *FileSystem) {
	p.fs = fs
}

func (p *Partition) sectorSize() int64 {
	if p.SectorSize <= 0 {
		return DefaultSectorSize
	}
	return p.SectorSize
}

// FirstByte returns the byte offset of the partition on its device
func (p *Partition) FirstByte() int64 {
	return p.FirstSector * p.sectorSize()
}

// LastByte returns the offset of the last byte that belongs to the partition
func (p *Partition) LastByte() int64 {
	return (p.LastSector+1)*p.sectorSize() - 1
}

// Length returns the partition size in bytes
func (p *Partition) Length() int64 {
	return (p.LastSector - p.FirstSector + 1) * p.sectorSize()
}

// FileSystem describes the filesystem a partition carries
type FileSystem struct {
	Type        FileSystemType `json:"type"`
	Label       string         `json:"label,omitempty"`
	UUID        string         `json:"uuid,omitempty"`
	FirstSector int64          `json:"first_sector"`
	LastSector  int64          `json:"last_sector"`
	SectorsUsed int64          `json:"sectors_used"` // -1 when unknown

	// Exists is true when the filesystem is present on disk, as opposed to
	// one that only exists in a preview.
	Exists bool `json:"exists"`
}

// NewFileSystem creates a filesystem description that does not exist on disk yet
func NewFileSystem(t FileSystemType, first, last int64, label string) *FileSystem {
	return &FileSystem{
		Type:        t,
		Label:       label,
		FirstSector: first,
		LastSector:  last,
		SectorsUsed: -1,
	}
}

// Clone returns a copy of the filesystem description
func (f *FileSystem) Clone() *FileSystem {
	c := *f
	return &c
}

// IsUnformatted reports whether there is no filesystem to speak of
func (f *FileSystem) IsUnformatted() bool {
	return f == nil || f.Type == FSUnformatted
}
