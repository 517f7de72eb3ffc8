// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package device

import "sync"

// CoreBackend is the narrow part of a device backend the engine relies on.
// Backends that scan devices embed it to get the model mutation helpers.
type CoreBackend struct {
	mu       sync.RWMutex
	id       string
	version  string
	progress []func(percent int)
}

func NewCoreBackend(id, version string) *CoreBackend {
	return &CoreBackend{id: id, version: version}
}

func (b *CoreBackend) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

func (b *CoreBackend) Version() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// OnProgress subscribes to progress notifications
func (b *CoreBackend) OnProgress(fn func(percent int)) {
	b.mu.Lock()
	b.progress = append(b.progress, fn)
	b.mu.Unlock()
}

// EmitProgress notifies all progress subscribers
func (b *CoreBackend) EmitProgress(percent int) {
	b.mu.RLock()
	subs := append([]func(int){}, b.progress...)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(percent)
	}
}

// SetPartitionTableForDevice installs t as the partition table of d
func (b *CoreBackend) SetPartitionTableForDevice(d *Device, t *PartitionTable) {
	d.SetPartitionTable(t)
}

// SetPartitionTableMaxPrimaries sets the primary partition limit of t
func (b *CoreBackend) SetPartitionTableMaxPrimaries(t *PartitionTable, maxPrimaries int) {
	t.SetMaxPrimaries(maxPrimaries)
}
