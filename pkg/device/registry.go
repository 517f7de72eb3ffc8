// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"sort"
	"sync"

	"github.com/stratastor/partd/pkg/errors"
)

// Registry owns the devices and partitions of a session and resolves handles
type Registry struct {
	mu         sync.RWMutex
	devices    map[Handle]*Device
	partitions map[Handle]*Partition
}

func NewRegistry() *Registry {
	return &Registry{
		devices:    make(map[Handle]*Device),
		partitions: make(map[Handle]*Partition),
	}
}

// AddDevice registers a device and returns its handle
func (r *Registry) AddDevice(d *Device) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.ID == "" {
		d.ID = NewHandle()
	}
	r.devices[d.ID] = d
	return d.ID
}

// AddPartition registers a partition. Its device must already be registered
// and must carry a partition table.
func (r *Registry) AddPartition(p *Partition) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[p.Device]
	if !ok {
		return "", errors.New(errors.DeviceNotFound, "device not registered").
			WithMetadata("device", string(p.Device))
	}
	if d.table == nil {
		return "", errors.New(errors.OperationInvalidInput, "device has no partition table").
			WithMetadata("device", d.Path)
	}

	if p.ID == "" {
		p.ID = NewHandle()
	}
	r.partitions[p.ID] = p
	d.table.Partitions = append(d.table.Partitions, p.ID)
	return p.ID, nil
}

// RemovePartition drops a partition, for example after a rescan found it
// gone. Operations still holding its handle fail to resolve it.
func (r *Registry) RemovePartition(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.partitions[h]
	if !ok {
		return
	}
	delete(r.partitions, h)
	if d, ok := r.devices[p.Device]; ok && d.table != nil {
		kept := d.table.Partitions[:0]
		for _, ph := range d.table.Partitions {
			if ph != h {
				kept = append(kept, ph)
			}
		}
		d.table.Partitions = kept
	}
}

func (r *Registry) Device(h Handle) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[h]
	return d, ok
}

func (r *Registry) Partition(h Handle) (*Partition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.partitions[h]
	return p, ok
}

// Partitions returns the partitions of a device ordered by number
func (r *Registry) Partitions(dev Handle) []*Partition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Partition
	for _, p := range r.partitions {
		if p.Device == dev {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Devices returns all registered devices ordered by path
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
