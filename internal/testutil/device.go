/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * avplay
 * Copyright (C) 2025 e1z0 <e1z0@icloud.com>
 *
 * This file is part of avplay.
 *
 * avplay is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * avplay is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with avplay.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package testutil provides a recording in-memory rendering device for
// tests.
package testutil

import (
	"fmt"
	"sync"

	"github.com/e1z0/avplay/render"
)

// Dispatch records one compute dispatch with everything bound at the
// time.
type Dispatch struct {
	Pipeline     render.RID
	Groups       [3]int
	PushConstant []byte
	Sets         map[int]render.RID
}

// Device is a render.Device that records every call. All operations run
// inline; CallOnRenderThread invokes immediately.
type Device struct {
	mu sync.Mutex

	Compute bool // reported by SupportsCompute

	next       render.RID
	Formats    map[render.RID]render.TextureFormat
	Data       map[render.RID][]byte
	Cleared    map[render.RID]int
	Freed      []render.RID
	UniformTex map[render.RID]render.RID // set id -> bound texture
	Shaders    []render.RID
	Pipelines  []render.RID
	Dispatches []Dispatch

	listOpen  bool
	pipeline  render.RID
	boundSets map[int]render.RID
	push      []byte
}

// NewDevice returns a compute-capable fake device.
func NewDevice() *Device {
	return &Device{
		Compute:    true,
		Formats:    map[render.RID]render.TextureFormat{},
		Data:       map[render.RID][]byte{},
		Cleared:    map[render.RID]int{},
		UniformTex: map[render.RID]render.RID{},
	}
}

func (d *Device) alloc() render.RID {
	d.next++
	return d.next
}

func (d *Device) TextureCreate(f render.TextureFormat, _ render.TextureView) (render.RID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.alloc()
	d.Formats[id] = f
	return id, nil
}

func (d *Device) TextureUpdate(t render.RID, _ int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.Formats[t]; !ok {
		return fmt.Errorf("testutil: unknown texture %d", t)
	}
	d.Data[t] = append([]byte(nil), data...)
	return nil
}

func (d *Device) TextureClear(t render.RID, _ render.Color, _, _, _, _ int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.Formats[t]; !ok {
		return fmt.Errorf("testutil: unknown texture %d", t)
	}
	d.Cleared[t]++
	return nil
}

func (d *Device) TextureGetFormat(t render.RID) (render.TextureFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.Formats[t]
	if !ok {
		return render.TextureFormat{}, fmt.Errorf("testutil: unknown texture %d", t)
	}
	return f, nil
}

func (d *Device) ShaderCompileSPIRVFromSource(glsl string) (render.ShaderSPIRV, error) {
	if !d.Compute {
		return render.ShaderSPIRV{}, render.ErrUnsupported
	}
	return render.ShaderSPIRV{Compute: []byte(glsl)}, nil
}

func (d *Device) ShaderCreateFromSPIRV(render.ShaderSPIRV) (render.RID, error) {
	if !d.Compute {
		return 0, render.ErrUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.alloc()
	d.Shaders = append(d.Shaders, id)
	return id, nil
}

func (d *Device) ComputePipelineCreate(render.RID) (render.RID, error) {
	if !d.Compute {
		return 0, render.ErrUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.alloc()
	d.Pipelines = append(d.Pipelines, id)
	return id, nil
}

func (d *Device) UniformSetCreate(us []render.Uniform, _ render.RID, _ int) (render.RID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.alloc()
	if len(us) > 0 {
		d.UniformTex[id] = us[0].Texture
	}
	return id, nil
}

func (d *Device) ComputeListBegin() render.ComputeListID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listOpen = true
	d.boundSets = map[int]render.RID{}
	d.push = nil
	return 1
}

func (d *Device) ComputeListBindComputePipeline(_ render.ComputeListID, p render.RID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipeline = p
}

func (d *Device) ComputeListBindUniformSet(_ render.ComputeListID, set render.RID, index int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.boundSets[index] = set
}

func (d *Device) ComputeListSetPushConstant(_ render.ComputeListID, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.push = append([]byte(nil), data...)
}

func (d *Device) ComputeListDispatch(_ render.ComputeListID, x, y, z int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sets := map[int]render.RID{}
	for k, v := range d.boundSets {
		sets[k] = v
	}
	d.Dispatches = append(d.Dispatches, Dispatch{
		Pipeline:     d.pipeline,
		Groups:       [3]int{x, y, z},
		PushConstant: append([]byte(nil), d.push...),
		Sets:         sets,
	})
}

func (d *Device) ComputeListEnd(render.ComputeListID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listOpen = false
}

func (d *Device) FreeRID(id render.RID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Freed = append(d.Freed, id)
	delete(d.Formats, id)
	delete(d.Data, id)
}

func (d *Device) SupportsCompute() bool { return d.Compute }

func (d *Device) CallOnRenderThread(fn func()) { fn() }
