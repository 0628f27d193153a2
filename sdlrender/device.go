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

// Package sdlrender implements the render device contract over an SDL2
// renderer. SDL has no compute pipelines, so only the RGBA texture path
// is served; the engine sees SupportsCompute() == false and keeps every
// frame on the software scaler.
package sdlrender

import (
	"fmt"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/e1z0/avplay/render"
)

// Device wraps an SDL renderer. It must only be used from the thread
// that owns the renderer (SDL's main thread); CallOnRenderThread runs
// callables inline because that thread is the render thread.
type Device struct {
	renderer *sdl.Renderer
	next     render.RID
	textures map[render.RID]*sdl.Texture
	formats  map[render.RID]render.TextureFormat
	clearBuf []byte
}

// New wraps the renderer.
func New(r *sdl.Renderer) *Device {
	return &Device{
		renderer: r,
		textures: map[render.RID]*sdl.Texture{},
		formats:  map[render.RID]render.TextureFormat{},
	}
}

func (d *Device) TextureCreate(format render.TextureFormat, _ render.TextureView) (render.RID, error) {
	if format.Format != render.DataFormatRGBA8Unorm {
		// SDL streaming textures have no single-channel format
		return 0, render.ErrUnsupported
	}
	tex, err := d.renderer.CreateTexture(uint32(sdl.PIXELFORMAT_RGBA32), sdl.TEXTUREACCESS_STREAMING, int32(format.Width), int32(format.Height))
	if err != nil {
		return 0, err
	}
	_ = tex.SetBlendMode(sdl.BLENDMODE_BLEND)
	d.next++
	id := d.next
	d.textures[id] = tex
	d.formats[id] = format
	return id, nil
}

func (d *Device) TextureUpdate(id render.RID, _ int, data []byte) error {
	tex, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("sdlrender: unknown texture %d", id)
	}
	f := d.formats[id]
	if len(data) < f.Width*f.Height*4 {
		return fmt.Errorf("sdlrender: short texture data: %d", len(data))
	}
	return tex.Update(nil, unsafe.Pointer(&data[0]), f.Width*4)
}

func (d *Device) TextureClear(id render.RID, c render.Color, _, _, _, _ int) error {
	f, ok := d.formats[id]
	if !ok {
		return fmt.Errorf("sdlrender: unknown texture %d", id)
	}
	n := f.Width * f.Height * 4
	if cap(d.clearBuf) < n {
		d.clearBuf = make([]byte, n)
	}
	buf := d.clearBuf[:n]
	px := [4]byte{byte(c.R * 255), byte(c.G * 255), byte(c.B * 255), byte(c.A * 255)}
	for i := 0; i < n; i += 4 {
		copy(buf[i:], px[:])
	}
	return d.TextureUpdate(id, 0, buf)
}

func (d *Device) TextureGetFormat(id render.RID) (render.TextureFormat, error) {
	f, ok := d.formats[id]
	if !ok {
		return render.TextureFormat{}, fmt.Errorf("sdlrender: unknown texture %d", id)
	}
	return f, nil
}

func (d *Device) ShaderCompileSPIRVFromSource(string) (render.ShaderSPIRV, error) {
	return render.ShaderSPIRV{}, render.ErrUnsupported
}

func (d *Device) ShaderCreateFromSPIRV(render.ShaderSPIRV) (render.RID, error) {
	return 0, render.ErrUnsupported
}

func (d *Device) ComputePipelineCreate(render.RID) (render.RID, error) {
	return 0, render.ErrUnsupported
}

func (d *Device) UniformSetCreate([]render.Uniform, render.RID, int) (render.RID, error) {
	return 0, render.ErrUnsupported
}

func (d *Device) ComputeListBegin() render.ComputeListID                          { return 0 }
func (d *Device) ComputeListBindComputePipeline(render.ComputeListID, render.RID) {}
func (d *Device) ComputeListBindUniformSet(render.ComputeListID, render.RID, int) {}
func (d *Device) ComputeListSetPushConstant(render.ComputeListID, []byte)         {}
func (d *Device) ComputeListDispatch(render.ComputeListID, int, int, int)         {}
func (d *Device) ComputeListEnd(render.ComputeListID)                             {}

func (d *Device) FreeRID(id render.RID) {
	if tex, ok := d.textures[id]; ok {
		_ = tex.Destroy()
		delete(d.textures, id)
		delete(d.formats, id)
	}
}

func (d *Device) SupportsCompute() bool { return false }

// CallOnRenderThread runs fn inline: the SDL main thread doubles as the
// render thread.
func (d *Device) CallOnRenderThread(fn func()) { fn() }

// Texture exposes the underlying SDL texture so the host can Copy it
// onto the renderer.
func (d *Device) Texture(id render.RID) *sdl.Texture { return d.textures[id] }
