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

// Package render declares the rendering-device contract the engine
// consumes. The host brings its own GPU API and implements Device on
// top of it; the engine only creates/updates textures and, when the
// device can run compute, dispatches the YUV→RGBA conversion pipeline.
package render

import "errors"

// ErrUnsupported is returned by devices that cannot service an
// operation (e.g. no compute pipelines). The engine picks the software
// RGBA path from SupportsCompute; a compute call that fails with this
// error is logged and that conversion is skipped.
var ErrUnsupported = errors.New("render: operation not supported by device")

// RID identifies a device-owned resource. Zero is never a valid
// resource.
type RID uint64

// DataFormat is the texel format of a texture.
type DataFormat int

const (
	DataFormatR8Unorm DataFormat = iota + 1
	DataFormatRGBA8Unorm
)

// Usage bits for texture creation.
type Usage uint32

const (
	UsageSampling Usage = 1 << iota
	UsageColorAttachment
	UsageStorage
	UsageCanUpdate
	UsageCanCopyTo
)

// TextureFormat describes a texture to create.
type TextureFormat struct {
	Format      DataFormat
	Width       int
	Height      int
	Depth       int
	ArrayLayers int
	Mipmaps     int
	Usage       Usage
}

// TextureView carries view parameters. The engine always uses the
// default view.
type TextureView struct{}

// Color is a clear color.
type Color struct {
	R, G, B, A float32
}

// UniformType is the kind of resource bound by a Uniform.
type UniformType int

const (
	UniformTypeImage UniformType = iota + 1
)

// Uniform binds one resource into a uniform set.
type Uniform struct {
	Binding int
	Type    UniformType
	Texture RID
}

// ShaderSPIRV holds the compiled stages of a shader. Only the compute
// stage is used by this engine.
type ShaderSPIRV struct {
	Compute []byte
}

// ComputeListID identifies an open compute command list.
type ComputeListID int64

// Device is the host rendering device. The YUV converter marshals its
// texture creation, uploads, clears and compute dispatch onto the host's
// render thread via CallOnRenderThread. The RGBA texture path in package
// playback and the converter's Close call the device directly from the
// foreground goroutine; they are not marshaled.
type Device interface {
	TextureCreate(format TextureFormat, view TextureView) (RID, error)
	TextureUpdate(texture RID, layer int, data []byte) error
	TextureClear(texture RID, color Color, baseMip, mipCount, baseLayer, layerCount int) error
	TextureGetFormat(texture RID) (TextureFormat, error)

	// ShaderCompileSPIRVFromSource compiles GLSL compute source to
	// SPIR-V. Devices that ship a compiler expose it here; others may
	// return ErrUnsupported, in which case compute is unavailable.
	ShaderCompileSPIRVFromSource(glsl string) (ShaderSPIRV, error)
	ShaderCreateFromSPIRV(spirv ShaderSPIRV) (RID, error)
	ComputePipelineCreate(shader RID) (RID, error)
	UniformSetCreate(uniforms []Uniform, shader RID, set int) (RID, error)

	ComputeListBegin() ComputeListID
	ComputeListBindComputePipeline(list ComputeListID, pipeline RID)
	ComputeListBindUniformSet(list ComputeListID, set RID, index int)
	ComputeListSetPushConstant(list ComputeListID, data []byte)
	ComputeListDispatch(list ComputeListID, xGroups, yGroups, zGroups int)
	ComputeListEnd(list ComputeListID)

	FreeRID(id RID)

	// SupportsCompute reports whether the compute path above is
	// functional. When false the engine keeps every frame on the
	// software RGBA path.
	SupportsCompute() bool

	// CallOnRenderThread schedules fn on the host's render thread.
	// Fire-and-forget from the caller's point of view.
	CallOnRenderThread(fn func())
}
