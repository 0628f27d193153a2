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

// Package yuv converts 4:2:0 plane images into an RGBA texture with a
// compute dispatch on the host rendering device.
package yuv

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/e1z0/avplay/media"
	"github.com/e1z0/avplay/render"
)

//go:embed yuv_to_rgba.comp.glsl
var shaderSource string

const workgroupSize = 8

// planeCount: Y, U, V and the optional alpha plane.
const planeCount = 4

// Converter owns one compute pipeline plus the plane and output
// textures for a fixed frame size. SetPlaneImage is called from the
// foreground; Convert and ClearOutputTexture run on the device's render
// thread.
type Converter struct {
	dev render.Device
	log zerolog.Logger

	mu     sync.Mutex
	width  int
	height int
	planes [planeCount]*media.Plane

	shader        render.RID
	pipeline      render.RID
	planeTextures [planeCount]render.RID
	planeSets     [planeCount]render.RID
	outTexture    render.RID
	outSet        render.RID
}

// New creates a converter bound to the device. The frame size must be
// set before the first Convert.
func New(dev render.Device, log zerolog.Logger) *Converter {
	return &Converter{
		dev: dev,
		log: log.With().Str("component", "yuv").Logger(),
	}
}

// SetFrameSize fixes the output geometry and drops any cached plane
// images.
func (c *Converter) SetFrameSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("frame size cannot be zero: %dx%d", w, h)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = w
	c.height = h
	c.planes[0] = nil
	c.planes[1] = nil
	c.planes[2] = nil
	c.planes[3] = nil
	return nil
}

// SetPlaneImage stores plane idx (0=Y, 1=U, 2=V, 3=A) for the next
// Convert. A nil image is only valid for the alpha plane.
func (c *Converter) SetPlaneImage(idx int, p *media.Plane) error {
	if idx < 0 || idx >= planeCount {
		return fmt.Errorf("plane index %d out of range", idx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p == nil {
		if idx != 3 {
			return fmt.Errorf("plane %d is mandatory", idx)
		}
		c.planes[idx] = nil
		return nil
	}
	ew, eh := media.PlaneDims(idx, c.width, c.height)
	if p.Width != ew || p.Height != eh {
		return fmt.Errorf("wrong plane %d size: expected %dx%d got %dx%d", idx, ew, eh, p.Width, p.Height)
	}
	if len(p.Data) < ew*eh {
		return fmt.Errorf("plane %d data too short: %d < %d", idx, len(p.Data), ew*eh)
	}
	c.planes[idx] = p
	return nil
}

// Convert schedules the upload and compute dispatch on the render
// thread. Fire-and-forget.
func (c *Converter) Convert() {
	c.dev.CallOnRenderThread(c.convertOnRenderThread)
}

func (c *Converter) convertOnRenderThread() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensurePipeline(); err != nil {
		c.log.Error().Err(err).Msg("building compute pipeline failed")
		return
	}
	if err := c.ensurePlaneTextures(); err != nil {
		c.log.Error().Err(err).Msg("building plane textures failed")
		return
	}
	if err := c.ensureOutputTexture(); err != nil {
		c.log.Error().Err(err).Msg("building output texture failed")
		return
	}
	if !c.uploadPlaneImages() {
		return
	}

	useAlpha := uint32(0)
	if c.planes[3] != nil {
		useAlpha = 1
	}
	var push [16]byte // single flag padded to 16-byte alignment
	binary.LittleEndian.PutUint32(push[0:4], useAlpha)

	list := c.dev.ComputeListBegin()
	c.dev.ComputeListBindComputePipeline(list, c.pipeline)
	c.dev.ComputeListSetPushConstant(list, push[:])
	for i := 0; i < planeCount; i++ {
		c.dev.ComputeListBindUniformSet(list, c.planeSets[i], i)
	}
	c.dev.ComputeListBindUniformSet(list, c.outSet, planeCount)
	c.dev.ComputeListDispatch(list, groups(c.width), groups(c.height), 1)
	c.dev.ComputeListEnd(list)
}

func groups(n int) int {
	return (n + workgroupSize - 1) / workgroupSize
}

func (c *Converter) ensurePipeline() error {
	if c.pipeline != 0 {
		return nil
	}
	spirv, err := c.dev.ShaderCompileSPIRVFromSource(shaderSource)
	if err != nil {
		return fmt.Errorf("compiling shader: %w", err)
	}
	shader, err := c.dev.ShaderCreateFromSPIRV(spirv)
	if err != nil {
		return fmt.Errorf("creating shader: %w", err)
	}
	pipeline, err := c.dev.ComputePipelineCreate(shader)
	if err != nil {
		c.dev.FreeRID(shader)
		return fmt.Errorf("creating pipeline: %w", err)
	}
	c.shader = shader
	c.pipeline = pipeline
	return nil
}

func (c *Converter) ensurePlaneTextures() error {
	for i := 0; i < planeCount; i++ {
		w, h := media.PlaneDims(i, c.width, c.height)
		if c.planeTextures[i] != 0 {
			f, err := c.dev.TextureGetFormat(c.planeTextures[i])
			if err == nil && f.Width == w && f.Height == h {
				continue
			}
			c.dev.FreeRID(c.planeTextures[i])
			c.planeTextures[i] = 0
		}

		tex, err := c.dev.TextureCreate(render.TextureFormat{
			Format:      render.DataFormatR8Unorm,
			Width:       w,
			Height:      h,
			Depth:       1,
			ArrayLayers: 1,
			Mipmaps:     1,
			Usage:       render.UsageSampling | render.UsageColorAttachment | render.UsageStorage | render.UsageCanUpdate,
		}, render.TextureView{})
		if err != nil {
			return err
		}
		c.planeTextures[i] = tex

		if c.planeSets[i] != 0 {
			c.dev.FreeRID(c.planeSets[i])
		}
		set, err := c.createUniformSet(tex, i)
		if err != nil {
			return err
		}
		c.planeSets[i] = set
	}
	return nil
}

func (c *Converter) ensureOutputTexture() error {
	if c.outTexture != 0 {
		f, err := c.dev.TextureGetFormat(c.outTexture)
		if err == nil && f.Width == c.width && f.Height == c.height {
			return nil
		}
		c.dev.FreeRID(c.outTexture)
		c.outTexture = 0
	}

	tex, err := c.dev.TextureCreate(render.TextureFormat{
		Format:      render.DataFormatRGBA8Unorm,
		Width:       c.width,
		Height:      c.height,
		Depth:       1,
		ArrayLayers: 1,
		Mipmaps:     1,
		// no update bit: the GPU writes it, the CPU never does
		Usage: render.UsageSampling | render.UsageColorAttachment | render.UsageStorage | render.UsageCanCopyTo,
	}, render.TextureView{})
	if err != nil {
		return err
	}
	c.outTexture = tex
	if err := c.dev.TextureClear(tex, render.Color{}, 0, 1, 0, 1); err != nil {
		c.log.Warn().Err(err).Msg("clearing output texture failed")
	}

	if c.outSet != 0 {
		c.dev.FreeRID(c.outSet)
	}
	set, err := c.createUniformSet(tex, planeCount)
	if err != nil {
		return err
	}
	c.outSet = set
	return nil
}

func (c *Converter) createUniformSet(tex render.RID, set int) (render.RID, error) {
	return c.dev.UniformSetCreate([]render.Uniform{{
		Binding: 0,
		Type:    render.UniformTypeImage,
		Texture: tex,
	}}, c.shader, set)
}

// uploadPlaneImages pushes the stored planes into their textures. The
// first three planes are mandatory; missing ones abort the dispatch.
func (c *Converter) uploadPlaneImages() bool {
	for i := 0; i < planeCount; i++ {
		if c.planes[i] == nil {
			if i != 3 {
				c.log.Error().Int("plane", i).Msg("yuv plane missing, cannot upload texture data")
				return false
			}
			continue
		}
		if err := c.dev.TextureUpdate(c.planeTextures[i], 0, c.planes[i].Data); err != nil {
			c.log.Warn().Int("plane", i).Err(err).Msg("uploading plane failed")
			return false
		}
	}
	return true
}

// OutputTexture lazily creates and returns the RGBA output texture the
// host samples from.
func (c *Converter) OutputTexture() render.RID {
	done := make(chan struct{})
	c.dev.CallOnRenderThread(func() {
		c.mu.Lock()
		if err := c.ensurePipeline(); err == nil {
			if err := c.ensureOutputTexture(); err != nil {
				c.log.Error().Err(err).Msg("building output texture failed")
			}
		} else {
			c.log.Error().Err(err).Msg("building compute pipeline failed")
		}
		c.mu.Unlock()
		close(done)
	})
	<-done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outTexture
}

// ClearOutputTexture clears the output to transparent black on the
// render thread.
func (c *Converter) ClearOutputTexture() {
	c.dev.CallOnRenderThread(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.outTexture != 0 {
			if err := c.dev.TextureClear(c.outTexture, render.Color{}, 0, 1, 0, 1); err != nil {
				c.log.Warn().Err(err).Msg("clearing output texture failed")
			}
		}
	})
}

// Close releases every GPU resource in reverse construction order.
func (c *Converter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := planeCount - 1; i >= 0; i-- {
		if c.planeSets[i] != 0 {
			c.dev.FreeRID(c.planeSets[i])
			c.planeSets[i] = 0
		}
		if c.planeTextures[i] != 0 {
			c.dev.FreeRID(c.planeTextures[i])
			c.planeTextures[i] = 0
		}
	}
	if c.outSet != 0 {
		c.dev.FreeRID(c.outSet)
		c.outSet = 0
	}
	if c.outTexture != 0 {
		// detach before freeing so a host still holding the RID wrapper
		// cannot double free through it
		tex := c.outTexture
		c.outTexture = 0
		c.dev.FreeRID(tex)
	}
	if c.pipeline != 0 {
		c.dev.FreeRID(c.pipeline)
		c.pipeline = 0
	}
	if c.shader != 0 {
		c.dev.FreeRID(c.shader)
		c.shader = 0
	}
}
