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

// Package decoder drives the demuxer and codecs on a dedicated worker
// thread and publishes time-stamped video frames and PCM blocks through
// bounded pools.
package decoder

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	astiav "github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/rs/zerolog"

	"github.com/e1z0/avplay/media"
)

// MaxPendingFrames is the decode-ahead ceiling: the worker stops pulling
// packets while this many decoded video frames sit unconsumed.
const MaxPendingFrames = 3

const (
	hwTransferPoolSize = 2
	scalerPoolSize     = 1
	audioPoolSize      = 32
)

// State is the worker lifecycle state. Written by the worker only, read
// from anywhere.
type State int32

const (
	StateReady State = iota
	StateRunning
	StateEndOfStream
	StateFaulted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateEndOfStream:
		return "end-of-stream"
	case StateFaulted:
		return "faulted"
	case StateStopped:
		return "stopped"
	}
	return "invalid"
}

// Options tunes a decode worker.
type Options struct {
	// HardwareDecoders is the set of hardware backends the codec
	// selector may try before falling back to software.
	HardwareDecoders HardwareDecoder
	// Looping makes the worker seek back to 0 on demuxer EOF instead of
	// parking in the end-of-stream state.
	Looping bool
	// Mute skips audio decoding entirely.
	Mute bool
	// AllowYUV publishes plane frames instead of rescaling to RGBA when
	// the decoded format is yuv420p/yuva420p. Set when the host renderer
	// can run the compute conversion.
	AllowYUV bool
	// FormatOptions/CodecOptions are passed straight to the demuxer and
	// video decoder dictionaries.
	FormatOptions map[string]string
	CodecOptions  map[string]string
}

// Worker owns the demuxer and codec state for one playback and runs the
// decode loop on its own thread.
type Worker struct {
	log  zerolog.Logger
	src  media.Stream
	opts Options

	closer      *astikit.Closer
	ioCtx       *astiav.IOContext
	fmtCtx      *astiav.FormatContext
	inputOpened bool

	videoStream *astiav.Stream
	audioStream *astiav.Stream
	videoCtx    *astiav.CodecContext
	audioCtx    *astiav.CodecContext
	hwDevice    *astiav.HardwareDeviceContext
	swsCtx      *astiav.SoftwareScaleContext
	swsSrcFmt   astiav.PixelFormat
	swsW, swsH  int
	swrCtx      *astiav.SoftwareResampleContext
	swrFrame    *astiav.Frame

	videoTimeBase  float64 // seconds per pts tick
	audioTimeBase  float64
	videoStartTime int64
	audioStartTime int64
	durationMS     float64
	frameFormat    media.PixelFormat
	hasAudio       bool
	width, height  int
	mixRate        int
	channels       int

	hwAllowed     bool
	targetHW      HardwareDecoder
	hwPixelFormat astiav.PixelFormat

	state            atomic.Int32
	abort            atomic.Bool
	skipOutputs      atomic.Bool // skip_current_outputs
	lastDecodedBits  atomic.Uint64
	looping          atomic.Bool
	skipOutputUntil  float64 // worker thread only
	commands         commandQueue
	pendingPacketSet bool // EAGAIN kept the packet buffered

	videoMu      sync.Mutex
	decodedVideo []*media.VideoFrame
	audioMu      sync.Mutex
	decodedAudio []*media.AudioFrame

	videoPool *media.Pool[*media.VideoFrame]
	audioPool *media.Pool[*media.AudioFrame]
	hwPool    *media.Pool[*astiav.Frame]
	scalePool *media.Pool[*astiav.Frame]

	thread  *sync.WaitGroup
	started bool
}

// New wraps the stream; Start opens it and spawns the decode thread.
func New(src media.Stream, opts Options, log zerolog.Logger) *Worker {
	w := &Worker{
		log:       log.With().Str("component", "decoder").Logger(),
		src:       src,
		opts:      opts,
		closer:    astikit.NewCloser(),
		hwAllowed: opts.HardwareDecoders != HWNone,
		targetHW:  opts.HardwareDecoders,
		// one extra carrier over the decode-ahead ceiling: the frame the
		// foreground is presenting right now.
		videoPool: media.NewVideoFramePool(MaxPendingFrames + 1),
		audioPool: media.NewAudioFramePool(audioPoolSize),
	}
	w.hwPool = media.NewPool(hwTransferPoolSize, func() *astiav.Frame {
		f := astiav.AllocFrame()
		w.closer.Add(f.Free)
		return f
	})
	w.scalePool = media.NewPool(scalerPoolSize, func() *astiav.Frame {
		f := astiav.AllocFrame()
		w.closer.Add(f.Free)
		return f
	})
	w.looping.Store(opts.Looping)
	return w
}

// Start opens the input and codecs and spawns the decode thread. On any
// open failure the worker lands in StateFaulted and no thread runs.
func (w *Worker) Start() {
	if w.started {
		return
	}
	w.started = true

	if err := w.prepare(); err != nil {
		w.log.Error().Err(err).Msg("opening input failed")
		w.setState(StateFaulted)
		return
	}
	w.recreateCodecContext()
	if w.videoCtx == nil {
		w.setState(StateFaulted)
		return
	}
	w.width = w.videoCtx.Width()
	w.height = w.videoCtx.Height()

	w.thread = &sync.WaitGroup{}
	w.thread.Add(1)
	go func() {
		defer w.thread.Done()
		w.run()
	}()
}

// prepare opens the demuxer over the host stream and caches stream
// metadata. Codec contexts are built separately so they can be rebuilt
// at runtime (hardware demotion).
func (w *Worker) prepare() error {
	ioCtx, err := newIOContext(w.src)
	if err != nil {
		return err
	}
	w.ioCtx = ioCtx

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return errors.New("allocating format context")
	}
	w.fmtCtx = fc
	fc.SetPb(ioCtx)
	// most hardware decoders only read pts
	fc.SetFlags(astiav.NewFormatContextFlags(astiav.FormatContextFlagGenPts))

	dict := astiav.NewDictionary()
	defer dict.Free()
	for k, v := range w.opts.FormatOptions {
		_ = dict.Set(k, v, 0)
	}

	if err := fc.OpenInput("", nil, dict); err != nil {
		return err
	}
	w.inputOpened = true
	if err := fc.FindStreamInfo(nil); err != nil {
		return err
	}

	for _, s := range fc.Streams() {
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if w.videoStream == nil {
				w.videoStream = s
			}
		case astiav.MediaTypeAudio:
			if w.audioStream == nil {
				w.audioStream = s
			}
		}
	}
	if w.videoStream == nil {
		return errors.New("no video stream")
	}

	tb := w.videoStream.TimeBase()
	w.videoTimeBase = float64(tb.Num()) / float64(tb.Den())
	w.videoStartTime = startTimeOf(w.videoStream)
	if d := w.videoStream.Duration(); d > 0 {
		w.durationMS = float64(d) * w.videoTimeBase * 1000.0
	} else {
		w.durationMS = float64(w.fmtCtx.Duration()) / 1000.0 // µs → ms
	}

	if w.audioStream != nil && !w.opts.Mute {
		atb := w.audioStream.TimeBase()
		w.audioTimeBase = float64(atb.Num()) / float64(atb.Den())
		w.audioStartTime = startTimeOf(w.audioStream)
	}
	return nil
}

func startTimeOf(s *astiav.Stream) int64 {
	if t := s.StartTime(); t != astiav.NoPtsValue {
		return t
	}
	return 0
}

// recreateCodecContext (re)builds the video codec from the selector's
// candidate list and the audio codec from the plain software decoder.
// Runs on the caller during Start and on the worker thread afterwards
// (hardware demotion path).
func (w *Worker) recreateCodecContext() {
	if w.videoStream == nil {
		return
	}

	params := w.videoStream.CodecParameters()

	// the compute converter only understands 4:2:0; everything else goes
	// through the software scaler.
	switch {
	case w.opts.AllowYUV && params.PixelFormat() == astiav.PixelFormatYuva420P:
		w.frameFormat = media.FormatYUVA420P
	case w.opts.AllowYUV && params.PixelFormat() == astiav.PixelFormatYuv420P:
		w.frameFormat = media.FormatYUV420P
	default:
		w.frameFormat = media.FormatRGBA8
	}

	target := HWNone
	if w.hwAllowed {
		target = w.targetHW
	}

	w.freeVideoCodec()
	for _, cand := range availableDecoders(params.CodecID(), target) {
		w.freeVideoCodec()

		cc := astiav.AllocCodecContext(cand.codec)
		if cc == nil {
			w.log.Warn().Str("codec", cand.codec.Name()).Msg("allocating codec context failed")
			continue
		}
		if err := params.ToCodecContext(cc); err != nil {
			w.log.Warn().Str("codec", cand.codec.Name()).Err(err).Msg("copying codec parameters failed")
			cc.Free()
			continue
		}

		if cand.deviceType != hwDeviceNone {
			hw, err := astiav.CreateHardwareDeviceContext(cand.deviceType, "", nil, 0)
			if err != nil {
				w.log.Warn().Str("codec", cand.codec.Name()).Err(err).Msg("creating hardware device context failed")
				cc.Free()
				continue
			}
			cc.SetHardwareDeviceContext(hw)
			w.hwDevice = hw
			w.hwPixelFormat = cand.pixelFormat
		} else {
			cc.SetThreadCount(0)
			w.hwPixelFormat = astiav.PixelFormatNone
		}

		dict := astiav.NewDictionary()
		for k, v := range w.opts.CodecOptions {
			_ = dict.Set(k, v, 0)
		}
		err := cc.Open(cand.codec, dict)
		dict.Free()
		if err != nil {
			w.log.Warn().Str("codec", cand.codec.Name()).Err(err).Msg("opening codec failed")
			cc.Free()
			w.freeHWDevice()
			continue
		}

		w.videoCtx = cc
		if cand.deviceType != hwDeviceNone {
			w.log.Info().Str("codec", cand.codec.Name()).Msg("hardware video decoder initialized")
		} else {
			w.log.Info().Str("codec", cand.codec.Name()).Msg("video decoder initialized")
		}
		break
	}

	if w.audioStream == nil || w.opts.Mute {
		return
	}
	aparams := w.audioStream.CodecParameters()
	codec := astiav.FindDecoder(aparams.CodecID())
	if codec == nil {
		return
	}
	if w.audioCtx != nil {
		w.audioCtx.Free()
		w.audioCtx = nil
		w.hasAudio = false
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return
	}
	if err := aparams.ToCodecContext(cc); err != nil {
		w.log.Warn().Str("codec", codec.Name()).Err(err).Msg("copying audio codec parameters failed")
		cc.Free()
		return
	}
	if err := cc.Open(codec, nil); err != nil {
		w.log.Warn().Str("codec", codec.Name()).Err(err).Msg("opening audio codec failed")
		cc.Free()
		return
	}
	w.audioCtx = cc
	w.hasAudio = true
	w.mixRate = cc.SampleRate()
	w.channels = cc.ChannelLayout().Channels()
	w.log.Info().Str("codec", codec.Name()).Int("rate", w.mixRate).Int("channels", w.channels).Msg("audio decoder initialized")
}

func (w *Worker) freeVideoCodec() {
	if w.videoCtx != nil {
		w.videoCtx.Free()
		w.videoCtx = nil
	}
	w.freeHWDevice()
}

func (w *Worker) freeHWDevice() {
	if w.hwDevice != nil {
		w.hwDevice.Free()
		w.hwDevice = nil
	}
	w.hwPixelFormat = astiav.PixelFormatNone
}

// run is the decode thread main loop.
func (w *Worker) run() {
	pkt := astiav.AllocPacket()
	defer pkt.Free()
	recv := astiav.AllocFrame()
	defer recv.Free()

	for !w.abort.Load() {
		switch w.State() {
		case StateReady, StateRunning:
			w.videoMu.Lock()
			needsFrame := len(w.decodedVideo) < MaxPendingFrames
			w.videoMu.Unlock()
			// carriers the foreground still holds (its drained batch and
			// the presented picture) count too: with every carrier in
			// flight a decoded picture would have nowhere to go.
			needsFrame = needsFrame && w.videoPool.InFlight() <= MaxPendingFrames
			if needsFrame {
				w.decodeNextFrame(pkt, recv)
			} else {
				w.setState(StateReady)
				time.Sleep(time.Millisecond)
			}
		case StateEndOfStream:
			// avoid spinning on the demuxer; a seek re-enters the loop.
			time.Sleep(50 * time.Millisecond)
		default:
			w.log.Error().Stringer("state", w.State()).Msg("invalid decoder state")
		}
		w.commands.flush()
	}

	if w.State() != StateFaulted {
		w.setState(StateStopped)
	}
}

func (w *Worker) decodeNextFrame(pkt *astiav.Packet, recv *astiav.Frame) {
	var err error
	if !w.pendingPacketSet {
		err = w.fmtCtx.ReadFrame(pkt)
	}

	switch {
	case err == nil:
		w.setState(StateRunning)

		unrefPacket := true
		si := pkt.StreamIndex()
		if si == w.videoStream.Index() || (w.hasAudio && si == w.audioStream.Index()) {
			cc := w.videoCtx
			if w.hasAudio && si == w.audioStream.Index() {
				cc = w.audioCtx
			}
			if sendErr := w.sendPacket(cc, recv, pkt); errors.Is(sendErr, astiav.ErrEagain) {
				// decoder is full: keep the packet and retry after the
				// pending frames have been read out.
				unrefPacket = false
			}
		}
		if unrefPacket {
			pkt.Unref()
			w.pendingPacketSet = false
		} else {
			w.pendingPacketSet = true
		}

	case errors.Is(err, astiav.ErrEof):
		w.sendPacket(w.videoCtx, recv, nil)
		if w.hasAudio {
			w.sendPacket(w.audioCtx, recv, nil)
		}
		if w.looping.Load() {
			w.Seek(0, false)
		} else {
			w.setState(StateEndOfStream)
		}

	case errors.Is(err, astiav.ErrEagain):
		w.setState(StateReady)
		time.Sleep(time.Millisecond)

	default:
		w.log.Warn().Err(err).Msg("reading packet failed")
	}
}

// sendPacket feeds one packet (nil flushes) and drains whatever the
// codec will emit. EAGAIN is not an error: it means the decoder wants
// its output read first.
func (w *Worker) sendPacket(cc *astiav.CodecContext, recv *astiav.Frame, pkt *astiav.Packet) error {
	if cc == nil {
		return nil
	}
	err := cc.SendPacket(pkt)
	if err == nil || errors.Is(err, astiav.ErrEagain) {
		if cc == w.videoCtx {
			w.readDecodedVideoFrames(recv)
		} else {
			w.readDecodedAudioFrames(recv)
		}
	} else if pkt != nil && cc == w.videoCtx {
		w.log.Warn().Err(err).Msg("sending packet to video decoder failed")
		w.tryDisableHWDecoding(err)
	}
	return err
}

func (w *Worker) frameTimeMS(f *astiav.Frame, startTime int64, timeBase float64) float64 {
	pts := f.Pts()
	if pts == astiav.NoPtsValue {
		pts = f.PktDts()
	}
	return float64(pts-startTime) * timeBase * 1000.0
}

func (w *Worker) readDecodedVideoFrames(recv *astiav.Frame) {
	for {
		if err := w.videoCtx.ReceiveFrame(recv); err != nil {
			if !errors.Is(err, astiav.ErrEagain) && !errors.Is(err, astiav.ErrEof) {
				w.log.Warn().Err(err).Msg("receiving video frame failed")
				w.tryDisableHWDecoding(err)
			}
			return
		}

		frameTime := w.frameTimeMS(recv, w.videoStartTime, w.videoTimeBase)
		if w.skipOutputUntil > frameTime || w.skipOutputs.Load() {
			recv.Unref()
			continue
		}

		src := recv
		var hwFrame *astiav.Frame
		if w.hwPixelFormat != astiav.PixelFormatNone && recv.PixelFormat() == w.hwPixelFormat {
			f, ok := w.hwPool.Take()
			if !ok {
				// every transfer carrier is in flight; drop this picture.
				recv.Unref()
				continue
			}
			if err := f.TransferHardwareData(recv); err != nil {
				w.log.Warn().Err(err).Msg("transferring frame from hardware decoder failed")
				w.hwPool.Put(f)
				w.tryDisableHWDecoding(err)
				recv.Unref()
				continue
			}
			hwFrame = f
			src = f
		}

		w.storeLastDecoded(frameTime)

		if w.frameFormat.IsYUV() && (src.PixelFormat() == astiav.PixelFormatYuv420P || src.PixelFormat() == astiav.PixelFormatYuva420P) {
			w.publishYUVFrame(frameTime, src)
		} else {
			w.publishRGBAFrame(frameTime, src)
		}

		if hwFrame != nil {
			hwFrame.Unref()
			w.hwPool.Put(hwFrame)
		}
		recv.Unref()
	}
}

// publishYUVFrame splits the picture into tightly packed R8 planes.
func (w *Worker) publishYUVFrame(frameTime float64, src *astiav.Frame) {
	out, ok := w.videoPool.Take()
	if !ok {
		w.log.Debug().Msg("video frame pool exhausted, dropping frame")
		return
	}
	out.Acquire()

	width := src.Width()
	height := src.Height()
	format := media.FormatYUV420P
	planeCount := 3
	if src.PixelFormat() == astiav.PixelFormatYuva420P {
		format = media.FormatYUVA420P
		planeCount = 4
	}

	size, err := src.ImageBufferSize(1)
	if err != nil || size <= 0 {
		w.log.Warn().Err(err).Msg("sizing yuv frame buffer failed")
		out.Release()
		return
	}
	if cap(out.Data) < size {
		out.Data = make([]byte, size)
	}
	out.Data = out.Data[:size]
	if _, err := src.ImageCopyToBuffer(out.Data, 1); err != nil {
		w.log.Warn().Err(err).Msg("copying yuv frame failed")
		out.Release()
		return
	}

	// with align=1 the planes sit back to back: Y, U, V, then A.
	offset := 0
	for i := 0; i < planeCount; i++ {
		pw, ph := media.PlaneDims(i, width, height)
		if out.Planes[i] == nil {
			out.Planes[i] = &media.Plane{}
		}
		out.Planes[i].Width = pw
		out.Planes[i].Height = ph
		out.Planes[i].Data = out.Data[offset : offset+pw*ph]
		offset += pw * ph
	}
	for i := planeCount; i < 4; i++ {
		out.Planes[i] = nil
	}

	out.Time = frameTime
	out.Format = format
	out.Width = width
	out.Height = height

	w.videoMu.Lock()
	if w.skipOutputs.Load() {
		w.videoMu.Unlock()
		out.Release()
		return
	}
	w.decodedVideo = append(w.decodedVideo, out)
	w.videoMu.Unlock()
}

// publishRGBAFrame rescales (cached scaler) and copies the picture into
// a tightly packed RGBA carrier.
func (w *Worker) publishRGBAFrame(frameTime float64, src *astiav.Frame) {
	scaled, putBack := w.ensureFramePixelFormat(src, astiav.PixelFormatRgba)
	if scaled == nil {
		return
	}

	out, ok := w.videoPool.Take()
	if !ok {
		w.log.Debug().Msg("video frame pool exhausted, dropping frame")
		putBack()
		return
	}
	out.Acquire()

	width := scaled.Width()
	height := scaled.Height()
	size, err := scaled.ImageBufferSize(1)
	if err != nil || size <= 0 {
		w.log.Warn().Err(err).Msg("sizing rgba frame buffer failed")
		out.Release()
		putBack()
		return
	}
	if cap(out.Data) < size {
		out.Data = make([]byte, size)
	}
	out.Data = out.Data[:size]
	if _, err := scaled.ImageCopyToBuffer(out.Data, 1); err != nil {
		w.log.Warn().Err(err).Msg("copying rgba frame failed")
		out.Release()
		putBack()
		return
	}
	out.Data = out.Data[:width*height*4]
	putBack()

	out.Time = frameTime
	out.Format = media.FormatRGBA8
	out.Width = width
	out.Height = height
	for i := range out.Planes {
		out.Planes[i] = nil
	}

	w.videoMu.Lock()
	if w.skipOutputs.Load() {
		w.videoMu.Unlock()
		out.Release()
		return
	}
	w.decodedVideo = append(w.decodedVideo, out)
	w.videoMu.Unlock()
}

// ensureFramePixelFormat returns src itself when it already matches, or
// a pooled scaler frame holding the converted picture. The second
// return value hands the scaler carrier back and must always be called
// once the pixels have been copied out.
func (w *Worker) ensureFramePixelFormat(src *astiav.Frame, target astiav.PixelFormat) (*astiav.Frame, func()) {
	if src.PixelFormat() == target {
		return src, func() {}
	}

	width := src.Width()
	height := src.Height()
	if w.swsCtx == nil || w.swsSrcFmt != src.PixelFormat() || w.swsW != width || w.swsH != height {
		if w.swsCtx != nil {
			w.swsCtx.Free()
			w.swsCtx = nil
		}
		ssc, err := astiav.CreateSoftwareScaleContext(width, height, src.PixelFormat(), width, height, target, astiav.NewSoftwareScaleContextFlags())
		if err != nil {
			w.log.Warn().Err(err).Msg("creating software scale context failed")
			return nil, nil
		}
		w.swsCtx = ssc
		w.swsSrcFmt = src.PixelFormat()
		w.swsW = width
		w.swsH = height
	}

	dst, ok := w.scalePool.Take()
	if !ok {
		w.log.Debug().Msg("scaler carrier in flight, dropping frame")
		return nil, nil
	}
	if dst.PixelFormat() != target || dst.Width() != width || dst.Height() != height {
		dst.Unref()
		dst.SetPixelFormat(target)
		dst.SetWidth(width)
		dst.SetHeight(height)
		if err := dst.AllocBuffer(1); err != nil {
			w.log.Warn().Err(err).Msg("allocating scaler frame buffer failed")
			w.scalePool.Put(dst)
			return nil, nil
		}
	}

	if err := w.swsCtx.ScaleFrame(src, dst); err != nil {
		w.log.Warn().Err(err).Msg("scaling frame failed")
		w.scalePool.Put(dst)
		return nil, nil
	}
	return dst, func() { w.scalePool.Put(dst) }
}

func (w *Worker) readDecodedAudioFrames(recv *astiav.Frame) {
	for {
		if err := w.audioCtx.ReceiveFrame(recv); err != nil {
			if !errors.Is(err, astiav.ErrEagain) && !errors.Is(err, astiav.ErrEof) {
				w.log.Warn().Err(err).Msg("receiving audio frame failed")
			}
			return
		}

		frameTime := w.frameTimeMS(recv, w.audioStartTime, w.audioTimeBase)
		if w.skipOutputUntil > frameTime || w.skipOutputs.Load() {
			recv.Unref()
			continue
		}

		flt, cleanup := w.ensureFrameSampleFormat(recv, astiav.SampleFormatFlt)
		if flt == nil {
			recv.Unref()
			return
		}

		out, ok := w.audioPool.Take()
		if !ok {
			w.log.Debug().Msg("audio frame pool exhausted, dropping frame")
			cleanup()
			recv.Unref()
			continue
		}
		out.Acquire()
		out.Time = frameTime

		n := flt.NbSamples() * w.channels
		if cap(out.Samples) < n {
			out.Samples = make([]float32, n)
		}
		out.Samples = out.Samples[:n]
		if data, err := flt.Data().Bytes(0); err == nil && len(data) >= n*4 {
			for i := 0; i < n; i++ {
				out.Samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
			}
		} else {
			w.log.Warn().Err(err).Msg("copying audio samples failed")
			out.Release()
			cleanup()
			recv.Unref()
			continue
		}
		cleanup()

		w.audioMu.Lock()
		if w.skipOutputs.Load() {
			w.audioMu.Unlock()
			out.Release()
		} else {
			w.decodedAudio = append(w.decodedAudio, out)
			w.audioMu.Unlock()
		}

		recv.Unref()
	}
}

// ensureFrameSampleFormat converts to interleaved float32 through a
// cached resampler. Returns src itself when it already matches.
func (w *Worker) ensureFrameSampleFormat(src *astiav.Frame, target astiav.SampleFormat) (*astiav.Frame, func()) {
	if src.SampleFormat() == target {
		return src, func() {}
	}

	if w.swrCtx == nil {
		w.swrCtx = astiav.AllocSoftwareResampleContext()
		if w.swrCtx == nil {
			w.log.Warn().Msg("allocating software resample context failed")
			return nil, nil
		}
	}
	if w.swrFrame == nil {
		w.swrFrame = astiav.AllocFrame()
		w.closer.Add(w.swrFrame.Free)
	}

	dst := w.swrFrame
	dst.Unref()
	dst.SetSampleFormat(target)
	dst.SetChannelLayout(w.audioCtx.ChannelLayout())
	dst.SetSampleRate(w.audioCtx.SampleRate())
	dst.SetNbSamples(src.NbSamples())
	if err := dst.AllocBuffer(0); err != nil {
		w.log.Warn().Err(err).Msg("allocating resampler frame buffer failed")
		return nil, nil
	}
	if err := w.swrCtx.ConvertFrame(src, dst); err != nil {
		w.log.Warn().Err(err).Msg("resampling audio frame failed")
		return nil, nil
	}
	return dst, func() { dst.Unref() }
}

// tryDisableHWDecoding demotes the pipeline to software decoding after
// a hardware runtime failure, rebuilding the codec context through the
// command queue.
func (w *Worker) tryDisableHWDecoding(cause error) {
	if !w.hwAllowed || w.targetHW == HWNone || w.videoCtx == nil || w.hwDevice == nil {
		return
	}
	w.hwAllowed = false
	if errors.Is(cause, astiav.ErrEnomem) {
		w.log.Warn().Msg("disabling hardware video decoding due to a lack of memory")
		w.targetHW = HWNone
	} else {
		w.log.Warn().Msg("disabling hardware video decoding due to an unexpected error")
	}
	w.commands.push(w.recreateCodecContext)
}

// Seek flushes the queues, marks in-flight output stale and schedules
// the demuxer seek on the worker. With wait set the call returns only
// after the worker executed it.
func (w *Worker) Seek(targetMS float64, wait bool) {
	w.videoMu.Lock()
	w.audioMu.Lock()
	for _, f := range w.decodedVideo {
		f.Release()
	}
	w.decodedVideo = w.decodedVideo[:0]
	for _, f := range w.decodedAudio {
		f.Release()
	}
	w.decodedAudio = w.decodedAudio[:0]
	w.storeLastDecoded(targetMS)
	w.skipOutputs.Store(true)
	w.audioMu.Unlock()
	w.videoMu.Unlock()

	cmd := func() { w.seekCommand(targetMS) }
	if wait {
		w.commands.pushAndWait(cmd)
	} else {
		w.commands.push(cmd)
	}
}

// seekCommand runs on the worker thread.
func (w *Worker) seekCommand(targetMS float64) {
	if w.videoCtx != nil {
		w.videoCtx.FlushBuffers()
	}
	ts := int64(targetMS / w.videoTimeBase / 1000.0)
	if err := w.fmtCtx.SeekFrame(w.videoStream.Index(), ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		w.log.Warn().Err(err).Float64("target_ms", targetMS).Msg("seeking failed")
	}
	// the audio stream lives in the same file and moves with the video
	// seek; only its codec buffers need flushing.
	if w.hasAudio && w.audioCtx != nil {
		w.audioCtx.FlushBuffers()
	}
	if w.pendingPacketSet {
		w.pendingPacketSet = false
	}
	w.skipOutputUntil = targetMS
	w.setState(StateReady)
	w.skipOutputs.Store(false)
}

// DrainVideo atomically takes the pending decoded video frames, oldest
// first. Ownership of the contained shares moves to the caller.
func (w *Worker) DrainVideo() []*media.VideoFrame {
	w.videoMu.Lock()
	defer w.videoMu.Unlock()
	if len(w.decodedVideo) == 0 {
		return nil
	}
	out := make([]*media.VideoFrame, len(w.decodedVideo))
	copy(out, w.decodedVideo)
	w.decodedVideo = w.decodedVideo[:0]
	return out
}

// DrainAudio atomically takes the pending decoded audio frames.
func (w *Worker) DrainAudio() []*media.AudioFrame {
	w.audioMu.Lock()
	defer w.audioMu.Unlock()
	if len(w.decodedAudio) == 0 {
		return nil
	}
	out := make([]*media.AudioFrame, len(w.decodedAudio))
	copy(out, w.decodedAudio)
	w.decodedAudio = w.decodedAudio[:0]
	return out
}

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// State returns the current worker state.
func (w *Worker) State() State { return State(w.state.Load()) }

// IsRunning reports whether the worker is actively decoding.
func (w *Worker) IsRunning() bool { return w.State() == StateRunning }

func (w *Worker) storeLastDecoded(ms float64) {
	w.lastDecodedBits.Store(math.Float64bits(ms))
}

// LastDecodedFrameTime is the presentation time of the newest decoded
// video frame, in milliseconds. A seek sets it to the seek target until
// the next frame is decoded.
func (w *Worker) LastDecodedFrameTime() float64 {
	return math.Float64frombits(w.lastDecodedBits.Load())
}

// Duration is the stream duration in milliseconds.
func (w *Worker) Duration() float64 { return w.durationMS }

// Size is the intrinsic video size.
func (w *Worker) Size() (int, int) { return w.width, w.height }

// FrameFormat is the layout frames will be published in.
func (w *Worker) FrameFormat() media.PixelFormat { return w.frameFormat }

// AudioMixRate is the audio codec's native sample rate, 0 without audio.
func (w *Worker) AudioMixRate() int { return w.mixRate }

// AudioChannelCount is the decoded channel count, 0 without audio.
func (w *Worker) AudioChannelCount() int { return w.channels }

// SetLooping toggles seek-to-zero-on-EOF.
func (w *Worker) SetLooping(loop bool) { w.looping.Store(loop) }

// PendingVideoFrames reports the worker-side buffered frame count.
func (w *Worker) PendingVideoFrames() int {
	w.videoMu.Lock()
	defer w.videoMu.Unlock()
	return len(w.decodedVideo)
}

// Close aborts the decode thread, joins it and releases every FFmpeg
// resource. The foreground must have released its frame shares first.
func (w *Worker) Close() {
	w.abort.Store(true)
	if w.thread != nil {
		w.thread.Wait()
		w.thread = nil
	}

	w.videoMu.Lock()
	for _, f := range w.decodedVideo {
		f.Release()
	}
	w.decodedVideo = nil
	w.videoMu.Unlock()
	w.audioMu.Lock()
	for _, f := range w.decodedAudio {
		f.Release()
	}
	w.decodedAudio = nil
	w.audioMu.Unlock()

	w.freeVideoCodec()
	if w.audioCtx != nil {
		w.audioCtx.Free()
		w.audioCtx = nil
	}
	if w.swsCtx != nil {
		w.swsCtx.Free()
		w.swsCtx = nil
	}
	if w.swrCtx != nil {
		w.swrCtx.Free()
		w.swrCtx = nil
	}
	// pooled frames first, then the demuxer, then its io context
	_ = w.closer.Close()
	if w.fmtCtx != nil {
		if w.inputOpened {
			w.fmtCtx.CloseInput()
		}
		w.fmtCtx.Free()
		w.fmtCtx = nil
	}
	if w.ioCtx != nil {
		w.ioCtx.Free()
		w.ioCtx = nil
	}
}
