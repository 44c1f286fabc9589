package fxstream

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/fxstream/host"
	"github.com/gogpu/fxstream/internal/gpu"
	"github.com/gogpu/fxstream/scene"
)

// streamTarget is an output stream and the render target composited into.
type streamTarget struct {
	stream host.Stream
	rt     *gpu.RenderTarget
}

// targetPool owns one render target per active stream.
type targetPool struct {
	device  hal.Device
	memory  *gpu.MemoryManager
	streams []streamTarget
}

// rebuild matches the pool to streams. Targets of streams that keep their
// handle and size are reused; targets of vanished or resized streams are
// destroyed.
func (p *targetPool) rebuild(streams []host.Stream) error {
	old := make(map[host.StreamHandle]*gpu.RenderTarget, len(p.streams))
	for _, st := range p.streams {
		old[st.stream.Handle] = st.rt
	}

	next := make([]streamTarget, 0, len(streams))
	var created []*gpu.RenderTarget
	for _, s := range streams {
		rt := old[s.Handle]
		if rt != nil {
			if w, h := rt.Size(); w == s.Width && h == s.Height {
				delete(old, s.Handle)
				next = append(next, streamTarget{stream: s, rt: rt})
				continue
			}
		}
		// Resized targets are destroyed below with the vanished ones.
		label := fmt.Sprintf("fxstream_stream_%d", s.Handle)
		nrt, err := gpu.NewRenderTarget(p.device, p.memory, label, s.Width, s.Height)
		if err != nil {
			for _, rt := range created {
				rt.Destroy()
			}
			return fatal(ExitRenderTarget, fmt.Sprintf("create render target for stream %d", s.Handle), err)
		}
		created = append(created, nrt)
		next = append(next, streamTarget{stream: s, rt: nrt})
	}

	for _, rt := range old {
		rt.Destroy()
	}
	p.streams = next
	return nil
}

func (p *targetPool) len() int { return len(p.streams) }

// target returns the render target of h, or nil.
func (p *targetPool) target(h host.StreamHandle) *gpu.RenderTarget {
	for _, st := range p.streams {
		if st.stream.Handle == h {
			return st.rt
		}
	}
	return nil
}

func (p *targetPool) release() {
	for i := len(p.streams) - 1; i >= 0; i-- {
		p.streams[i].rt.Destroy()
	}
	p.streams = nil
}

// fanOut composites b into every stream with camera data and sends the
// result, tagged with the request's tracked time. A stream without camera
// data, or whose draw fails, is skipped. A failed send is fatal.
func fanOut(h host.Integration, c *gpu.Compositor, pool *targetPool, slot scene.Slot, b *Buffers, tracked float64, diag *slog.Logger) (int, error) {
	sent := 0
	for _, st := range pool.streams {
		handle := st.stream.Handle
		cam, err := h.FrameCamera(handle)
		if err != nil {
			diag.Debug("stream skipped", "stream", handle, "err", err)
			continue
		}
		if err := c.Draw(st.rt, uint32(slot.Technique), b.Input, b.Output); err != nil {
			diag.Warn("composite failed", "stream", handle, "err", err)
			continue
		}
		frame := host.Frame{Texture: st.rt, Format: st.rt.Format()}
		if err := h.SendFrame(handle, frame, host.CameraResponse{Time: tracked, Camera: cam}); err != nil {
			return sent, fatal(ExitSendFrame, fmt.Sprintf("send frame to stream %d", handle), err)
		}
		sent++
	}
	return sent, nil
}
