package fxstream

import (
	"fmt"

	"github.com/gogpu/fxstream/accel"
)

// Conversion scales. Integer components are normalized on the way into an
// effect and expanded again on the way out; accel.Transfer applies a scale
// only when it changes precision.
const (
	inboundScale  = 1.0 / 255
	outboundScale = 255
	hostScale     = 1
)

// FormatBridge converts between host textures and effect images on the
// accelerator queue. Its scratch buffer is reused across frames.
type FormatBridge struct {
	queue *accel.Queue
	tmp   accel.Scratch
}

// NewFormatBridge creates a bridge submitting to q.
func NewFormatBridge(q *accel.Queue) *FormatBridge {
	return &FormatBridge{queue: q}
}

// Inbound converts the input texture into the effect input image. The
// input interop resource is mapped only for the conversion.
func (fb *FormatBridge) Inbound(b *Buffers) error {
	return fb.mapped(b.InputInterop, "input", func() error {
		return accel.Transfer(b.InputInterop.Image(), b.EffectInput, inboundScale, fb.queue, &fb.tmp)
	})
}

// Outbound converts the effect output into the output texture, going
// through the staging image when the formats differ.
func (fb *FormatBridge) Outbound(b *Buffers) error {
	if !b.Aliased() {
		if err := accel.Transfer(b.EffectOutput, b.Staging, outboundScale, fb.queue, &fb.tmp); err != nil {
			return fmt.Errorf("stage effect output: %w", err)
		}
	}
	return fb.mapped(b.OutputInterop, "output", func() error {
		return accel.Transfer(b.Staging, b.OutputInterop.Image(), hostScale, fb.queue, &fb.tmp)
	})
}

// mapped runs convert between Map and Unmap of r. r is unmapped even when
// convert fails.
func (fb *FormatBridge) mapped(r *accel.Interop, name string, convert func() error) error {
	if err := r.Map(fb.queue); err != nil {
		return fmt.Errorf("map %s: %w", name, err)
	}
	err := convert()
	if uerr := r.Unmap(fb.queue); uerr != nil && err == nil {
		return fmt.Errorf("unmap %s: %w", name, uerr)
	}
	if err != nil {
		return fmt.Errorf("transfer %s: %w", name, err)
	}
	return nil
}
