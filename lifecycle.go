package fxstream

import (
	"fmt"

	"github.com/gogpu/fxstream/accel"
	"github.com/gogpu/fxstream/effect"
	"github.com/gogpu/fxstream/scene"
)

// effectSlot drives one scene's effect through load and run.
//
// States: unloaded -> loaded on the first frame that selects the slot;
// loaded stays loaded after a successful or ordinary failed run; a run
// reporting effect.ErrInitialization, or binding images of a different
// size, returns the slot to unloaded. Rebinding same-sized images keeps the
// prepared state.
type effectSlot struct {
	slot   scene.Slot
	handle effect.Handle
	loaded bool

	in, out [2]int

	loads int
	runs  int
}

// newEffectSlot creates and configures the effect for slot.
func newEffectSlot(effects *effect.Registry, slot scene.Slot, q *accel.Queue) (*effectSlot, error) {
	h, err := effects.Create(slot.Effect)
	if err != nil {
		return nil, fatal(ExitEffect, "create effect "+slot.Name, err)
	}
	if err := h.SetQueue(q); err != nil {
		h.Destroy()
		return nil, fatal(ExitQueue, "bind queue to "+slot.Name, err)
	}
	if slot.HasStrength {
		if err := h.SetU32(effect.Strength, slot.Strength); err != nil {
			h.Destroy()
			return nil, fatal(ExitEffect, "set strength of "+slot.Name, err)
		}
	}
	return &effectSlot{slot: slot, handle: h}, nil
}

// bind attaches the frame's images. Failing to bind the input skips the
// frame; failing to bind the output is fatal.
func (s *effectSlot) bind(b *Buffers) error {
	if err := s.handle.SetImage(effect.Input, b.EffectInput); err != nil {
		return fmt.Errorf("bind input image: %w", err)
	}
	if err := s.handle.SetImage(effect.Output, b.EffectOutput); err != nil {
		return fatal(ExitOutputFormat, "bind output image", err)
	}
	in, out := imageSize(b.EffectInput), imageSize(b.EffectOutput)
	if in != s.in || out != s.out {
		s.in, s.out = in, out
		s.loaded = false
	}
	return nil
}

// run loads the effect if needed and submits it.
func (s *effectSlot) run() error {
	if !s.loaded {
		if err := s.handle.Load(); err != nil {
			return fmt.Errorf("load %s: %w", s.slot.Name, err)
		}
		s.loaded = true
		s.loads++
		Logger().Info("fxstream: effect loaded", "scene", s.slot.Name)
	}
	s.runs++
	err := s.handle.Run()
	if err == nil {
		return nil
	}
	if effect.NeedsReload(err) {
		s.loaded = false
	}
	return fmt.Errorf("run %s: %w", s.slot.Name, err)
}

func (s *effectSlot) destroy() {
	if s.handle == nil {
		return
	}
	s.handle.Destroy()
	s.handle = nil
	s.loaded = false
	s.in, s.out = [2]int{}, [2]int{}
}

func imageSize(m *accel.Image) [2]int {
	return [2]int{m.Width, m.Height}
}
