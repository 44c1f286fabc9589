// Package software provides CPU implementations of the pipeline's effects.
// They follow the same load and run contract as accelerator-backed effects
// and execute on the bound accel.Queue.
package software

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/fxstream/accel"
	"github.com/gogpu/fxstream/effect"
)

var errNoQueue = errors.New("software: no execution queue bound")

// processFunc renders src into dst with the parameters captured at Load.
type processFunc func(src, dst *accel.Image, params map[effect.ParamKey]uint32)

// profile declares an effect's formats and parameters.
type profile struct {
	sel      effect.Selector
	summary  string
	in, out  accel.Format
	scale    int
	defaults map[effect.ParamKey]uint32
	process  processFunc
}

// filter is the shared state machine behind every software effect.
type filter struct {
	profile

	q        *accel.Queue
	src, dst *accel.Image
	params   map[effect.ParamKey]uint32

	loaded    bool
	loadedIn  [2]int
	loadedOut [2]int
	active    map[effect.ParamKey]uint32
}

func newFilter(p profile) *filter {
	params := make(map[effect.ParamKey]uint32, len(p.defaults))
	for k, v := range p.defaults {
		params[k] = v
	}
	if p.scale == 0 {
		p.scale = 1
	}
	return &filter{profile: p, params: params}
}

func (f *filter) fail(op string, err error) error {
	return &effect.StatusError{Effect: f.sel, Op: op, Err: err}
}

func (f *filter) Info() string {
	keys := make([]string, 0, len(f.params))
	for k := range f.params {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	params := "none"
	if len(keys) > 0 {
		params = strings.Join(keys, ", ")
	}
	return fmt.Sprintf("%s: %s (input %s, output %s, scale %dx; parameters: %s)",
		f.sel, f.summary, f.in, f.out, f.scale, params)
}

func (f *filter) SetQueue(q *accel.Queue) error {
	if q == nil {
		return f.fail("set queue", errNoQueue)
	}
	f.q = q
	return nil
}

func (f *filter) SetU32(key effect.ParamKey, v uint32) error {
	if _, ok := f.params[key]; !ok {
		return f.fail("set "+string(key), effect.ErrParameter)
	}
	f.params[key] = v
	return nil
}

func (f *filter) GetU32(key effect.ParamKey) (uint32, error) {
	v, ok := f.params[key]
	if !ok {
		return 0, f.fail("get "+string(key), effect.ErrParameter)
	}
	return v, nil
}

func (f *filter) SetImage(dir effect.Direction, img *accel.Image) error {
	op := "set " + dir.String() + " image"
	if img == nil {
		return f.fail(op, effect.ErrMissingImage)
	}
	want := f.in
	if dir == effect.Output {
		want = f.out
	}
	if img.Format != want {
		return f.fail(op, fmt.Errorf("%w: got %s, want %s", effect.ErrImageFormat, img.Format, want))
	}
	if dir == effect.Output {
		f.dst = img
	} else {
		f.src = img
	}
	return nil
}

func (f *filter) Load() error {
	if f.q == nil {
		return f.fail("load", errNoQueue)
	}
	if f.src == nil || f.dst == nil {
		return f.fail("load", effect.ErrMissingImage)
	}
	if f.dst.Width != f.src.Width*f.scale || f.dst.Height != f.src.Height*f.scale {
		return f.fail("load", fmt.Errorf("%w: %dx%d -> %dx%d at %dx",
			effect.ErrResolution, f.src.Width, f.src.Height, f.dst.Width, f.dst.Height, f.scale))
	}
	f.active = make(map[effect.ParamKey]uint32, len(f.params))
	for k, v := range f.params {
		f.active[k] = v
	}
	f.loadedIn = [2]int{f.src.Width, f.src.Height}
	f.loadedOut = [2]int{f.dst.Width, f.dst.Height}
	f.loaded = true
	return nil
}

func (f *filter) Run() error {
	if !f.loaded {
		return f.fail("run", effect.ErrNotLoaded)
	}
	if f.src == nil || f.dst == nil {
		return f.fail("run", effect.ErrMissingImage)
	}
	if [2]int{f.src.Width, f.src.Height} != f.loadedIn || [2]int{f.dst.Width, f.dst.Height} != f.loadedOut {
		// Prepared state no longer matches the bound images.
		f.loaded = false
		return f.fail("run", effect.ErrInitialization)
	}
	src, dst, params := f.src, f.dst, f.active
	if err := f.q.Enqueue(func() { f.process(src, dst, params) }); err != nil {
		return f.fail("run", err)
	}
	return nil
}

func (f *filter) Destroy() {
	f.loaded = false
	f.src, f.dst, f.q = nil, nil, nil
}
