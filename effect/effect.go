// Package effect defines the contract between the frame pipeline and an
// image-processing effect running on the accelerator.
//
// An effect is driven through SetQueue, SetImage, Load and Run. Run reports
// [ErrInitialization] when the effect must be loaded again before it can
// execute; every other error leaves the effect loaded.
package effect

import (
	"errors"
	"fmt"

	"github.com/gogpu/fxstream/accel"
)

// Status errors returned by effects.
var (
	// ErrInitialization means the effect lost its prepared state and must
	// be loaded again.
	ErrInitialization = errors.New("effect: needs reinitialization")

	// ErrNotLoaded is returned by Run before a successful Load.
	ErrNotLoaded = errors.New("effect: not loaded")

	// ErrMissingImage is returned when Load or Run finds an unbound image.
	ErrMissingImage = errors.New("effect: image not bound")

	// ErrImageFormat is returned when a bound image has the wrong format.
	ErrImageFormat = errors.New("effect: image format mismatch")

	// ErrResolution is returned when input and output dimensions disagree.
	ErrResolution = errors.New("effect: unsupported resolution")

	// ErrParameter is returned for unknown parameter keys.
	ErrParameter = errors.New("effect: unknown parameter")

	// ErrUnknownSelector is returned when no factory is registered under a
	// selector.
	ErrUnknownSelector = errors.New("effect: unknown selector")
)

// Selector names an effect implementation.
type Selector string

// Effect selectors.
const (
	Transfer          Selector = "Transfer"
	GreenScreen       Selector = "GreenScreen"
	ArtifactReduction Selector = "ArtifactReduction"
	SuperRes          Selector = "SuperRes"
	Upscale           Selector = "Upscale"
)

// ParamKey names an integer tuning parameter.
type ParamKey string

// Parameter keys.
const (
	// Strength selects the effect's filter strength.
	Strength ParamKey = "Strength"
	// Mode selects an effect-specific processing mode.
	Mode ParamKey = "Mode"
)

// Direction selects which image SetImage binds.
type Direction uint8

// Image directions.
const (
	Input Direction = iota
	Output
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Handle is an effect instance bound to one scene slot.
type Handle interface {
	// Info describes the effect and its configurable parameters.
	Info() string

	// SetQueue binds the execution queue all effect work is submitted to.
	SetQueue(q *accel.Queue) error

	// SetU32 sets an integer parameter. Takes effect on the next Load.
	SetU32(key ParamKey, v uint32) error

	// GetU32 returns an integer parameter.
	GetU32(key ParamKey) (uint32, error)

	// SetImage binds the input or output image.
	SetImage(dir Direction, img *accel.Image) error

	// Load prepares the effect for the currently bound images.
	Load() error

	// Run submits the effect to the bound queue.
	Run() error

	// Destroy releases the effect.
	Destroy()
}

// StatusError carries the effect and operation that failed.
type StatusError struct {
	Effect Selector
	Op     string
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("effect %s: %s: %v", e.Effect, e.Op, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// NeedsReload reports whether err requires the effect to be loaded again.
func NeedsReload(err error) bool {
	return errors.Is(err, ErrInitialization)
}
