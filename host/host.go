// Package host defines the integration contract between the frame pipeline
// and the compositing application that drives it.
//
// The host blocks the pipeline in AwaitFrameData until it wants a frame,
// supplies the input image for the selected scene, and receives one
// composited texture per output stream.
package host

import (
	"context"
	"errors"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/fxstream/scene"
)

// Await status errors.
var (
	// ErrStreamsChanged means the set of output streams changed and must be
	// enumerated again before the next frame.
	ErrStreamsChanged = errors.New("host: streams changed")

	// ErrTimeout means no frame was requested within the timeout.
	ErrTimeout = errors.New("host: timed out waiting for frame")

	// ErrQuit means the host asked the pipeline to stop.
	ErrQuit = errors.New("host: quit requested")
)

// Query errors.
var (
	// ErrNoCamera is returned when a stream has no camera data this frame.
	ErrNoCamera = errors.New("host: no camera data for stream")

	// ErrNoImage is returned when a scene parameter has no image bound.
	ErrNoImage = errors.New("host: no image for parameter")

	// ErrImageSize is returned when the destination texture does not match
	// the negotiated image size.
	ErrImageSize = errors.New("host: image size mismatch")
)

// StreamHandle identifies an output stream.
type StreamHandle uint64

// Stream is an output sink negotiated by the host.
type Stream struct {
	Handle StreamHandle
	Name   string
	Width  uint32
	Height uint32
}

// FrameRequest is one request for a frame. Time is the tracked time the
// frame is rendered for; every response to the request echoes it.
type FrameRequest struct {
	Scene uint32
	Time  float64
}

// Camera is the virtual camera a stream renders from.
type Camera struct {
	ID          uint64
	X, Y, Z     float32
	RX, RY, RZ  float32
	FocalLength float32
	NearZ, FarZ float32
}

// CameraData is the per-stream camera of the current frame.
type CameraData struct {
	Stream StreamHandle
	Camera Camera
}

// CameraResponse echoes the timing and camera a frame was produced for.
type CameraResponse struct {
	Time   float64
	Camera CameraData
}

// ImageData describes the image bound to a scene parameter. Format is the
// texture format the host fills the image in.
type ImageData struct {
	ImageID uint64
	Width   uint32
	Height  uint32
	Format  gputypes.TextureFormat
}

// ImageTarget is a texture the host can fill with image contents.
type ImageTarget interface {
	gpucontext.Texture
	gpucontext.TextureUpdater
}

// Frame is a composited texture sent to one stream.
type Frame struct {
	Texture gpucontext.Texture
	Format  gputypes.TextureFormat
}

// Integration is the host side of the pipeline.
type Integration interface {
	// AwaitFrameData blocks until the host requests a frame, the stream
	// topology changes or timeout elapses.
	AwaitFrameData(ctx context.Context, timeout time.Duration) (FrameRequest, error)

	// Streams returns the currently active output streams.
	Streams() ([]Stream, error)

	// FrameCamera returns camera data for a stream, or ErrNoCamera.
	FrameCamera(h StreamHandle) (CameraData, error)

	// FrameImageData returns the image bound to a scene parameter.
	FrameImageData(sceneHash uint64, key string) (ImageData, error)

	// FrameImage copies the image contents into dst.
	FrameImage(imageID uint64, dst ImageTarget) error

	// SendFrame delivers a composited frame to a stream.
	SendFrame(h StreamHandle, f Frame, resp CameraResponse) error

	// Log posts a diagnostic message to the host.
	Log(msg string)

	// SetSchema publishes the scene schema.
	SetSchema(s *scene.Schema) error

	// SaveSchema persists the scene schema at path.
	SaveSchema(path string, s *scene.Schema) error

	// Shutdown closes the integration channel.
	Shutdown() error
}
