// Package sim is an in-process host that plays back a scripted sequence of
// frame requests. It records everything the pipeline sends back, which
// makes it the collaborator for tests and for offline runs of the CLI.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/fxstream/host"
	"github.com/gogpu/fxstream/scene"
)

// ErrHost is the default error of an EventError.
var ErrHost = errors.New("sim: host failure")

// EventKind selects what AwaitFrameData reports.
type EventKind uint8

// Event kinds.
const (
	EventFrame EventKind = iota
	EventStreamsChanged
	EventTimeout
	EventError
	EventQuit
)

// Event is one scripted AwaitFrameData result.
type Event struct {
	Kind  EventKind
	Scene uint32

	// Width and Height are the input image size of a frame event. Zero
	// keeps the previous size.
	Width  uint32
	Height uint32

	// Streams replaces the topology on EventStreamsChanged when non-nil.
	Streams []host.Stream

	// Err is returned for EventError.
	Err error
}

// Frame returns a frame event.
func Frame(sceneIndex, w, h uint32) Event {
	return Event{Kind: EventFrame, Scene: sceneIndex, Width: w, Height: h}
}

// StreamsChanged returns a topology change to streams.
func StreamsChanged(streams ...host.Stream) Event {
	return Event{Kind: EventStreamsChanged, Streams: streams}
}

// Config describes a simulated session.
type Config struct {
	Script []Event
}

// Submission records one SendFrame call. Tracked is the time of the frame
// request that was current when the frame arrived.
type Submission struct {
	Frame    uint64
	Tracked  float64
	Stream   host.StreamHandle
	Texture  host.Frame
	Response host.CameraResponse
}

// Host is a scripted host.Integration.
type Host struct {
	mu sync.Mutex

	script   []Event
	streams  []host.Stream
	width    uint32
	height   uint32
	frame    uint64
	time     float64
	schema   *scene.Schema
	noCamera map[host.StreamHandle]bool

	submissions []Submission
	logs        []string
	images      int
	shutdown    bool

	// Failure injection.
	ImageFormat   gputypes.TextureFormat // reported input format; zero means BGRA8
	SendErr       error
	SetSchemaErr  error
	SaveSchemaErr error
	ShutdownErr   error
}

var _ host.Integration = (*Host)(nil)

// New creates a host that plays back cfg.Script.
func New(cfg Config) *Host {
	return &Host{
		script:   append([]Event(nil), cfg.Script...),
		width:    640,
		height:   360,
		noCamera: make(map[host.StreamHandle]bool),
	}
}

// Generate builds a script that announces streams and then requests frames,
// cycling through scenes.
func Generate(frames int, scenes []uint32, w, h uint32, streams []host.Stream) []Event {
	script := []Event{StreamsChanged(streams...)}
	if len(scenes) == 0 {
		scenes = []uint32{0}
	}
	for i := 0; i < frames; i++ {
		script = append(script, Frame(scenes[i%len(scenes)], w, h))
	}
	return append(script, Event{Kind: EventQuit})
}

// Push appends events to the script.
func (s *Host) Push(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, events...)
}

// SetCameraMissing makes FrameCamera fail for h.
func (s *Host) SetCameraMissing(h host.StreamHandle, missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noCamera[h] = missing
}

// AwaitFrameData returns the next scripted event. An exhausted script
// reports host.ErrQuit.
func (s *Host) AwaitFrameData(ctx context.Context, _ time.Duration) (host.FrameRequest, error) {
	if err := ctx.Err(); err != nil {
		return host.FrameRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.script) == 0 {
		return host.FrameRequest{}, host.ErrQuit
	}
	ev := s.script[0]
	s.script = s.script[1:]

	switch ev.Kind {
	case EventFrame:
		if ev.Width != 0 && ev.Height != 0 {
			s.width, s.height = ev.Width, ev.Height
		}
		s.frame++
		const dt = 1.0 / 60
		s.time += dt
		return host.FrameRequest{Scene: ev.Scene, Time: s.time}, nil
	case EventStreamsChanged:
		if ev.Streams != nil {
			s.streams = append([]host.Stream(nil), ev.Streams...)
		}
		return host.FrameRequest{}, host.ErrStreamsChanged
	case EventTimeout:
		return host.FrameRequest{}, host.ErrTimeout
	case EventError:
		if ev.Err != nil {
			return host.FrameRequest{}, ev.Err
		}
		return host.FrameRequest{}, ErrHost
	default:
		return host.FrameRequest{}, host.ErrQuit
	}
}

// Streams returns the current topology.
func (s *Host) Streams() ([]host.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]host.Stream(nil), s.streams...), nil
}

// FrameCamera returns a camera orbiting with the frame counter.
func (s *Host) FrameCamera(h host.StreamHandle) (host.CameraData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noCamera[h] {
		return host.CameraData{}, fmt.Errorf("%w: %d", host.ErrNoCamera, h)
	}
	return host.CameraData{
		Stream: h,
		Camera: host.Camera{
			ID:          uint64(h),
			Z:           -5,
			RY:          float32(s.frame),
			FocalLength: 30,
			NearZ:       0.1,
			FarZ:        1000,
		},
	}, nil
}

// FrameImageData describes the current input image for a scene of the
// published schema.
func (s *Host) FrameImageData(sceneHash uint64, key string) (host.ImageData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != scene.InputImageKey || !s.knownScene(sceneHash) {
		return host.ImageData{}, fmt.Errorf("%w: %s", host.ErrNoImage, key)
	}
	format := s.ImageFormat
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}
	return host.ImageData{
		ImageID: s.frame,
		Width:   s.width,
		Height:  s.height,
		Format:  format,
	}, nil
}

func (s *Host) knownScene(hash uint64) bool {
	if s.schema == nil {
		return false
	}
	for _, rs := range s.schema.Scenes {
		if rs.Hash == hash {
			return true
		}
	}
	return false
}

// FrameImage fills dst with a BGRA gradient derived from imageID.
func (s *Host) FrameImage(imageID uint64, dst host.ImageTarget) error {
	s.mu.Lock()
	w, h := int(s.width), int(s.height)
	s.images++
	s.mu.Unlock()

	if dst.Width() != w || dst.Height() != h {
		return fmt.Errorf("%w: target %dx%d, image %dx%d", host.ErrImageSize, dst.Width(), dst.Height(), w, h)
	}
	return dst.UpdateData(Pattern(w, h, imageID))
}

// Pattern returns the BGRA image FrameImage produces.
func Pattern(w, h int, imageID uint64) []byte {
	buf := make([]byte, w*h*4)
	shift := byte(imageID)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			buf[i] = byte(x) + shift
			buf[i+1] = byte(y)
			buf[i+2] = byte(x ^ y)
			buf[i+3] = 0xff
		}
	}
	return buf
}

// SendFrame records a submission.
func (s *Host) SendFrame(h host.StreamHandle, f host.Frame, resp host.CameraResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.submissions = append(s.submissions, Submission{Frame: s.frame, Tracked: s.time, Stream: h, Texture: f, Response: resp})
	return nil
}

// Log records a diagnostic message.
func (s *Host) Log(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, msg)
}

// SetSchema publishes the schema.
func (s *Host) SetSchema(sc *scene.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetSchemaErr != nil {
		return s.SetSchemaErr
	}
	s.schema = sc
	return nil
}

// SaveSchema writes the schema to path.
func (s *Host) SaveSchema(path string, sc *scene.Schema) error {
	if s.SaveSchemaErr != nil {
		return s.SaveSchemaErr
	}
	return sc.Save(path)
}

// Shutdown closes the session.
func (s *Host) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	return s.ShutdownErr
}

// Submissions returns all recorded SendFrame calls.
func (s *Host) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

// Logs returns all posted diagnostic messages.
func (s *Host) Logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logs...)
}

// ImagesServed returns the number of FrameImage calls.
func (s *Host) ImagesServed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images
}

// IsShutdown reports whether Shutdown was called.
func (s *Host) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}
