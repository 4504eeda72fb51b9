// Package mediatest provides in-memory fakes of the media platform for tests.
package mediatest

import (
	"context"
	"image"
	"image/color"
	"io"
	"sync"
	"time"

	"github.com/acentior/camkit/pkg/media"
	"github.com/acentior/camkit/pkg/size"
	"github.com/pion/mediadevices/pkg/io/video"
)

// Clock hands out increasing sequence numbers so tests can assert the order
// of events across fakes.
type Clock struct {
	mu  sync.Mutex
	now int
}

func (c *Clock) Tick() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// Gradient returns a w x h image whose pixels encode their own coordinates,
// which makes flips and copies easy to verify.
func Gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x*7 + y*3), A: 0xff})
		}
	}
	return img
}

type Track struct {
	id    string
	clock *Clock

	mu        sync.Mutex
	stops     int
	stoppedAt int
	ended     []func(error)
	closed    chan struct{}
}

func NewTrack(id string, clock *Clock) *Track {
	return &Track{id: id, clock: clock, closed: make(chan struct{})}
}

func (t *Track) ID() string { return t.id }

func (t *Track) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stops == 0 {
		if t.clock != nil {
			t.stoppedAt = t.clock.Tick()
		}
		close(t.closed)
	}
	t.stops++
	return nil
}

func (t *Track) OnEnded(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ended = append(t.ended, fn)
}

// End simulates the device going away.
func (t *Track) End(err error) {
	t.mu.Lock()
	handlers := append([]func(error){}, t.ended...)
	t.mu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}

func (t *Track) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

func (t *Track) Stopped() bool { return t.Stops() > 0 }

// StoppedAt is the clock tick of the first Stop, 0 if never stopped.
func (t *Track) StoppedAt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stoppedAt
}

// VideoTrack serves copies of a fixed frame until it is stopped.
type VideoTrack struct {
	*Track
	Frame    image.Image
	Interval time.Duration
}

func (t *VideoTrack) NewReader(copyFrame bool) video.Reader {
	return video.ReaderFunc(func() (image.Image, func(), error) {
		select {
		case <-t.closed:
			return nil, func() {}, io.EOF
		case <-time.After(t.Interval):
		}
		return t.Frame, func() {}, nil
	})
}

type Stream struct {
	id    string
	video *VideoTrack
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []media.Track { return []media.Track{s.video} }

func (s *Stream) VideoTrack() (media.VideoTrack, bool) { return s.video, true }

// Video returns the concrete fake track.
func (s *Stream) Video() *VideoTrack { return s.video }

// NewStream returns a stream whose single video track serves frame.
func NewStream(id string, frame image.Image, clock *Clock) *Stream {
	return &Stream{
		id: id,
		video: &VideoTrack{
			Track:    NewTrack(id+"-video", clock),
			Frame:    frame,
			Interval: time.Millisecond,
		},
	}
}

// Acquisition records one GetUserMedia call.
type Acquisition struct {
	Constraints media.Constraints
	Stream      *Stream
	At          int
}

// Acquirer is a call-counting fake of the platform.
type Acquirer struct {
	Clock       *Clock
	Unsupported bool
	// Err, when set, is returned by the next GetUserMedia call.
	Err        error
	Frame      image.Image
	DeviceList []media.DeviceInfo
	// OnAcquire, when set, runs at the start of every GetUserMedia call.
	OnAcquire func()

	mu    sync.Mutex
	calls []Acquisition
}

func NewAcquirer() *Acquirer {
	return &Acquirer{Clock: &Clock{}, Frame: Gradient(64, 48)}
}

func (a *Acquirer) Supported() bool { return !a.Unsupported }

func (a *Acquirer) Devices() []media.DeviceInfo { return a.DeviceList }

func (a *Acquirer) GetUserMedia(ctx context.Context, c media.Constraints) (media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.OnAcquire != nil {
		a.OnAcquire()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		err := a.Err
		a.Err = nil
		return nil, err
	}
	s := NewStream("stream-"+string(rune('a'+len(a.calls))), a.Frame, a.Clock)
	a.calls = append(a.calls, Acquisition{Constraints: c, Stream: s, At: a.Clock.Tick()})
	return s, nil
}

func (a *Acquirer) Calls() []Acquisition {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Acquisition{}, a.calls...)
}

// Sink is a playback sink with a fixed frame. A sink built with NewSink is
// already playing; one built with NewPendingSink becomes ready on Play.
type Sink struct {
	frame image.Image
	ready chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewSink(frame image.Image) *Sink {
	s := NewPendingSink(frame)
	s.Play()
	return s
}

func NewPendingSink(frame image.Image) *Sink {
	return &Sink{frame: frame, ready: make(chan struct{}), done: make(chan struct{})}
}

func (s *Sink) Play() { s.once.Do(func() { close(s.ready) }) }

func (s *Sink) Ready() <-chan struct{} { return s.ready }

func (s *Sink) Done() <-chan struct{} { return s.done }

func (s *Sink) Err() error { return nil }

func (s *Sink) Dimensions() size.Size {
	if !media.Playing(s) {
		return size.Size{}
	}
	b := s.frame.Bounds()
	return size.Size{Width: b.Dx(), Height: b.Dy()}
}

func (s *Sink) Frame() (image.Image, error) {
	if !media.Playing(s) {
		return nil, media.ErrNotReady
	}
	return s.frame, nil
}
