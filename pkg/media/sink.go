package media

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/acentior/camkit/pkg/size"
	"github.com/pion/mediadevices/pkg/io/video"
	"golang.org/x/image/draw"
)

// Sink is a playback target bound to a live source. It knows the native frame
// size once the first frame has arrived.
type Sink interface {
	// Ready is closed once a frame is available and Dimensions is valid.
	Ready() <-chan struct{}
	// Done is closed when the sink stops producing frames.
	Done() <-chan struct{}
	// Err is the reason the sink stopped, nil if it was closed normally.
	Err() error
	Dimensions() size.Size
	// Frame returns the most recent frame.
	Frame() (image.Image, error)
}

// Playing reports whether s is ready without blocking.
func Playing(s Sink) bool {
	select {
	case <-s.Ready():
		return true
	default:
		return false
	}
}

// WaitReady blocks until s is ready. A sink that is already playing returns
// immediately. There is no internal timeout; bound the wait through ctx.
func WaitReady(ctx context.Context, s Sink) error {
	if Playing(s) {
		return nil
	}
	select {
	case <-s.Ready():
		return nil
	case <-s.Done():
		if Playing(s) {
			return nil
		}
		if err := s.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		return ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StreamSink is an offscreen sink that pumps frames from a stream's video
// track. It borrows the stream; closing the sink leaves the tracks running.
type StreamSink struct {
	reader video.Reader

	mu    sync.RWMutex
	frame *image.RGBA
	err   error

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

// NewStreamSink binds a new sink to the video track of stream and starts
// reading frames.
func NewStreamSink(stream Stream) (*StreamSink, error) {
	if stream == nil {
		return nil, ErrNoSource
	}
	vt, ok := stream.VideoTrack()
	if !ok {
		return nil, fmt.Errorf("%w: stream %s has no video track", ErrNoSource, stream.ID())
	}
	s := &StreamSink{
		reader: vt.NewReader(true),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (s *StreamSink) pump() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		img, release, err := s.reader.Read()
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		rgba := toRGBA(img)
		if release != nil {
			release()
		}

		s.mu.Lock()
		s.frame = rgba
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

func (s *StreamSink) Ready() <-chan struct{} { return s.ready }

func (s *StreamSink) Done() <-chan struct{} { return s.done }

func (s *StreamSink) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *StreamSink) Dimensions() size.Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return size.Size{}
	}
	b := s.frame.Bounds()
	return size.Size{Width: b.Dx(), Height: b.Dy()}
}

func (s *StreamSink) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceLost, s.err)
	}
	if s.frame == nil {
		return nil, ErrNotReady
	}
	return s.frame, nil
}

// Close stops the pump. The goroutine exits after the read in flight returns.
func (s *StreamSink) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
}

func toRGBA(img image.Image) *image.RGBA {
	rgbaImg := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgbaImg, rgbaImg.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgbaImg
}
