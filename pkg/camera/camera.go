// Package camera owns the live device stream of a session.
package camera

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/acentior/camkit/pkg/media"
)

var logger = log.New(log.Writer(), "[camera]", log.LstdFlags)

// Session acquires and releases one camera stream at a time. It is the only
// owner of the device it opened.
type Session struct {
	acquirer media.Acquirer
	onEnded  func(media.Stream, error)

	mu          sync.Mutex
	stream      media.Stream
	constraints media.Constraints
	// streams already stopped, so a second Stop never reaches their tracks
	released map[media.Stream]struct{}
}

func NewSession(acquirer media.Acquirer) *Session {
	return &Session{
		acquirer: acquirer,
		released: make(map[media.Stream]struct{}),
	}
}

// OnEnded sets the handler for a track of the current stream ending without
// Stop having been called. The stream is already released when it runs.
func (s *Session) OnEnded(fn func(media.Stream, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// Start opens a stream matching c. If a stream is already open with equal
// constraints it is returned as is. Otherwise the previous stream is fully
// stopped before the new one is requested.
func (s *Session) Start(ctx context.Context, c media.Constraints) (media.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil && s.constraints.Equal(c) {
		return s.stream, nil
	}
	if !s.acquirer.Supported() {
		return nil, media.ErrDeviceUnsupported
	}
	if s.stream != nil {
		logger.Printf("constraints changed, restarting stream %s", s.stream.ID())
		s.release()
	}

	stream, err := s.acquirer.GetUserMedia(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("acquiring camera: %w", err)
	}
	s.stream = stream
	s.constraints = c
	for _, t := range stream.Tracks() {
		// handlers may fire from inside Stop, which holds s.mu
		t.OnEnded(func(err error) { go s.ended(stream, err) })
	}
	logger.Printf("stream %s started with %+v", stream.ID(), c)
	return stream, nil
}

// Stop stops every track of stream, or of the current stream when nil.
// Stopping an already stopped or missing stream does nothing.
func (s *Session) Stop(stream media.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stream == nil || stream == s.stream {
		s.release()
		return
	}
	if _, ok := s.released[stream]; ok {
		return
	}
	s.released[stream] = struct{}{}
	media.StopStream(stream)
}

func (s *Session) release() {
	if s.stream == nil {
		return
	}
	stream := s.stream
	s.stream = nil
	s.constraints = media.Constraints{}
	s.released[stream] = struct{}{}
	media.StopStream(stream)
	logger.Printf("stream %s stopped", stream.ID())
}

func (s *Session) ended(stream media.Stream, err error) {
	s.mu.Lock()
	if s.stream != stream {
		// stopped on purpose or already replaced
		s.mu.Unlock()
		return
	}
	s.release()
	handler := s.onEnded
	s.mu.Unlock()

	logger.Printf("stream %s ended: %v", stream.ID(), err)
	if handler != nil {
		handler(stream, err)
	}
}

func (s *Session) Stream() media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

func (s *Session) Active() bool {
	return s.Stream() != nil
}

// Constraints returns the constraints of the current stream.
func (s *Session) Constraints() (media.Constraints, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.constraints, s.stream != nil
}
