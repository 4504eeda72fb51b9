// Package media describes the camera platform the pipeline runs on: device
// acquisition, live streams and their tracks, and playback sinks that turn a
// stream into readable frames.
package media

import (
	"context"
	"log"

	"github.com/pion/mediadevices/pkg/io/video"
)

var logger *log.Logger

func init() {
	logger = log.New(log.Writer(), "[media]", log.LstdFlags)
}

// Facing modes understood by Constraints.FacingMode.
const (
	FacingUser        = "user"
	FacingEnvironment = "environment"
)

// Constraints describes the device a caller wants. Zero fields are
// unconstrained. Constraints is a comparable value; two requests are the same
// when Equal reports true, regardless of where they were built.
type Constraints struct {
	DeviceID   string
	FacingMode string
	Width      int
	Height     int
	FrameRate  float32
}

func (c Constraints) Equal(o Constraints) bool {
	return c == o
}

// Track is one independently stoppable track of a Stream.
type Track interface {
	ID() string
	// Stop releases the underlying device. Stopping twice is a no-op.
	Stop() error
	// OnEnded registers a handler called when the track ends on its own,
	// for example when the device is unplugged.
	OnEnded(func(error))
}

// VideoTrack is a Track that frames can be read from.
type VideoTrack interface {
	Track
	NewReader(copyFrame bool) video.Reader
}

// Stream is a live set of tracks from one capture device.
type Stream interface {
	ID() string
	Tracks() []Track
	VideoTrack() (VideoTrack, bool)
}

// DeviceInfo describes an enumerated capture device.
type DeviceInfo struct {
	DeviceID string
	Label    string
}

// Acquirer opens camera streams.
type Acquirer interface {
	// Supported reports whether any camera capability is present.
	Supported() bool
	Devices() []DeviceInfo
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// StopStream stops every track of s. A nil stream is ignored.
func StopStream(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		if err := t.Stop(); err != nil {
			logger.Printf("stopping track %s: %v", t.ID(), err)
		}
	}
}
