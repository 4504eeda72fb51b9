package encoders

import (
	"fmt"
	"image"
	"io"

	"github.com/acentior/camkit/pkg/size"
)

// Service creates encoder instances
type Service interface {
	NewEncoder(codec VideoCodec, size size.Size, frameRate int) (Encoder, error)
	Supports(codec VideoCodec) bool
}

// Encoder takes an image/frame and encodes it
type Encoder interface {
	io.Closer
	// Encode returns the payload produced for frame, which may be empty while
	// the encoder buffers.
	Encode(*image.RGBA) ([]byte, error)
	// Finish flushes buffered frames and returns the trailing payload. The
	// encoder must still be closed afterwards.
	Finish() ([]byte, error)
	VideoSize() (size.Size, error)
	MIMEType() string
}

// VideoCodec can be either h264 or mjpeg
type VideoCodec = int

const (
	// NoCodec "zero-value"
	NoCodec VideoCodec = iota
	// H264Codec h264
	H264Codec
	// MJPEGCodec motion jpeg
	MJPEGCodec
)

type encoderFactory = func(size size.Size, frameRate int) (Encoder, error)

var registeredEncoders = map[VideoCodec]encoderFactory{}

// ParseCodec maps a codec name to its VideoCodec.
func ParseCodec(name string) (VideoCodec, error) {
	switch name {
	case "h264", "H264":
		return H264Codec, nil
	case "mjpeg", "MJPEG":
		return MJPEGCodec, nil
	}
	return NoCodec, fmt.Errorf("unknown codec %q", name)
}

// EncoderService is the default Service backed by the registered encoders.
type EncoderService struct{}

func (*EncoderService) NewEncoder(codec VideoCodec, size size.Size, frameRate int) (Encoder, error) {
	factory, ok := registeredEncoders[codec]
	if !ok {
		return nil, fmt.Errorf("codec %d is not supported", codec)
	}
	return factory(size, frameRate)
}

func (*EncoderService) Supports(codec VideoCodec) bool {
	_, ok := registeredEncoders[codec]
	return ok
}
