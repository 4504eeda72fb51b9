package encoders

import (
	"bytes"
	"image"

	"github.com/acentior/camkit/pkg/size"
	x264 "github.com/gen2brain/x264-go"
)

// H264Encoder h264 encoder
type H264Encoder struct {
	buffer   *bytes.Buffer
	encoder  *x264.Encoder
	realSize size.Size
}

func newH264Encoder(size size.Size, frameRate int) (Encoder, error) {
	if frameRate <= 0 {
		frameRate = 30
	}
	buffer := bytes.NewBuffer(make([]byte, 0))
	realSize := evenSize(size)
	opts := x264.Options{
		Width:     realSize.Width,
		Height:    realSize.Height,
		FrameRate: frameRate,
		Tune:      "zerolatency",
		Preset:    "veryfast",
		Profile:   "baseline",
		LogLevel:  x264.LogWarning,
	}
	encoder, err := x264.NewEncoder(buffer, &opts)
	if err != nil {
		return nil, err
	}
	return &H264Encoder{
		buffer:   buffer,
		encoder:  encoder,
		realSize: realSize,
	}, nil
}

// Encode encodes a frame into a h264 payload
func (e *H264Encoder) Encode(frame *image.RGBA) ([]byte, error) {
	err := e.encoder.Encode(frame)
	if err != nil {
		return nil, err
	}
	err = e.encoder.Flush()
	if err != nil {
		return nil, err
	}
	return e.drain(), nil
}

// Finish flushes the delayed frames still held by x264
func (e *H264Encoder) Finish() ([]byte, error) {
	if err := e.encoder.Flush(); err != nil {
		return nil, err
	}
	return e.drain(), nil
}

func (e *H264Encoder) drain() []byte {
	if e.buffer.Len() == 0 {
		return nil
	}
	payload := make([]byte, e.buffer.Len())
	copy(payload, e.buffer.Bytes())
	e.buffer.Reset()
	return payload
}

// VideoSize returns the size frames must have, which is the requested size
// rounded down to even dimensions for 4:2:0 chroma subsampling.
func (e *H264Encoder) VideoSize() (size.Size, error) {
	return e.realSize, nil
}

func (e *H264Encoder) MIMEType() string {
	return "video/h264"
}

// Close flushes and closes the inner x264 encoder
func (e *H264Encoder) Close() error {
	return e.encoder.Close()
}

func evenSize(s size.Size) size.Size {
	even := func(v int) int {
		v -= v % 2
		if v < 2 {
			return 2
		}
		return v
	}
	return size.Size{Width: even(s.Width), Height: even(s.Height)}
}

func init() {
	registeredEncoders[H264Codec] = newH264Encoder
}
