package encoders

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/acentior/camkit/pkg/size"
)

const mjpegQuality = 85

// MJPEGEncoder emits every frame as a standalone JPEG image.
type MJPEGEncoder struct {
	size size.Size
	buf  bytes.Buffer
}

func newMJPEGEncoder(size size.Size, frameRate int) (Encoder, error) {
	return &MJPEGEncoder{size: size}, nil
}

// Encode encodes a frame into a jpeg payload
func (e *MJPEGEncoder) Encode(frame *image.RGBA) ([]byte, error) {
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, frame, &jpeg.Options{Quality: mjpegQuality}); err != nil {
		return nil, err
	}
	payload := make([]byte, e.buf.Len())
	copy(payload, e.buf.Bytes())
	return payload, nil
}

// Finish has nothing to flush, frames are never buffered.
func (e *MJPEGEncoder) Finish() ([]byte, error) {
	return nil, nil
}

func (e *MJPEGEncoder) VideoSize() (size.Size, error) {
	return e.size, nil
}

func (e *MJPEGEncoder) MIMEType() string {
	return "video/x-motion-jpeg"
}

func (e *MJPEGEncoder) Close() error {
	return nil
}

func init() {
	registeredEncoders[MJPEGCodec] = newMJPEGEncoder
}
