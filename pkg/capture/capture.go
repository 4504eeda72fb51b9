// Package capture grabs single still images from a live source.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/acentior/camkit/pkg/media"
	"github.com/acentior/camkit/pkg/size"
	"github.com/acentior/camkit/pkg/surface"
)

// Image formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

const DefaultQuality = 92

type Settings struct {
	Mirror bool
	// Width and Height request an output size; 0 keeps the source aspect.
	Width  int
	Height int
	// Format is FormatPNG (default) or FormatJPEG.
	Format string
	// Quality applies to JPEG only.
	Quality int
}

// Image is an encoded still. It is never modified after Capture returns.
type Image struct {
	URL      string
	Bytes    []byte
	MIMEType string
	Size     size.Size
}

// Capture renders the current frame of src and encodes it.
//
// If src carries no ready sink a temporary one is bound to its stream for the
// duration of the call. Capture waits for the first frame when the source is
// not playing yet; bound that wait through ctx.
func Capture(ctx context.Context, src media.Source, settings Settings) (*Image, error) {
	if src.Empty() {
		return nil, media.ErrNoSource
	}
	mimeType, err := mimeTypeFor(settings.Format)
	if err != nil {
		return nil, err
	}

	sink, release, err := src.Acquire()
	defer release()
	if err != nil {
		return nil, err
	}
	if err := media.WaitReady(ctx, sink); err != nil {
		return nil, err
	}

	target, err := size.Resolve(sink.Dimensions(), settings.Width, settings.Height)
	if errors.Is(err, size.ErrNoNativeSize) {
		return nil, media.ErrNotReady
	}
	if err != nil {
		return nil, err
	}

	frame, err := sink.Frame()
	if err != nil {
		return nil, err
	}
	surf := surface.New(target, settings.Mirror)
	defer surf.Release()
	pixels := surf.Render(frame)

	data, err := encode(pixels, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrEncodingFailed, err)
	}
	if len(data) == 0 {
		return nil, media.ErrEncodingFailed
	}
	return &Image{
		URL:      media.DataURL(mimeType, data),
		Bytes:    data,
		MIMEType: mimeType,
		Size:     target,
	}, nil
}

func encode(img image.Image, settings Settings) ([]byte, error) {
	var buf bytes.Buffer
	switch settings.Format {
	case FormatJPEG:
		quality := settings.Quality
		if quality <= 0 || quality > 100 {
			quality = DefaultQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func mimeTypeFor(format string) (string, error) {
	switch format {
	case "", FormatPNG:
		return "image/png", nil
	case FormatJPEG:
		return "image/jpeg", nil
	}
	return "", fmt.Errorf("unsupported image format %q", format)
}
