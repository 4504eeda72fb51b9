package capture

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/acentior/camkit/pkg/media"
	"github.com/acentior/camkit/pkg/media/mediatest"
	"github.com/acentior/camkit/pkg/size"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapture_NoSource(t *testing.T) {
	img, err := Capture(context.Background(), media.Source{}, Settings{Mirror: true})
	assert.ErrorIs(t, err, media.ErrNoSource)
	assert.Nil(t, img)
}

func TestCapture_FromSink(t *testing.T) {
	src := mediatest.Gradient(6, 4)
	img, err := Capture(context.Background(), media.Source{Sink: mediatest.NewSink(src)}, Settings{})
	require.NoError(t, err)

	assert.Equal(t, "image/png", img.MIMEType)
	assert.True(t, strings.HasPrefix(img.URL, "data:image/png;base64,"))
	assert.Equal(t, size.Size{Width: 6, Height: 4}, img.Size)

	decoded, err := png.Decode(bytes.NewReader(img.Bytes))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), decoded.Bounds())
	r, g, _, _ := decoded.At(5, 3).RGBA()
	assert.Equal(t, uint32(5), r>>8)
	assert.Equal(t, uint32(3), g>>8)
}

func TestCapture_Mirrored(t *testing.T) {
	src := mediatest.Gradient(5, 2)
	img, err := Capture(context.Background(), media.Source{Sink: mediatest.NewSink(src)}, Settings{Mirror: true})
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img.Bytes))
	require.NoError(t, err)
	r, _, _, _ := decoded.At(0, 0).RGBA()
	assert.Equal(t, uint32(4), r>>8, "left edge must hold the source's right edge")
}

func TestCapture_ResizeKeepsAspect(t *testing.T) {
	sink := mediatest.NewSink(image.NewRGBA(image.Rect(0, 0, 64, 48)))
	img, err := Capture(context.Background(), media.Source{Sink: sink}, Settings{Width: 32})
	require.NoError(t, err)
	assert.Equal(t, size.Size{Width: 32, Height: 24}, img.Size)

	decoded, err := png.Decode(bytes.NewReader(img.Bytes))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), decoded.Bounds())
}

func TestCapture_JPEG(t *testing.T) {
	sink := mediatest.NewSink(mediatest.Gradient(16, 16))
	img, err := Capture(context.Background(), media.Source{Sink: sink}, Settings{Format: FormatJPEG, Quality: 50})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	_, err = jpeg.Decode(bytes.NewReader(img.Bytes))
	assert.NoError(t, err)
}

func TestCapture_UnknownFormat(t *testing.T) {
	sink := mediatest.NewSink(mediatest.Gradient(2, 2))
	_, err := Capture(context.Background(), media.Source{Sink: sink}, Settings{Format: "bmp"})
	assert.Error(t, err)
}

func TestCapture_FromStreamReleasesVirtualSink(t *testing.T) {
	stream := mediatest.NewStream("s", mediatest.Gradient(8, 8), nil)
	img, err := Capture(context.Background(), media.Source{Stream: stream}, Settings{Mirror: true})
	require.NoError(t, err)
	assert.NotEmpty(t, img.URL)
	assert.NotNil(t, img.Bytes)
	assert.False(t, stream.Video().Stopped(), "capture borrows the stream")
}

func TestCapture_WaitsForReadiness(t *testing.T) {
	sink := mediatest.NewPendingSink(mediatest.Gradient(4, 4))
	go func() {
		time.Sleep(5 * time.Millisecond)
		sink.Play()
	}()
	img, err := Capture(context.Background(), media.Source{Sink: sink}, Settings{})
	require.NoError(t, err)
	assert.NotEmpty(t, img.Bytes)
}

func TestCapture_NotReadyWhenSourceDies(t *testing.T) {
	stream := mediatest.NewStream("s", mediatest.Gradient(4, 4), nil)
	stream.Video().Interval = time.Hour
	require.NoError(t, stream.Video().Stop())

	_, err := Capture(context.Background(), media.Source{Stream: stream}, Settings{})
	assert.ErrorIs(t, err, media.ErrNotReady)
}
