package surface

import (
	"image"
	"testing"

	"github.com/acentior/camkit/pkg/media/mediatest"
	"github.com/acentior/camkit/pkg/size"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_CopiesAtNativeSize(t *testing.T) {
	src := mediatest.Gradient(5, 3)
	s := New(size.Size{Width: 5, Height: 3}, false)

	out := s.Render(src)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestRender_MirrorsInPixelSpace(t *testing.T) {
	// odd width keeps a centre column that must stay put
	for _, w := range []int{1, 2, 5, 8} {
		src := mediatest.Gradient(w, 3)
		s := New(size.Size{Width: w, Height: 3}, true)

		out := s.Render(src)
		for y := 0; y < 3; y++ {
			for x := 0; x < w; x++ {
				assert.Equal(t, src.RGBAAt(w-1-x, y), out.RGBAAt(x, y), "w=%d x=%d y=%d", w, x, y)
			}
		}
	}
}

func TestRender_DoubleMirrorRestoresOriginal(t *testing.T) {
	src := mediatest.Gradient(7, 4)
	first := New(size.Size{Width: 7, Height: 4}, true)
	second := New(size.Size{Width: 7, Height: 4}, true)

	out := second.Render(first.Render(src))
	assert.Equal(t, src.Pix, out.Pix)
}

func TestRender_Scales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	s := New(size.Size{Width: 10, Height: 5}, false)

	out := s.Render(src)
	assert.Equal(t, image.Rect(0, 0, 10, 5), out.Bounds())
	px := out.RGBAAt(4, 2)
	assert.InDelta(t, 0xff, px.R, 1)
	assert.InDelta(t, 0xff, px.G, 1)
	assert.Equal(t, uint8(0xff), px.A)
}

func TestRender_NonZeroOrigin(t *testing.T) {
	full := mediatest.Gradient(6, 6)
	sub := full.SubImage(image.Rect(2, 2, 5, 4))
	s := New(size.Size{Width: 3, Height: 2}, false)

	out := s.Render(sub)
	assert.Equal(t, full.RGBAAt(2, 2), out.RGBAAt(0, 0))
	assert.Equal(t, full.RGBAAt(4, 3), out.RGBAAt(2, 1))
}

func TestSnapshot_IsIndependent(t *testing.T) {
	s := New(size.Size{Width: 2, Height: 2}, false)
	s.Render(mediatest.Gradient(2, 2))
	snap := s.Snapshot()

	s.Render(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.Equal(t, mediatest.Gradient(2, 2).Pix, snap.Pix)
}
