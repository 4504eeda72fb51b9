// Package surface implements the offscreen raster target frames are drawn
// onto before they are encoded.
package surface

import (
	"image"

	"github.com/acentior/camkit/pkg/size"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Surface is a fixed-size RGBA buffer. It is not safe for concurrent use.
type Surface struct {
	size     size.Size
	mirrored bool
	buf      *image.RGBA
}

// New allocates a surface. sz must already be resolved to positive values.
func New(sz size.Size, mirrored bool) *Surface {
	return &Surface{
		size:     sz,
		mirrored: mirrored,
		buf:      image.NewRGBA(image.Rect(0, 0, sz.Width, sz.Height)),
	}
}

func (s *Surface) Size() size.Size { return s.size }

func (s *Surface) Mirrored() bool { return s.mirrored }

// Render draws src scaled to the surface size, flipped horizontally when the
// surface is mirrored, and returns the surface buffer. The buffer is reused by
// the next Render; use Snapshot to keep a frame.
func (s *Surface) Render(src image.Image) *image.RGBA {
	b := src.Bounds()
	if b.Dx() != s.size.Width || b.Dy() != s.size.Height {
		src = resize.Resize(uint(s.size.Width), uint(s.size.Height), src, resize.Bilinear)
		b = src.Bounds()
	}
	draw.Draw(s.buf, s.buf.Bounds(), src, b.Min, draw.Src)
	if s.mirrored {
		Mirror(s.buf)
	}
	return s.buf
}

// Snapshot returns a copy of the current buffer.
func (s *Surface) Snapshot() *image.RGBA {
	out := image.NewRGBA(s.buf.Rect)
	copy(out.Pix, s.buf.Pix)
	return out
}

// Release drops the buffer. The surface must not be rendered to afterwards.
func (s *Surface) Release() {
	s.buf = nil
}

// Mirror flips img horizontally in place: the pixel at x moves to
// width-1-x. Applying it twice restores the original.
func Mirror(img *image.RGBA) {
	w := img.Rect.Dx()
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for l, r := 0, w-1; l < r; l, r = l+1, r-1 {
			li, ri := l*4, r*4
			for c := 0; c < 4; c++ {
				row[li+c], row[ri+c] = row[ri+c], row[li+c]
			}
		}
	}
}
