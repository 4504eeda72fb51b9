package size

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoNativeSize is returned by Resolve when the source has not reported
// its dimensions yet.
var ErrNoNativeSize = errors.New("source has no native size yet")

type Size struct {
	Width  int
	Height int
}

func (size *Size) String() string {
	return fmt.Sprintf("{Width: %v, Height %v}", size.Width, size.Height)
}

// Empty reports whether either dimension is unset.
func (size Size) Empty() bool {
	return size.Width <= 0 || size.Height <= 0
}

// Resolve computes the concrete target size for a source of the given native
// size. A requested dimension of 0 means "not requested":
//
//   - both requested: used verbatim
//   - width only: height follows the native aspect ratio
//   - height only: width follows the native aspect ratio
//   - neither: the native size
func Resolve(native Size, width, height int) (Size, error) {
	if width > 0 && height > 0 {
		return Size{Width: width, Height: height}, nil
	}
	if native.Empty() {
		return Size{}, ErrNoNativeSize
	}
	switch {
	case width > 0:
		h := float64(native.Height) * (float64(width) / float64(native.Width))
		return Size{Width: width, Height: atLeastOne(h)}, nil
	case height > 0:
		w := float64(native.Width) * (float64(height) / float64(native.Height))
		return Size{Width: atLeastOne(w), Height: height}, nil
	}
	return native, nil
}

func atLeastOne(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}
