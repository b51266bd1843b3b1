package viewer

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera and projection constants.
const (
	CameraDistance = 6.0  // back-off along -Z so the mesh is visible
	Step           = 1.0  // translation per TranslateView
	FOV            = 45.0 // degrees
	Near           = 0.1
	Far            = 100.0
)

// Axis selects the direction of a translation.
type Axis byte

const (
	X Axis = iota
	Y
)

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	}
	return fmt.Sprintf("Axis(%d)", byte(a))
}

// ParseAxis parses "x" or "y" (case insensitive).
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "x":
		return X, nil
	case "y":
		return Y, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// ViewTransform is the camera back-off plus the accumulated 2D offset.
// The offset is unbounded.
type ViewTransform struct {
	Distance float32
	Offset   mgl32.Vec2
}

// NewViewTransform returns a transform at the default camera distance
// with zero offset.
func NewViewTransform() ViewTransform {
	return ViewTransform{Distance: CameraDistance}
}

// Translate adds Step to the offset along axis.
// It reports false and leaves the transform unchanged for an unknown axis.
func (t *ViewTransform) Translate(axis Axis) bool {
	switch axis {
	case X:
		t.Offset[0] += Step
	case Y:
		t.Offset[1] += Step
	default:
		return false
	}
	return true
}

// ModelView returns the model-view matrix: identity, then the camera
// back-off, then the 2D offset.
func (t ViewTransform) ModelView() mgl32.Mat4 {
	m := mgl32.Ident4()
	m = m.Mul4(mgl32.Translate3D(0, 0, -t.Distance))
	return m.Mul4(mgl32.Translate3D(t.Offset[0], t.Offset[1], 0))
}

// Projection returns the perspective projection for a surface of the
// given size. A non-positive height is treated as 1.
func Projection(width, height int) mgl32.Mat4 {
	if height < 1 {
		height = 1
	}
	if width < 1 {
		width = 1
	}
	aspect := float32(width) / float32(height)
	return mgl32.Perspective(mgl32.DegToRad(FOV), aspect, Near, Far)
}
