package viewer

import (
	"image"

	"github.com/gmlewis/stlview/stl"
	"github.com/go-gl/mathgl/mgl32"
)

// Renderer represents a renderer backend.
//
// Upload is called once per successful load (and on unload with an empty
// mesh); Render draws whatever was last uploaded. A failed Upload must
// leave the previously uploaded mesh drawable.
type Renderer interface {
	Init(width, height int, view bool) error
	Resize(width, height int) error
	Upload(mesh *stl.Mesh) error
	Render(projection, modelView mgl32.Mat4) (image.Image, error)
	Close()
}
