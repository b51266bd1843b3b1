package viewer

import (
	"fmt"
	"image"

	"github.com/fogleman/fauxgl"
	"github.com/gmlewis/stlview/stl"
	"github.com/go-gl/mathgl/mgl32"
)

// SoftwareRenderer rasterizes on the CPU. It needs no window or GPU and
// is the backend used in tests and by the ebiten shell.
type SoftwareRenderer struct {
	ctx       *fauxgl.Context
	triangles []*fauxgl.Triangle
}

var _ Renderer = &SoftwareRenderer{}

func (r *SoftwareRenderer) Init(width, height int, view bool) error {
	return r.Resize(width, height)
}

func (r *SoftwareRenderer) Resize(width, height int) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("invalid surface size %vx%v", width, height)
	}
	if r.ctx != nil && r.ctx.Width == width && r.ctx.Height == height {
		return nil
	}
	r.ctx = fauxgl.NewContext(width, height)
	r.ctx.ClearColor = fauxgl.Black
	r.ctx.Cull = fauxgl.CullNone
	return nil
}

func (r *SoftwareRenderer) Upload(mesh *stl.Mesh) error {
	n := mesh.NumTriangles()
	tris := make([]*fauxgl.Triangle, 0, n)
	for i := 0; i < n; i++ {
		t := mesh.Triangle(i)
		tris = append(tris, &fauxgl.Triangle{
			V1: fauxgl.Vertex{Position: toVector(t[0])},
			V2: fauxgl.Vertex{Position: toVector(t[1])},
			V3: fauxgl.Vertex{Position: toVector(t[2])},
		})
	}
	r.triangles = tris
	return nil
}

func (r *SoftwareRenderer) Render(projection, modelView mgl32.Mat4) (image.Image, error) {
	if r.ctx == nil {
		return nil, fmt.Errorf("renderer not initialized")
	}
	r.ctx.ClearColorBuffer()
	r.ctx.ClearDepthBuffer()
	r.ctx.Shader = fauxgl.NewSolidColorShader(toMatrix(projection.Mul4(modelView)), fauxgl.White)
	if len(r.triangles) > 0 {
		r.ctx.DrawTriangles(r.triangles)
	}
	return r.ctx.Image(), nil
}

func (r *SoftwareRenderer) Close() {
	r.ctx = nil
	r.triangles = nil
}

func toVector(v mgl32.Vec3) fauxgl.Vector {
	return fauxgl.Vector{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

// toMatrix converts a column-major mgl32 matrix to fauxgl's row fields.
func toMatrix(m mgl32.Mat4) fauxgl.Matrix {
	f := func(row, col int) float64 { return float64(m.At(row, col)) }
	return fauxgl.Matrix{
		X00: f(0, 0), X01: f(0, 1), X02: f(0, 2), X03: f(0, 3),
		X10: f(1, 0), X11: f(1, 1), X12: f(1, 2), X13: f(1, 3),
		X20: f(2, 0), X21: f(2, 1), X22: f(2, 2), X23: f(2, 3),
		X30: f(3, 0), X31: f(3, 1), X32: f(3, 2), X33: f(3, 3),
	}
}
