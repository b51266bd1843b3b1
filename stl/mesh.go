// Package stl loads ASCII STL triangle meshes.
package stl

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/fogleman/simplify"
	"github.com/go-gl/mathgl/mgl32"
)

// Mesh is an ordered stream of vertices. Every 3 consecutive vertices
// form one triangle. Vertices are not shared between triangles.
//
// The loader does not require len(Vertices) to be a multiple of 3 unless
// Strict is used, so a trailing partial triangle may be present.
type Mesh struct {
	Vertices []mgl32.Vec3
}

// Len returns the number of vertices in the mesh.
func (m *Mesh) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices)
}

// NumTriangles returns the number of complete triangles in the mesh.
func (m *Mesh) NumTriangles() int {
	return m.Len() / 3
}

// Triangle returns the n-th complete triangle (0-based).
func (m *Mesh) Triangle(n int) [3]mgl32.Vec3 {
	return [3]mgl32.Vec3{m.Vertices[3*n], m.Vertices[3*n+1], m.Vertices[3*n+2]}
}

// MBB returns the minimum bounding box of all vertices.
// An empty mesh has a zero MBB.
func (m *Mesh) MBB() (min, max mgl32.Vec3) {
	if m.Len() == 0 {
		return min, max
	}
	min, max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for i := 0; i < 3; i++ {
			if v[i] < min[i] {
				min[i] = v[i]
			}
			if v[i] > max[i] {
				max[i] = v[i]
			}
		}
	}
	return min, max
}

// Sum64 returns the xxhash of the vertex stream.
func (m *Mesh) Sum64() uint64 {
	d := xxhash.New()
	var buf [12]byte
	for _, v := range m.verts() {
		binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(v[0]))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(v[1]))
		binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(v[2]))
		d.Write(buf[:])
	}
	return d.Sum64()
}

// Flatten returns the vertices as a packed x,y,z float32 stream.
func (m *Mesh) Flatten() []float32 {
	out := make([]float32, 0, 3*m.Len())
	for _, v := range m.verts() {
		out = append(out, v[0], v[1], v[2])
	}
	return out
}

// Indexed de-duplicates the vertices of all complete triangles and
// returns the unique vertices plus one index per triangle corner.
// A trailing partial triangle is not part of the result.
func (m *Mesh) Indexed() (verts []mgl32.Vec3, indices []uint32) {
	n := 3 * m.NumTriangles()
	seen := make(map[mgl32.Vec3]uint32, n)
	indices = make([]uint32, 0, n)
	for _, v := range m.verts()[:n] {
		idx, ok := seen[v]
		if !ok {
			idx = uint32(len(verts))
			verts = append(verts, v)
			seen[v] = idx
		}
		indices = append(indices, idx)
	}
	return verts, indices
}

// Simplify returns a new mesh reduced to approximately factor times the
// number of triangles (0 < factor < 1). A factor outside that range, or a
// mesh without complete triangles, returns a copy of the complete triangles.
func (m *Mesh) Simplify(factor float64) *Mesh {
	n := m.NumTriangles()
	if factor <= 0 || factor >= 1 || n == 0 {
		return &Mesh{Vertices: append([]mgl32.Vec3(nil), m.verts()[:3*n]...)}
	}

	tris := make([]*simplify.Triangle, 0, n)
	for i := 0; i < n; i++ {
		t := m.Triangle(i)
		tris = append(tris, simplify.NewTriangle(toVector(t[0]), toVector(t[1]), toVector(t[2])))
	}
	reduced := simplify.NewMesh(tris).Simplify(factor)

	out := &Mesh{Vertices: make([]mgl32.Vec3, 0, 3*len(reduced.Triangles))}
	for _, t := range reduced.Triangles {
		out.Vertices = append(out.Vertices, fromVector(t.V1), fromVector(t.V2), fromVector(t.V3))
	}
	return out
}

func (m *Mesh) verts() []mgl32.Vec3 {
	if m == nil {
		return nil
	}
	return m.Vertices
}

func toVector(v mgl32.Vec3) simplify.Vector {
	return simplify.Vector{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

func fromVector(v simplify.Vector) mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}
