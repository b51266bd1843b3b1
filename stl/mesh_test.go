package stl

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func square() *Mesh {
	return &Mesh{Vertices: []mgl32.Vec3{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0},
		{0, 0, 0}, {1, 1, 0}, {0, 1, 0},
	}}
}

func TestIndexed(t *testing.T) {
	verts, indices := square().Indexed()
	assert.Equal(t, []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}, verts)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, indices)
}

func TestIndexedDropsPartialTriangle(t *testing.T) {
	m := square()
	m.Vertices = append(m.Vertices, mgl32.Vec3{7, 7, 7})

	verts, indices := m.Indexed()
	assert.Len(t, verts, 4)
	assert.Len(t, indices, 6)
}

func TestMBB(t *testing.T) {
	m := &Mesh{Vertices: []mgl32.Vec3{{1, -2, 3}, {-1, 5, 0}, {0, 0, 9}}}
	min, max := m.MBB()
	assert.Equal(t, mgl32.Vec3{-1, -2, 0}, min)
	assert.Equal(t, mgl32.Vec3{1, 5, 9}, max)

	min, max = (&Mesh{}).MBB()
	assert.Equal(t, mgl32.Vec3{}, min)
	assert.Equal(t, mgl32.Vec3{}, max)
}

func TestSum64(t *testing.T) {
	a, b := square(), square()
	assert.Equal(t, a.Sum64(), b.Sum64())

	b.Vertices[4][2] = 0.5
	assert.NotEqual(t, a.Sum64(), b.Sum64())
}

func TestFlatten(t *testing.T) {
	m := &Mesh{Vertices: []mgl32.Vec3{{1, 2, 3}, {4, 5, 6}}}
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, m.Flatten())
	assert.Empty(t, (*Mesh)(nil).Flatten())
}

func TestSimplifyOutOfRangeCopies(t *testing.T) {
	m := square()
	m.Vertices = append(m.Vertices, mgl32.Vec3{9, 9, 9})

	out := m.Simplify(1)
	assert.Equal(t, square().Vertices, out.Vertices)

	out.Vertices[0] = mgl32.Vec3{42, 42, 42}
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, m.Vertices[0])
}
