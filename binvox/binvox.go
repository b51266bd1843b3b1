// Package binvox voxelizes the surface of a mesh and writes binvox files.
package binvox

import (
	"fmt"
	"math"

	"github.com/gmlewis/stldice/v4/binvox"
	"github.com/go-gl/mathgl/mgl32"
)

// Mesh represents a triangle mesh that can be voxelized.
type Mesh interface {
	NumTriangles() int
	Triangle(n int) [3]mgl32.Vec3
	MBB() (min, max mgl32.Vec3)
}

// Write voxelizes the surface of m onto a resolution³ grid spanning the
// longest side of its MBB and writes the result to filename.
func Write(filename string, m Mesh, resolution int) error {
	if resolution < 1 {
		return fmt.Errorf("resolution must be positive, got %v", resolution)
	}
	if m.NumTriangles() == 0 {
		return fmt.Errorf("mesh has no triangles")
	}

	g := newGrid(m, resolution)
	for i := 0; i < m.NumTriangles(); i++ {
		g.addTriangle(m.Triangle(i))
	}

	b := binvox.New(resolution, resolution, resolution,
		g.min[0], g.min[1], g.min[2], g.scale, false)
	for k := range g.voxels {
		b.Add(k[0], k[1], k[2])
	}

	if err := b.Write(filename, 0, 0, 0, b.NX, b.NY, b.NZ); err != nil {
		return fmt.Errorf("Write: %v", err)
	}
	return nil
}

type key [3]int

// grid maps model coordinates to voxel coordinates.
type grid struct {
	min    [3]float64
	scale  float64 // length of the longest MBB side in model units
	size   float64 // edge length of one voxel
	n      int
	voxels map[key]struct{}
}

func newGrid(m Mesh, n int) *grid {
	lo, hi := m.MBB()
	g := &grid{n: n, voxels: map[key]struct{}{}}
	for i := 0; i < 3; i++ {
		g.min[i] = float64(lo[i])
		g.scale = math.Max(g.scale, float64(hi[i]-lo[i]))
	}
	if g.scale == 0 {
		g.scale = 1
	}
	g.size = g.scale / float64(n)
	return g
}

func (g *grid) voxel(p [3]float64) key {
	var k key
	for i := 0; i < 3; i++ {
		v := int(math.Floor((p[i] - g.min[i]) / g.size))
		if v < 0 {
			v = 0
		}
		if v >= g.n {
			v = g.n - 1
		}
		k[i] = v
	}
	return k
}

// addTriangle marks every voxel touched by a barycentric sampling of t
// at half-voxel spacing.
func (g *grid) addTriangle(t [3]mgl32.Vec3) {
	a, b, c := vec(t[0]), vec(t[1]), vec(t[2])
	longest := math.Max(dist(a, b), math.Max(dist(b, c), dist(c, a)))
	steps := int(math.Ceil(longest/(0.5*g.size))) + 1

	for i := 0; i <= steps; i++ {
		for j := 0; i+j <= steps; j++ {
			u := float64(i) / float64(steps)
			v := float64(j) / float64(steps)
			var p [3]float64
			for k := 0; k < 3; k++ {
				p[k] = a[k] + u*(b[k]-a[k]) + v*(c[k]-a[k])
			}
			g.voxels[g.voxel(p)] = struct{}{}
		}
	}
}

func vec(v mgl32.Vec3) [3]float64 {
	return [3]float64{float64(v[0]), float64(v[1]), float64(v[2])}
}

func dist(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
