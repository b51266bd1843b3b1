package binvox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gmlewis/stldice/v4/binvox"
	"github.com/gmlewis/stlview/stl"
	"github.com/go-gl/mathgl/mgl32"
)

// unitCube returns the 12 triangles of the [0,1]³ cube.
func unitCube() *stl.Mesh {
	c := func(x, y, z float32) mgl32.Vec3 { return mgl32.Vec3{x, y, z} }
	quads := [][4]mgl32.Vec3{
		{c(0, 0, 0), c(1, 0, 0), c(1, 1, 0), c(0, 1, 0)}, // bottom
		{c(0, 0, 1), c(1, 0, 1), c(1, 1, 1), c(0, 1, 1)}, // top
		{c(0, 0, 0), c(1, 0, 0), c(1, 0, 1), c(0, 0, 1)}, // front
		{c(0, 1, 0), c(1, 1, 0), c(1, 1, 1), c(0, 1, 1)}, // back
		{c(0, 0, 0), c(0, 1, 0), c(0, 1, 1), c(0, 0, 1)}, // left
		{c(1, 0, 0), c(1, 1, 0), c(1, 1, 1), c(1, 0, 1)}, // right
	}
	m := &stl.Mesh{}
	for _, q := range quads {
		m.Vertices = append(m.Vertices, q[0], q[1], q[2], q[0], q[2], q[3])
	}
	return m
}

func TestWriteCubeSurface(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "cube.binvox")
	if err := Write(filename, unitCube(), 3); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	b, err := binvox.Read(filename, 0, 0, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// Every voxel but the center one touches the surface.
	count := len(b.WhiteVoxels)
	expected := 26
	if count != expected {
		t.Errorf("Expected %v voxels, got %v", expected, count)
	}

	if b.NX != 3 || b.NY != 3 || b.NZ != 3 {
		t.Errorf("Expected dimensions 3x3x3, got %vx%vx%v", b.NX, b.NY, b.NZ)
	}
}

func TestWriteFlatTriangle(t *testing.T) {
	m := &stl.Mesh{Vertices: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}}
	filename := filepath.Join(t.TempDir(), "tri.binvox")
	if err := Write(filename, m, 4); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	b, err := binvox.Read(filename, 0, 0, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if count := len(b.WhiteVoxels); count == 0 || count >= 4*4 {
		t.Errorf("Expected between 1 and 15 voxels in the z=0 layer, got %v", count)
	}
}

func TestWriteErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name       string
		mesh       *stl.Mesh
		resolution int
	}{
		{"empty mesh", &stl.Mesh{}, 8},
		{"partial triangle only", &stl.Mesh{Vertices: []mgl32.Vec3{{0, 0, 0}, {1, 1, 1}}}, 8},
		{"zero resolution", unitCube(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := filepath.Join(dir, tt.name+".binvox")
			if err := Write(filename, tt.mesh, tt.resolution); err == nil {
				t.Fatal("Write succeeded, want error")
			}
			if _, err := os.Stat(filename); !os.IsNotExist(err) {
				t.Errorf("Write left %v behind", filename)
			}
		})
	}
}
