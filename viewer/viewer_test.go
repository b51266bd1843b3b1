package viewer

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/gmlewis/stlview/stl"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const triangleSTL = `solid tri
facet normal 0 0 1
  outer loop
    vertex 0 0 0
    vertex 1 0 0
    vertex 0 1 0
  endloop
endfacet
endsolid tri
`

func writeSTL(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func newTestViewer(t *testing.T, opts ...Option) *Viewer {
	t.Helper()
	opts = append([]Option{WithSize(100, 100), WithLogger(zaptest.NewLogger(t))}, opts...)
	v, err := New(&SoftwareRenderer{}, opts...)
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

func litPixels(img image.Image) int {
	var n int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r > 0 {
				n++
			}
		}
	}
	return n
}

func TestLoadTranslateScenario(t *testing.T) {
	v := newTestViewer(t)
	path := writeSTL(t, "tri.stl", triangleSTL)

	require.NoError(t, v.LoadMesh(path))
	want := []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	assert.Equal(t, want, v.Mesh().Vertices)
	assert.Equal(t, path, v.Path())

	v.TranslateView(X)
	assert.Equal(t, mgl32.Vec2{1, 0}, v.View().Offset)
	assert.Equal(t, want, v.Mesh().Vertices)
	assert.True(t, v.NeedsRedraw())
}

func TestLoadFailureKeepsMesh(t *testing.T) {
	v := newTestViewer(t)
	path := writeSTL(t, "tri.stl", triangleSTL)
	require.NoError(t, v.LoadMesh(path))
	before := v.Mesh()

	t.Run("missing file", func(t *testing.T) {
		err := v.LoadMesh(filepath.Join(t.TempDir(), "nope.stl"))
		var le *stl.LoadError
		require.ErrorAs(t, err, &le)
		assert.Contains(t, err.Error(), "nope.stl")
		assert.Same(t, before, v.Mesh())
		assert.Equal(t, path, v.Path())
	})

	t.Run("bad vertex line", func(t *testing.T) {
		bad := writeSTL(t, "bad.stl", "solid x\nvertex 1 2\nendsolid x\n")
		err := v.LoadMesh(bad)
		var le *stl.LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, 2, le.Line)
		assert.Same(t, before, v.Mesh())
	})

	img, err := v.Render()
	require.NoError(t, err)
	assert.Positive(t, litPixels(img), "previous mesh should still render")
}

func TestPartialTriangleLoad(t *testing.T) {
	contents := "vertex 0 0 0\nvertex 1 0 0\nvertex 0 1 0\nvertex 1 1 0\n"

	v := newTestViewer(t)
	require.NoError(t, v.LoadMesh(writeSTL(t, "partial.stl", contents)))
	assert.Equal(t, 4, v.Mesh().Len())
	_, err := v.Render()
	require.NoError(t, err)

	strict := newTestViewer(t, WithStrict(true))
	err = strict.LoadMesh(writeSTL(t, "partial.stl", contents))
	assert.ErrorIs(t, err, stl.ErrPartialTriangle)
	assert.Zero(t, strict.Mesh().Len())
}

func TestUnloadMesh(t *testing.T) {
	v := newTestViewer(t)
	v.UnloadMesh()
	assert.Zero(t, v.Mesh().Len())

	require.NoError(t, v.LoadMesh(writeSTL(t, "tri.stl", triangleSTL)))
	_, err := v.Render()
	require.NoError(t, err)
	assert.False(t, v.NeedsRedraw())

	v.UnloadMesh()
	assert.Zero(t, v.Mesh().Len())
	assert.True(t, v.NeedsRedraw())

	img, err := v.Render()
	require.NoError(t, err)
	assert.Zero(t, litPixels(img))
}

func TestRenderFrames(t *testing.T) {
	v := newTestViewer(t)

	img, err := v.Render()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())
	assert.Zero(t, litPixels(img), "empty scene renders only background")

	require.NoError(t, v.LoadMesh(writeSTL(t, "tri.stl", triangleSTL)))
	img, err = v.Render()
	require.NoError(t, err)
	lit := litPixels(img)
	assert.Positive(t, lit)
	assert.Less(t, lit, 100*100/2)

	// At distance 6 the frustum half-width is about 2.5, so an offset of
	// 3 moves the unit triangle completely off screen.
	for i := 0; i < 3; i++ {
		v.TranslateView(X)
	}
	img, err = v.Render()
	require.NoError(t, err)
	assert.Zero(t, litPixels(img))
}

func TestResize(t *testing.T) {
	v := newTestViewer(t)
	_, err := v.Render()
	require.NoError(t, err)

	require.NoError(t, v.Resize(64, 0))
	w, h := v.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 1, h)
	assert.True(t, v.NeedsRedraw())

	img, err := v.Render()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 1), img.Bounds())
}

func TestReload(t *testing.T) {
	v := newTestViewer(t)
	assert.Error(t, v.Reload())

	path := writeSTL(t, "tri.stl", triangleSTL)
	require.NoError(t, v.LoadMesh(path))
	require.NoError(t, os.WriteFile(path, []byte("vertex 2 2 2\nvertex 3 2 2\nvertex 2 3 2\n"), 0644))
	require.NoError(t, v.Reload())
	assert.Equal(t, mgl32.Vec3{2, 2, 2}, v.Mesh().Vertices[0])
}

type failingRenderer struct {
	SoftwareRenderer
	failUpload bool
}

func (r *failingRenderer) Upload(mesh *stl.Mesh) error {
	if r.failUpload {
		return errors.New("out of buffer memory")
	}
	return r.SoftwareRenderer.Upload(mesh)
}

func TestUploadFailureKeepsMesh(t *testing.T) {
	r := &failingRenderer{}
	v, err := New(r, WithSize(32, 32))
	require.NoError(t, err)
	defer v.Close()

	path := writeSTL(t, "tri.stl", triangleSTL)
	require.NoError(t, v.LoadMesh(path))
	before := v.Mesh()

	r.failUpload = true
	err = v.LoadMesh(writeSTL(t, "other.stl", "vertex 5 5 5\nvertex 6 5 5\nvertex 5 6 5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of buffer memory")
	assert.Same(t, before, v.Mesh())
	assert.Equal(t, path, v.Path())
}

func TestNewClampsSize(t *testing.T) {
	v, err := New(&SoftwareRenderer{}, WithSize(0, -5))
	require.NoError(t, err)
	defer v.Close()

	w, h := v.Size()
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
}
