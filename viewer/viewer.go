// Package viewer holds the STL viewer state and the commands a UI shell
// invokes on it: load, translate, unload and render.
package viewer

import (
	"fmt"
	"image"

	"github.com/gmlewis/stlview/stl"
	"go.uber.org/zap"
)

// Default surface size.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// Viewer owns the current mesh, the view transform and the renderer.
// It is not safe for concurrent use; a shell calls it from its event
// thread only.
type Viewer struct {
	logger   *zap.Logger
	renderer Renderer
	strict   bool
	width    int
	height   int
	visible  bool

	mesh  *stl.Mesh
	path  string
	view  ViewTransform
	dirty bool
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Viewer) { v.logger = logger }
}

// WithSize sets the initial surface size.
func WithSize(width, height int) Option {
	return func(v *Viewer) { v.width, v.height = width, height }
}

// WithVisible asks the renderer for a visible window when it has one.
func WithVisible(visible bool) Option {
	return func(v *Viewer) { v.visible = visible }
}

// WithStrict rejects meshes with a partial trailing triangle on load.
func WithStrict(strict bool) Option {
	return func(v *Viewer) { v.strict = strict }
}

// New initializes renderer and returns a Viewer with an empty mesh.
// The Viewer takes ownership of renderer; Close releases it.
func New(renderer Renderer, opts ...Option) (*Viewer, error) {
	v := &Viewer{
		logger:   zap.NewNop(),
		renderer: renderer,
		width:    DefaultWidth,
		height:   DefaultHeight,
		mesh:     &stl.Mesh{},
		view:     NewViewTransform(),
		dirty:    true,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.width, v.height = clampSize(v.width, v.height)

	if err := renderer.Init(v.width, v.height, v.visible); err != nil {
		return nil, fmt.Errorf("Init(%v,%v): %w", v.width, v.height, err)
	}
	if err := renderer.Upload(v.mesh); err != nil {
		renderer.Close()
		return nil, fmt.Errorf("Upload: %w", err)
	}
	return v, nil
}

// Close releases the renderer.
func (v *Viewer) Close() {
	if v.renderer != nil {
		v.renderer.Close()
		v.renderer = nil
	}
}

// LoadMesh replaces the current mesh with the one at path.
// Parse failures are returned as *stl.LoadError. On any failure the
// previous mesh and path are kept.
func (v *Viewer) LoadMesh(path string) error {
	var opts []stl.Option
	if v.strict {
		opts = append(opts, stl.Strict())
	}
	mesh, err := stl.Load(path, opts...)
	if err != nil {
		return err
	}
	if err := v.renderer.Upload(mesh); err != nil {
		return fmt.Errorf("Upload(%v): %w", path, err)
	}

	v.mesh = mesh
	v.path = path
	v.dirty = true
	v.logger.Info("mesh loaded",
		zap.String("path", path),
		zap.Int("vertices", mesh.Len()),
		zap.Int("triangles", mesh.NumTriangles()),
		zap.Uint64("sum", mesh.Sum64()),
	)
	if mesh.Len()%3 != 0 {
		v.logger.Warn("partial trailing triangle", zap.String("path", path), zap.Int("vertices", mesh.Len()))
	}
	return nil
}

// Reload loads the most recently loaded path again.
func (v *Viewer) Reload() error {
	if v.path == "" {
		return fmt.Errorf("no mesh has been loaded")
	}
	return v.LoadMesh(v.path)
}

// SetMesh replaces the current mesh without touching the file system.
// The loaded path is kept.
func (v *Viewer) SetMesh(mesh *stl.Mesh) error {
	if mesh == nil {
		mesh = &stl.Mesh{}
	}
	if err := v.renderer.Upload(mesh); err != nil {
		return fmt.Errorf("Upload: %w", err)
	}
	v.mesh = mesh
	v.dirty = true
	return nil
}

// UnloadMesh replaces the current mesh with an empty one.
func (v *Viewer) UnloadMesh() {
	empty := &stl.Mesh{}
	if err := v.renderer.Upload(empty); err != nil {
		v.logger.Error("Upload of empty mesh failed", zap.Error(err))
	}
	v.mesh = empty
	v.dirty = true
	v.logger.Debug("mesh unloaded")
}

// TranslateView moves the view by Step along axis and requests a redraw.
// An unknown axis changes nothing but still requests a redraw.
func (v *Viewer) TranslateView(axis Axis) {
	if !v.view.Translate(axis) {
		v.logger.Warn("ignoring translation along unknown axis", zap.Stringer("axis", axis))
	}
	v.dirty = true
	v.logger.Debug("view translated",
		zap.Stringer("axis", axis),
		zap.Float32("x", v.view.Offset[0]),
		zap.Float32("y", v.view.Offset[1]),
	)
}

// Resize sets the surface size used for the viewport and projection.
func (v *Viewer) Resize(width, height int) error {
	width, height = clampSize(width, height)
	if width == v.width && height == v.height {
		return nil
	}
	if err := v.renderer.Resize(width, height); err != nil {
		return fmt.Errorf("Resize(%v,%v): %w", width, height, err)
	}
	v.width, v.height = width, height
	v.dirty = true
	return nil
}

// Render draws one frame of the current mesh and clears the redraw request.
// The returned image may be reused by the next call.
func (v *Viewer) Render() (image.Image, error) {
	img, err := v.renderer.Render(Projection(v.width, v.height), v.view.ModelView())
	if err != nil {
		return nil, fmt.Errorf("Render: %w", err)
	}
	v.dirty = false
	return img, nil
}

// Invalidate requests a redraw.
func (v *Viewer) Invalidate() { v.dirty = true }

// NeedsRedraw reports whether a command changed the scene since the last Render.
func (v *Viewer) NeedsRedraw() bool { return v.dirty }

// Mesh returns the current mesh. Callers must not modify it.
func (v *Viewer) Mesh() *stl.Mesh { return v.mesh }

// View returns a copy of the current view transform.
func (v *Viewer) View() ViewTransform { return v.view }

// Path returns the path of the last successfully loaded mesh.
func (v *Viewer) Path() string { return v.path }

// Size returns the current surface size.
func (v *Viewer) Size() (width, height int) { return v.width, v.height }

func clampSize(width, height int) (int, int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}
