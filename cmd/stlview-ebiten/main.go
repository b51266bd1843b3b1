// stlview-ebiten displays an ASCII STL file with the software renderer
// in an ebiten window.
//
// Keys: X and Y translate the view, U unloads the mesh, R reloads it,
// Q quits. A dropped STL file replaces the mesh.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"io/fs"
	"os"

	"github.com/gmlewis/stlview/config"
	"github.com/gmlewis/stlview/stl"
	"github.com/gmlewis/stlview/viewer"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "", "YAML configuration file")
	strict     = flag.Bool("strict", false, "Reject meshes whose vertex count is not a multiple of 3")
)

var errQuit = errors.New("quit")

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "stlview-ebiten: %v\n", err)
			os.Exit(2)
		}
	}
	if *strict {
		cfg.Strict = true
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stlview-ebiten: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger, flag.Arg(0)); err != nil && err != errQuit {
		logger.Error("stlview-ebiten failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger, path string) error {
	v, err := viewer.New(&viewer.SoftwareRenderer{},
		viewer.WithLogger(logger),
		viewer.WithSize(cfg.Width, cfg.Height),
		viewer.WithStrict(cfg.Strict),
	)
	if err != nil {
		return err
	}
	defer v.Close()

	g := &game{v: v, logger: logger, title: cfg.Title, strict: cfg.Strict}
	if path != "" {
		g.report(v.LoadMesh(path))
	} else {
		g.setTitle("")
	}

	ebiten.SetWindowSize(cfg.Width, cfg.Height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(30)
	return ebiten.RunGame(g)
}

// game adapts the viewer to ebiten. The frame is re-rendered only when
// the viewer reports a pending redraw; otherwise the last frame is reused.
type game struct {
	v      *viewer.Viewer
	logger *zap.Logger
	title  string
	strict bool
	frame  *ebiten.Image
}

func (g *game) Update() error {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyX):
		g.v.TranslateView(viewer.X)
	case inpututil.IsKeyJustPressed(ebiten.KeyY):
		g.v.TranslateView(viewer.Y)
	case inpututil.IsKeyJustPressed(ebiten.KeyU):
		g.v.UnloadMesh()
		g.setTitle("unloaded")
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		g.report(g.v.Reload())
	case inpututil.IsKeyJustPressed(ebiten.KeyQ):
		return errQuit
	}

	if files := ebiten.DroppedFiles(); files != nil {
		g.loadDropped(files)
	}
	return nil
}

// loadDropped loads the first regular file of a drop. Dropped files
// have no path on disk, so Reload keeps using the last loaded path.
func (g *game) loadDropped(files fs.FS) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		g.logger.Error("reading dropped files", zap.Error(err))
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		mesh, err := parseDropped(files, e.Name(), g.strict)
		if err == nil {
			err = g.v.SetMesh(mesh)
		}
		g.report(err)
		if err == nil {
			g.logger.Info("dropped mesh loaded", zap.String("name", e.Name()), zap.Int("vertices", mesh.Len()))
		}
		return
	}
}

func parseDropped(files fs.FS, name string, strict bool) (*stl.Mesh, error) {
	f, err := files.Open(name)
	if err != nil {
		return nil, &stl.LoadError{Path: name, Err: err}
	}
	defer f.Close()

	var opts []stl.Option
	if strict {
		opts = append(opts, stl.Strict())
	}
	mesh, err := stl.Parse(f, opts...)
	var le *stl.LoadError
	if errors.As(err, &le) {
		le.Path = name
	}
	return mesh, err
}

func (g *game) report(err error) {
	if err != nil {
		g.logger.Error("load failed", zap.Error(err))
		g.setTitle(err.Error())
		return
	}
	g.setTitle("")
}

func (g *game) setTitle(status string) {
	title := g.title
	if p := g.v.Path(); p != "" {
		title += " - " + p
	}
	if status != "" {
		title += " - " + status
	}
	ebiten.SetWindowTitle(title)
}

func (g *game) Draw(screen *ebiten.Image) {
	if g.v.NeedsRedraw() || g.frame == nil {
		img, err := g.v.Render()
		if err != nil {
			g.logger.Error("render failed", zap.Error(err))
			return
		}
		g.setFrame(img)
	}
	screen.DrawImage(g.frame, nil)
}

func (g *game) setFrame(img image.Image) {
	if g.frame != nil {
		g.frame.Deallocate()
	}
	g.frame = ebiten.NewImageFromImage(img)
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if err := g.v.Resize(outsideWidth, outsideHeight); err != nil {
		g.logger.Error("resize failed", zap.Error(err))
	}
	return g.v.Size()
}
