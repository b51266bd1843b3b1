// stlview displays an ASCII STL file.
//
// Usage:
//
//	stlview [flags] [file.stl]
//
// Keys: X and Y translate the view, U unloads the mesh, R reloads it,
// Q or Esc quits. Dropping an STL file on the window loads it.
//
// With -o the first frame is written to a PNG file instead, and with
// -binvox the mesh surface is voxelized; neither opens a visible window.
package main

import (
	"flag"
	"fmt"
	"image/png"
	"os"

	"github.com/gmlewis/stlview/binvox"
	"github.com/gmlewis/stlview/config"
	"github.com/gmlewis/stlview/gpu"
	"github.com/gmlewis/stlview/stl"
	"github.com/gmlewis/stlview/viewer"
	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "", "YAML configuration file")
	renderer   = flag.String("renderer", "", "Renderer backend: opengl, webgpu or software (overrides config)")
	width      = flag.Int("width", 0, "Window width (overrides config)")
	height     = flag.Int("height", 0, "Window height (overrides config)")
	strict     = flag.Bool("strict", false, "Reject meshes whose vertex count is not a multiple of 3")
	output     = flag.String("o", "", "Render one frame to this PNG file and exit")
	binvoxOut  = flag.String("binvox", "", "Voxelize the mesh surface to this binvox file and exit")
	resolution = flag.Int("res", 128, "Voxel grid resolution for -binvox")
	simplify   = flag.Float64("simplify", 0, "Reduce the mesh to this fraction of its triangles (0 < f < 1)")
	tx         = flag.Int("tx", 0, "Number of X translation steps applied before -o")
	ty         = flag.Int("ty", 0, "Number of Y translation steps applied before -o")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stlview: %v\n", err)
		os.Exit(2)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stlview: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger, flag.Arg(0)); err != nil {
		logger.Error("stlview failed", zap.Error(err))
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}
	if *renderer != "" {
		cfg.Renderer = *renderer
	}
	if *width > 0 {
		cfg.Width = *width
	}
	if *height > 0 {
		cfg.Height = *height
	}
	if *strict {
		cfg.Strict = true
	}
	return cfg, cfg.Validate()
}

func run(cfg *config.Config, logger *zap.Logger, path string) error {
	if *binvoxOut != "" {
		return voxelize(cfg, logger, path)
	}

	headless := *output != ""
	if !headless && cfg.Renderer != config.RendererOpenGL {
		return fmt.Errorf("interactive mode needs the %v renderer, got %v (use -o, or stlview-ebiten)", config.RendererOpenGL, cfg.Renderer)
	}

	r := newRenderer(cfg, logger)
	v, err := viewer.New(r,
		viewer.WithLogger(logger),
		viewer.WithSize(cfg.Width, cfg.Height),
		viewer.WithVisible(!headless),
		viewer.WithStrict(cfg.Strict),
	)
	if err != nil {
		return err
	}
	defer v.Close()

	if path != "" {
		if err := load(v, path); err != nil {
			if headless {
				return err
			}
			// The window still opens so another file can be dropped on it.
			logger.Error("load failed", zap.Error(err))
		}
	}

	if headless {
		return snapshot(v, logger)
	}
	return interact(v, r.(*gpu.OpenGLRenderer).Window(), cfg, logger)
}

func newRenderer(cfg *config.Config, logger *zap.Logger) viewer.Renderer {
	switch cfg.Renderer {
	case config.RendererWebGPU:
		return &gpu.WebGPURenderer{Logger: logger}
	case config.RendererSoftware:
		return &viewer.SoftwareRenderer{}
	}
	return &gpu.OpenGLRenderer{Logger: logger}
}

// load loads path into v, simplifying it first when requested.
func load(v *viewer.Viewer, path string) error {
	if err := v.LoadMesh(path); err != nil {
		return err
	}
	if *simplify <= 0 || *simplify >= 1 {
		return nil
	}
	return v.SetMesh(v.Mesh().Simplify(*simplify))
}

func snapshot(v *viewer.Viewer, logger *zap.Logger) error {
	for i := 0; i < *tx; i++ {
		v.TranslateView(viewer.X)
	}
	for i := 0; i < *ty; i++ {
		v.TranslateView(viewer.Y)
	}

	img, err := v.Render()
	if err != nil {
		return err
	}

	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("png.Encode(%v): %w", *output, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("frame written", zap.String("path", *output))
	return nil
}

func voxelize(cfg *config.Config, logger *zap.Logger, path string) error {
	if path == "" {
		return fmt.Errorf("-binvox needs an STL file")
	}
	var opts []stl.Option
	if cfg.Strict {
		opts = append(opts, stl.Strict())
	}
	mesh, err := stl.Load(path, opts...)
	if err != nil {
		return err
	}
	if *simplify > 0 && *simplify < 1 {
		mesh = mesh.Simplify(*simplify)
	}
	if err := binvox.Write(*binvoxOut, mesh, *resolution); err != nil {
		return err
	}
	logger.Info("binvox written", zap.String("path", *binvoxOut), zap.Int("resolution", *resolution))
	return nil
}

// interact runs the invalidation-driven event loop: it sleeps in
// glfw.WaitEvents and renders only when a command asked for it.
func interact(v *viewer.Viewer, win *glfw.Window, cfg *config.Config, logger *zap.Logger) error {
	setTitle := func(status string) {
		title := cfg.Title
		if p := v.Path(); p != "" {
			title += " - " + p
		}
		if status != "" {
			title += " - " + status
		}
		win.SetTitle(title)
	}
	reportLoad := func(err error) {
		if err != nil {
			logger.Error("load failed", zap.Error(err))
			setTitle(err.Error())
			return
		}
		setTitle("")
	}
	setTitle("")

	win.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyX:
			v.TranslateView(viewer.X)
		case glfw.KeyY:
			v.TranslateView(viewer.Y)
		case glfw.KeyU:
			v.UnloadMesh()
			setTitle("unloaded")
		case glfw.KeyR:
			reportLoad(v.Reload())
		case glfw.KeyQ, glfw.KeyEscape:
			w.SetShouldClose(true)
		}
	})
	win.SetDropCallback(func(w *glfw.Window, names []string) {
		if len(names) > 0 {
			reportLoad(load(v, names[0]))
		}
	})
	win.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		if err := v.Resize(width, height); err != nil {
			logger.Error("resize failed", zap.Error(err))
		}
	})
	win.SetRefreshCallback(func(w *glfw.Window) {
		v.Invalidate()
	})

	fbw, fbh := win.GetFramebufferSize()
	if err := v.Resize(fbw, fbh); err != nil {
		return err
	}

	for !win.ShouldClose() {
		if v.NeedsRedraw() {
			if _, err := v.Render(); err != nil {
				return err
			}
		}
		glfw.WaitEvents()
	}
	return nil
}
