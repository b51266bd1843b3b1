// Package gpu provides hardware renderer backends for the viewer.
package gpu

import (
	"fmt"
	"image"
	"runtime"
	"strings"
	"unsafe"

	"github.com/gmlewis/stlview/stl"
	"github.com/gmlewis/stlview/viewer"
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// WindowTitle is the title of windows created by OpenGLRenderer.
const WindowTitle = "STL Viewer"

// OpenGLRenderer is a renderer implementation using OpenGL.
type OpenGLRenderer struct {
	Logger *zap.Logger // optional

	window *glfw.Window
	width  int
	height int
	view   bool

	program    uint32
	vao        uint32
	vbo        uint32
	ebo        uint32
	numIndices int32
	mvpUniform int32
	sum        uint64
	uploaded   bool
}

var _ viewer.Renderer = &OpenGLRenderer{}

// Window returns the window backing the GL context, or nil before Init.
func (r *OpenGLRenderer) Window() *glfw.Window {
	return r.window
}

func (r *OpenGLRenderer) Init(width, height int, view bool) error {
	if r.window != nil {
		return r.Resize(width, height)
	}
	r.width = width
	r.height = height
	r.view = view

	err := glfw.Init()
	if err != nil {
		return fmt.Errorf("glfw.Init: %v", err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	if !r.view {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}
	r.window, err = glfw.CreateWindow(width, height, WindowTitle, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("CreateWindow(%v,%v): %v", width, height, err)
	}
	r.window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		r.Close()
		return fmt.Errorf("gl.Init: %v", err)
	}

	version := gl.GoStr(gl.GetString(gl.VERSION))
	logger(r.Logger).Info("OpenGL context created", zap.String("version", version))

	if r.program, err = newProgram(vertexShader, fragmentShader); err != nil {
		r.Close()
		return fmt.Errorf("newProgram: %v", err)
	}
	r.mvpUniform = gl.GetUniformLocation(r.program, gl.Str("mvp\x00"))
	gl.BindFragDataLocation(r.program, 0, gl.Str("outputColor\x00"))

	gl.GenVertexArrays(1, &r.vao)
	gl.GenBuffers(1, &r.vbo)
	gl.GenBuffers(1, &r.ebo)

	// Configure global settings
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Disable(gl.CULL_FACE)
	gl.ClearColor(0.0, 0.0, 0.0, 1.0)

	fbw, fbh := r.window.GetFramebufferSize()
	gl.Viewport(0, 0, int32(fbw), int32(fbh))
	return nil
}

// Resize sets the viewport to the full framebuffer. The window itself is
// sized by the user, so width and height only feed the projection.
func (r *OpenGLRenderer) Resize(width, height int) error {
	if r.window == nil {
		return fmt.Errorf("renderer not initialized")
	}
	r.width = width
	r.height = height
	fbw, fbh := r.window.GetFramebufferSize()
	gl.Viewport(0, 0, int32(fbw), int32(fbh))
	return nil
}

// Upload stores the mesh as an indexed vertex buffer. It is skipped when
// the mesh content matches the last upload.
func (r *OpenGLRenderer) Upload(mesh *stl.Mesh) error {
	if r.window == nil {
		return fmt.Errorf("renderer not initialized")
	}
	sum := mesh.Sum64()
	if r.uploaded && sum == r.sum && int32(3*mesh.NumTriangles()) == r.numIndices {
		return nil
	}

	verts, indices := mesh.Indexed()
	data := make([]float32, 0, 3*len(verts))
	for _, v := range verts {
		data = append(data, v[0], v[1], v[2])
	}

	gl.BindVertexArray(r.vao)

	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, ptr(data), gl.STATIC_DRAW)

	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, r.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(indices)*4, ptr(indices), gl.STATIC_DRAW)

	vertAttrib := uint32(gl.GetAttribLocation(r.program, gl.Str("vert\x00")))
	gl.EnableVertexAttribArray(vertAttrib)
	gl.VertexAttribPointer(vertAttrib, 3, gl.FLOAT, false, 3*4, gl.PtrOffset(0))

	gl.BindVertexArray(0)

	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("upload of %v vertices: GL ERROR: %v", len(verts), e)
	}

	r.numIndices = int32(len(indices))
	r.sum = sum
	r.uploaded = true
	return nil
}

func (r *OpenGLRenderer) Render(projection, modelView mgl32.Mat4) (image.Image, error) {
	if r.window == nil {
		return nil, fmt.Errorf("renderer not initialized")
	}
	if e := gl.GetError(); e != gl.NO_ERROR {
		logger(r.Logger).Warn("GL error before gl.Clear", zap.Uint32("error", e))
	}

	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	gl.UseProgram(r.program)
	mvp := projection.Mul4(modelView)
	gl.UniformMatrix4fv(r.mvpUniform, 1, false, &mvp[0])

	gl.BindVertexArray(r.vao)
	if r.numIndices > 0 {
		gl.DrawElements(gl.TRIANGLES, r.numIndices, gl.UNSIGNED_INT, gl.PtrOffset(0))
	}
	gl.BindVertexArray(0)

	if e := gl.GetError(); e != gl.NO_ERROR {
		return nil, fmt.Errorf("gl.DrawElements(%v): GL ERROR: %v", r.numIndices, e)
	}

	width, height := r.window.GetFramebufferSize()
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	if width > 0 && height > 0 {
		gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(&rgba.Pix[0]))
		flipRows(rgba)
	}

	if e := gl.GetError(); e != gl.NO_ERROR {
		return nil, fmt.Errorf("gl.ReadPixels: GL ERROR: %v", e)
	}

	r.window.SwapBuffers()
	return rgba, nil
}

func (r *OpenGLRenderer) Close() {
	if r.window == nil {
		return
	}
	if r.program != 0 {
		gl.DeleteProgram(r.program)
	}
	if r.vao != 0 {
		gl.DeleteVertexArrays(1, &r.vao)
		gl.DeleteBuffers(1, &r.vbo)
		gl.DeleteBuffers(1, &r.ebo)
	}
	r.window.Destroy()
	glfw.Terminate()
	*r = OpenGLRenderer{Logger: r.Logger}
}

// flipRows converts GL's bottom-up rows to image top-down order.
func flipRows(img *image.RGBA) {
	h := img.Rect.Dy()
	row := make([]uint8, img.Stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bot := img.Pix[(h-1-y)*img.Stride : (h-y)*img.Stride]
		copy(row, top)
		copy(top, bot)
		copy(bot, row)
	}
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func ptr[T any](data []T) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	return gl.Ptr(data)
}

func newProgram(vertexShaderSource, fragmentShaderSource string) (uint32, error) {
	vertexShader, err := compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}

	fragmentShader, err := compileShader(fragmentShaderSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}

	program := gl.CreateProgram()

	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))

		return 0, fmt.Errorf("failed to link program: %v", log)
	}

	gl.DeleteShader(vertexShader)
	gl.DeleteShader(fragmentShader)

	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))

		return 0, fmt.Errorf("failed to compile %v: %v", source, log)
	}

	return shader, nil
}

const vertexShader = "#version 330\nuniform mat4 mvp;\nin vec3 vert;\nvoid main() {\n\tgl_Position = mvp * vec4(vert, 1);\n}\x00"

const fragmentShader = "#version 330\nout vec4 outputColor;\nvoid main() {\n\toutputColor = vec4(1.0);\n}\x00"
