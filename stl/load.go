package stl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

const vertexKeyword = "vertex"

// ErrPartialTriangle is wrapped by a LoadError in strict mode when the
// vertex count is not a multiple of 3.
var ErrPartialTriangle = errors.New("vertex count is not a multiple of 3")

// LoadError is returned when an STL file cannot be opened or parsed.
type LoadError struct {
	Path string // empty when parsing from a reader
	Line int    // 1-based; 0 when the failure is not tied to a line
	Err  error
}

func (e *LoadError) Error() string {
	path := e.Path
	if path == "" {
		path = "<reader>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("error loading STL file %v: line %v: %v", path, e.Line, e.Err)
	}
	return fmt.Sprintf("error loading STL file %v: %v", path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Option configures Load and Parse.
type Option func(*options)

type options struct {
	strict bool
}

// Strict rejects meshes whose vertex count is not a multiple of 3.
func Strict() Option {
	return func(o *options) { o.strict = true }
}

// Load reads the ASCII STL file at path.
// All failures are reported as *LoadError.
func Load(path string, opts ...Option) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	m, err := Parse(f, opts...)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	return m, nil
}

// Parse reads an ASCII STL stream. Only lines whose first token is
// "vertex" contribute; every other line is ignored.
func Parse(r io.Reader, opts ...Option) (*Mesh, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := &Mesh{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || fields[0] != vertexKeyword {
			continue
		}
		v, err := parseVertex(fields[1:])
		if err != nil {
			return nil, &LoadError{Line: lineNum, Err: err}
		}
		m.Vertices = append(m.Vertices, v)
	}
	if err := sc.Err(); err != nil {
		return nil, &LoadError{Line: lineNum, Err: err}
	}

	if o.strict && len(m.Vertices)%3 != 0 {
		return nil, &LoadError{Err: fmt.Errorf("%w: got %v", ErrPartialTriangle, len(m.Vertices))}
	}
	return m, nil
}

func parseVertex(coords []string) (mgl32.Vec3, error) {
	var v mgl32.Vec3
	if len(coords) != 3 {
		return v, fmt.Errorf("want 3 vertex coordinates, got %v", len(coords))
	}
	for i, s := range coords {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return v, fmt.Errorf("coordinate %v: %w", i+1, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}
