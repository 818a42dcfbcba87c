// Package export serializes meshes to STL and OBJ and reads them back.
//
// STL stores single-precision coordinates, so a float64 mesh written to
// STL and read back matches the original only to float32 precision.
// Facet normals are computed from the triangle geometry, never taken from
// the mesh's vertex normals, so a mesh read from STL writes back the same
// facets it was read from. STL has no shared vertices: ReadSTL returns
// three vertices per facet; use kernel.Weld to recover an indexed mesh.
//
// OBJ stores coordinates in shortest round-trip decimal form, so an OBJ
// round trip is exact.
package export

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/qutlas/cadmium/pkg/kernel"
)

// Format selects an output encoding.
type Format int

const (
	FormatSTL Format = iota
	FormatBinarySTL
	FormatOBJ
)

func (f Format) String() string {
	switch f {
	case FormatSTL:
		return "stl"
	case FormatBinarySTL:
		return "stl-binary"
	case FormatOBJ:
		return "obj"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// FormatFor picks a format from a file name extension.
func FormatFor(filename string, binary bool) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".stl":
		if binary {
			return FormatBinarySTL, nil
		}
		return FormatSTL, nil
	case ".obj":
		return FormatOBJ, nil
	}
	return 0, kernel.Errorf(kernel.KindInvalidInput, "export", "unsupported file extension %q", filepath.Ext(filename))
}

// Write encodes m to w in format f.
func Write(w io.Writer, m *kernel.Mesh, f Format, name string) error {
	switch f {
	case FormatSTL:
		return WriteSTL(w, m, name)
	case FormatBinarySTL:
		return WriteBinarySTL(w, m, name)
	case FormatOBJ:
		return WriteOBJ(w, m, name)
	}
	return kernel.Errorf(kernel.KindInvalidInput, "export", "unknown format %v", f)
}

// Encode returns m encoded in format f.
func Encode(m *kernel.Mesh, f Format, name string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, m, f, name); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Read decodes a mesh in format f. Both STL formats are auto-detected.
func Read(r io.Reader, f Format) (*kernel.Mesh, error) {
	switch f {
	case FormatSTL, FormatBinarySTL:
		return ReadSTL(r)
	case FormatOBJ:
		return ReadOBJ(r)
	}
	return nil, kernel.Errorf(kernel.KindInvalidInput, "import", "unknown format %v", f)
}

func checkMesh(op string, m *kernel.Mesh) error {
	if m == nil {
		return kernel.Errorf(kernel.KindInvalidInput, op, "nil mesh")
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// solidName returns a single-token name for STL headers.
func solidName(name string) string {
	name = strings.Join(strings.Fields(name), "_")
	if name == "" {
		return "mesh"
	}
	return name
}
