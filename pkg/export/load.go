package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/deadsy/sdfx/render"

	"github.com/qutlas/cadmium/pkg/kernel"
)

// LoadFile reads the STL or OBJ file at path, chosen by extension, and
// returns a welded, outward-facing mesh with vertex normals. Vertices
// closer than tol are merged. The mesh is named after the file.
func LoadFile(path string, tol float64) (*kernel.Mesh, error) {
	var (
		m   *kernel.Mesh
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".stl":
		m, err = loadSTLFile(path)
	case ".obj":
		m, err = loadOBJFile(path)
	default:
		return nil, kernel.Errorf(kernel.KindInvalidInput, "load", "unsupported file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if m.IsEmpty() {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "load", "%s has no triangles", path)
	}
	name := m.Name
	m = kernel.Weld(m, tol)
	if m.IsEmpty() {
		return nil, kernel.Errorf(kernel.KindDegenerate, "load", "every triangle in %s collapsed", path)
	}
	if kernel.SignedVolume(m) < 0 {
		m = kernel.Flip(m)
	}
	m.Normals = kernel.ComputeNormals(m)
	m.Name = name
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// loadSTLFile reads either STL flavour with render.LoadSTL. Its ASCII
// reader indexes past the end when the vertex count is not a multiple of
// three; that panic is reported as a truncated file.
func loadSTLFile(path string) (m *kernel.Mesh, err error) {
	const op = "load stl"
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, kernel.Errorf(kernel.KindInvalidInput, op, "%s: truncated facet list", path)
		}
	}()
	triangles, err := render.LoadSTL(path)
	if err != nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "%s: %w", path, err)
	}
	b := kernel.NewBuilder(len(triangles)*3, len(triangles))
	for _, tri := range triangles {
		b.Tri(b.Add(tri[0]), b.Add(tri[1]), b.Add(tri[2]))
	}
	return b.Mesh(), nil
}

func loadOBJFile(path string) (*kernel.Mesh, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, "load obj", "%w", err)
	}
	defer file.Close()
	return ReadOBJ(file)
}
