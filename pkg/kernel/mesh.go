package kernel

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Mesh is an indexed triangle mesh.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex or is empty, faces has 3 indices per
// triangle wound counter-clockwise when seen from outside.
type Mesh struct {
	Vertices []float64 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Faces    []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	Normals  []float64 `json:"normals"`  // [nx0,ny0,nz0, ...] or empty
	Material *Material `json:"material,omitempty"`
	Name     string    `json:"name,omitempty"`
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Faces) / 3
}

// IsEmpty returns true if the mesh has no triangles.
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Faces) == 0
}

// Vertex returns the position of vertex i.
func (m *Mesh) Vertex(i uint32) v3.Vec {
	j := int(i) * 3
	return v3.Vec{X: m.Vertices[j], Y: m.Vertices[j+1], Z: m.Vertices[j+2]}
}

// Triangle returns the three vertex indices of triangle t.
func (m *Mesh) Triangle(t int) [3]uint32 {
	j := t * 3
	return [3]uint32{m.Faces[j], m.Faces[j+1], m.Faces[j+2]}
}

// Corners returns the three vertex positions of triangle t.
func (m *Mesh) Corners(t int) (a, b, c v3.Vec) {
	tri := m.Triangle(t)
	return m.Vertex(tri[0]), m.Vertex(tri[1]), m.Vertex(tri[2])
}

// Validate checks the structural invariants of the buffers: lengths are
// multiples of three, indices are in range, coordinates are finite and
// normals are either empty or one per vertex.
func (m *Mesh) Validate() error {
	const op = "mesh.validate"
	if m == nil {
		return Errorf(KindInvalidInput, op, "nil mesh")
	}
	if len(m.Vertices)%3 != 0 {
		return Errorf(KindInvalidInput, op, "vertex buffer length %d is not a multiple of 3", len(m.Vertices))
	}
	if len(m.Faces)%3 != 0 {
		return Errorf(KindInvalidInput, op, "index buffer length %d is not a multiple of 3", len(m.Faces))
	}
	if len(m.Normals) != 0 && len(m.Normals) != len(m.Vertices) {
		return Errorf(KindInvalidInput, op, "normal buffer length %d does not match vertex buffer length %d",
			len(m.Normals), len(m.Vertices))
	}
	for i, v := range m.Vertices {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Errorf(KindInvalidInput, op, "vertex coordinate %d is not finite", i)
		}
	}
	n := uint32(m.VertexCount())
	for i, idx := range m.Faces {
		if idx >= n {
			return Errorf(KindInvalidInput, op, "index %d at position %d out of range (vertex count %d)", idx, i, n)
		}
	}
	return nil
}

// Clone returns a deep copy of m.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Vertices: append([]float64(nil), m.Vertices...),
		Faces:    append([]uint32(nil), m.Faces...),
		Name:     m.Name,
	}
	if len(m.Normals) > 0 {
		out.Normals = append([]float64(nil), m.Normals...)
	}
	if m.Material != nil {
		mat := *m.Material
		out.Material = &mat
	}
	return out
}

// WithNormals returns m if it already carries normals, or a copy with
// area-weighted vertex normals computed from the faces.
func (m *Mesh) WithNormals() *Mesh {
	if len(m.Normals) == len(m.Vertices) && len(m.Vertices) > 0 {
		return m
	}
	out := m.Clone()
	out.Normals = ComputeNormals(m)
	return out
}

// Flip returns a copy of m with every triangle's winding reversed and
// normals negated.
func Flip(m *Mesh) *Mesh {
	out := m.Clone()
	for t := 0; t < out.TriangleCount(); t++ {
		out.Faces[t*3+1], out.Faces[t*3+2] = out.Faces[t*3+2], out.Faces[t*3+1]
	}
	for i := range out.Normals {
		out.Normals[i] = -out.Normals[i]
	}
	return out
}

// Merge concatenates the buffers of a and b into a new mesh without welding.
// The material and name of a are kept.
func Merge(a, b *Mesh) *Mesh {
	out := &Mesh{
		Vertices: make([]float64, 0, len(a.Vertices)+len(b.Vertices)),
		Faces:    make([]uint32, 0, len(a.Faces)+len(b.Faces)),
		Material: a.Material,
		Name:     a.Name,
	}
	out.Vertices = append(append(out.Vertices, a.Vertices...), b.Vertices...)
	off := uint32(a.VertexCount())
	out.Faces = append(out.Faces, a.Faces...)
	for _, f := range b.Faces {
		out.Faces = append(out.Faces, f+off)
	}
	if len(a.Normals) == len(a.Vertices) && len(b.Normals) == len(b.Vertices) {
		out.Normals = append(append(make([]float64, 0, len(out.Vertices)), a.Normals...), b.Normals...)
	}
	return out
}

// Builder accumulates vertices and triangles for constructing meshes.
type Builder struct {
	vertices []float64
	faces    []uint32
}

// NewBuilder returns a Builder with room for the given counts.
func NewBuilder(vertices, triangles int) *Builder {
	return &Builder{
		vertices: make([]float64, 0, vertices*3),
		faces:    make([]uint32, 0, triangles*3),
	}
}

// Add appends a vertex and returns its index.
func (b *Builder) Add(v v3.Vec) uint32 {
	b.vertices = append(b.vertices, v.X, v.Y, v.Z)
	return uint32(len(b.vertices)/3 - 1)
}

// Tri appends a triangle.
func (b *Builder) Tri(i, j, k uint32) {
	b.faces = append(b.faces, i, j, k)
}

// Quad appends the quad (i,j,k,l) as two triangles split along i-k.
func (b *Builder) Quad(i, j, k, l uint32) {
	b.faces = append(b.faces, i, j, k, i, k, l)
}

// Mesh returns the built mesh without normals.
func (b *Builder) Mesh() *Mesh {
	return &Mesh{Vertices: b.vertices, Faces: b.faces}
}
