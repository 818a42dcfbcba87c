// Package csg implements boolean operations on closed triangle meshes.
//
// Each operand is converted into a BSP tree of its triangles. Clipping one
// tree against the other splits every polygon that crosses a partitioning
// plane, which retriangulates both surfaces along their intersection
// curve, and discards the fragments the operation excludes. The surviving
// polygons are fan-triangulated, welded within the engine epsilon and
// repaired for T-junctions. A result that is not closed is reported as
// degenerate instead of being returned.
package csg

import (
	"fmt"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/qutlas/cadmium/pkg/kernel"
)

// DefaultEpsilon is the coplanarity and welding tolerance used when the
// host does not configure one.
const DefaultEpsilon = 1e-5

// holeTolerance scales the epsilon for CloseHoles. Seam vertices where
// cutters meet can land a few epsilons off the edge they should split.
const holeTolerance = 100

// Op selects a boolean operation.
type Op int

const (
	OpUnion Op = iota
	OpSubtract
	OpIntersect
)

func (o Op) String() string {
	switch o {
	case OpUnion:
		return "union"
	case OpSubtract:
		return "subtract"
	case OpIntersect:
		return "intersect"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// ParseOp parses "union", "subtract" or "intersect".
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(s) {
	case "union":
		return OpUnion, nil
	case "subtract", "difference":
		return OpSubtract, nil
	case "intersect", "intersection":
		return OpIntersect, nil
	}
	return 0, kernel.Errorf(kernel.KindInvalidInput, "parse boolean", "unknown boolean operation %q", s)
}

// Engine runs boolean operations with a fixed tolerance.
// The zero value uses DefaultEpsilon.
type Engine struct {
	// Epsilon is the distance under which points are considered to lie on
	// a plane, and under which vertices are welded together.
	Epsilon float64
}

// New returns an Engine using eps, or DefaultEpsilon if eps is not positive.
func New(eps float64) *Engine {
	return &Engine{Epsilon: eps}
}

func (e *Engine) eps() float64 {
	if e == nil || e.Epsilon <= 0 {
		return DefaultEpsilon
	}
	return e.Epsilon
}

// Union returns a ∪ b.
func (e *Engine) Union(a, b *kernel.Mesh) (*kernel.Mesh, error) {
	return e.Apply(OpUnion, a, b)
}

// Subtract returns base minus tool.
func (e *Engine) Subtract(base, tool *kernel.Mesh) (*kernel.Mesh, error) {
	return e.Apply(OpSubtract, base, tool)
}

// Intersect returns a ∩ b.
func (e *Engine) Intersect(a, b *kernel.Mesh) (*kernel.Mesh, error) {
	return e.Apply(OpIntersect, a, b)
}

// Apply runs op on a and b. A mesh without triangles is the empty solid:
// union and subtract return the other operand unchanged where that is the
// mathematical result, intersect returns the empty mesh. Neither input is
// modified.
func (e *Engine) Apply(op Op, a, b *kernel.Mesh) (*kernel.Mesh, error) {
	opName := "csg." + op.String()
	if a == nil || b == nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, opName, "nil operand")
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%s: first operand: %w", opName, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%s: second operand: %w", opName, err)
	}

	if r, ok := identity(op, a, b); ok {
		return r, nil
	}

	eps := e.eps()
	if err := kernel.ValidateSolid(a, eps); err != nil {
		return nil, fmt.Errorf("%s: first operand: %w", opName, err)
	}
	if err := kernel.ValidateSolid(b, eps); err != nil {
		return nil, fmt.Errorf("%s: second operand: %w", opName, err)
	}

	if r, ok := disjoint(op, a, b, eps); ok {
		return r, nil
	}

	polys, err := e.clip(op, a, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opName, err)
	}
	out, err := e.assemble(polys)
	if err != nil {
		return nil, kernel.Errorf(kernel.KindDegenerate, opName, "result is not a closed solid: %w", err)
	}
	out.Material = a.Material
	out.Name = a.Name
	return out, nil
}

// empty returns an empty mesh carrying the metadata of like.
func empty(like *kernel.Mesh) *kernel.Mesh {
	return &kernel.Mesh{Vertices: []float64{}, Faces: []uint32{}, Material: like.Material, Name: like.Name}
}

// identity handles the empty solid and identical operands.
func identity(op Op, a, b *kernel.Mesh) (*kernel.Mesh, bool) {
	switch {
	case b.IsEmpty():
		if op == OpIntersect {
			return empty(a), true
		}
		return a.Clone(), true
	case a.IsEmpty():
		if op == OpUnion {
			return b.Clone(), true
		}
		return empty(a), true
	case kernel.ComputeHash(a) == kernel.ComputeHash(b):
		if op == OpSubtract {
			return empty(a), true
		}
		return a.Clone(), true
	}
	return nil, false
}

// disjoint short-circuits operands whose bounding boxes do not touch.
func disjoint(op Op, a, b *kernel.Mesh, eps float64) (*kernel.Mesh, bool) {
	ba, _ := kernel.ComputeBoundingBox(a)
	bb, _ := kernel.ComputeBoundingBox(b)
	if ba.Overlaps(bb, eps) {
		return nil, false
	}
	switch op {
	case OpUnion:
		m := kernel.Merge(a, b)
		m.Normals = kernel.ComputeNormals(m)
		return m, true
	case OpSubtract:
		return a.Clone(), true
	default:
		return empty(a), true
	}
}

func toPolygons(m *kernel.Mesh) []polygon {
	polys := make([]polygon, 0, m.TriangleCount())
	for t := 0; t < m.TriangleCount(); t++ {
		a, b, c := m.Corners(t)
		pl, ok := planeFrom(a, b, c)
		if !ok {
			continue
		}
		polys = append(polys, polygon{verts: []v3.Vec{a, b, c}, plane: pl})
	}
	return polys
}

// clip runs the tree clipping sequence for op and returns the surviving
// polygons.
func (e *Engine) clip(op Op, am, bm *kernel.Mesh) ([]polygon, error) {
	s := splitter{eps: e.eps()}
	pa, pb := toPolygons(am), toPolygons(bm)
	if len(pa) == 0 || len(pb) == 0 {
		return nil, kernel.Errorf(kernel.KindDegenerate, "clip", "operand has no non-degenerate triangles")
	}
	a := newNode(s, pa)
	b := newNode(s, pb)

	switch op {
	case OpUnion:
		a.clipTo(b)
		b.clipTo(a)
		b.invert()
		b.clipTo(a)
		b.invert()
		a.build(b.allPolygons())
	case OpSubtract:
		a.invert()
		a.clipTo(b)
		b.clipTo(a)
		b.invert()
		b.clipTo(a)
		b.invert()
		a.build(b.allPolygons())
		a.invert()
	case OpIntersect:
		a.invert()
		b.clipTo(a)
		b.invert()
		a.clipTo(b)
		b.clipTo(a)
		a.build(b.allPolygons())
		a.invert()
	default:
		return nil, kernel.Errorf(kernel.KindInvalidInput, "clip", "unknown boolean operation %v", op)
	}
	return a.allPolygons(), nil
}

// assemble turns BSP output polygons into a welded, closed mesh.
func (e *Engine) assemble(polys []polygon) (*kernel.Mesh, error) {
	eps := e.eps()
	b := kernel.NewBuilder(len(polys)*4, len(polys)*2)
	for _, p := range polys {
		first := b.Add(p.verts[0])
		prev := b.Add(p.verts[1])
		for _, v := range p.verts[2:] {
			cur := b.Add(v)
			b.Tri(first, prev, cur)
			prev = cur
		}
	}
	m := kernel.Weld(b.Mesh(), eps)
	m = kernel.RepairTJunctions(m, eps)
	m = kernel.CloseHoles(m, holeTolerance*eps)
	if m.IsEmpty() {
		return &kernel.Mesh{Vertices: []float64{}, Faces: []uint32{}}, nil
	}
	if err := kernel.CheckClosed(m); err != nil {
		return nil, err
	}
	m.Normals = kernel.ComputeNormals(m)
	return m, nil
}
