// Package cadmium implements kernel.Kernel natively on triangle meshes.
// Primitives come from the primitive package, booleans from csg and edge
// blends from feature. Every result is an exact, closed, deterministic
// mesh, so ToMesh only copies.
package cadmium

import (
	"fmt"

	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/csg"
	"github.com/qutlas/cadmium/pkg/kernel/feature"
	"github.com/qutlas/cadmium/pkg/kernel/primitive"
)

// Compile-time interface checks.
var (
	_ kernel.Kernel       = (*Kernel)(nil)
	_ kernel.MeshImporter = (*Kernel)(nil)
	_ kernel.EdgeBlender  = (*Kernel)(nil)
	_ kernel.Solid        = (*solid)(nil)
)

// solid wraps a closed mesh.
type solid struct {
	m *kernel.Mesh
}

// BoundingBox returns the axis-aligned bounding box, or zeros for the
// empty solid.
func (s *solid) BoundingBox() (min, max [3]float64) {
	bb, err := kernel.ComputeBoundingBox(s.m)
	if err != nil {
		return min, max
	}
	return bb.Min, bb.Max
}

// Kernel is the native mesh kernel.
type Kernel struct {
	booleans *csg.Engine
	features *feature.Editor
}

// New returns a Kernel using eps as its boolean and welding tolerance.
// A non-positive eps selects csg.DefaultEpsilon.
func New(eps float64) *Kernel {
	if eps <= 0 {
		eps = csg.DefaultEpsilon
	}
	b := csg.New(eps)
	return &Kernel{booleans: b, features: feature.New(b)}
}

// Features returns the editor used for holes and edge blends.
func (k *Kernel) Features() *feature.Editor {
	return k.features
}

// Booleans returns the boolean engine.
func (k *Kernel) Booleans() *csg.Engine {
	return k.booleans
}

func wrap(m *kernel.Mesh) kernel.Solid {
	return &solid{m: m}
}

func unwrap(op string, s kernel.Solid) (*kernel.Mesh, error) {
	ms, ok := s.(*solid)
	if !ok || ms == nil || ms.m == nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "solid %T does not belong to the cadmium kernel", s)
	}
	return ms.m, nil
}

// mustUnwrap is used by the transforms, which cannot report errors.
func mustUnwrap(op string, s kernel.Solid) *kernel.Mesh {
	m, err := unwrap(op, s)
	if err != nil {
		panic(err)
	}
	return m
}

func (k *Kernel) Box(length, width, height float64) (kernel.Solid, error) {
	m, err := primitive.Box(length, width, height)
	if err != nil {
		return nil, err
	}
	return wrap(m), nil
}

func (k *Kernel) Cylinder(radius, height float64, segments int) (kernel.Solid, error) {
	m, err := primitive.Cylinder(radius, height, segments)
	if err != nil {
		return nil, err
	}
	return wrap(m), nil
}

func (k *Kernel) Sphere(radius float64, segmentsLat, segmentsLon int) (kernel.Solid, error) {
	m, err := primitive.Sphere(radius, segmentsLat, segmentsLon)
	if err != nil {
		return nil, err
	}
	return wrap(m), nil
}

func (k *Kernel) Cone(radius, height float64, segments int) (kernel.Solid, error) {
	m, err := primitive.Cone(radius, height, segments)
	if err != nil {
		return nil, err
	}
	return wrap(m), nil
}

func (k *Kernel) Torus(majorRadius, minorRadius float64, segmentsMajor, segmentsMinor int) (kernel.Solid, error) {
	m, err := primitive.Torus(majorRadius, minorRadius, segmentsMajor, segmentsMinor)
	if err != nil {
		return nil, err
	}
	return wrap(m), nil
}

func (k *Kernel) boolean(op csg.Op, a, b kernel.Solid) (kernel.Solid, error) {
	name := "cadmium." + op.String()
	ma, err := unwrap(name, a)
	if err != nil {
		return nil, err
	}
	mb, err := unwrap(name, b)
	if err != nil {
		return nil, err
	}
	out, err := k.booleans.Apply(op, ma, mb)
	if err != nil {
		return nil, err
	}
	return wrap(out), nil
}

// Union returns a ∪ b.
func (k *Kernel) Union(a, b kernel.Solid) (kernel.Solid, error) {
	return k.boolean(csg.OpUnion, a, b)
}

// Difference returns a minus b.
func (k *Kernel) Difference(a, b kernel.Solid) (kernel.Solid, error) {
	return k.boolean(csg.OpSubtract, a, b)
}

// Intersection returns a ∩ b.
func (k *Kernel) Intersection(a, b kernel.Solid) (kernel.Solid, error) {
	return k.boolean(csg.OpIntersect, a, b)
}

// Translate moves s by (x, y, z). It panics if s belongs to another kernel.
func (k *Kernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	return wrap(kernel.Translate(mustUnwrap("cadmium.translate", s), x, y, z))
}

// Rotate rotates s by Euler angles in degrees, X then Y then Z. It panics
// if s belongs to another kernel.
func (k *Kernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	return wrap(kernel.Rotate(mustUnwrap("cadmium.rotate", s), x, y, z))
}

// ToMesh returns a copy of the solid's mesh.
func (k *Kernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	m, err := unwrap("cadmium.to mesh", s)
	if err != nil {
		return nil, err
	}
	return m.Clone().WithNormals(), nil
}

// FromMesh adopts m as a solid. An empty mesh is the empty solid; any
// other mesh must be a closed, outward-oriented solid.
func (k *Kernel) FromMesh(m *kernel.Mesh) (kernel.Solid, error) {
	const op = "cadmium.from mesh"
	if m == nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "nil mesh")
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if m.IsEmpty() {
		return wrap(m.Clone()), nil
	}
	if err := kernel.ValidateSolid(m, k.booleans.Epsilon); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return wrap(m.WithNormals()), nil
}

// FilletEdges rounds every sharp edge of s.
func (k *Kernel) FilletEdges(s kernel.Solid, radius float64) (kernel.Solid, error) {
	m, err := unwrap("cadmium.fillet edges", s)
	if err != nil {
		return nil, err
	}
	out, err := k.features.FilletEdges(m, radius)
	if err != nil {
		return nil, err
	}
	return wrap(out), nil
}

// ChamferEdges bevels every sharp edge of s.
func (k *Kernel) ChamferEdges(s kernel.Solid, distance float64) (kernel.Solid, error) {
	m, err := unwrap("cadmium.chamfer edges", s)
	if err != nil {
		return nil, err
	}
	out, err := k.features.ChamferEdges(m, distance)
	if err != nil {
		return nil, err
	}
	return wrap(out), nil
}
