// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
//
// Solids are signed distance functions, so booleans never fail and round
// surfaces are exact until ToMesh samples them with marching cubes. The
// sampled triangle soup is welded into an indexed mesh; its accuracy is
// bounded by the cell size, not by the segment counts, which are ignored.
package sdfx

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/qutlas/cadmium/pkg/kernel"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// DefaultMeshCells controls marching cubes tessellation resolution along
// the longest bounding box axis.
const DefaultMeshCells = 200

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	cells int
}

// New returns a new SdfxKernel sampling meshes with the given number of
// marching cubes cells, or DefaultMeshCells if cells is not positive.
func New(cells int) *SdfxKernel {
	if cells <= 0 {
		cells = DefaultMeshCells
	}
	return &SdfxKernel{cells: cells}
}

// unwrap extracts the underlying sdf.SDF3 from a kernel.Solid.
func unwrap(op string, s kernel.Solid) (sdf.SDF3, error) {
	ss, ok := s.(*sdfxSolid)
	if !ok || ss == nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "solid %T does not belong to the sdfx kernel", s)
	}
	return ss.s, nil
}

func mustUnwrap(op string, s kernel.Solid) sdf.SDF3 {
	u, err := unwrap(op, s)
	if err != nil {
		panic(err)
	}
	return u
}

// wrap creates a kernel.Solid from an sdf.SDF3.
func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

func positive(op string, names []string, values ...float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return kernel.Errorf(kernel.KindInvalidInput, op, "%s must be a positive finite number, got %v", names[i], v)
		}
	}
	return nil
}

// built converts an sdfx constructor error into an invalid input error.
func built(op string, s sdf.SDF3, err error) (kernel.Solid, error) {
	if err != nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "%w", err)
	}
	return wrap(s), nil
}

// Box creates a box centered at the origin.
func (k *SdfxKernel) Box(length, width, height float64) (kernel.Solid, error) {
	const op = "sdfx.box"
	if err := positive(op, []string{"length", "width", "height"}, length, width, height); err != nil {
		return nil, err
	}
	s, err := sdf.Box3D(v3.Vec{X: length, Y: width, Z: height}, 0)
	return built(op, s, err)
}

// Cylinder creates a cylinder on the Z axis centered at the origin.
func (k *SdfxKernel) Cylinder(radius, height float64, segments int) (kernel.Solid, error) {
	const op = "sdfx.cylinder"
	if err := positive(op, []string{"radius", "height"}, radius, height); err != nil {
		return nil, err
	}
	s, err := sdf.Cylinder3D(height, radius, 0)
	return built(op, s, err)
}

// Sphere creates a sphere centered at the origin.
func (k *SdfxKernel) Sphere(radius float64, segmentsLat, segmentsLon int) (kernel.Solid, error) {
	const op = "sdfx.sphere"
	if err := positive(op, []string{"radius"}, radius); err != nil {
		return nil, err
	}
	s, err := sdf.Sphere3D(radius)
	return built(op, s, err)
}

// Cone creates a cone on the Z axis with its base at -height/2 and its
// apex at +height/2.
func (k *SdfxKernel) Cone(radius, height float64, segments int) (kernel.Solid, error) {
	const op = "sdfx.cone"
	if err := positive(op, []string{"radius", "height"}, radius, height); err != nil {
		return nil, err
	}
	s, err := sdf.Cone3D(height, radius, 0, 0)
	return built(op, s, err)
}

// Torus creates a torus around the Z axis by revolving a circle of the
// minor radius placed majorRadius from the axis.
func (k *SdfxKernel) Torus(majorRadius, minorRadius float64, segmentsMajor, segmentsMinor int) (kernel.Solid, error) {
	const op = "sdfx.torus"
	if err := positive(op, []string{"major radius", "minor radius"}, majorRadius, minorRadius); err != nil {
		return nil, err
	}
	if minorRadius >= majorRadius {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "minor radius %v must be less than major radius %v", minorRadius, majorRadius)
	}
	c, err := sdf.Circle2D(minorRadius)
	if err != nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "%w", err)
	}
	profile := sdf.Transform2D(c, sdf.Translate2d(v2.Vec{X: majorRadius}))
	s, err := sdf.Revolve3D(profile)
	return built(op, s, err)
}

func (k *SdfxKernel) pair(op string, a, b kernel.Solid) (sdf.SDF3, sdf.SDF3, error) {
	sa, err := unwrap(op, a)
	if err != nil {
		return nil, nil, err
	}
	sb, err := unwrap(op, b)
	if err != nil {
		return nil, nil, err
	}
	return sa, sb, nil
}

// Union returns the union of two solids.
func (k *SdfxKernel) Union(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := k.pair("sdfx.union", a, b)
	if err != nil {
		return nil, err
	}
	return wrap(sdf.Union3D(sa, sb)), nil
}

// Difference returns the difference a - b.
func (k *SdfxKernel) Difference(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := k.pair("sdfx.difference", a, b)
	if err != nil {
		return nil, err
	}
	return wrap(sdf.Difference3D(sa, sb)), nil
}

// Intersection returns the intersection of two solids.
func (k *SdfxKernel) Intersection(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := k.pair("sdfx.intersection", a, b)
	if err != nil {
		return nil, err
	}
	return wrap(sdf.Intersect3D(sa, sb)), nil
}

// Translate moves a solid by (x, y, z).
func (k *SdfxKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	m := sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(mustUnwrap("sdfx.translate", s), m))
}

// Rotate rotates a solid by Euler angles (degrees) around X, then Y, then Z.
func (k *SdfxKernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	return wrap(sdf.Transform3D(mustUnwrap("sdfx.rotate", s), kernel.RotationMatrix(x, y, z)))
}

// ToMesh samples the solid with marching cubes and welds the resulting
// soup into an indexed mesh. Vertices closer than a hundredth of a cell
// are merged.
func (k *SdfxKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	sdf3, err := unwrap("sdfx.to mesh", s)
	if err != nil {
		return nil, err
	}

	renderer := render.NewMarchingCubesUniform(k.cells)
	triangles := render.ToTriangles(sdf3, renderer)
	if len(triangles) == 0 {
		return &kernel.Mesh{Vertices: []float64{}, Faces: []uint32{}}, nil
	}

	b := kernel.NewBuilder(len(triangles)*3, len(triangles))
	for _, tri := range triangles {
		i := b.Add(tri[0])
		j := b.Add(tri[1])
		l := b.Add(tri[2])
		b.Tri(i, j, l)
	}

	bb := sdf3.BoundingBox()
	size := bb.Max.Sub(bb.Min)
	longest := math.Max(size.X, math.Max(size.Y, size.Z))
	tol := longest / float64(k.cells) / 100
	mesh := kernel.Weld(b.Mesh(), tol)
	if mesh.IsEmpty() {
		return nil, kernel.Errorf(kernel.KindDegenerate, "sdfx.to mesh", "all %d sampled triangles collapsed", len(triangles))
	}
	if kernel.SignedVolume(mesh) < 0 {
		mesh = kernel.Flip(mesh)
	}
	mesh.Normals = kernel.ComputeNormals(mesh)
	return mesh, nil
}

// String describes the kernel configuration.
func (k *SdfxKernel) String() string {
	return fmt.Sprintf("sdfx(cells=%d)", k.cells)
}
