//go:build manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold provides
// guaranteed-manifold mesh boolean operations.
//
// This package requires the Manifold C library (manifoldc) to be installed.
// Build with: go build -tags=manifold
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/primitive"
)

// Compile-time interface checks.
var (
	_ kernel.Kernel       = (*ManifoldKernel)(nil)
	_ kernel.MeshImporter = (*ManifoldKernel)(nil)
	_ kernel.Solid        = (*manifoldSolid)(nil)
)

// manifoldSolid wraps a C ManifoldManifold pointer and implements kernel.Solid.
type manifoldSolid struct {
	ptr *C.ManifoldManifold
}

// BoundingBox returns the axis-aligned bounding box of the solid.
func (s *manifoldSolid) BoundingBox() (min, max [3]float64) {
	alloc := C.manifold_alloc_box()
	bbox := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(bbox)

	min[0] = float64(C.manifold_box_min_x(bbox))
	min[1] = float64(C.manifold_box_min_y(bbox))
	min[2] = float64(C.manifold_box_min_z(bbox))
	max[0] = float64(C.manifold_box_max_x(bbox))
	max[1] = float64(C.manifold_box_max_y(bbox))
	max[2] = float64(C.manifold_box_max_z(bbox))
	return min, max
}

// newSolid wraps a C ManifoldManifold pointer with a Go-side finalizer.
func newSolid(ptr *C.ManifoldManifold) *manifoldSolid {
	s := &manifoldSolid{ptr: ptr}
	runtime.SetFinalizer(s, func(s *manifoldSolid) {
		if s.ptr != nil {
			C.manifold_delete_manifold(s.ptr)
			s.ptr = nil
		}
	})
	return s
}

// checked wraps ptr, reporting a Manifold status other than success as a
// degenerate geometry error.
func checked(op string, ptr *C.ManifoldManifold) (kernel.Solid, error) {
	s := newSolid(ptr)
	if status := C.manifold_status(ptr); status != C.MANIFOLD_NO_ERROR {
		return nil, kernel.Errorf(kernel.KindDegenerate, op, "manifold status %d", int(status))
	}
	return s, nil
}

func unwrap(op string, s kernel.Solid) (*manifoldSolid, error) {
	ms, ok := s.(*manifoldSolid)
	if !ok || ms == nil || ms.ptr == nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "solid %T does not belong to the manifold kernel", s)
	}
	return ms, nil
}

func mustUnwrap(op string, s kernel.Solid) *manifoldSolid {
	ms, err := unwrap(op, s)
	if err != nil {
		panic(err)
	}
	return ms
}

func segmentsOr(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}

// ManifoldKernel implements kernel.Kernel using the Manifold C library.
type ManifoldKernel struct{}

// New creates a new ManifoldKernel.
func New() (*ManifoldKernel, error) {
	return &ManifoldKernel{}, nil
}

// Box creates an axis-aligned box centered at the origin.
func (k *ManifoldKernel) Box(length, width, height float64) (kernel.Solid, error) {
	// Validate with the native rules so every backend rejects the same input.
	if _, err := primitive.Box(length, width, height); err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cube(alloc,
		C.double(length), C.double(width), C.double(height),
		C.int(1), // center=true
	)
	return checked("manifold.box", ptr)
}

// Cylinder creates a cylinder along the Z axis centered at the origin.
func (k *ManifoldKernel) Cylinder(radius, height float64, segments int) (kernel.Solid, error) {
	if _, err := primitive.Cylinder(radius, height, 3); err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cylinder(alloc,
		C.double(height),
		C.double(radius), // radius_low
		C.double(radius), // radius_high
		C.int(segmentsOr(segments, primitive.DefaultSegments)),
		C.int(1), // center=true
	)
	return checked("manifold.cylinder", ptr)
}

// Sphere creates a sphere centered at the origin. Manifold subdivides by
// a single circular segment count; the larger of the two counts is used.
func (k *ManifoldKernel) Sphere(radius float64, segmentsLat, segmentsLon int) (kernel.Solid, error) {
	if _, err := primitive.Sphere(radius, 2, 3); err != nil {
		return nil, err
	}
	n := segmentsOr(segmentsLon, primitive.DefaultSegmentsLon)
	if lat := segmentsOr(segmentsLat, primitive.DefaultSegmentsLat); lat > n {
		n = lat
	}
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_sphere(alloc, C.double(radius), C.int(n))
	return checked("manifold.sphere", ptr)
}

// Cone creates a cone along the Z axis centered at the origin with its
// apex at +height/2.
func (k *ManifoldKernel) Cone(radius, height float64, segments int) (kernel.Solid, error) {
	if _, err := primitive.Cone(radius, height, 3); err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cylinder(alloc,
		C.double(height),
		C.double(radius), // radius_low
		C.double(0),      // radius_high
		C.int(segmentsOr(segments, primitive.DefaultSegments)),
		C.int(1),
	)
	return checked("manifold.cone", ptr)
}

// Torus is built by the native primitive and imported, since Manifold has
// no torus constructor.
func (k *ManifoldKernel) Torus(majorRadius, minorRadius float64, segmentsMajor, segmentsMinor int) (kernel.Solid, error) {
	m, err := primitive.Torus(majorRadius, minorRadius, segmentsMajor, segmentsMinor)
	if err != nil {
		return nil, err
	}
	return k.FromMesh(m)
}

// FromMesh imports a closed triangle mesh.
func (k *ManifoldKernel) FromMesh(m *kernel.Mesh) (kernel.Solid, error) {
	const op = "manifold.from mesh"
	if m == nil {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "nil mesh")
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if m.IsEmpty() {
		return checked(op, C.manifold_empty(C.manifold_alloc_manifold()))
	}
	props := make([]float32, len(m.Vertices))
	for i, v := range m.Vertices {
		props[i] = float32(v)
	}
	tris := append([]uint32(nil), m.Faces...)

	meshGL := C.manifold_meshgl(C.manifold_alloc_meshgl(),
		(*C.float)(unsafe.Pointer(&props[0])), C.size_t(m.VertexCount()), C.size_t(3),
		(*C.uint32_t)(unsafe.Pointer(&tris[0])), C.size_t(m.TriangleCount()),
	)
	defer C.manifold_delete_meshgl(meshGL)
	return checked(op, C.manifold_of_meshgl(C.manifold_alloc_manifold(), meshGL))
}

func (k *ManifoldKernel) pair(op string, a, b kernel.Solid) (*manifoldSolid, *manifoldSolid, error) {
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

// Union returns the boolean union of two solids.
func (k *ManifoldKernel) Union(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := k.pair("manifold.union", a, b)
	if err != nil {
		return nil, err
	}
	return checked("manifold.union", C.manifold_union(C.manifold_alloc_manifold(), sa.ptr, sb.ptr))
}

// Difference returns the boolean difference (a minus b).
func (k *ManifoldKernel) Difference(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := k.pair("manifold.difference", a, b)
	if err != nil {
		return nil, err
	}
	return checked("manifold.difference", C.manifold_difference(C.manifold_alloc_manifold(), sa.ptr, sb.ptr))
}

// Intersection returns the boolean intersection of two solids.
func (k *ManifoldKernel) Intersection(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := k.pair("manifold.intersection", a, b)
	if err != nil {
		return nil, err
	}
	return checked("manifold.intersection", C.manifold_intersection(C.manifold_alloc_manifold(), sa.ptr, sb.ptr))
}

// Translate moves the solid by (x, y, z).
func (k *ManifoldKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ms := mustUnwrap("manifold.translate", s)
	ptr := C.manifold_translate(C.manifold_alloc_manifold(), ms.ptr,
		C.double(x), C.double(y), C.double(z),
	)
	return newSolid(ptr)
}

// Rotate rotates the solid by Euler angles in degrees, X then Y then Z.
func (k *ManifoldKernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ms := mustUnwrap("manifold.rotate", s)
	ptr := C.manifold_rotate(C.manifold_alloc_manifold(), ms.ptr,
		C.double(x), C.double(y), C.double(z),
	)
	return newSolid(ptr)
}

// ToMesh extracts a triangle mesh from the solid using Manifold's MeshGL
// format. MeshGL stores single precision positions, widened here.
// Normals are recomputed from the faces.
func (k *ManifoldKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	ms, err := unwrap("manifold.to mesh", s)
	if err != nil {
		return nil, err
	}

	meshGL := C.manifold_get_meshgl(C.manifold_alloc_meshgl(), ms.ptr)
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))
	if numVert == 0 || numTri == 0 {
		return &kernel.Mesh{Vertices: []float64{}, Faces: []uint32{}}, nil
	}

	// The first three properties of each vertex are its position.
	numProp := int(C.manifold_meshgl_num_prop(meshGL))
	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(
		(*C.float)(unsafe.Pointer(&propData[0])),
		meshGL,
	)

	faces := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(
		(*C.uint32_t)(unsafe.Pointer(&faces[0])),
		meshGL,
	)

	vertices := make([]float64, numVert*3)
	for i := 0; i < numVert; i++ {
		base := i * numProp
		vertices[i*3+0] = float64(propData[base+0])
		vertices[i*3+1] = float64(propData[base+1])
		vertices[i*3+2] = float64(propData[base+2])
	}

	mesh := &kernel.Mesh{Vertices: vertices, Faces: faces}
	if err := mesh.Validate(); err != nil {
		return nil, fmt.Errorf("manifold: %w", err)
	}
	mesh.Normals = kernel.ComputeNormals(mesh)
	return mesh, nil
}
