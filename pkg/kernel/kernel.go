// Package kernel defines the triangle-mesh data model shared by every
// geometry backend, the abstract Kernel interface those backends implement,
// and the analysis primitives (bounding box, content hash, edge set, mass
// properties) that operate directly on meshes.
//
// Meshes are immutable values. Every function in this package and its
// sub-packages returns a freshly allocated mesh and never writes to its input.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface.
// Implementations (cadmium, sdfx, manifold) provide solid modeling behind
// this interface. All primitives are centered at the origin with Z up.
type Kernel interface {
	// Primitives
	Box(length, width, height float64) (Solid, error)
	Cylinder(radius, height float64, segments int) (Solid, error)
	Sphere(radius float64, segmentsLat, segmentsLon int) (Solid, error)
	Cone(radius, height float64, segments int) (Solid, error)
	Torus(majorRadius, minorRadius float64, segmentsMajor, segmentsMinor int) (Solid, error)

	// Boolean operations
	Union(a, b Solid) (Solid, error)
	Difference(a, b Solid) (Solid, error)
	Intersection(a, b Solid) (Solid, error)

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees, X then Y then Z

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}

// MeshImporter is implemented by kernels that can adopt an existing
// triangle mesh as a solid.
type MeshImporter interface {
	FromMesh(m *Mesh) (Solid, error)
}

// EdgeBlender is implemented by kernels that can round or bevel the sharp
// edges of a solid.
type EdgeBlender interface {
	FilletEdges(s Solid, radius float64) (Solid, error)
	ChamferEdges(s Solid, distance float64) (Solid, error)
}
