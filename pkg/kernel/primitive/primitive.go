// Package primitive builds closed, outward-facing triangle meshes for the
// basic solids. Every solid is centered at the origin with Z up; round
// solids use Z as their axis. Identical arguments always produce identical
// buffers.
package primitive

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/qutlas/cadmium/pkg/kernel"
)

// Default tessellation.
const (
	DefaultSegments      = 32
	DefaultSegmentsLat   = 32
	DefaultSegmentsLon   = 32
	DefaultSegmentsMajor = 32
	DefaultSegmentsMinor = 16

	// MaxSegments bounds every segment count so one request cannot
	// allocate an unbounded mesh.
	MaxSegments = 4096
)

func checkDim(op, name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return kernel.Errorf(kernel.KindInvalidInput, op, "%s must be finite, got %v", name, v)
	}
	if v <= 0 {
		return kernel.Errorf(kernel.KindInvalidInput, op, "%s must be positive, got %v", name, v)
	}
	return nil
}

func checkSegments(op, name string, n, min int) error {
	if n < min || n > MaxSegments {
		return kernel.Errorf(kernel.KindInvalidInput, op, "%s must be in [%d, %d], got %d", name, min, MaxSegments, n)
	}
	return nil
}

// orDefault maps a zero segment count to the default.
func orDefault(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}

func finish(b *kernel.Builder) *kernel.Mesh {
	m := b.Mesh()
	m.Normals = kernel.ComputeNormals(m)
	return m
}

// ring returns the point at angle index i of n on a circle of radius r at height z.
func ring(r, z float64, i, n int) v3.Vec {
	a := 2 * math.Pi * float64(i) / float64(n)
	return v3.Vec{X: r * math.Cos(a), Y: r * math.Sin(a), Z: z}
}

// Box returns an axis-aligned box with extents length (X), width (Y) and
// height (Z): 8 vertices and 12 triangles.
func Box(length, width, height float64) (*kernel.Mesh, error) {
	const op = "create box"
	for _, d := range []struct {
		name string
		v    float64
	}{{"length", length}, {"width", width}, {"height", height}} {
		if err := checkDim(op, d.name, d.v); err != nil {
			return nil, err
		}
	}
	x, y, z := length/2, width/2, height/2
	b := kernel.NewBuilder(8, 12)
	for _, p := range []v3.Vec{
		{X: -x, Y: -y, Z: -z}, {X: x, Y: -y, Z: -z}, {X: x, Y: y, Z: -z}, {X: -x, Y: y, Z: -z},
		{X: -x, Y: -y, Z: z}, {X: x, Y: -y, Z: z}, {X: x, Y: y, Z: z}, {X: -x, Y: y, Z: z},
	} {
		b.Add(p)
	}
	b.Quad(0, 3, 2, 1) // -Z
	b.Quad(4, 5, 6, 7) // +Z
	b.Quad(0, 1, 5, 4) // -Y
	b.Quad(3, 7, 6, 2) // +Y
	b.Quad(0, 4, 7, 3) // -X
	b.Quad(1, 2, 6, 5) // +X
	return finish(b), nil
}

// Cylinder returns a capped prism with the given number of sides
// approximating a cylinder along Z. segments of 0 selects the default.
func Cylinder(radius, height float64, segments int) (*kernel.Mesh, error) {
	return frustum("create cylinder", radius, height, segments, false)
}

// Cone returns a cone along Z with its base at -height/2 and its apex at
// +height/2. segments of 0 selects the default.
func Cone(radius, height float64, segments int) (*kernel.Mesh, error) {
	return frustum("create cone", radius, height, segments, true)
}

func frustum(op string, radius, height float64, segments int, apex bool) (*kernel.Mesh, error) {
	segments = orDefault(segments, DefaultSegments)
	if err := checkDim(op, "radius", radius); err != nil {
		return nil, err
	}
	if err := checkDim(op, "height", height); err != nil {
		return nil, err
	}
	if err := checkSegments(op, "segments", segments, 3); err != nil {
		return nil, err
	}
	h := height / 2
	b := kernel.NewBuilder(2*segments+2, 4*segments)
	bottom := b.Add(v3.Vec{Z: -h})
	top := b.Add(v3.Vec{Z: h})
	base := make([]uint32, segments)
	for i := range base {
		base[i] = b.Add(ring(radius, -h, i, segments))
	}
	if apex {
		for i := 0; i < segments; i++ {
			j := (i + 1) % segments
			b.Tri(base[i], base[j], top)
			b.Tri(bottom, base[j], base[i])
		}
		return finish(b), nil
	}
	lid := make([]uint32, segments)
	for i := range lid {
		lid[i] = b.Add(ring(radius, h, i, segments))
	}
	for i := 0; i < segments; i++ {
		j := (i + 1) % segments
		b.Quad(base[i], base[j], lid[j], lid[i])
		b.Tri(bottom, base[j], base[i])
		b.Tri(top, lid[i], lid[j])
	}
	return finish(b), nil
}

// Sphere returns a latitude/longitude sphere with a single vertex at each
// pole. segmentsLat counts bands from pole to pole, segmentsLon counts
// meridians. Zero selects the default.
func Sphere(radius float64, segmentsLat, segmentsLon int) (*kernel.Mesh, error) {
	const op = "create sphere"
	segmentsLat = orDefault(segmentsLat, DefaultSegmentsLat)
	segmentsLon = orDefault(segmentsLon, DefaultSegmentsLon)
	if err := checkDim(op, "radius", radius); err != nil {
		return nil, err
	}
	if err := checkSegments(op, "segmentsLat", segmentsLat, 2); err != nil {
		return nil, err
	}
	if err := checkSegments(op, "segmentsLon", segmentsLon, 3); err != nil {
		return nil, err
	}
	rings := segmentsLat - 1
	b := kernel.NewBuilder(rings*segmentsLon+2, 2*segmentsLon*segmentsLat)
	north := b.Add(v3.Vec{Z: radius})
	south := b.Add(v3.Vec{Z: -radius})
	idx := make([][]uint32, rings)
	for j := range idx {
		phi := math.Pi * float64(j+1) / float64(segmentsLat)
		z := radius * math.Cos(phi)
		r := radius * math.Sin(phi)
		idx[j] = make([]uint32, segmentsLon)
		for i := range idx[j] {
			idx[j][i] = b.Add(ring(r, z, i, segmentsLon))
		}
	}
	for i := 0; i < segmentsLon; i++ {
		k := (i + 1) % segmentsLon
		b.Tri(north, idx[0][i], idx[0][k])
		for j := 0; j+1 < rings; j++ {
			b.Quad(idx[j][i], idx[j+1][i], idx[j+1][k], idx[j][k])
		}
		b.Tri(south, idx[rings-1][k], idx[rings-1][i])
	}
	return finish(b), nil
}

// Torus returns a torus lying in the XY plane. The tube seam is shared so
// the mesh is closed. Zero segment counts select the defaults.
func Torus(majorRadius, minorRadius float64, segmentsMajor, segmentsMinor int) (*kernel.Mesh, error) {
	const op = "create torus"
	segmentsMajor = orDefault(segmentsMajor, DefaultSegmentsMajor)
	segmentsMinor = orDefault(segmentsMinor, DefaultSegmentsMinor)
	if err := checkDim(op, "majorRadius", majorRadius); err != nil {
		return nil, err
	}
	if err := checkDim(op, "minorRadius", minorRadius); err != nil {
		return nil, err
	}
	if minorRadius >= majorRadius {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op,
			"minorRadius %v must be smaller than majorRadius %v", minorRadius, majorRadius)
	}
	if err := checkSegments(op, "segmentsMajor", segmentsMajor, 3); err != nil {
		return nil, err
	}
	if err := checkSegments(op, "segmentsMinor", segmentsMinor, 3); err != nil {
		return nil, err
	}
	b := kernel.NewBuilder(segmentsMajor*segmentsMinor, 2*segmentsMajor*segmentsMinor)
	idx := make([][]uint32, segmentsMajor)
	for i := range idx {
		u := 2 * math.Pi * float64(i) / float64(segmentsMajor)
		cu, su := math.Cos(u), math.Sin(u)
		idx[i] = make([]uint32, segmentsMinor)
		for j := range idx[i] {
			v := 2 * math.Pi * float64(j) / float64(segmentsMinor)
			d := majorRadius + float64(minorRadius*math.Cos(v))
			idx[i][j] = b.Add(v3.Vec{X: d * cu, Y: d * su, Z: minorRadius * math.Sin(v)})
		}
	}
	for i := 0; i < segmentsMajor; i++ {
		ni := (i + 1) % segmentsMajor
		for j := 0; j < segmentsMinor; j++ {
			nj := (j + 1) % segmentsMinor
			b.Quad(idx[i][j], idx[ni][j], idx[ni][nj], idx[i][nj])
		}
	}
	return finish(b), nil
}
