package kernel

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// BoundingBox is an axis-aligned box. It is always derived from a mesh.
type BoundingBox struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// ComputeBoundingBox scans the vertex buffer once and returns the running
// min/max per axis. A mesh without vertices has no bounding box.
func ComputeBoundingBox(m *Mesh) (BoundingBox, error) {
	if m == nil || m.VertexCount() == 0 {
		return BoundingBox{}, Errorf(KindInvalidInput, "bounding box", "mesh has no vertices")
	}
	bb := BoundingBox{
		Min: [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)},
		Max: [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
	for i := 0; i < len(m.Vertices); i += 3 {
		for k := 0; k < 3; k++ {
			v := m.Vertices[i+k]
			if v < bb.Min[k] {
				bb.Min[k] = v
			}
			if v > bb.Max[k] {
				bb.Max[k] = v
			}
		}
	}
	return bb, nil
}

// Extents returns the box size per axis.
func (b BoundingBox) Extents() [3]float64 {
	return [3]float64{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() [3]float64 {
	return [3]float64{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

// Diagonal returns the length of the box diagonal.
func (b BoundingBox) Diagonal() float64 {
	e := b.Extents()
	return math.Sqrt(float64(e[0]*e[0]) + float64(e[1]*e[1]) + float64(e[2]*e[2]))
}

// Volume returns the box volume.
func (b BoundingBox) Volume() float64 {
	e := b.Extents()
	return e[0] * e[1] * e[2]
}

// Overlaps reports whether b and o intersect after growing both by eps.
func (b BoundingBox) Overlaps(o BoundingBox, eps float64) bool {
	for k := 0; k < 3; k++ {
		if b.Max[k]+eps < o.Min[k] || o.Max[k]+eps < b.Min[k] {
			return false
		}
	}
	return true
}

// Merge returns the smallest box containing b and o.
func (b BoundingBox) Merge(o BoundingBox) BoundingBox {
	out := b
	for k := 0; k < 3; k++ {
		out.Min[k] = math.Min(out.Min[k], o.Min[k])
		out.Max[k] = math.Max(out.Max[k], o.Max[k])
	}
	return out
}

// Contains reports whether p lies inside b grown by eps.
func (b BoundingBox) Contains(p v3.Vec, eps float64) bool {
	return p.X >= b.Min[0]-eps && p.X <= b.Max[0]+eps &&
		p.Y >= b.Min[1]-eps && p.Y <= b.Max[1]+eps &&
		p.Z >= b.Min[2]-eps && p.Z <= b.Max[2]+eps
}
