package kernel

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// MassProperties holds derived measurements of a closed mesh, assuming
// uniform unit density.
type MassProperties struct {
	Volume      float64    `json:"volume"`
	SurfaceArea float64    `json:"surfaceArea"`
	Centroid    [3]float64 `json:"centroid"`
}

// ComputeMassProperties sums signed tetrahedra against the origin for
// volume and centroid and triangle areas for surface area. A mesh that
// encloses no volume reports the vertex average as its centroid.
func ComputeMassProperties(m *Mesh) (MassProperties, error) {
	if m.IsEmpty() {
		return MassProperties{}, Errorf(KindInvalidInput, "mass properties", "mesh has no triangles")
	}
	var (
		vol    float64
		area   float64
		moment v3.Vec
	)
	for t := 0; t < m.TriangleCount(); t++ {
		a, b, c := m.Corners(t)
		v := Dot(a, Cross(b, c)) / 6
		vol += v
		moment = AddScaled(moment, a.Add(b).Add(c), v/4)
		area += Length(Cross(b.Sub(a), c.Sub(a))) / 2
	}
	mp := MassProperties{Volume: vol, SurfaceArea: area}
	if math.Abs(vol) > 1e-300 {
		c := moment.DivScalar(vol)
		mp.Centroid = [3]float64{c.X, c.Y, c.Z}
		return mp, nil
	}
	var sum v3.Vec
	for i := 0; i < m.VertexCount(); i++ {
		sum = sum.Add(m.Vertex(uint32(i)))
	}
	c := sum.DivScalar(float64(m.VertexCount()))
	mp.Centroid = [3]float64{c.X, c.Y, c.Z}
	return mp, nil
}
