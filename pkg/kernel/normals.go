package kernel

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// FaceNormal returns the unit normal of triangle t, or the zero vector for
// a triangle with no area.
func FaceNormal(m *Mesh, t int) v3.Vec {
	a, b, c := m.Corners(t)
	n := Cross(b.Sub(a), c.Sub(a))
	l := Length(n)
	if l < 1e-300 {
		return v3.Vec{}
	}
	return n.DivScalar(l)
}

// ComputeNormals returns per-vertex normals: the area-weighted average of
// the normals of every incident triangle. Triangles are visited in face
// order so the result is reproducible bit for bit.
func ComputeNormals(m *Mesh) []float64 {
	normals := make([]float64, len(m.Vertices))
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		a, b, c := m.Vertex(tri[0]), m.Vertex(tri[1]), m.Vertex(tri[2])
		// Cross product length is twice the area, so no extra weighting.
		n := Cross(b.Sub(a), c.Sub(a))
		for _, idx := range tri {
			normals[idx*3+0] += n.X
			normals[idx*3+1] += n.Y
			normals[idx*3+2] += n.Z
		}
	}
	for i := 0; i < len(normals); i += 3 {
		nx, ny, nz := normals[i], normals[i+1], normals[i+2]
		length := math.Sqrt(float64(nx*nx) + float64(ny*ny) + float64(nz*nz))
		if length > 1e-300 {
			normals[i] = nx / length
			normals[i+1] = ny / length
			normals[i+2] = nz / length
		}
	}
	return normals
}
