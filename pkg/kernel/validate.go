package kernel

import (
	"math"
)

// SignedVolume returns the volume enclosed by m using the divergence
// theorem over origin-based tetrahedra. It is positive for a closed mesh
// with outward-facing triangles.
func SignedVolume(m *Mesh) float64 {
	var vol float64
	for t := 0; t < m.TriangleCount(); t++ {
		a, b, c := m.Corners(t)
		vol += Dot(a, Cross(b, c))
	}
	return vol / 6
}

// BoundaryEdges returns every directed edge (a,b) whose reverse (b,a) is
// missing, in face order. Each entry packs a in the high and b in the low
// 32 bits.
func BoundaryEdges(m *Mesh) []uint64 {
	count := directedEdgeCounts(m)
	var out []uint64
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		for k := 0; k < 3; k++ {
			a, b := tri[k], tri[(k+1)%3]
			if count[directedKey(b, a)] == 0 {
				out = append(out, directedKey(a, b))
			}
		}
	}
	return out
}

func directedEdgeCounts(m *Mesh) map[uint64]int {
	count := make(map[uint64]int, len(m.Faces))
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		for k := 0; k < 3; k++ {
			count[directedKey(tri[k], tri[(k+1)%3])]++
		}
	}
	return count
}

// CheckClosed verifies that m is a closed, consistently oriented 2-manifold:
// no triangle repeats an index, and every directed edge occurs exactly once
// with its reverse also occurring exactly once.
func CheckClosed(m *Mesh) error {
	const op = "check closed"
	var collapsed, open, nonManifold int
	count := directedEdgeCounts(m)
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0] {
			collapsed++
			continue
		}
		for k := 0; k < 3; k++ {
			a, b := tri[k], tri[(k+1)%3]
			switch fwd, rev := count[directedKey(a, b)], count[directedKey(b, a)]; {
			case fwd > 1 || rev > 1:
				nonManifold++
			case rev == 0:
				open++
			}
		}
	}
	switch {
	case collapsed > 0:
		return Errorf(KindDegenerate, op, "%d triangles reference the same vertex twice", collapsed)
	case nonManifold > 0:
		return Errorf(KindDegenerate, op, "mesh is non-manifold: %d edges shared by more than two faces", nonManifold)
	case open > 0:
		return Errorf(KindDegenerate, op, "mesh is open: %d boundary edges", open)
	}
	return nil
}

// ValidateSolid checks that m can take part in a boolean or feature
// operation: structurally valid, closed, outward facing and enclosing more
// than eps times the squared bounding diagonal of volume.
func ValidateSolid(m *Mesh, eps float64) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.IsEmpty() {
		return Errorf(KindDegenerate, "validate solid", "mesh has no triangles")
	}
	if err := CheckClosed(m); err != nil {
		return err
	}
	bb, err := ComputeBoundingBox(m)
	if err != nil {
		return err
	}
	scale := bb.Diagonal()
	vol := SignedVolume(m)
	if math.Abs(vol) <= eps*scale*scale {
		return Errorf(KindDegenerate, "validate solid", "mesh encloses no volume (%g)", vol)
	}
	if vol < 0 {
		return Errorf(KindDegenerate, "validate solid", "mesh is inside out (volume %g)", vol)
	}
	return nil
}
