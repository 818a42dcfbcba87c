package kernel

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Edge is an undirected mesh edge. A and B are ordered as the edge first
// appears in the face buffer; Faces lists every triangle using it, in
// face order.
type Edge struct {
	A, B  uint32
	Faces []int
}

func edgeKey(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}

func directedKey(a, b uint32) uint64 {
	return uint64(a)<<32 | uint64(b)
}

// Edges returns the unique undirected edges of m in order of first
// appearance when scanning the face buffer triangle by triangle, edges
// (i0,i1), (i1,i2), (i2,i0). Feature operations address edges by their
// position in this slice.
func Edges(m *Mesh) []Edge {
	index := make(map[uint64]int, len(m.Faces))
	edges := make([]Edge, 0, len(m.Faces)/2)
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		for k := 0; k < 3; k++ {
			a, b := tri[k], tri[(k+1)%3]
			key := edgeKey(a, b)
			if i, ok := index[key]; ok {
				edges[i].Faces = append(edges[i].Faces, t)
				continue
			}
			index[key] = len(edges)
			edges = append(edges, Edge{A: a, B: b, Faces: []int{t}})
		}
	}
	return edges
}

// EdgeInfo describes an edge for callers that pick edges to blend.
type EdgeInfo struct {
	Index int        `json:"index"`
	Start [3]float64 `json:"start"`
	End   [3]float64 `json:"end"`
	Faces int        `json:"faces"`
	// Angle is the deviation between the adjacent face normals in degrees;
	// 0 for a flat edge, 90 for a box edge. -1 when the edge is not shared
	// by exactly two faces.
	Angle float64 `json:"angle"`
}

// DescribeEdges returns one EdgeInfo per entry of Edges(m).
func DescribeEdges(m *Mesh) []EdgeInfo {
	edges := Edges(m)
	out := make([]EdgeInfo, len(edges))
	for i, e := range edges {
		a, b := m.Vertex(e.A), m.Vertex(e.B)
		out[i] = EdgeInfo{
			Index: i,
			Start: [3]float64{a.X, a.Y, a.Z},
			End:   [3]float64{b.X, b.Y, b.Z},
			Faces: len(e.Faces),
			Angle: DihedralDeviation(m, e),
		}
	}
	return out
}

// DihedralDeviation returns the angle in degrees between the normals of the
// two faces sharing e, or -1 if e is not a two-face edge.
func DihedralDeviation(m *Mesh, e Edge) float64 {
	if len(e.Faces) != 2 {
		return -1
	}
	na := FaceNormal(m, e.Faces[0])
	nb := FaceNormal(m, e.Faces[1])
	d := Dot(na, nb)
	d = math.Max(-1, math.Min(1, d))
	return math.Acos(d) * 180 / math.Pi
}

// OppositeVertex returns the vertex of triangle t that is not on edge e.
func OppositeVertex(m *Mesh, t int, e Edge) v3.Vec {
	for _, idx := range m.Triangle(t) {
		if idx != e.A && idx != e.B {
			return m.Vertex(idx)
		}
	}
	return m.Vertex(m.Triangle(t)[0])
}
