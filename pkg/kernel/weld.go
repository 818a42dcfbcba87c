package kernel

import (
	"math"
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
)

// R-tree fan-out used by the spatial indexes below.
const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
)

// indexedPoint is a vertex stored in an R-tree.
type indexedPoint struct {
	index uint32
	pos   v3.Vec
	rect  rtreego.Rect
}

func (p *indexedPoint) Bounds() rtreego.Rect { return p.rect }

func newIndexedPoint(index uint32, pos v3.Vec, tol float64) *indexedPoint {
	return &indexedPoint{
		index: index,
		pos:   pos,
		rect:  rtreego.Point{pos.X, pos.Y, pos.Z}.ToRect(tol),
	}
}

// pointIndex finds vertices near a query point or segment.
type pointIndex struct {
	tree *rtreego.Rtree
	tol  float64
}

func newPointIndex(tol float64) *pointIndex {
	// Rects must have positive extent for the tree's overlap test.
	if tol <= 0 {
		tol = 1e-12
	}
	return &pointIndex{tree: rtreego.NewTree(3, rtreeMinChildren, rtreeMaxChildren), tol: tol}
}

func (pi *pointIndex) insert(index uint32, pos v3.Vec) {
	pi.tree.Insert(newIndexedPoint(index, pos, pi.tol))
}

// within returns the indices of stored points closer than r to p,
// sorted ascending.
func (pi *pointIndex) within(p v3.Vec, r float64) []uint32 {
	q := rtreego.Point{p.X, p.Y, p.Z}.ToRect(r)
	var out []uint32
	for _, s := range pi.tree.SearchIntersect(q) {
		ip := s.(*indexedPoint)
		if Length(ip.pos.Sub(p)) <= r {
			out = append(out, ip.index)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// inBox returns the stored points intersecting the box spanned by a and b
// grown by r.
func (pi *pointIndex) inBox(a, b v3.Vec, r float64) []*indexedPoint {
	lo := rtreego.Point{math.Min(a.X, b.X) - r, math.Min(a.Y, b.Y) - r, math.Min(a.Z, b.Z) - r}
	hi := rtreego.Point{math.Max(a.X, b.X) + r, math.Max(a.Y, b.Y) + r, math.Max(a.Z, b.Z) + r}
	rect, err := rtreego.NewRectFromPoints(lo, hi)
	if err != nil {
		return nil
	}
	res := pi.tree.SearchIntersect(rect)
	out := make([]*indexedPoint, len(res))
	for i, s := range res {
		out[i] = s.(*indexedPoint)
	}
	return out
}

// Weld merges vertices closer than eps. Vertices are visited in buffer
// order and each joins the lowest-numbered earlier representative within
// reach, so the output depends only on the input buffers. Triangles that
// collapse to fewer than three distinct indices are dropped. Normals are
// not carried over.
func Weld(m *Mesh, eps float64) *Mesh {
	idx := newPointIndex(eps)
	remap := make([]uint32, m.VertexCount())
	out := &Mesh{
		Vertices: make([]float64, 0, len(m.Vertices)),
		Faces:    make([]uint32, 0, len(m.Faces)),
		Material: m.Material,
		Name:     m.Name,
	}
	for i := 0; i < m.VertexCount(); i++ {
		p := m.Vertex(uint32(i))
		if near := idx.within(p, eps); len(near) > 0 {
			remap[i] = near[0]
			continue
		}
		n := uint32(len(out.Vertices) / 3)
		out.Vertices = append(out.Vertices, p.X, p.Y, p.Z)
		idx.insert(n, p)
		remap[i] = n
	}
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		a, b, c := remap[tri[0]], remap[tri[1]], remap[tri[2]]
		if a == b || b == c || c == a {
			continue
		}
		out.Faces = append(out.Faces, a, b, c)
	}
	return compact(out)
}

// compact drops vertices no triangle references, preserving order.
func compact(m *Mesh) *Mesh {
	used := make([]bool, m.VertexCount())
	for _, f := range m.Faces {
		used[f] = true
	}
	remap := make([]uint32, len(used))
	verts := make([]float64, 0, len(m.Vertices))
	for i, u := range used {
		if !u {
			continue
		}
		remap[i] = uint32(len(verts) / 3)
		verts = append(verts, m.Vertices[i*3:i*3+3]...)
	}
	faces := make([]uint32, len(m.Faces))
	for i, f := range m.Faces {
		faces[i] = remap[f]
	}
	return &Mesh{Vertices: verts, Faces: faces, Material: m.Material, Name: m.Name}
}

// maxRepairPasses bounds RepairTJunctions; each pass splits at most one
// edge per triangle.
const maxRepairPasses = 32

// RepairTJunctions splits triangles whose boundary edges pass through
// other vertices of the mesh, so that every edge is matched by a reverse
// edge. Booleans produce such T-junctions wherever one side of a seam was
// split and the other was not. No vertices are created.
func RepairTJunctions(m *Mesh, eps float64) *Mesh {
	cur := m
	for pass := 0; pass < maxRepairPasses; pass++ {
		next, changed := splitBoundaryEdges(cur, eps)
		if !changed {
			return next
		}
		cur = next
	}
	return cur
}

type onEdge struct {
	index uint32
	s     float64
}

func splitBoundaryEdges(m *Mesh, eps float64) (*Mesh, bool) {
	boundary := make(map[uint64]bool)
	for _, k := range BoundaryEdges(m) {
		boundary[k] = true
	}
	if len(boundary) == 0 {
		return m, false
	}
	idx := newPointIndex(eps)
	for i := 0; i < m.VertexCount(); i++ {
		idx.insert(uint32(i), m.Vertex(uint32(i)))
	}

	out := &Mesh{
		Vertices: m.Vertices,
		Faces:    make([]uint32, 0, len(m.Faces)+len(boundary)*3),
		Material: m.Material,
		Name:     m.Name,
	}
	changed := false
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		split := false
		for k := 0; k < 3 && !split; k++ {
			a, b, c := tri[k], tri[(k+1)%3], tri[(k+2)%3]
			if !boundary[directedKey(a, b)] {
				continue
			}
			pts := pointsOnSegment(m, idx, a, b, eps)
			if len(pts) == 0 {
				continue
			}
			// Fan from the opposite corner across the split edge.
			prev := a
			for _, p := range pts {
				out.Faces = append(out.Faces, prev, p.index, c)
				prev = p.index
			}
			out.Faces = append(out.Faces, prev, b, c)
			split = true
			changed = true
		}
		if !split {
			out.Faces = append(out.Faces, tri[0], tri[1], tri[2])
		}
	}
	return out, changed
}

// pointsOnSegment returns the vertices strictly inside segment ab within
// eps of it, ordered from a to b.
func pointsOnSegment(m *Mesh, idx *pointIndex, a, b uint32, eps float64) []onEdge {
	pa, pb := m.Vertex(a), m.Vertex(b)
	d := pb.Sub(pa)
	l2 := Dot(d, d)
	if l2 == 0 {
		return nil
	}
	l := math.Sqrt(l2)
	var pts []onEdge
	for _, ip := range idx.inBox(pa, pb, eps) {
		if ip.index == a || ip.index == b {
			continue
		}
		s := Dot(ip.pos.Sub(pa), d) / l2
		if s*l <= eps || (1-s)*l <= eps {
			continue
		}
		closest := AddScaled(pa, d, s)
		if Length(closest.Sub(ip.pos)) > eps {
			continue
		}
		pts = append(pts, onEdge{index: ip.index, s: s})
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].s != pts[j].s {
			return pts[i].s < pts[j].s
		}
		return pts[i].index < pts[j].index
	})
	// Coincident candidates left over from welding would create slivers.
	out := pts[:0]
	for _, p := range pts {
		if len(out) > 0 && (p.s-out[len(out)-1].s)*l <= eps {
			continue
		}
		out = append(out, p)
	}
	return out
}

// CloseHoles closes the boundary loops RepairTJunctions leaves behind when
// a seam vertex lies just outside its tolerance. A three-edge loop is
// closed by merging the ends of its shortest edge when that edge is no
// longer than tol, or else by splitting the triangle that owns its longest
// edge at the opposite vertex when that vertex lies within tol of the
// edge. A longer loop is fan-filled if its vertices lie within tol of a
// common plane. Loops that fit none of these stay open.
func CloseHoles(m *Mesh, tol float64) *Mesh {
	cur := m
	for pass := 0; pass < maxRepairPasses; pass++ {
		loops := boundaryLoops(cur)
		if len(loops) == 0 {
			return cur
		}
		closed := false
		for _, loop := range loops {
			if next, ok := closeLoop(cur, loop, tol); ok {
				cur, closed = next, true
				break
			}
		}
		if !closed {
			return cur
		}
	}
	return cur
}

// boundaryLoops chains the boundary edges of m into closed loops, in face
// order. Loop i lists vertices v0..vn-1 for the edges v0->v1 .. vn-1->v0.
// Chains that do not close are dropped.
func boundaryLoops(m *Mesh) [][]uint32 {
	edges := BoundaryEdges(m)
	next := make(map[uint32][]uint32, len(edges))
	for _, k := range edges {
		a, b := uint32(k>>32), uint32(k)
		next[a] = append(next[a], b)
	}
	used := make(map[uint64]bool, len(edges))
	var loops [][]uint32
	for _, k := range edges {
		if used[k] {
			continue
		}
		used[k] = true
		start, v := uint32(k>>32), uint32(k)
		loop := []uint32{start}
		for steps := 0; v != start && steps < len(edges); steps++ {
			loop = append(loop, v)
			found := false
			for _, w := range next[v] {
				if key := directedKey(v, w); !used[key] {
					used[key] = true
					v, found = w, true
					break
				}
			}
			if !found {
				break
			}
		}
		if v == start && len(loop) >= 3 {
			loops = append(loops, loop)
		}
	}
	return loops
}

func closeLoop(m *Mesh, loop []uint32, tol float64) (*Mesh, bool) {
	n := len(loop)
	if n == 3 {
		short, long := 0, 0
		for i := 1; i < 3; i++ {
			if loopEdgeLength(m, loop, i) < loopEdgeLength(m, loop, short) {
				short = i
			}
			if loopEdgeLength(m, loop, i) > loopEdgeLength(m, loop, long) {
				long = i
			}
		}
		if loopEdgeLength(m, loop, short) <= tol {
			return mergeVertices(m, loop[short], loop[(short+1)%3]), true
		}
		u, v, w := loop[long], loop[(long+1)%3], loop[(long+2)%3]
		return splitAt(m, u, v, w, tol)
	}

	pts := make([]v3.Vec, n)
	for i, idx := range loop {
		pts[i] = m.Vertex(idx)
	}
	if !planar(pts, tol) {
		return m, false
	}
	faces := append(make([]uint32, 0, len(m.Faces)+3*(n-2)), m.Faces...)
	for i := 1; i+1 < n; i++ {
		faces = append(faces, loop[0], loop[i+1], loop[i])
	}
	return &Mesh{Vertices: m.Vertices, Faces: faces, Material: m.Material, Name: m.Name}, true
}

func loopEdgeLength(m *Mesh, loop []uint32, i int) float64 {
	return Length(m.Vertex(loop[(i+1)%len(loop)]).Sub(m.Vertex(loop[i])))
}

// mergeVertices replaces drop with keep, discarding collapsed triangles
// and the unused vertex.
func mergeVertices(m *Mesh, keep, drop uint32) *Mesh {
	out := &Mesh{Vertices: m.Vertices, Faces: make([]uint32, 0, len(m.Faces)), Material: m.Material, Name: m.Name}
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		for k := range tri {
			if tri[k] == drop {
				tri[k] = keep
			}
		}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0] {
			continue
		}
		out.Faces = append(out.Faces, tri[0], tri[1], tri[2])
	}
	return compact(out)
}

// splitAt splits the triangle owning the directed edge u->v at w, which
// must project strictly inside the edge and lie within tol of it.
func splitAt(m *Mesh, u, v, w uint32, tol float64) (*Mesh, bool) {
	pu, pv, pw := m.Vertex(u), m.Vertex(v), m.Vertex(w)
	d := pv.Sub(pu)
	l2 := Dot(d, d)
	if l2 == 0 {
		return m, false
	}
	s := Dot(pw.Sub(pu), d) / l2
	if s <= 0 || s >= 1 || Length(pw.Sub(AddScaled(pu, d, s))) > tol {
		return m, false
	}
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		for k := 0; k < 3; k++ {
			if tri[k] != u || tri[(k+1)%3] != v {
				continue
			}
			x := tri[(k+2)%3]
			faces := append(make([]uint32, 0, len(m.Faces)+3), m.Faces...)
			faces[3*t], faces[3*t+1], faces[3*t+2] = u, w, x
			faces = append(faces, w, v, x)
			return &Mesh{Vertices: m.Vertices, Faces: faces, Material: m.Material, Name: m.Name}, true
		}
	}
	return m, false
}

// planar reports whether pts lie within tol of the plane through their
// centroid with their Newell normal.
func planar(pts []v3.Vec, tol float64) bool {
	var n, c v3.Vec
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		n = n.Add(Cross(p, q))
		c = c.Add(p)
	}
	l := Length(n)
	if l < 1e-300 {
		return false
	}
	n = n.DivScalar(l)
	c = c.DivScalar(float64(len(pts)))
	for _, p := range pts {
		if math.Abs(Dot(n, p.Sub(c))) > tol {
			return false
		}
	}
	return true
}
