package csg

import (
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/qutlas/cadmium/pkg/kernel"
)

// ---------------------------------------------------------------------------
// Planes and polygons
// ---------------------------------------------------------------------------

// plane is the set of points p with n·p = w.
type plane struct {
	n v3.Vec
	w float64
}

func (p plane) flip() plane {
	return plane{n: p.n.Neg(), w: -p.w}
}

// planeFrom returns the plane through a, b, c and false if they are collinear.
func planeFrom(a, b, c v3.Vec) (plane, bool) {
	n := kernel.Cross(b.Sub(a), c.Sub(a))
	l := kernel.Length(n)
	if l < 1e-300 {
		return plane{}, false
	}
	n = n.DivScalar(l)
	return plane{n: n, w: kernel.Dot(n, a)}, true
}

// polygon is a convex planar polygon.
type polygon struct {
	verts []v3.Vec
	plane plane
}

func (p polygon) flip() polygon {
	verts := make([]v3.Vec, len(p.verts))
	for i, v := range p.verts {
		verts[len(verts)-1-i] = v
	}
	return polygon{verts: verts, plane: p.plane.flip()}
}

// Vertex classification against a plane.
const (
	coplanar = 0
	front    = 1
	back     = 2
	spanning = front | back
)

// splitter splits polygons with a fixed coplanarity tolerance.
type splitter struct {
	eps float64
}

// split assigns p to one of the four lists relative to pl. Coplanar
// polygons go to coFront or coBack depending on the direction of their
// normal; spanning polygons are cut in two along pl.
func (s splitter) split(pl plane, p polygon, coFront, coBack, fr, bk *[]polygon) {
	var polyType int
	types := make([]int, len(p.verts))
	for i, v := range p.verts {
		t := kernel.Dot(pl.n, v) - pl.w
		typ := coplanar
		if t < -s.eps {
			typ = back
		} else if t > s.eps {
			typ = front
		}
		polyType |= typ
		types[i] = typ
	}

	switch polyType {
	case coplanar:
		if kernel.Dot(pl.n, p.plane.n) > 0 {
			*coFront = append(*coFront, p)
		} else {
			*coBack = append(*coBack, p)
		}
	case front:
		*fr = append(*fr, p)
	case back:
		*bk = append(*bk, p)
	case spanning:
		f := make([]v3.Vec, 0, len(p.verts)+1)
		b := make([]v3.Vec, 0, len(p.verts)+1)
		for i := range p.verts {
			j := (i + 1) % len(p.verts)
			ti, tj := types[i], types[j]
			vi, vj := p.verts[i], p.verts[j]
			if ti != back {
				f = append(f, vi)
			}
			if ti != front {
				b = append(b, vi)
			}
			if ti|tj == spanning {
				d := vj.Sub(vi)
				t := (pl.w - kernel.Dot(pl.n, vi)) / kernel.Dot(pl.n, d)
				v := kernel.AddScaled(vi, d, t)
				f = append(f, v)
				b = append(b, v)
			}
		}
		if len(f) >= 3 {
			*fr = append(*fr, polygon{verts: f, plane: p.plane})
		}
		if len(b) >= 3 {
			*bk = append(*bk, polygon{verts: b, plane: p.plane})
		}
	}
}

// ---------------------------------------------------------------------------
// BSP tree
// ---------------------------------------------------------------------------

// node is a BSP tree node. Polygons coplanar with the node plane are kept
// at the node; the rest are pushed into the front and back subtrees.
type node struct {
	s        splitter
	plane    *plane
	front    *node
	back     *node
	polygons []polygon
}

func newNode(s splitter, polys []polygon) *node {
	n := &node{s: s}
	n.build(polys)
	return n
}

// invert turns the solid inside out.
func (n *node) invert() {
	for i := range n.polygons {
		n.polygons[i] = n.polygons[i].flip()
	}
	if n.plane != nil {
		p := n.plane.flip()
		n.plane = &p
	}
	if n.front != nil {
		n.front.invert()
	}
	if n.back != nil {
		n.back.invert()
	}
	n.front, n.back = n.back, n.front
}

// clipPolygons removes the parts of polys that lie inside this tree.
func (n *node) clipPolygons(polys []polygon) []polygon {
	if n.plane == nil {
		return append([]polygon(nil), polys...)
	}
	var fr, bk []polygon
	for _, p := range polys {
		n.s.split(*n.plane, p, &fr, &bk, &fr, &bk)
	}
	if n.front != nil {
		fr = n.front.clipPolygons(fr)
	}
	if n.back != nil {
		bk = n.back.clipPolygons(bk)
	} else {
		bk = nil
	}
	return append(fr, bk...)
}

// clipTo removes every polygon of this tree that lies inside other.
func (n *node) clipTo(other *node) {
	n.polygons = other.clipPolygons(n.polygons)
	if n.front != nil {
		n.front.clipTo(other)
	}
	if n.back != nil {
		n.back.clipTo(other)
	}
}

// allPolygons returns every polygon in the tree, node first, then front,
// then back.
func (n *node) allPolygons() []polygon {
	out := append([]polygon(nil), n.polygons...)
	if n.front != nil {
		out = append(out, n.front.allPolygons()...)
	}
	if n.back != nil {
		out = append(out, n.back.allPolygons()...)
	}
	return out
}

// build inserts polys into the tree. The first polygon of a new node
// supplies its splitting plane.
func (n *node) build(polys []polygon) {
	if len(polys) == 0 {
		return
	}
	if n.plane == nil {
		p := polys[0].plane
		n.plane = &p
	}
	var fr, bk []polygon
	for _, p := range polys {
		n.s.split(*n.plane, p, &n.polygons, &n.polygons, &fr, &bk)
	}
	if len(fr) > 0 {
		if n.front == nil {
			n.front = &node{s: n.s}
		}
		n.front.build(fr)
	}
	if len(bk) > 0 {
		if n.back == nil {
			n.back = &node{s: n.s}
		}
		n.back.build(bk)
	}
}
