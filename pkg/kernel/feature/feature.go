// Package feature applies local modifications to closed meshes: drilled
// holes and rounded or bevelled edges. Every feature is built as a cutter
// solid and merged with the body through a boolean, so the result is a
// new closed mesh and the input is never modified.
//
// Edges are addressed by their index in kernel.Edges. A convex edge has
// material removed; a concave edge has material added.
package feature

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/csg"
	"github.com/qutlas/cadmium/pkg/kernel/primitive"
	"github.com/samber/lo"
)

// Defaults for a zero-valued Editor.
const (
	DefaultArcSegments  = 8
	DefaultHoleSegments = 32
	DefaultSharpAngle   = 30.0 // degrees
)

// holeOvershoot extends a hole cutter above its entry point, as a
// fraction of its depth, so the cutter never shares a plane with the face
// it enters through.
const holeOvershoot = 0.05

// Editor applies features using a boolean engine.
type Editor struct {
	Booleans *csg.Engine
	// ArcSegments is the number of straight segments per fillet arc.
	ArcSegments int
	// HoleSegments is the number of sides of a hole cutter.
	HoleSegments int
	// SharpAngle is the minimum deviation in degrees between adjacent face
	// normals for FilletEdges and ChamferEdges to treat an edge as sharp.
	SharpAngle float64
}

// New returns an Editor that uses b for booleans.
func New(b *csg.Engine) *Editor {
	return &Editor{Booleans: b}
}

func (ed *Editor) booleans() *csg.Engine {
	if ed.Booleans == nil {
		return csg.New(0)
	}
	return ed.Booleans
}

func (ed *Editor) eps() float64 {
	if b := ed.booleans(); b.Epsilon > 0 {
		return b.Epsilon
	}
	return csg.DefaultEpsilon
}

func (ed *Editor) arcSegments() int {
	if ed.ArcSegments > 0 {
		return ed.ArcSegments
	}
	return DefaultArcSegments
}

func (ed *Editor) holeSegments() int {
	if ed.HoleSegments > 0 {
		return ed.HoleSegments
	}
	return DefaultHoleSegments
}

func (ed *Editor) sharpAngle() float64 {
	if ed.SharpAngle > 0 {
		return ed.SharpAngle
	}
	return DefaultSharpAngle
}

func checkPositive(op, name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return kernel.Errorf(kernel.KindInvalidInput, op, "%s must be a positive finite number, got %v", name, v)
	}
	return nil
}

func checkFinite(op, name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return kernel.Errorf(kernel.KindInvalidInput, op, "%s must be finite, got %v", name, v)
	}
	return nil
}

// AddHole drills a cylindrical hole of the given diameter along -Z. The
// entry point (x, y, z) is the centre of the top of the hole and the hole
// extends depth below it.
func (ed *Editor) AddHole(m *kernel.Mesh, x, y, z, diameter, depth float64) (*kernel.Mesh, error) {
	const op = "add hole"
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, c := range []struct {
		name string
		v    float64
	}{{"x", x}, {"y", y}, {"z", z}} {
		if err := checkFinite(op, c.name, c.v); err != nil {
			return nil, err
		}
	}
	if err := checkPositive(op, "diameter", diameter); err != nil {
		return nil, err
	}
	if err := checkPositive(op, "depth", depth); err != nil {
		return nil, err
	}
	over := math.Max(depth*holeOvershoot, 100*ed.eps())
	height := depth + over
	cyl, err := primitive.Cylinder(diameter/2, height, ed.holeSegments())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tool := kernel.Translate(cyl, x, y, z+over-height/2)
	out, err := ed.booleans().Subtract(m, tool)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// AddFillet rounds edge edgeIndex with a circular arc of the given radius.
func (ed *Editor) AddFillet(m *kernel.Mesh, edgeIndex int, radius float64) (*kernel.Mesh, error) {
	return ed.blendEdge("add fillet", m, edgeIndex, radius, profileFillet)
}

// AddChamfer bevels edge edgeIndex with a flat face set back distance
// along each adjacent face.
func (ed *Editor) AddChamfer(m *kernel.Mesh, edgeIndex int, distance float64) (*kernel.Mesh, error) {
	return ed.blendEdge("add chamfer", m, edgeIndex, distance, profileChamfer)
}

func (ed *Editor) blendEdge(op string, m *kernel.Mesh, edgeIndex int, size float64, p profile) (*kernel.Mesh, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := checkPositive(op, p.sizeName(), size); err != nil {
		return nil, err
	}
	edges := kernel.Edges(m)
	if edgeIndex < 0 || edgeIndex >= len(edges) {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "edge index %d out of range (mesh has %d edges)", edgeIndex, len(edges))
	}
	if err := kernel.ValidateSolid(m, ed.eps()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c, err := ed.buildCutter(m, edges[edgeIndex], size, p)
	if err != nil {
		return nil, fmt.Errorf("%s: edge %d: %w", op, edgeIndex, err)
	}
	out, err := ed.booleans().Apply(c.op, m, c.mesh)
	if err != nil {
		return nil, fmt.Errorf("%s: edge %d: %w", op, edgeIndex, err)
	}
	return out, nil
}

// FilletEdges rounds every sharp edge of m.
func (ed *Editor) FilletEdges(m *kernel.Mesh, radius float64) (*kernel.Mesh, error) {
	return ed.blendSharpEdges("fillet edges", m, radius, profileFillet)
}

// ChamferEdges bevels every sharp edge of m.
func (ed *Editor) ChamferEdges(m *kernel.Mesh, distance float64) (*kernel.Mesh, error) {
	return ed.blendSharpEdges("chamfer edges", m, distance, profileChamfer)
}

// blendSharpEdges builds every cutter from the input mesh first, then
// applies them one after another in edge order. Corners where three
// blended edges meet keep the shape left by the intersecting cutters.
func (ed *Editor) blendSharpEdges(op string, m *kernel.Mesh, size float64, p profile) (*kernel.Mesh, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := checkPositive(op, p.sizeName(), size); err != nil {
		return nil, err
	}
	if err := kernel.ValidateSolid(m, ed.eps()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	edges := kernel.Edges(m)
	sharp := SharpEdges(m, ed.sharpAngle())
	cutters := make([]cutter, 0, len(sharp))
	for _, i := range sharp {
		c, err := ed.buildCutter(m, edges[i], size, p)
		if err != nil {
			return nil, fmt.Errorf("%s: edge %d: %w", op, i, err)
		}
		cutters = append(cutters, c)
	}
	cur := m.Clone()
	for k, c := range cutters {
		next, err := ed.booleans().Apply(c.op, cur, c.mesh)
		if err != nil {
			return nil, fmt.Errorf("%s: edge %d: %w", op, sharp[k], err)
		}
		cur = next
	}
	return cur, nil
}

// SharpEdges returns the indices into kernel.Edges(m) of two-face edges
// whose face normals deviate by more than angle degrees.
func SharpEdges(m *kernel.Mesh, angle float64) []int {
	sharp := lo.Filter(kernel.DescribeEdges(m), func(e kernel.EdgeInfo, _ int) bool {
		return e.Faces == 2 && e.Angle > angle
	})
	return lo.Map(sharp, func(e kernel.EdgeInfo, _ int) int { return e.Index })
}

// ---------------------------------------------------------------------------
// Cutters
// ---------------------------------------------------------------------------

type profile int

const (
	profileFillet profile = iota
	profileChamfer
)

func (p profile) sizeName() string {
	if p == profileChamfer {
		return "distance"
	}
	return "radius"
}

// cutter is a prism to subtract from or add to the body.
type cutter struct {
	op   csg.Op
	mesh *kernel.Mesh
}

// Minimum dihedral deviation in radians for an edge to be blended.
const minBlendAngle = 1e-6

// buildCutter builds the prism for one edge. Its cross-section lies in the
// plane perpendicular to the edge:
//
//	P' -- TA+push -- TA -- profile -- TB -- TB+push
//
// where TA and TB are the tangent points on faces A and B and P' is the
// edge point pushed away from the body (convex) or into it (concave) so
// the prism overlaps the body instead of sharing its faces.
func (ed *Editor) buildCutter(m *kernel.Mesh, e kernel.Edge, size float64, p profile) (cutter, error) {
	const op = "edge cutter"
	if len(e.Faces) != 2 {
		return cutter{}, kernel.Errorf(kernel.KindDegenerate, op, "edge is shared by %d faces, want 2", len(e.Faces))
	}
	fa, fb := e.Faces[0], e.Faces[1]
	p0, p1 := m.Vertex(e.A), m.Vertex(e.B)
	axis := p1.Sub(p0)
	length := kernel.Length(axis)
	if length <= ed.eps() {
		return cutter{}, kernel.Errorf(kernel.KindDegenerate, op, "edge has zero length")
	}
	d := axis.DivScalar(length)

	na, nb := kernel.FaceNormal(m, fa), kernel.FaceNormal(m, fb)
	if kernel.Length(na) == 0 || kernel.Length(nb) == 0 {
		return cutter{}, kernel.Errorf(kernel.KindDegenerate, op, "adjacent face has no area")
	}
	cos := math.Max(-1, math.Min(1, kernel.Dot(na, nb)))
	theta := math.Acos(cos)
	if theta < minBlendAngle {
		return cutter{}, kernel.Errorf(kernel.KindDegenerate, op, "edge is flat")
	}
	if math.Pi-theta < minBlendAngle {
		return cutter{}, kernel.Errorf(kernel.KindDegenerate, op, "edge is a knife edge")
	}

	qa := kernel.OppositeVertex(m, fa, e)
	qb := kernel.OppositeVertex(m, fb, e)
	// sigma is -1 for a convex edge (face B falls away below plane A).
	sigma := 1.0
	if kernel.Dot(na, qb.Sub(p0)) < 0 {
		sigma = -1
	}

	ta := inFace(na, d, qa.Sub(p0))
	tb := inFace(nb, d, qb.Sub(p0))

	var (
		tA, tB v3.Vec
		arc    []v3.Vec
	)
	switch p {
	case profileFillet:
		w := na.Add(nb).DivScalar(1 + cos)
		c := kernel.AddScaled(p0, w, sigma*size)
		tA = kernel.AddScaled(c, na, -sigma*size)
		tB = kernel.AddScaled(c, nb, -sigma*size)
		ua, ub := kernel.Scale(na, -sigma), kernel.Scale(nb, -sigma)
		n := ed.arcSegments()
		for k := 1; k < n; k++ {
			arc = append(arc, kernel.AddScaled(c, slerp(ua, ub, theta, float64(k)/float64(n)), size))
		}
	case profileChamfer:
		tA = kernel.AddScaled(p0, ta, size)
		tB = kernel.AddScaled(p0, tb, size)
	}

	// The blend may not consume the whole adjacent face.
	setback := math.Max(kernel.Length(tA.Sub(p0)), kernel.Length(tB.Sub(p0)))
	for _, f := range []struct {
		name string
		q    v3.Vec
	}{{"first", qa}, {"second", qb}} {
		if reach := distanceToLine(f.q, p0, d); setback >= reach-ed.eps() {
			return cutter{}, kernel.Errorf(kernel.KindDegenerate, op,
				"%s %g needs a setback of %g but the %s adjacent face is only %g wide",
				p.sizeName(), size, setback, f.name, reach)
		}
	}

	push := math.Max(0.02*size, 100*ed.eps())
	ring := []v3.Vec{
		kernel.AddScaled(p0, na.Add(nb), -sigma*push),
		kernel.AddScaled(tA, na, -sigma*push),
		tA,
	}
	ring = append(ring, arc...)
	ring = append(ring, tB, kernel.AddScaled(tB, nb, -sigma*push))

	// Only a removal may run past the ends of the edge; added material
	// stays within the edge span.
	start, end := 0.0, length
	result := csg.OpUnion
	if sigma < 0 {
		over := float64(2*setback) + push
		start, end = -over, length+over
		result = csg.OpSubtract
	}
	prism := extrude(ring, d, start, end)
	if kernel.SignedVolume(prism) < 0 {
		prism = kernel.Flip(prism)
	}
	return cutter{op: result, mesh: prism}, nil
}

// inFace returns the unit direction perpendicular to d lying in the plane
// with normal n and pointing toward toward.
func inFace(n, d, toward v3.Vec) v3.Vec {
	t := kernel.Cross(n, d)
	t = t.DivScalar(kernel.Length(t))
	if kernel.Dot(t, toward) < 0 {
		return t.Neg()
	}
	return t
}

// slerp interpolates between unit vectors a and b separated by theta.
func slerp(a, b v3.Vec, theta, t float64) v3.Vec {
	s := math.Sin(theta)
	return kernel.Combine(a, math.Sin((1-t)*theta)/s, b, math.Sin(t*theta)/s)
}

func distanceToLine(q, p0, d v3.Vec) float64 {
	v := q.Sub(p0)
	return kernel.Length(kernel.AddScaled(v, d, -kernel.Dot(v, d)))
}

// extrude sweeps a closed ring that is star-shaped about ring[0] along d
// from offset start to offset end.
func extrude(ring []v3.Vec, d v3.Vec, start, end float64) *kernel.Mesh {
	n := len(ring)
	b := kernel.NewBuilder(2*n, 4*n)
	bot := make([]uint32, n)
	top := make([]uint32, n)
	for i, p := range ring {
		bot[i] = b.Add(kernel.AddScaled(p, d, start))
	}
	for i, p := range ring {
		top[i] = b.Add(kernel.AddScaled(p, d, end))
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		b.Quad(bot[i], bot[j], top[j], top[i])
	}
	for i := 1; i+1 < n; i++ {
		b.Tri(bot[0], bot[i+1], bot[i])
		b.Tri(top[0], top[i], top[i+1])
	}
	return b.Mesh()
}
