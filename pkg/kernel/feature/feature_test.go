package feature

import (
	"errors"
	"math"
	"testing"

	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/csg"
	"github.com/qutlas/cadmium/pkg/kernel/primitive"
)

func cube(t *testing.T, size float64) *kernel.Mesh {
	t.Helper()
	m, err := primitive.Box(size, size, size)
	if err != nil {
		t.Fatalf("Box() error = %v", err)
	}
	return m
}

func closedVolume(t *testing.T, m *kernel.Mesh) float64 {
	t.Helper()
	if err := kernel.ValidateSolid(m, 1e-9); err != nil {
		t.Fatalf("result is not a valid solid: %v", err)
	}
	return kernel.SignedVolume(m)
}

// arcWaste is the cross-section area removed by an n-segment fillet of
// radius r on a right-angled edge.
func arcWaste(r float64, n int) float64 {
	return r * r * (1 - float64(n)/2*math.Sin(math.Pi/2/float64(n)))
}

func TestSharpEdges(t *testing.T) {
	if got := len(SharpEdges(cube(t, 2), DefaultSharpAngle)); got != 12 {
		t.Errorf("len(SharpEdges(box)) = %d, want 12", got)
	}
	sphere, err := primitive.Sphere(1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(SharpEdges(sphere, DefaultSharpAngle)); got != 0 {
		t.Errorf("len(SharpEdges(sphere)) = %d, want 0", got)
	}
	cyl, err := primitive.Cylinder(1, 2, 16)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(SharpEdges(cyl, DefaultSharpAngle)); got != 32 {
		t.Errorf("len(SharpEdges(cylinder)) = %d, want 32", got)
	}
}

func TestAddFilletConvexEdge(t *testing.T) {
	m := cube(t, 10)
	edge := SharpEdges(m, DefaultSharpAngle)[0]
	got, err := New(csg.New(0)).AddFillet(m, edge, 1)
	if err != nil {
		t.Fatalf("AddFillet() error = %v", err)
	}
	want := 1000 - 10*arcWaste(1, DefaultArcSegments)
	if v := closedVolume(t, got); math.Abs(v-want) > 1e-6 {
		t.Errorf("volume = %f, want %f", v, want)
	}
	bb, err := kernel.ComputeBoundingBox(got)
	if err != nil {
		t.Fatal(err)
	}
	if ext := bb.Extents(); ext != [3]float64{10, 10, 10} {
		t.Errorf("Extents() = %v, want [10 10 10]", ext)
	}
}

func TestAddChamferConvexEdge(t *testing.T) {
	m := cube(t, 10)
	edge := SharpEdges(m, DefaultSharpAngle)[0]
	got, err := New(nil).AddChamfer(m, edge, 1)
	if err != nil {
		t.Fatalf("AddChamfer() error = %v", err)
	}
	if v := closedVolume(t, got); math.Abs(v-995) > 1e-6 {
		t.Errorf("volume = %f, want 995", v)
	}
}

func TestFilletEdgesBox(t *testing.T) {
	m := cube(t, 10)
	hash := kernel.ComputeHash(m)
	got, err := New(nil).FilletEdges(m, 1)
	if err != nil {
		t.Fatalf("FilletEdges() error = %v", err)
	}
	if kernel.ComputeHash(m) != hash {
		t.Error("FilletEdges() modified its input")
	}
	waste := arcWaste(1, DefaultArcSegments)
	v := closedVolume(t, got)
	if lo, hi := 1000-12*10*waste, 1000-12*8*waste; v < lo || v > hi {
		t.Errorf("volume = %f, want within [%f, %f]", v, lo, hi)
	}
	if len(got.Normals) != len(got.Vertices) {
		t.Errorf("len(Normals) = %d, want %d", len(got.Normals), len(got.Vertices))
	}
}

func TestBlendEdgesClosesCornerSeams(t *testing.T) {
	tests := []struct {
		name    string
		l, w, h float64
		at      [3]float64
		size    float64
		chamfer bool
	}{
		{"fillet bracket plate", 40, 20, 5, [3]float64{0, 0, 2.5}, 1, false},
		{"fillet offset cube", 10, 10, 10, [3]float64{3.7, -1.3, 0.9}, 1.3, false},
		{"fillet thin slab", 12, 7, 3, [3]float64{}, 0.7, false},
		{"chamfer bracket plate", 40, 20, 5, [3]float64{0, 0, 2.5}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box, err := primitive.Box(tt.l, tt.w, tt.h)
			if err != nil {
				t.Fatalf("Box() error = %v", err)
			}
			box = kernel.Translate(box, tt.at[0], tt.at[1], tt.at[2])
			ed := New(nil)
			var got *kernel.Mesh
			if tt.chamfer {
				got, err = ed.ChamferEdges(box, tt.size)
			} else {
				got, err = ed.FilletEdges(box, tt.size)
			}
			if err != nil {
				t.Fatalf("blend error = %v", err)
			}
			if v, full := closedVolume(t, got), tt.l*tt.w*tt.h; v >= full || v < full*0.8 {
				t.Errorf("volume = %f, want just under %f", v, full)
			}
		})
	}
}

func TestChamferEdgesIsDeterministic(t *testing.T) {
	m := cube(t, 4)
	ed := New(nil)
	a, err := ed.ChamferEdges(m, 0.5)
	if err != nil {
		t.Fatalf("ChamferEdges() error = %v", err)
	}
	b, err := ed.ChamferEdges(m, 0.5)
	if err != nil {
		t.Fatalf("ChamferEdges() error = %v", err)
	}
	if kernel.ComputeHash(a) != kernel.ComputeHash(b) {
		t.Error("ChamferEdges() hashes differ between runs")
	}
	if v := closedVolume(t, a); v >= 64 {
		t.Errorf("volume = %f, want less than 64", v)
	}
}

func TestAddFilletConcaveEdgeAddsMaterial(t *testing.T) {
	eng := csg.New(0)
	base, err := primitive.Box(2, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	riser, err := primitive.Box(1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	l, err := eng.Union(base, kernel.Translate(riser, -0.5, 0, 1))
	if err != nil {
		t.Fatalf("Union() error = %v", err)
	}
	before := closedVolume(t, l)

	// The inside corner runs along Y at x=0, z=0.5.
	edge := -1
	for i, e := range kernel.Edges(l) {
		a, b := l.Vertex(e.A), l.Vertex(e.B)
		if math.Abs(a.X) < 1e-9 && math.Abs(b.X) < 1e-9 && math.Abs(a.Z-0.5) < 1e-9 && math.Abs(b.Z-0.5) < 1e-9 {
			edge = i
			break
		}
	}
	if edge < 0 {
		t.Fatal("inside corner edge not found")
	}
	got, err := New(eng).AddFillet(l, edge, 0.2)
	if err != nil {
		t.Fatalf("AddFillet() error = %v", err)
	}
	if after := closedVolume(t, got); after <= before {
		t.Errorf("volume = %f, want more than %f", after, before)
	}
}

func TestAddHole(t *testing.T) {
	m := cube(t, 10)
	got, err := New(nil).AddHole(m, 0, 0, 5, 2, 4)
	if err != nil {
		t.Fatalf("AddHole() error = %v", err)
	}
	area := float64(DefaultHoleSegments) / 2 * math.Sin(2*math.Pi/float64(DefaultHoleSegments))
	want := 1000 - 4*area
	if v := closedVolume(t, got); math.Abs(v-want) > 1e-6 {
		t.Errorf("volume = %f, want %f", v, want)
	}
}

func TestFeatureErrors(t *testing.T) {
	m := cube(t, 10)
	open := m.Clone()
	open.Faces = open.Faces[3:]
	flat := -1
	for _, e := range kernel.DescribeEdges(m) {
		if e.Faces == 2 && e.Angle < 1e-9 {
			flat = e.Index
			break
		}
	}
	sharp := SharpEdges(m, DefaultSharpAngle)[0]
	ed := New(nil)

	tests := []struct {
		name string
		run  func() (*kernel.Mesh, error)
		want error
	}{
		{"edge out of range", func() (*kernel.Mesh, error) { return ed.AddFillet(m, 1000, 1) }, kernel.ErrInvalidInput},
		{"negative edge", func() (*kernel.Mesh, error) { return ed.AddChamfer(m, -1, 1) }, kernel.ErrInvalidInput},
		{"zero radius", func() (*kernel.Mesh, error) { return ed.AddFillet(m, sharp, 0) }, kernel.ErrInvalidInput},
		{"nan distance", func() (*kernel.Mesh, error) { return ed.ChamferEdges(m, math.NaN()) }, kernel.ErrInvalidInput},
		{"radius too large", func() (*kernel.Mesh, error) { return ed.AddFillet(m, sharp, 20) }, kernel.ErrDegenerate},
		{"flat edge", func() (*kernel.Mesh, error) { return ed.AddFillet(m, flat, 1) }, kernel.ErrDegenerate},
		{"open mesh", func() (*kernel.Mesh, error) { return ed.FilletEdges(open, 1) }, kernel.ErrDegenerate},
		{"hole zero depth", func() (*kernel.Mesh, error) { return ed.AddHole(m, 0, 0, 5, 2, 0) }, kernel.ErrInvalidInput},
		{"hole infinite x", func() (*kernel.Mesh, error) { return ed.AddHole(m, math.Inf(1), 0, 5, 2, 1) }, kernel.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.run()
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if got != nil {
				t.Errorf("result = %v, want nil", got)
			}
		})
	}
}
