package csg

import (
	"errors"
	"math"
	"testing"

	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/kernel/primitive"
)

func box(t *testing.T, l, w, h, x, y, z float64) *kernel.Mesh {
	t.Helper()
	m, err := primitive.Box(l, w, h)
	if err != nil {
		t.Fatalf("Box() error = %v", err)
	}
	return kernel.Translate(m, x, y, z)
}

func volume(t *testing.T, m *kernel.Mesh) float64 {
	t.Helper()
	if m.IsEmpty() {
		return 0
	}
	if err := kernel.CheckClosed(m); err != nil {
		t.Fatalf("result is not closed: %v", err)
	}
	return kernel.SignedVolume(m)
}

func TestOverlappingBoxes(t *testing.T) {
	a := box(t, 2, 2, 2, 0, 0, 0)
	b := box(t, 2, 2, 2, 1, 1, 1)
	eng := New(0)

	tests := []struct {
		op      Op
		volume  float64
		wantMin [3]float64
		wantMax [3]float64
	}{
		{OpUnion, 15, [3]float64{-1, -1, -1}, [3]float64{2, 2, 2}},
		{OpSubtract, 7, [3]float64{-1, -1, -1}, [3]float64{1, 1, 1}},
		{OpIntersect, 1, [3]float64{0, 0, 0}, [3]float64{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got, err := eng.Apply(tt.op, a, b)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if v := volume(t, got); math.Abs(v-tt.volume) > 1e-9 {
				t.Errorf("volume = %f, want %f", v, tt.volume)
			}
			bb, err := kernel.ComputeBoundingBox(got)
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 3; i++ {
				if math.Abs(bb.Min[i]-tt.wantMin[i]) > 1e-9 || math.Abs(bb.Max[i]-tt.wantMax[i]) > 1e-9 {
					t.Errorf("bbox = %v..%v, want %v..%v", bb.Min, bb.Max, tt.wantMin, tt.wantMax)
					break
				}
			}
			if len(got.Normals) != len(got.Vertices) {
				t.Errorf("len(Normals) = %d, want %d", len(got.Normals), len(got.Vertices))
			}
		})
	}
}

func TestBooleanDoesNotMutateInputs(t *testing.T) {
	a := box(t, 2, 2, 2, 0, 0, 0)
	b := box(t, 2, 2, 2, 1, 1, 1)
	ha, hb := kernel.ComputeHash(a), kernel.ComputeHash(b)
	if _, err := New(0).Union(a, b); err != nil {
		t.Fatal(err)
	}
	if kernel.ComputeHash(a) != ha || kernel.ComputeHash(b) != hb {
		t.Error("Union() modified an operand")
	}
}

func TestIntersectIsCommutative(t *testing.T) {
	a := box(t, 4, 2, 2, 0, 0, 0)
	cyl, err := primitive.Cylinder(1.5, 6, 24)
	if err != nil {
		t.Fatal(err)
	}
	b := kernel.Rotate(cyl, 0, 90, 0)
	eng := New(0)
	ab, err := eng.Intersect(a, b)
	if err != nil {
		t.Fatalf("Intersect(a, b) error = %v", err)
	}
	ba, err := eng.Intersect(b, a)
	if err != nil {
		t.Fatalf("Intersect(b, a) error = %v", err)
	}
	if va, vb := volume(t, ab), volume(t, ba); math.Abs(va-vb) > 1e-6 {
		t.Errorf("volumes differ: %f vs %f", va, vb)
	}
	bbA, _ := kernel.ComputeBoundingBox(ab)
	bbB, _ := kernel.ComputeBoundingBox(ba)
	for i := 0; i < 3; i++ {
		if math.Abs(bbA.Min[i]-bbB.Min[i]) > 1e-6 || math.Abs(bbA.Max[i]-bbB.Max[i]) > 1e-6 {
			t.Errorf("bboxes differ: %v..%v vs %v..%v", bbA.Min, bbA.Max, bbB.Min, bbB.Max)
			break
		}
	}
}

func TestSubtractCylinderThroughBox(t *testing.T) {
	a := box(t, 10, 10, 10, 0, 0, 0)
	cyl, err := primitive.Cylinder(2, 20, 32)
	if err != nil {
		t.Fatal(err)
	}
	got, err := New(0).Subtract(a, cyl)
	if err != nil {
		t.Fatalf("Subtract() error = %v", err)
	}
	prism := 16 * 4 * math.Sin(2*math.Pi/32) * 10
	if v := volume(t, got); math.Abs(v-(1000-prism)) > 1e-6 {
		t.Errorf("volume = %f, want %f", v, 1000-prism)
	}
}

func TestEmptyIsIdentity(t *testing.T) {
	a := box(t, 3, 2, 1, 0, 0, 0)
	e := &kernel.Mesh{}
	eng := New(0)

	u, err := eng.Union(a, e)
	if err != nil {
		t.Fatal(err)
	}
	if kernel.ComputeHash(u) != kernel.ComputeHash(a) {
		t.Error("Union(a, empty) != a")
	}
	u, err = eng.Union(e, a)
	if err != nil {
		t.Fatal(err)
	}
	if kernel.ComputeHash(u) != kernel.ComputeHash(a) {
		t.Error("Union(empty, a) != a")
	}
	s, err := eng.Subtract(a, e)
	if err != nil {
		t.Fatal(err)
	}
	if kernel.ComputeHash(s) != kernel.ComputeHash(a) {
		t.Error("Subtract(a, empty) != a")
	}
	i, err := eng.Intersect(a, e)
	if err != nil {
		t.Fatal(err)
	}
	if !i.IsEmpty() {
		t.Error("Intersect(a, empty) is not empty")
	}
}

func TestSubtractSelfIsEmpty(t *testing.T) {
	a := box(t, 3, 2, 1, 0, 0, 0)
	got, err := New(0).Subtract(a, a.Clone())
	if err != nil {
		t.Fatalf("Subtract() error = %v", err)
	}
	if v := volume(t, got); math.Abs(v) > 1e-9 {
		t.Errorf("volume = %f, want 0", v)
	}
}

func TestDisjointOperands(t *testing.T) {
	a := box(t, 1, 1, 1, 0, 0, 0)
	b := box(t, 1, 1, 1, 10, 0, 0)
	eng := New(0)

	u, err := eng.Union(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if v := volume(t, u); math.Abs(v-2) > 1e-12 {
		t.Errorf("Union volume = %f, want 2", v)
	}
	s, err := eng.Subtract(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if kernel.ComputeHash(s) != kernel.ComputeHash(a) {
		t.Error("Subtract(disjoint) != a")
	}
	i, err := eng.Intersect(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !i.IsEmpty() {
		t.Error("Intersect(disjoint) is not empty")
	}
}

func TestTouchingBoxesUnion(t *testing.T) {
	a := box(t, 1, 1, 1, 0, 0, 0)
	b := box(t, 1, 1, 1, 1, 0, 0)
	got, err := New(0).Union(a, b)
	if err != nil {
		t.Fatalf("Union() error = %v", err)
	}
	if v := volume(t, got); math.Abs(v-2) > 1e-9 {
		t.Errorf("volume = %f, want 2", v)
	}
}

func TestBooleanIsDeterministic(t *testing.T) {
	a := box(t, 2, 2, 2, 0, 0, 0)
	sphere, err := primitive.Sphere(1.2, 12, 16)
	if err != nil {
		t.Fatal(err)
	}
	b := kernel.Translate(sphere, 1, 0.5, 0.25)
	eng := New(0)
	first, err := eng.Subtract(a, b)
	if err != nil {
		t.Fatalf("Subtract() error = %v", err)
	}
	second, err := eng.Subtract(a, b)
	if err != nil {
		t.Fatalf("Subtract() error = %v", err)
	}
	if kernel.ComputeHash(first) != kernel.ComputeHash(second) {
		t.Error("Subtract() hashes differ between runs")
	}
}

func TestBooleanRejectsBadInput(t *testing.T) {
	good := box(t, 1, 1, 1, 0, 0, 0)
	open := good.Clone()
	open.Faces = open.Faces[3:]
	inverted := kernel.Flip(good)
	ragged := &kernel.Mesh{Vertices: []float64{0, 0}}

	tests := []struct {
		name string
		a, b *kernel.Mesh
		want error
	}{
		{"open operand", good, open, kernel.ErrDegenerate},
		{"inside out operand", inverted, good, kernel.ErrDegenerate},
		{"ragged buffer", good, ragged, kernel.ErrInvalidInput},
		{"nil operand", good, nil, kernel.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(0).Union(tt.a, tt.b)
			if !errors.Is(err, tt.want) {
				t.Errorf("Union() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseOp(t *testing.T) {
	tests := []struct {
		in      string
		want    Op
		wantErr bool
	}{
		{"union", OpUnion, false},
		{"SUBTRACT", OpSubtract, false},
		{"difference", OpSubtract, false},
		{"intersect", OpIntersect, false},
		{"xor", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOp(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOp(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseOp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
