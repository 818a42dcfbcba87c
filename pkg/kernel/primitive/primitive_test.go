package primitive

import (
	"errors"
	"math"
	"testing"

	"github.com/qutlas/cadmium/pkg/kernel"
)

func mustBBox(t *testing.T, m *kernel.Mesh) kernel.BoundingBox {
	t.Helper()
	bb, err := kernel.ComputeBoundingBox(m)
	if err != nil {
		t.Fatalf("ComputeBoundingBox() error = %v", err)
	}
	return bb
}

func TestBoxExtents(t *testing.T) {
	m, err := Box(150, 60, 40)
	if err != nil {
		t.Fatalf("Box() error = %v", err)
	}
	if m.VertexCount() != 8 || m.TriangleCount() != 12 {
		t.Errorf("Box() = %d vertices %d triangles, want 8 and 12", m.VertexCount(), m.TriangleCount())
	}
	bb := mustBBox(t, m)
	if got := bb.Extents(); got != [3]float64{150, 60, 40} {
		t.Errorf("Extents() = %v, want [150 60 40]", got)
	}
	if bb.Max != [3]float64{75, 30, 20} || bb.Min != [3]float64{-75, -30, -20} {
		t.Errorf("bbox = %v..%v, want centered at origin", bb.Min, bb.Max)
	}
	if got := kernel.SignedVolume(m); math.Abs(got-150*60*40) > 1e-6 {
		t.Errorf("SignedVolume() = %f, want %d", got, 150*60*40)
	}
}

func TestBoxParametricUpdate(t *testing.T) {
	before, err := Box(100, 50, 30)
	if err != nil {
		t.Fatal(err)
	}
	after, err := Box(150, 60, 40)
	if err != nil {
		t.Fatal(err)
	}
	if got := mustBBox(t, before).Extents(); got != [3]float64{100, 50, 30} {
		t.Errorf("before Extents() = %v", got)
	}
	if got := mustBBox(t, after).Extents(); got != [3]float64{150, 60, 40} {
		t.Errorf("after Extents() = %v, want [150 60 40]", got)
	}
}

func TestPrimitivesAreClosedSolids(t *testing.T) {
	tests := []struct {
		name      string
		build     func() (*kernel.Mesh, error)
		vertices  int
		triangles int
		volume    float64
		volTol    float64
	}{
		{"box", func() (*kernel.Mesh, error) { return Box(2, 3, 4) }, 8, 12, 24, 1e-9},
		{"cylinder", func() (*kernel.Mesh, error) { return Cylinder(1, 2, 0) }, 66, 128, 2 * math.Pi, 0.05},
		{"cone", func() (*kernel.Mesh, error) { return Cone(1, 3, 0) }, 34, 64, math.Pi, 0.05},
		{"sphere", func() (*kernel.Mesh, error) { return Sphere(1, 0, 0) }, 31*32 + 2, 2 * 32 * 31, 4 * math.Pi / 3, 0.1},
		{"torus", func() (*kernel.Mesh, error) { return Torus(3, 1, 0, 0) }, 32 * 16, 2 * 32 * 16, 2 * math.Pi * math.Pi * 3, 3},
		{"coarse sphere", func() (*kernel.Mesh, error) { return Sphere(1, 2, 3) }, 5, 6, 0, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.build()
			if err != nil {
				t.Fatalf("build error = %v", err)
			}
			if m.VertexCount() != tt.vertices {
				t.Errorf("VertexCount() = %d, want %d", m.VertexCount(), tt.vertices)
			}
			if m.TriangleCount() != tt.triangles {
				t.Errorf("TriangleCount() = %d, want %d", m.TriangleCount(), tt.triangles)
			}
			if len(m.Normals) != len(m.Vertices) {
				t.Errorf("len(Normals) = %d, want %d", len(m.Normals), len(m.Vertices))
			}
			if err := kernel.ValidateSolid(m, 1e-9); err != nil {
				t.Errorf("ValidateSolid() error = %v", err)
			}
			if got := kernel.SignedVolume(m); math.Abs(got-tt.volume) > tt.volTol {
				t.Errorf("SignedVolume() = %f, want about %f", got, tt.volume)
			}
		})
	}
}

func TestRoundSolidsAreCenteredOnZ(t *testing.T) {
	cyl, err := Cylinder(5, 20, 32)
	if err != nil {
		t.Fatal(err)
	}
	bb := mustBBox(t, cyl)
	if bb.Min[2] != -10 || bb.Max[2] != 10 {
		t.Errorf("Cylinder Z range = [%f,%f], want [-10,10]", bb.Min[2], bb.Max[2])
	}
	if math.Abs(bb.Max[0]-5) > 1e-12 {
		t.Errorf("Cylinder max X = %f, want 5", bb.Max[0])
	}

	cone, err := Cone(5, 20, 32)
	if err != nil {
		t.Fatal(err)
	}
	// Vertex 1 is the apex.
	if apex := cone.Vertex(1); apex.X != 0 || apex.Y != 0 || apex.Z != 10 {
		t.Errorf("Cone apex = %v, want (0,0,10)", apex)
	}
}

func TestPrimitivesAreDeterministic(t *testing.T) {
	a, _ := Torus(10, 2, 24, 12)
	b, _ := Torus(10, 2, 24, 12)
	if kernel.ComputeHash(a) != kernel.ComputeHash(b) {
		t.Error("Torus() hashes differ for identical arguments")
	}
	for i := range a.Normals {
		if a.Normals[i] != b.Normals[i] {
			t.Fatalf("Torus() normals differ at %d", i)
		}
	}
}

func TestPrimitiveInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*kernel.Mesh, error)
	}{
		{"box zero", func() (*kernel.Mesh, error) { return Box(0, 1, 1) }},
		{"box negative", func() (*kernel.Mesh, error) { return Box(1, -1, 1) }},
		{"box nan", func() (*kernel.Mesh, error) { return Box(1, 1, math.NaN()) }},
		{"cylinder inf", func() (*kernel.Mesh, error) { return Cylinder(math.Inf(1), 1, 8) }},
		{"cylinder two segments", func() (*kernel.Mesh, error) { return Cylinder(1, 1, 2) }},
		{"cylinder negative segments", func() (*kernel.Mesh, error) { return Cylinder(1, 1, -4) }},
		{"cone too many segments", func() (*kernel.Mesh, error) { return Cone(1, 1, MaxSegments+1) }},
		{"sphere one band", func() (*kernel.Mesh, error) { return Sphere(1, 1, 8) }},
		{"torus minor too large", func() (*kernel.Mesh, error) { return Torus(1, 1, 8, 8) }},
		{"torus zero minor", func() (*kernel.Mesh, error) { return Torus(1, 0, 8, 8) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.build()
			if err == nil {
				t.Fatalf("build() = %v, want error", m)
			}
			if !errors.Is(err, kernel.ErrInvalidInput) {
				t.Errorf("error kind = %v, want invalid input", kernel.KindOf(err))
			}
		})
	}
}
