package sdfx

import (
	"errors"
	"math"
	"testing"

	"github.com/qutlas/cadmium/pkg/kernel"
)

const testCells = 48

func mustMesh(t *testing.T, k *SdfxKernel, s kernel.Solid, err error) *kernel.Mesh {
	t.Helper()
	if err != nil {
		t.Fatalf("build error = %v", err)
	}
	m, err := k.ToMesh(s)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if m.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	if len(m.Vertices) != len(m.Normals) {
		t.Fatalf("vertices length %d != normals length %d", len(m.Vertices), len(m.Normals))
	}
	return m
}

func TestBox(t *testing.T) {
	k := New(testCells)
	box, err := k.Box(100, 50, 25)
	mesh := mustMesh(t, k, box, err)
	if err := mesh.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	// Welding shares the corners of adjacent sampled triangles.
	if mesh.VertexCount() >= mesh.TriangleCount()*3 {
		t.Errorf("VertexCount() = %d, want fewer than %d", mesh.VertexCount(), mesh.TriangleCount()*3)
	}
	if v := kernel.SignedVolume(mesh); math.Abs(v-125000)/125000 > 0.05 {
		t.Errorf("volume = %f, want about 125000", v)
	}
}

func TestPrimitiveVolumes(t *testing.T) {
	k := New(testCells)
	tests := []struct {
		name   string
		build  func() (kernel.Solid, error)
		volume float64
	}{
		{"cylinder", func() (kernel.Solid, error) { return k.Cylinder(10, 50, 32) }, math.Pi * 100 * 50},
		{"sphere", func() (kernel.Solid, error) { return k.Sphere(10, 0, 0) }, 4 * math.Pi * 1000 / 3},
		{"cone", func() (kernel.Solid, error) { return k.Cone(10, 30, 0) }, math.Pi * 100 * 30 / 3},
		{"torus", func() (kernel.Solid, error) { return k.Torus(20, 5, 0, 0) }, 2 * math.Pi * math.Pi * 20 * 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.build()
			m := mustMesh(t, k, s, err)
			if v := kernel.SignedVolume(m); math.Abs(v-tt.volume)/tt.volume > 0.1 {
				t.Errorf("volume = %f, want about %f", v, tt.volume)
			}
		})
	}
}

func TestDifference(t *testing.T) {
	k := New(testCells)
	box, err := k.Box(100, 100, 100)
	boxMesh := mustMesh(t, k, box, err)

	cyl, err := k.Cylinder(20, 120, 32)
	if err != nil {
		t.Fatal(err)
	}
	diff, err := k.Difference(box, cyl)
	diffMesh := mustMesh(t, k, diff, err)
	// A box with a hole should have more triangles than a plain box.
	if diffMesh.TriangleCount() <= boxMesh.TriangleCount() {
		t.Fatalf("difference (%d triangles) should have more triangles than box (%d triangles)",
			diffMesh.TriangleCount(), boxMesh.TriangleCount())
	}
	if kernel.SignedVolume(diffMesh) >= kernel.SignedVolume(boxMesh) {
		t.Error("difference did not remove volume")
	}
}

func TestUnionAndIntersection(t *testing.T) {
	k := New(testCells)
	a, _ := k.Box(50, 50, 50)
	b, _ := k.Box(50, 50, 50)
	b = k.Translate(b, 30, 0, 0)

	u, err := k.Union(a, b)
	um := mustMesh(t, k, u, err)
	i, err := k.Intersection(a, b)
	im := mustMesh(t, k, i, err)
	if kernel.SignedVolume(um) <= kernel.SignedVolume(im) {
		t.Errorf("union volume %f <= intersection volume %f", kernel.SignedVolume(um), kernel.SignedVolume(im))
	}
}

func TestTranslate(t *testing.T) {
	k := New(testCells)
	box, _ := k.Box(10, 10, 10)
	min, max := k.Translate(box, 100, 200, 300).BoundingBox()

	const tol = 0.5
	expectMin := [3]float64{95, 195, 295}
	expectMax := [3]float64{105, 205, 305}
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-expectMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected ~%f", i, min[i], expectMin[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected ~%f", i, max[i], expectMax[i])
		}
	}
}

func TestBoundingBoxIsCentered(t *testing.T) {
	k := New(testCells)
	box, _ := k.Box(100, 50, 25)
	min, max := box.BoundingBox()

	const tol = 0.01
	expectMin := [3]float64{-50, -25, -12.5}
	expectMax := [3]float64{50, 25, 12.5}
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-expectMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected %f", i, min[i], expectMin[i])
		}
		if math.Abs(max[i]-expectMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected %f", i, max[i], expectMax[i])
		}
	}
}

func TestRotate(t *testing.T) {
	k := New(testCells)
	box, _ := k.Box(100, 10, 10)

	// A long box along X rotated 90 degrees around Z should extend along Y instead.
	min, max := k.Rotate(box, 0, 0, 90).BoundingBox()
	const tol = 1.0
	if x := max[0] - min[0]; math.Abs(x-10) > tol {
		t.Errorf("rotated X extent = %f, expected ~10", x)
	}
	if y := max[1] - min[1]; math.Abs(y-100) > tol {
		t.Errorf("rotated Y extent = %f, expected ~100", y)
	}
}

func TestInvalidInput(t *testing.T) {
	k := New(testCells)
	tests := []struct {
		name  string
		build func() (kernel.Solid, error)
	}{
		{"box zero", func() (kernel.Solid, error) { return k.Box(0, 1, 1) }},
		{"sphere nan", func() (kernel.Solid, error) { return k.Sphere(math.NaN(), 0, 0) }},
		{"torus inverted radii", func() (kernel.Solid, error) { return k.Torus(1, 2, 0, 0) }},
		{"union with foreign solid", func() (kernel.Solid, error) {
			a, _ := k.Box(1, 1, 1)
			return k.Union(a, nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			if !errors.Is(err, kernel.ErrInvalidInput) {
				t.Errorf("error = %v, want invalid input", err)
			}
		})
	}
}
