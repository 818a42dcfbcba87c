package kernel

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// The helpers below round every product to float64 before it is summed.
// The Go spec lets the compiler fuse x*y+z into one FMA instruction on
// arm64, ppc64le and s390x but not on amd64, so unconverted products give
// different low bits per platform. An explicit float64() conversion
// forbids the fusion. Geometry on the hashed path goes through these.

// Dot returns a·b.
func Dot(a, b v3.Vec) float64 {
	return float64(a.X*b.X) + float64(a.Y*b.Y) + float64(a.Z*b.Z)
}

// Cross returns a×b.
func Cross(a, b v3.Vec) v3.Vec {
	return v3.Vec{
		X: float64(a.Y*b.Z) - float64(a.Z*b.Y),
		Y: float64(a.Z*b.X) - float64(a.X*b.Z),
		Z: float64(a.X*b.Y) - float64(a.Y*b.X),
	}
}

// Length returns |a|.
func Length(a v3.Vec) float64 {
	return math.Sqrt(Dot(a, a))
}

// Scale returns a*s.
func Scale(a v3.Vec, s float64) v3.Vec {
	return v3.Vec{X: a.X * s, Y: a.Y * s, Z: a.Z * s}
}

// AddScaled returns p + d*s.
func AddScaled(p, d v3.Vec, s float64) v3.Vec {
	return v3.Vec{X: p.X + float64(d.X*s), Y: p.Y + float64(d.Y*s), Z: p.Z + float64(d.Z*s)}
}

// Combine returns a*s + b*t.
func Combine(a v3.Vec, s float64, b v3.Vec, t float64) v3.Vec {
	return v3.Vec{
		X: float64(a.X*s) + float64(b.X*t),
		Y: float64(a.Y*s) + float64(b.Y*t),
		Z: float64(a.Z*s) + float64(b.Z*t),
	}
}
