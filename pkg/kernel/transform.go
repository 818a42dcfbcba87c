package kernel

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// RotationMatrix returns the rotation for Euler angles in degrees applied
// about X, then Y, then Z.
func RotationMatrix(x, y, z float64) sdf.M44 {
	xRad := x * math.Pi / 180.0
	yRad := y * math.Pi / 180.0
	zRad := z * math.Pi / 180.0
	return mul44(mul44(sdf.RotateZ(zRad), sdf.RotateY(yRad)), sdf.RotateX(xRad))
}

// mul44 is sdf.M44.Mul with every product rounded before it is summed.
func mul44(a, b sdf.M44) sdf.M44 {
	var out sdf.M44
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[4*r+c] = float64(a[4*r]*b[c]) + float64(a[4*r+1]*b[4+c]) +
				float64(a[4*r+2]*b[8+c]) + float64(a[4*r+3]*b[12+c])
		}
	}
	return out
}

// mulPosition is sdf.M44.MulPosition with every product rounded before it
// is summed.
func mulPosition(a sdf.M44, p v3.Vec) v3.Vec {
	return v3.Vec{
		X: float64(a[0]*p.X) + float64(a[1]*p.Y) + float64(a[2]*p.Z) + a[3],
		Y: float64(a[4]*p.X) + float64(a[5]*p.Y) + float64(a[6]*p.Z) + a[7],
		Z: float64(a[8]*p.X) + float64(a[9]*p.Y) + float64(a[10]*p.Z) + a[11],
	}
}

// Translate returns a copy of m moved by (x, y, z).
func Translate(m *Mesh, x, y, z float64) *Mesh {
	out := m.Clone()
	for i := 0; i < len(out.Vertices); i += 3 {
		out.Vertices[i] += x
		out.Vertices[i+1] += y
		out.Vertices[i+2] += z
	}
	return out
}

// Rotate returns a copy of m rotated by Euler angles in degrees about the
// origin. Normals are rotated with the vertices.
func Rotate(m *Mesh, x, y, z float64) *Mesh {
	return Transform(m, RotationMatrix(x, y, z))
}

// Transform applies a rigid transform to the vertices and the rotational
// part of it to the normals. Mirroring transforms are not supported.
func Transform(m *Mesh, t sdf.M44) *Mesh {
	out := m.Clone()
	origin := mulPosition(t, v3.Vec{})
	for i := 0; i < len(out.Vertices); i += 3 {
		p := mulPosition(t, v3.Vec{X: out.Vertices[i], Y: out.Vertices[i+1], Z: out.Vertices[i+2]})
		out.Vertices[i], out.Vertices[i+1], out.Vertices[i+2] = p.X, p.Y, p.Z
	}
	for i := 0; i < len(out.Normals); i += 3 {
		n := mulPosition(t, v3.Vec{X: out.Normals[i], Y: out.Normals[i+1], Z: out.Normals[i+2]}).Sub(origin)
		out.Normals[i], out.Normals[i+1], out.Normals[i+2] = n.X, n.Y, n.Z
	}
	return out
}
