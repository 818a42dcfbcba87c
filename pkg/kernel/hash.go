package kernel

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// ComputeHash returns the hex SHA-256 digest of the mesh content: every
// vertex coordinate as a little-endian IEEE-754 float64 followed by every
// face index as a little-endian uint32. Normals, material and name are not
// part of a mesh's identity. The hash is order sensitive: two meshes that
// describe the same solid with different vertex order hash differently.
//
// The kernel rounds every product before summing it (see Dot), so meshes
// built by the BSP engine hash the same on every GOARCH. Meshes from the
// sdfx backend go through sdfx's own arithmetic and carry no such promise.
func ComputeHash(m *Mesh) string {
	h := sha256.New()
	var buf [8]byte
	for _, v := range m.Vertices {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, f := range m.Faces {
		binary.LittleEndian.PutUint32(buf[:4], f)
		h.Write(buf[:4])
	}
	return hex.EncodeToString(h.Sum(nil))
}
