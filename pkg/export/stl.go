package export

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/deadsy/sdfx/render"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/qutlas/cadmium/pkg/kernel"
)

// Binary STL layout: an 80-byte header, a uint32 facet count, then one
// render.STLTriangle per facet.
const (
	stlHeaderSize = 80
	stlFacetSize  = 50
)

// WriteSTL writes m as an ASCII STL solid called name.
func WriteSTL(w io.Writer, m *kernel.Mesh, name string) error {
	if err := checkMesh("write stl", m); err != nil {
		return err
	}
	name = solidName(name)
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 128)

	buf = append(buf, "solid "...)
	buf = append(buf, name...)
	buf = append(buf, '\n')
	for t := 0; t < m.TriangleCount(); t++ {
		a, b, c := m.Corners(t)
		buf = appendVec(append(buf, "  facet normal "...), kernel.FaceNormal(m, t))
		buf = append(buf, "\n    outer loop\n"...)
		for _, v := range [3]v3.Vec{a, b, c} {
			buf = appendVec(append(buf, "      vertex "...), v)
			buf = append(buf, '\n')
		}
		buf = append(buf, "    endloop\n  endfacet\n"...)
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("write stl: %w", err)
		}
		buf = buf[:0]
	}
	buf = append(buf, "endsolid "...)
	buf = append(buf, name...)
	buf = append(buf, '\n')
	if _, err := bw.Write(buf); err != nil {
		return fmt.Errorf("write stl: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write stl: %w", err)
	}
	return nil
}

// appendVec appends v in float32 scientific notation.
func appendVec(buf []byte, v v3.Vec) []byte {
	buf = strconv.AppendFloat(buf, float64(float32(v.X)), 'e', -1, 32)
	buf = append(buf, ' ')
	buf = strconv.AppendFloat(buf, float64(float32(v.Y)), 'e', -1, 32)
	buf = append(buf, ' ')
	return strconv.AppendFloat(buf, float64(float32(v.Z)), 'e', -1, 32)
}

// WriteBinarySTL writes m as a binary STL. name goes into the header.
func WriteBinarySTL(w io.Writer, m *kernel.Mesh, name string) error {
	if err := checkMesh("write binary stl", m); err != nil {
		return err
	}
	if m.TriangleCount() > math.MaxUint32 {
		return kernel.Errorf(kernel.KindInvalidInput, "write binary stl", "%d triangles exceed the format limit", m.TriangleCount())
	}
	bw := bufio.NewWriter(w)

	var header [stlHeaderSize]byte
	copy(header[:], "cadmium "+solidName(name))
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("write binary stl: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(m.TriangleCount())); err != nil {
		return fmt.Errorf("write binary stl: %w", err)
	}

	var facet render.STLTriangle
	for t := 0; t < m.TriangleCount(); t++ {
		a, b, c := m.Corners(t)
		facet.Normal = float32s(kernel.FaceNormal(m, t))
		facet.Vertex1, facet.Vertex2, facet.Vertex3 = float32s(a), float32s(b), float32s(c)
		if err := binary.Write(bw, binary.LittleEndian, &facet); err != nil {
			return fmt.Errorf("write binary stl: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write binary stl: %w", err)
	}
	return nil
}

// ReadSTL reads an ASCII or binary STL. The result has three vertices per
// facet and no normals; its Name is taken from the solid line when present.
func ReadSTL(r io.Reader) (*kernel.Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stl: %w", err)
	}
	if isBinarySTL(data) {
		return readBinarySTL(data)
	}
	return readASCIISTL(data)
}

// isBinarySTL reports whether data has the exact size a binary STL with
// the facet count in its header would have. Some binary files start with
// "solid", so the size check wins over the keyword.
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	return uint64(len(data)) == stlHeaderSize+4+uint64(n)*stlFacetSize
}

func readBinarySTL(data []byte) (*kernel.Mesh, error) {
	n := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
	b := kernel.NewBuilder(n*3, n)
	r := bytes.NewReader(data[stlHeaderSize+4:])
	var facet render.STLTriangle
	for t := 0; t < n; t++ {
		if err := binary.Read(r, binary.LittleEndian, &facet); err != nil {
			return nil, fmt.Errorf("read stl: facet %d: %w", t, err)
		}
		b.Tri(b.Add(float64s(facet.Vertex1)), b.Add(float64s(facet.Vertex2)), b.Add(float64s(facet.Vertex3)))
	}
	m := b.Mesh()
	m.Name = strings.TrimSpace(strings.TrimPrefix(string(bytes.TrimRight(data[:stlHeaderSize], "\x00 ")), "cadmium "))
	return m, nil
}

func float32s(v v3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

func float64s(v [3]float32) v3.Vec {
	return v3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

func readASCIISTL(data []byte) (*kernel.Mesh, error) {
	const op = "read stl"
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	b := kernel.NewBuilder(0, 0)
	var (
		name    string
		corners []uint32
		line    int
		sawBody bool
	)
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "solid":
			if len(fields) > 1 {
				name = strings.Join(fields[1:], " ")
			}
			sawBody = true
		case "vertex":
			if len(fields) != 4 {
				return nil, kernel.Errorf(kernel.KindInvalidInput, op, "line %d: vertex needs 3 coordinates", line)
			}
			var p [3]float64
			for i := range p {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, kernel.Errorf(kernel.KindInvalidInput, op, "line %d: %w", line, err)
				}
				p[i] = f
			}
			corners = append(corners, b.Add(v3.Vec{X: p[0], Y: p[1], Z: p[2]}))
		case "endloop":
			if len(corners) != 3 {
				return nil, kernel.Errorf(kernel.KindInvalidInput, op, "line %d: facet has %d vertices, want 3", line, len(corners))
			}
			b.Tri(corners[0], corners[1], corners[2])
			corners = corners[:0]
		case "facet", "outer", "endfacet", "endsolid":
		default:
			return nil, kernel.Errorf(kernel.KindInvalidInput, op, "line %d: unexpected %q", line, fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !sawBody {
		return nil, kernel.Errorf(kernel.KindInvalidInput, op, "not an STL file")
	}
	m := b.Mesh()
	m.Name = name
	return m, nil
}
