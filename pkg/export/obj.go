package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/qutlas/cadmium/pkg/kernel"
)

// WriteOBJ writes m as a Wavefront OBJ object. Vertex normals are written
// when the mesh carries them, and faces then reference them as v//vn.
func WriteOBJ(w io.Writer, m *kernel.Mesh, name string) error {
	if err := checkMesh("write obj", m); err != nil {
		return err
	}
	ow := &objWriter{bw: bufio.NewWriter(w), buf: make([]byte, 0, 2*objSpill)}

	ow.buf = append(ow.buf, "# cadmium\no "...)
	ow.buf = append(ow.buf, solidName(name)...)
	ow.buf = append(ow.buf, '\n')
	ow.triples("v ", m.Vertices)
	hasNormals := len(m.Normals) == len(m.Vertices) && len(m.Normals) > 0
	if hasNormals {
		ow.triples("vn ", m.Normals)
	}
	for t := 0; t < m.TriangleCount() && ow.err == nil; t++ {
		tri := m.Triangle(t)
		ow.buf = append(ow.buf, 'f')
		for _, i := range tri {
			ow.buf = append(ow.buf, ' ')
			ow.buf = strconv.AppendUint(ow.buf, uint64(i)+1, 10)
			if hasNormals {
				ow.buf = append(ow.buf, "//"...)
				ow.buf = strconv.AppendUint(ow.buf, uint64(i)+1, 10)
			}
		}
		ow.buf = append(ow.buf, '\n')
		ow.spill(objSpill)
	}
	ow.spill(0)
	if ow.err == nil {
		ow.err = ow.bw.Flush()
	}
	if ow.err != nil {
		return fmt.Errorf("write obj: %w", ow.err)
	}
	return nil
}

// objSpill is the buffered text size at which objWriter hands lines to
// the underlying writer.
const objSpill = 4096

// objWriter formats OBJ lines into buf and keeps the first write error.
type objWriter struct {
	bw  *bufio.Writer
	buf []byte
	err error
}

// spill writes buf out once it is longer than limit.
func (ow *objWriter) spill(limit int) {
	if ow.err != nil || len(ow.buf) <= limit {
		return
	}
	_, ow.err = ow.bw.Write(ow.buf)
	ow.buf = ow.buf[:0]
}

// triples appends one prefixed line per triple of values.
func (ow *objWriter) triples(prefix string, values []float64) {
	for i := 0; i+2 < len(values) && ow.err == nil; i += 3 {
		ow.buf = append(ow.buf, prefix...)
		ow.buf = strconv.AppendFloat(ow.buf, values[i], 'g', -1, 64)
		ow.buf = append(ow.buf, ' ')
		ow.buf = strconv.AppendFloat(ow.buf, values[i+1], 'g', -1, 64)
		ow.buf = append(ow.buf, ' ')
		ow.buf = strconv.AppendFloat(ow.buf, values[i+2], 'g', -1, 64)
		ow.buf = append(ow.buf, '\n')
		ow.spill(objSpill)
	}
}

// ReadOBJ reads the geometry of an OBJ file. Polygons are fan
// triangulated and negative (relative) indices are supported. Normals are
// kept only when there is exactly one per vertex and every face corner
// references the normal with its own vertex index. Texture coordinates,
// groups and materials are ignored.
func ReadOBJ(r io.Reader) (*kernel.Mesh, error) {
	const op = "read obj"
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	m := &kernel.Mesh{Vertices: []float64{}, Faces: []uint32{}}
	var (
		normals      []float64
		normalsMatch = true
		line         int
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		switch fields[0] {
		case "v", "vn":
			if len(fields) < 4 {
				return nil, kernel.Errorf(kernel.KindInvalidInput, op, "line %d: %s needs 3 coordinates", line, fields[0])
			}
			var p [3]float64
			for i := range p {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, kernel.Errorf(kernel.KindInvalidInput, op, "line %d: %w", line, err)
				}
				p[i] = f
			}
			if fields[0] == "v" {
				m.Vertices = append(m.Vertices, p[:]...)
			} else {
				normals = append(normals, p[:]...)
			}
		case "f":
			if len(fields) < 4 {
				return nil, kernel.Errorf(kernel.KindInvalidInput, op, "line %d: face needs at least 3 vertices", line)
			}
			idx := make([]uint32, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				v, n, err := parseFaceRef(ref, m.VertexCount(), len(normals)/3)
				if err != nil {
					return nil, kernel.Errorf(kernel.KindInvalidInput, op, "line %d: %w", line, err)
				}
				if n != int(v) {
					normalsMatch = false
				}
				idx = append(idx, v)
			}
			for i := 1; i+1 < len(idx); i++ {
				m.Faces = append(m.Faces, idx[0], idx[i], idx[i+1])
			}
		case "o":
			if len(fields) > 1 {
				m.Name = strings.Join(fields[1:], " ")
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if normalsMatch && len(normals) == len(m.Vertices) && len(normals) > 0 {
		m.Normals = normals
	}
	return m, nil
}

// parseFaceRef parses "v", "v/vt", "v//vn" or "v/vt/vn" into zero-based
// vertex and normal indices. The normal index is -1 when absent.
func parseFaceRef(ref string, vertexCount, normalCount int) (uint32, int, error) {
	parts := strings.Split(ref, "/")
	v, err := resolveIndex(parts[0], vertexCount)
	if err != nil {
		return 0, 0, fmt.Errorf("vertex %q: %w", ref, err)
	}
	n := -1
	if len(parts) == 3 && parts[2] != "" {
		n, err = resolveIndex(parts[2], normalCount)
		if err != nil {
			return 0, 0, fmt.Errorf("normal %q: %w", ref, err)
		}
	}
	return uint32(v), n, nil
}

func resolveIndex(s string, count int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	switch {
	case i > 0 && i <= count:
		return i - 1, nil
	case i < 0 && -i <= count:
		return count + i, nil
	}
	return 0, fmt.Errorf("index %d out of range (%d defined)", i, count)
}
