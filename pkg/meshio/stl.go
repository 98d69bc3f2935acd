// Package meshio loads triangulated mesh files into geometry.Mesh values.
// Both binary and ASCII STL are supported; coordinates are taken as meters.
package meshio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/UBC-Solar/shellpower/pkg/geometry"
)

// LoadSTL reads an STL file from disk.
func LoadSTL(path string) (*geometry.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mesh file: %w", err)
	}
	defer f.Close()
	m, err := ReadSTL(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ReadSTL parses STL data, auto-detecting the binary and ASCII variants.
// Shared vertices are merged by exact coordinate match so that edge adjacency
// and smooth per-vertex normals can be recovered from the triangle soup.
func ReadSTL(r io.Reader) (*geometry.Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < 15 {
		return nil, fmt.Errorf("stl: file too short (%d bytes)", len(data))
	}

	// Binary files frequently start with "solid" too; require facet syntax
	// before committing to the ASCII parser.
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("solid")) && bytes.Contains(data, []byte("facet")) {
		return readASCII(data)
	}
	return readBinary(data)
}

// builder merges duplicate vertices while accumulating triangles.
type builder struct {
	vertices []r3.Vec
	index    map[[3]float64]int
	tris     []geometry.Triangle
}

func newBuilder() *builder {
	return &builder{index: make(map[[3]float64]int)}
}

func (b *builder) vertex(v r3.Vec) int {
	key := [3]float64{v.X, v.Y, v.Z}
	if i, ok := b.index[key]; ok {
		return i
	}
	i := len(b.vertices)
	b.vertices = append(b.vertices, v)
	b.index[key] = i
	return i
}

func (b *builder) triangle(a, c, d r3.Vec) {
	b.tris = append(b.tris, geometry.Triangle{A: b.vertex(a), B: b.vertex(c), C: b.vertex(d)})
}

func (b *builder) mesh() (*geometry.Mesh, error) {
	return geometry.NewMesh(b.vertices, nil, b.tris)
}

// FromTriangles builds a mesh from a triangle soup, merging shared vertices
// the same way the STL readers do.
func FromTriangles(tris [][3]r3.Vec) (*geometry.Mesh, error) {
	b := newBuilder()
	for _, tri := range tris {
		b.triangle(tri[0], tri[1], tri[2])
	}
	return b.mesh()
}

// WriteSTL writes the mesh as binary STL.
func WriteSTL(w io.Writer, m *geometry.Mesh) error {
	header := make([]byte, 84)
	copy(header, "shellpower binary STL")
	binary.LittleEndian.PutUint32(header[80:], uint32(len(m.Triangles)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	rec := make([]byte, 50)
	for _, tri := range m.Triangles {
		putVec(rec[0:], tri.Normal)
		putVec(rec[12:], m.Vertices[tri.A])
		putVec(rec[24:], m.Vertices[tri.B])
		putVec(rec[36:], m.Vertices[tri.C])
		rec[48], rec[49] = 0, 0
		if _, err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// SaveSTL writes the mesh to a binary STL file.
func SaveSTL(path string, m *geometry.Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating mesh file: %w", err)
	}
	if err := WriteSTL(f, m); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func putVec(p []byte, v r3.Vec) {
	binary.LittleEndian.PutUint32(p[0:], math.Float32bits(float32(v.X)))
	binary.LittleEndian.PutUint32(p[4:], math.Float32bits(float32(v.Y)))
	binary.LittleEndian.PutUint32(p[8:], math.Float32bits(float32(v.Z)))
}

func readBinary(data []byte) (*geometry.Mesh, error) {
	const headerLen = 84
	const recordLen = 50
	if len(data) < headerLen {
		return nil, fmt.Errorf("stl: truncated binary header")
	}
	count := binary.LittleEndian.Uint32(data[80:84])
	if int64(len(data)) < headerLen+int64(count)*recordLen {
		return nil, fmt.Errorf("stl: binary file declares %d triangles but is %d bytes", count, len(data))
	}

	b := newBuilder()
	off := headerLen
	for i := uint32(0); i < count; i++ {
		// Skip the stored facet normal; face normals are recomputed from the
		// winding so they stay consistent with the vertex data.
		v := [3]r3.Vec{}
		for k := 0; k < 3; k++ {
			base := off + 12 + k*12
			v[k] = r3.Vec{
				X: float64(float32FromLE(data[base:])),
				Y: float64(float32FromLE(data[base+4:])),
				Z: float64(float32FromLE(data[base+8:])),
			}
		}
		b.triangle(v[0], v[1], v[2])
		off += recordLen
	}
	return b.mesh()
}

func float32FromLE(p []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(p))
}

func readASCII(data []byte) (*geometry.Mesh, error) {
	b := newBuilder()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var facet []r3.Vec
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("stl: malformed vertex at line %d", line)
			}
			var v r3.Vec
			var err error
			if v.X, err = strconv.ParseFloat(fields[1], 64); err != nil {
				return nil, fmt.Errorf("stl: line %d: %w", line, err)
			}
			if v.Y, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, fmt.Errorf("stl: line %d: %w", line, err)
			}
			if v.Z, err = strconv.ParseFloat(fields[3], 64); err != nil {
				return nil, fmt.Errorf("stl: line %d: %w", line, err)
			}
			facet = append(facet, v)
		case "endfacet":
			if len(facet) != 3 {
				return nil, fmt.Errorf("stl: facet ending at line %d has %d vertices", line, len(facet))
			}
			b.triangle(facet[0], facet[1], facet[2])
			facet = facet[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.mesh()
}
