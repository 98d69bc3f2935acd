// Package geometry provides the triangle-mesh model of the array surface and
// the silhouette/shadow-volume computation used for shadow overlays.
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Triangle references three vertices of a Mesh by index and caches the face
// normal computed at construction time.
type Triangle struct {
	A, B, C int
	Normal  r3.Vec
}

// Mesh is an immutable triangle mesh in meters. Vertices and Normals are
// parallel slices; Normals holds per-vertex normals used for smooth shading
// during rasterization.
type Mesh struct {
	Vertices  []r3.Vec
	Normals   []r3.Vec
	Triangles []Triangle

	min, max r3.Vec
}

// NewMesh validates the vertex indices, computes face normals and the bounding
// box, and returns an immutable mesh. If normals is nil, per-vertex normals
// are computed by area-weighted averaging of incident face normals.
func NewMesh(vertices []r3.Vec, normals []r3.Vec, triangles []Triangle) (*Mesh, error) {
	if len(vertices) == 0 {
		return nil, fmt.Errorf("mesh has no vertices")
	}
	if len(triangles) == 0 {
		return nil, fmt.Errorf("mesh has no triangles")
	}
	if normals != nil && len(normals) != len(vertices) {
		return nil, fmt.Errorf("mesh has %d vertices but %d normals", len(vertices), len(normals))
	}

	for i, t := range triangles {
		for _, v := range [3]int{t.A, t.B, t.C} {
			if v < 0 || v >= len(vertices) {
				return nil, fmt.Errorf("triangle %d references vertex %d, mesh has %d vertices", i, v, len(vertices))
			}
		}
	}

	m := &Mesh{
		Vertices:  vertices,
		Normals:   normals,
		Triangles: triangles,
	}

	// Face normals follow the counter-clockwise winding convention. The cross
	// product is unnormalized here so that degenerate (zero-area) triangles
	// yield a zero normal rather than NaN.
	for i := range m.Triangles {
		t := &m.Triangles[i]
		ab := r3.Sub(vertices[t.B], vertices[t.A])
		ac := r3.Sub(vertices[t.C], vertices[t.A])
		n := r3.Cross(ab, ac)
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		t.Normal = n
	}

	if m.Normals == nil {
		m.Normals = averageVertexNormals(vertices, m.Triangles)
	}

	m.min, m.max = computeBounds(vertices)

	return m, nil
}

// averageVertexNormals produces smooth per-vertex normals by summing the
// unnormalized face normals of incident triangles, which weights each face by
// its area.
func averageVertexNormals(vertices []r3.Vec, triangles []Triangle) []r3.Vec {
	normals := make([]r3.Vec, len(vertices))
	for _, t := range triangles {
		ab := r3.Sub(vertices[t.B], vertices[t.A])
		ac := r3.Sub(vertices[t.C], vertices[t.A])
		n := r3.Cross(ab, ac)
		normals[t.A] = r3.Add(normals[t.A], n)
		normals[t.B] = r3.Add(normals[t.B], n)
		normals[t.C] = r3.Add(normals[t.C], n)
	}
	for i, n := range normals {
		if l := r3.Norm(n); l > 0 {
			normals[i] = r3.Scale(1/l, n)
		}
	}
	return normals
}

func computeBounds(vertices []r3.Vec) (min, max r3.Vec) {
	min = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max = r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, v := range vertices {
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		min.Z = math.Min(min.Z, v.Z)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
		max.Z = math.Max(max.Z, v.Z)
	}
	return min, max
}

// Bounds returns the axis-aligned bounding box of the mesh.
func (m *Mesh) Bounds() (min, max r3.Vec) {
	return m.min, m.max
}

// Center returns the center of the bounding box.
func (m *Mesh) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(m.min, m.max))
}

// Diagonal returns the length of the bounding-box diagonal. The rasterizer
// uses this as the side length of its orthographic view volume so that the
// mesh fits in the frustum at any orientation.
func (m *Mesh) Diagonal() float64 {
	return r3.Norm(r3.Sub(m.max, m.min))
}

// SurfaceArea returns the total area of all triangles.
func (m *Mesh) SurfaceArea() float64 {
	var area float64
	for _, t := range m.Triangles {
		ab := r3.Sub(m.Vertices[t.B], m.Vertices[t.A])
		ac := r3.Sub(m.Vertices[t.C], m.Vertices[t.A])
		area += 0.5 * r3.Norm(r3.Cross(ab, ac))
	}
	return area
}
