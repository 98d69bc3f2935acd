package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Edge is an unordered pair of vertex indices with V0 < V1.
type Edge struct {
	V0, V1 int
}

// EdgeIndex maps each edge of a mesh to the indices of its incident
// triangles. A closed manifold mesh has exactly two incident triangles per
// edge; boundary edges have one. Built once per mesh and reused across light
// directions.
type EdgeIndex struct {
	mesh  *Mesh
	edges map[Edge][]int
}

// BuildEdgeIndex computes the edge-to-triangle adjacency for a mesh.
func BuildEdgeIndex(m *Mesh) *EdgeIndex {
	edges := make(map[Edge][]int, len(m.Triangles)*3/2)
	for i, t := range m.Triangles {
		for _, e := range [3]Edge{makeEdge(t.A, t.B), makeEdge(t.B, t.C), makeEdge(t.C, t.A)} {
			edges[e] = append(edges[e], i)
		}
	}
	return &EdgeIndex{mesh: m, edges: edges}
}

func makeEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{V0: a, V1: b}
}

// LitTriangles classifies each triangle of the mesh as sun-facing for a unit
// light direction. A triangle is lit iff its face normal has a positive
// component toward the light.
func LitTriangles(m *Mesh, light r3.Vec) []bool {
	lit := make([]bool, len(m.Triangles))
	for i, t := range m.Triangles {
		lit[i] = r3.Dot(t.Normal, light) > 0
	}
	return lit
}

// SilhouetteEdges returns the edges separating lit from unlit (or absent)
// triangles for the given light direction. The result is recomputed from
// scratch on every call; it carries no state besides (mesh, light).
func (ei *EdgeIndex) SilhouetteEdges(light r3.Vec) []Edge {
	lit := LitTriangles(ei.mesh, light)

	var silhouette []Edge
	for e, tris := range ei.edges {
		switch len(tris) {
		case 1:
			// Boundary edge: a silhouette when its only triangle faces the sun.
			if lit[tris[0]] {
				silhouette = append(silhouette, e)
			}
		case 2:
			if lit[tris[0]] != lit[tris[1]] {
				silhouette = append(silhouette, e)
			}
		}
	}
	return silhouette
}

// minLightY guards the ground-plane projection against near-horizontal light,
// where the division by the light's vertical component blows up.
const minLightY = 1e-4

// ShadowVolume extrudes the silhouette edges along the negated light
// direction down to the ground plane y=groundY and returns the side walls of
// the shadow volume as a triangle soup (two triangles per silhouette edge).
// The volume is a display overlay only; the rasterizer performs its own
// depth-tested visibility determination.
func ShadowVolume(m *Mesh, silhouette []Edge, light r3.Vec, groundY float64) []r3.Vec {
	ly := light.Y
	if math.Abs(ly) < minLightY {
		if ly < 0 {
			ly = -minLightY
		} else {
			ly = minLightY
		}
	}

	project := func(p r3.Vec) r3.Vec {
		return r3.Sub(p, r3.Scale((p.Y-groundY)/ly, light))
	}

	walls := make([]r3.Vec, 0, len(silhouette)*6)
	for _, e := range silhouette {
		p0 := m.Vertices[e.V0]
		p1 := m.Vertices[e.V1]
		q0 := project(p0)
		q1 := project(p1)
		// Quad (p0, p1, q1, q0) split into two triangles.
		walls = append(walls, p0, p1, q1, p0, q1, q0)
	}
	return walls
}
