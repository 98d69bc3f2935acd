package geometry

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// UnitCube builds a closed unit cube [0,1]³ with outward-wound faces.
func unitCube(t *testing.T) *Mesh {
	t.Helper()
	vertices := []r3.Vec{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
	}
	triangles := []Triangle{
		{A: 0, B: 3, C: 2}, {A: 0, B: 2, C: 1}, // -Z
		{A: 4, B: 5, C: 6}, {A: 4, B: 6, C: 7}, // +Z
		{A: 0, B: 4, C: 7}, {A: 0, B: 7, C: 3}, // -X
		{A: 1, B: 6, C: 5}, {A: 1, B: 2, C: 6}, // +X
		{A: 0, B: 1, C: 5}, {A: 0, B: 5, C: 4}, // -Y
		{A: 3, B: 6, C: 2}, {A: 3, B: 7, C: 6}, // +Y
	}
	m, err := NewMesh(vertices, nil, triangles)
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	return m
}

func TestNewMeshValidation(t *testing.T) {
	tests := []struct {
		name      string
		vertices  []r3.Vec
		normals   []r3.Vec
		triangles []Triangle
	}{
		{"no vertices", nil, nil, []Triangle{{}}},
		{"no triangles", []r3.Vec{{}}, nil, nil},
		{"index out of range", []r3.Vec{{}, {X: 1}, {Y: 1}}, nil, []Triangle{{A: 0, B: 1, C: 3}}},
		{"negative index", []r3.Vec{{}, {X: 1}, {Y: 1}}, nil, []Triangle{{A: -1, B: 1, C: 2}}},
		{"normal count mismatch", []r3.Vec{{}, {X: 1}, {Y: 1}}, []r3.Vec{{Y: 1}}, []Triangle{{A: 0, B: 1, C: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMesh(tt.vertices, tt.normals, tt.triangles); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestMeshBounds(t *testing.T) {
	m := unitCube(t)

	min, max := m.Bounds()
	if min != (r3.Vec{}) || max != (r3.Vec{X: 1, Y: 1, Z: 1}) {
		t.Fatalf("bounds %v..%v, want origin..unit", min, max)
	}
	if c := m.Center(); c != (r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}) {
		t.Fatalf("center %v", c)
	}
	if d := m.Diagonal(); math.Abs(d-math.Sqrt(3)) > 1e-12 {
		t.Fatalf("diagonal %v, want sqrt(3)", d)
	}
	if a := m.SurfaceArea(); math.Abs(a-6) > 1e-12 {
		t.Fatalf("surface area %v, want 6", a)
	}
}

func TestCubeFaceNormals(t *testing.T) {
	m := unitCube(t)
	wants := []r3.Vec{
		{Z: -1}, {Z: -1}, {Z: 1}, {Z: 1},
		{X: -1}, {X: -1}, {X: 1}, {X: 1},
		{Y: -1}, {Y: -1}, {Y: 1}, {Y: 1},
	}
	for i, want := range wants {
		got := m.Triangles[i].Normal
		if r3.Norm(r3.Sub(got, want)) > 1e-12 {
			t.Errorf("triangle %d: normal %v, want %v", i, got, want)
		}
	}
}

func TestEdgeIndexManifold(t *testing.T) {
	m := unitCube(t)
	ei := BuildEdgeIndex(m)

	// A closed cube of 12 triangles has 18 edges, each with two incident
	// triangles.
	if len(ei.edges) != 18 {
		t.Fatalf("%d edges, want 18", len(ei.edges))
	}
	for e, tris := range ei.edges {
		if len(tris) != 2 {
			t.Errorf("edge %v has %d incident triangles, want 2", e, len(tris))
		}
	}
}

func TestSilhouetteEdgesCube(t *testing.T) {
	m := unitCube(t)
	ei := BuildEdgeIndex(m)

	tests := []struct {
		name     string
		light    r3.Vec
		litCount int
		silCount int
	}{
		// Light along an axis: one face lit, its boundary is 4 edges plus the
		// lit face's own diagonal never qualifies (both halves lit).
		{"axis-aligned +Y", r3.Vec{Y: 1}, 2, 4},
		// Light along the main diagonal: three faces lit; their outline is a
		// hexagon of 6 edges.
		{"cube diagonal", r3.Unit(r3.Vec{X: 1, Y: 1, Z: 1}), 6, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lit := LitTriangles(m, tt.light)
			n := 0
			for _, l := range lit {
				if l {
					n++
				}
			}
			if n != tt.litCount {
				t.Fatalf("%d lit triangles, want %d", n, tt.litCount)
			}

			sil := ei.SilhouetteEdges(tt.light)
			if len(sil) != tt.silCount {
				t.Fatalf("%d silhouette edges, want %d", len(sil), tt.silCount)
			}
			// Every silhouette edge must border exactly one lit triangle.
			for _, e := range sil {
				tris := ei.edges[e]
				litSides := 0
				for _, ti := range tris {
					if lit[ti] {
						litSides++
					}
				}
				if litSides != 1 {
					t.Errorf("edge %v borders %d lit triangles, want 1", e, litSides)
				}
			}
		})
	}
}

func TestSilhouetteBoundaryEdge(t *testing.T) {
	// A single lit triangle: all three boundary edges are silhouettes.
	m, err := NewMesh(
		[]r3.Vec{{}, {X: 1}, {Z: 1}},
		nil,
		[]Triangle{{A: 0, B: 2, C: 1}},
	)
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	ei := BuildEdgeIndex(m)

	if sil := ei.SilhouetteEdges(r3.Vec{Y: 1}); len(sil) != 3 {
		t.Fatalf("%d silhouette edges, want 3", len(sil))
	}
	// Flip the light: the triangle is unlit, so no silhouette.
	if sil := ei.SilhouetteEdges(r3.Vec{Y: -1}); len(sil) != 0 {
		t.Fatalf("%d silhouette edges for unlit face, want 0", len(sil))
	}
}

func TestShadowVolumeReachesGround(t *testing.T) {
	m := unitCube(t)
	ei := BuildEdgeIndex(m)

	light := r3.Unit(r3.Vec{X: 1, Y: 2, Z: 0.5})
	sil := ei.SilhouetteEdges(light)
	const groundY = -2.0
	walls := ShadowVolume(m, sil, light, groundY)

	if len(walls) != len(sil)*6 {
		t.Fatalf("%d wall vertices, want %d", len(walls), len(sil)*6)
	}
	// Each quad's far edge must land on the ground plane, and projection must
	// move points along -light.
	for i := 0; i < len(walls); i += 6 {
		q1, q0 := walls[i+2], walls[i+5]
		if math.Abs(q1.Y-groundY) > 1e-9 || math.Abs(q0.Y-groundY) > 1e-9 {
			t.Fatalf("quad %d bottom edge at y=%v,%v, want %v", i/6, q0.Y, q1.Y, groundY)
		}
		p0 := walls[i]
		d := r3.Sub(q0, p0)
		if r3.Dot(r3.Unit(d), light) > -0.999 {
			t.Errorf("quad %d projects along %v, want -light", i/6, r3.Unit(d))
		}
	}
}

func TestShadowVolumeHorizontalLightGuard(t *testing.T) {
	m := unitCube(t)
	ei := BuildEdgeIndex(m)

	// Near-horizontal light: projection must stay finite.
	light := r3.Unit(r3.Vec{X: 1, Y: 1e-9, Z: 0})
	sil := ei.SilhouetteEdges(light)
	walls := ShadowVolume(m, sil, light, -1)
	for _, v := range walls {
		if math.IsInf(v.X, 0) || math.IsNaN(v.X) {
			t.Fatalf("non-finite wall vertex %v", v)
		}
	}
}
