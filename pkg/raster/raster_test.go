package raster

import (
	"errors"
	"image"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/UBC-Solar/shellpower/pkg/geometry"
	"github.com/UBC-Solar/shellpower/pkg/layout"
)

// flatSheet builds a 1m × 1m horizontal rectangle at y=0, normals up, with a
// single-cell layout covering it exactly.
func flatSheet(t *testing.T) (*geometry.Mesh, *layout.Array) {
	t.Helper()
	up := r3.Vec{Y: 1}
	mesh, err := geometry.NewMesh(
		[]r3.Vec{{}, {X: 1}, {X: 1, Z: 1}, {Z: 1}},
		[]r3.Vec{up, up, up, up},
		[]geometry.Triangle{{A: 0, B: 2, C: 1}, {A: 0, B: 3, C: 2}},
	)
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	cell := &layout.Cell{ID: 0}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			cell.Pixels = append(cell.Pixels, image.Point{X: x, Y: y})
		}
	}
	arr := &layout.Array{
		Strings: []*layout.CellString{{Name: "String 1", Cells: []*layout.Cell{cell}}},
		Image:   img,
		Bounds:  layout.Bounds{MinX: 0, MinZ: 0, MaxX: 1, MaxZ: 1},
	}
	if err := layout.Encode(arr); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return mesh, arr
}

func TestNewConfigValidation(t *testing.T) {
	if _, err := New(Config{Resolution: -1}); !errors.Is(err, ErrBackendInit) {
		t.Fatalf("negative resolution: got %v, want ErrBackendInit", err)
	}
	if _, err := New(Config{Resolution: maxResolution + 1}); !errors.Is(err, ErrBackendInit) {
		t.Fatalf("oversize resolution: got %v, want ErrBackendInit", err)
	}
	if _, err := New(Config{MaxAreaMultiplier: 0.5}); !errors.Is(err, ErrBackendInit) {
		t.Fatalf("sub-unity area multiplier: got %v, want ErrBackendInit", err)
	}

	r, err := New(Config{})
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if r.Resolution() != DefaultResolution {
		t.Fatalf("default resolution %d, want %d", r.Resolution(), DefaultResolution)
	}
}

func TestAreaConservationFlatSheet(t *testing.T) {
	mesh, arr := flatSheet(t)
	ras, err := New(Config{Resolution: 1024})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const insolation = 1000.0
	if err := ras.Render(mesh, arr, r3.Vec{Y: 1}, insolation); err != nil {
		t.Fatalf("Render: %v", err)
	}
	red := ras.Reduce(arr)

	totals := red.Cells[0]
	if totals == nil {
		t.Fatal("cell 0 missing from reduction")
	}

	// A 1 m² sheet perpendicular to the sun: lit area 1 m², incoming power
	// insolation × 1 m², both within rasterization-resolution error.
	if math.Abs(totals.Area-1) > 0.01 {
		t.Errorf("lit area %.4f m², want 1 within 1%%", totals.Area)
	}
	if math.Abs(totals.WattsIn-insolation) > 0.01*insolation {
		t.Errorf("watts in %.2f, want %.0f within 1%%", totals.WattsIn, insolation)
	}
	if red.UnlinkedWatts > 0.005*insolation {
		t.Errorf("unlinked watts %.2f unexpectedly large", red.UnlinkedWatts)
	}
}

func TestTiltedSheetAreaCorrection(t *testing.T) {
	// The same sheet lit from 60° off-normal: projected footprint shrinks by
	// cos(60°) but the area multiplier must recover the true surface area.
	mesh, arr := flatSheet(t)
	ras, err := New(Config{Resolution: 1024})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	deg60 := math.Pi / 3
	light := r3.Vec{X: math.Sin(deg60), Y: math.Cos(deg60)}
	if err := ras.Render(mesh, arr, light, 1000); err != nil {
		t.Fatalf("Render: %v", err)
	}
	red := ras.Reduce(arr)

	totals := red.Cells[0]
	if math.Abs(totals.Area-1) > 0.02 {
		t.Errorf("tilt-corrected area %.4f m², want 1 within 2%%", totals.Area)
	}
	// The projected footprint already carries one cosine and the fragment
	// weight a second: insolation · cos²(60°) · 1 m² = 250 W.
	if math.Abs(totals.WattsIn-250) > 5 {
		t.Errorf("watts in %.2f, want 250 within 2%%", totals.WattsIn)
	}
}

func TestVisibleTrianglesMatchLitClassification(t *testing.T) {
	vertices := []r3.Vec{
		{}, {X: 1}, {X: 1, Y: 1}, {Y: 1},
		{Z: 1}, {X: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {Y: 1, Z: 1},
	}
	triangles := []geometry.Triangle{
		{A: 0, B: 3, C: 2}, {A: 0, B: 2, C: 1},
		{A: 4, B: 5, C: 6}, {A: 4, B: 6, C: 7},
		{A: 0, B: 4, C: 7}, {A: 0, B: 7, C: 3},
		{A: 1, B: 6, C: 5}, {A: 1, B: 2, C: 6},
		{A: 0, B: 1, C: 5}, {A: 0, B: 5, C: 4},
		{A: 3, B: 6, C: 2}, {A: 3, B: 7, C: 6},
	}
	cube, err := geometry.NewMesh(vertices, nil, triangles)
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	_, arr := flatSheet(t)

	ras, err := New(Config{Resolution: 512})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, light := range []r3.Vec{
		r3.Unit(r3.Vec{X: 1, Y: 1, Z: 1}),
		r3.Unit(r3.Vec{X: -1, Y: 2, Z: 0.3}),
		{Y: 1},
	} {
		if err := ras.Render(cube, arr, light, 1000); err != nil {
			t.Fatalf("Render: %v", err)
		}
		visible := ras.VisibleTriangles()
		lit := geometry.LitTriangles(cube, light)

		for i := range triangles {
			if visible[i] != lit[i] {
				t.Errorf("light %v triangle %d: rasterized=%v lit=%v", light, i, visible[i], lit[i])
			}
		}
	}
}

func TestRenderDeterministicAcrossWorkerCounts(t *testing.T) {
	mesh, arr := flatSheet(t)

	reduce := func(workers int) *Reduction {
		ras, err := New(Config{Resolution: 512, Workers: workers})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		light := r3.Unit(r3.Vec{X: 0.3, Y: 1, Z: 0.2})
		if err := ras.Render(mesh, arr, light, 837.5); err != nil {
			t.Fatalf("Render: %v", err)
		}
		return ras.Reduce(arr)
	}

	a := reduce(1)
	b := reduce(7)

	if a.Cells[0].WattsIn != b.Cells[0].WattsIn || a.Cells[0].Area != b.Cells[0].Area {
		t.Errorf("worker count changed totals: %+v vs %+v", a.Cells[0], b.Cells[0])
	}
	if a.UnlinkedWatts != b.UnlinkedWatts {
		t.Errorf("worker count changed unlinked watts: %v vs %v", a.UnlinkedWatts, b.UnlinkedWatts)
	}
}

func TestPackScalarRoundTrip(t *testing.T) {
	for _, scale := range []float64{1, 0.25, 10} {
		for v := 0.0; v < 127; v += 0.013 {
			r, g := PackScalar(v)
			got := UnpackScalar(r, g, scale)
			if math.Abs(got-scale*v) > scale/255+1e-12 {
				t.Fatalf("scale %v: decode(encode(%v)) = %v, off by more than one quantization step", scale, v, got/scale)
			}
		}
	}

	// Negative input clamps to zero.
	r, g := PackScalar(-3)
	if UnpackScalar(r, g, 1) != 0 {
		t.Error("negative values must clamp to zero")
	}
}
