package raster

import (
	"github.com/UBC-Solar/shellpower/pkg/layout"
)

// CellTotals is the running accumulation for one cell over a render.
type CellTotals struct {
	// WattsIn is the incoming solar power attributed to the cell, W
	WattsIn float64
	// Area is the lit (sun-visible) surface area of the cell, m²
	Area float64
}

// Reduction is the per-cell outcome of one render pass plus the residue of
// texels whose color matched no known cell, which is a data-consistency
// warning, never an error.
type Reduction struct {
	// Cells maps cell ID to its accumulated totals. Cells with no lit texels
	// are present with zero totals.
	Cells map[int]*CellTotals

	// UnlinkedWatts and UnlinkedArea accumulate texels (typically
	// anti-aliased borders) with no exact cell-color match.
	UnlinkedWatts float64
	UnlinkedArea  float64
}

// Unlinked reports whether any rasterized texel failed cell attribution.
func (r *Reduction) Unlinked() bool {
	return r.UnlinkedWatts != 0 || r.UnlinkedArea != 0
}

// Reduce walks every texel of the render target once, in scan order, and
// accumulates watts and area into the owning cells by exact color-key match.
// The fixed iteration order makes the floating-point totals reproducible
// across runs and worker counts.
func (r *Rasterizer) Reduce(arr *layout.Array) *Reduction {
	byColor := make(map[layout.Color]*CellTotals, arr.CellCount())
	red := &Reduction{Cells: make(map[int]*CellTotals, arr.CellCount())}
	for _, s := range arr.Strings {
		for _, c := range s.Cells {
			t := &CellTotals{}
			byColor[c.Color] = t
			red.Cells[c.ID] = t
		}
	}

	n := r.res * r.res
	for i := 0; i < n; i++ {
		col := layout.Color{R: r.colorR[i], G: r.colorG[i], B: r.colorB[i]}
		if col.IsGrayscale() {
			continue
		}
		if t, ok := byColor[col]; ok {
			t.WattsIn += r.watts[i]
			t.Area += r.area[i]
		} else {
			red.UnlinkedWatts += r.watts[i]
			red.UnlinkedArea += r.area[i]
		}
	}
	return red
}

// VisibleTriangles returns, per triangle of the last rendered mesh, whether
// any of its texels survived the depth test.
func (r *Rasterizer) VisibleTriangles() []bool {
	visible := make([]bool, r.triCount)
	for _, t := range r.tri {
		if t >= 0 {
			visible[t] = true
		}
	}
	return visible
}
