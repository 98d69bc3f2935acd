// Package layout maps physical surface locations to logical photovoltaic
// cells and strings through a color-coded raster image. Each wiring string
// owns a red/green color key and each cell within it a blue shade, so the
// rasterizer can recover cell ownership from a single texture sample.
package layout

import (
	"image"
)

// Color is an opaque RGB color key. Alpha is implicitly 255 everywhere in a
// valid layout image.
type Color struct {
	R, G, B uint8
}

// IsGrayscale reports whether the color is background. Background texels are
// those with equal red, green and blue; the encoder keeps cell keys off the
// R==G diagonal so no cell color can ever satisfy this test.
func (c Color) IsGrayscale() bool {
	return c.R == c.G && c.G == c.B
}

// StringKey returns the color key identifying the owning string, which is the
// cell color with the blue (cell-index) channel cleared.
func (c Color) StringKey() Color {
	return Color{R: c.R, G: c.G}
}

// Cell is a single photovoltaic cell: a color key plus the texel coordinates
// it occupies, in scanline order. ID is assigned at registration or decode
// time and is unique within an Array.
type Cell struct {
	ID     int
	Color  Color
	Pixels []image.Point
}

// BypassDiode denotes the contiguous run of cells [First, Last] within one
// string that it shunts. Identity is the index pair.
type BypassDiode struct {
	First, Last int
}

// CellString is an ordered series wiring of cells plus the bypass diodes
// protecting runs of them.
type CellString struct {
	Name   string
	Cells  []*Cell
	Diodes []BypassDiode
}

// CellCount returns the number of cells in the string.
func (s *CellString) CellCount() int {
	return len(s.Cells)
}

// Bounds is the axis-aligned rectangle in mesh model-space meters that the
// full layout image maps onto. The rasterizer projects a fragment's (x, z)
// model coordinates into this rectangle to find its layout texel.
type Bounds struct {
	MinX, MinZ, MaxX, MaxZ float64
}

// Array is the decoded cell layout: the wiring strings, the backing layout
// image, and the model-space rectangle the image covers.
type Array struct {
	Strings []*CellString
	Image   *image.RGBA
	Bounds  Bounds
}

// CellCount returns the total number of cells across all strings.
func (a *Array) CellCount() int {
	n := 0
	for _, s := range a.Strings {
		n += len(s.Cells)
	}
	return n
}

// Cells returns all cells in string order then wiring order. The slice is
// freshly allocated on each call.
func (a *Array) Cells() []*Cell {
	cells := make([]*Cell, 0, a.CellCount())
	for _, s := range a.Strings {
		cells = append(cells, s.Cells...)
	}
	return cells
}
