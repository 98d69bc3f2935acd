// Package raster projects the array mesh from the sun's point of view and
// accumulates depth-tested, cosine-weighted irradiance and surface area per
// layout texel. Occlusion from the body's own curvature falls out of the
// depth test; no separate shadow geometry is consulted.
package raster

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/UBC-Solar/shellpower/pkg/geometry"
	"github.com/UBC-Solar/shellpower/pkg/layout"
)

// ErrBackendInit indicates the rasterizer could not be set up with the
// requested configuration. It is surfaced before any simulation step runs.
var ErrBackendInit = errors.New("raster: backend initialization failed")

const (
	// DefaultResolution is the side length of the square sun-eye render
	// target.
	DefaultResolution = 2048

	// maxResolution bounds buffer allocation.
	maxResolution = 8192

	// DefaultMaxAreaMultiplier bounds the projected-footprint-to-true-area
	// correction for near-grazing geometry. A pragmatic cap, configurable.
	DefaultMaxAreaMultiplier = 24.0

	// defaultEpsilon guards divisions by near-zero normal components.
	defaultEpsilon = 1e-6
)

// Config controls the rasterizer.
type Config struct {
	// Resolution is the side length of the square render target. Defaults to
	// DefaultResolution.
	Resolution int

	// MaxAreaMultiplier caps the tilt correction of per-texel surface area.
	// Defaults to DefaultMaxAreaMultiplier.
	MaxAreaMultiplier float64

	// Workers is the number of row bands rasterized concurrently. Defaults to
	// GOMAXPROCS. Bands are disjoint, so the result is identical for any
	// worker count.
	Workers int
}

// Rasterizer owns the render buffers for one simulation step at a time. A
// step needs exclusive access for its duration; concurrent steps need
// private instances.
type Rasterizer struct {
	cfg Config
	res int

	// Per-texel buffers, row-major. color is the sampled layout color,
	// watts and area are native float accumulators (the historical 8-bit
	// channel encoding survives only in PackScalar/UnpackScalar for overlay
	// export), depth is distance toward the sun, tri records which triangle
	// won the depth test.
	colorR, colorG, colorB []uint8
	watts                  []float64
	area                   []float64
	depth                  []float64
	tri                    []int32

	triCount int
}

// New allocates a rasterizer for the given configuration.
func New(cfg Config) (*Rasterizer, error) {
	if cfg.Resolution == 0 {
		cfg.Resolution = DefaultResolution
	}
	if cfg.Resolution < 1 || cfg.Resolution > maxResolution {
		return nil, fmt.Errorf("%w: resolution %d out of range [1,%d]", ErrBackendInit, cfg.Resolution, maxResolution)
	}
	if cfg.MaxAreaMultiplier == 0 {
		cfg.MaxAreaMultiplier = DefaultMaxAreaMultiplier
	}
	if cfg.MaxAreaMultiplier < 1 {
		return nil, fmt.Errorf("%w: max area multiplier %g must be ≥ 1", ErrBackendInit, cfg.MaxAreaMultiplier)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	n := cfg.Resolution * cfg.Resolution
	return &Rasterizer{
		cfg:    cfg,
		res:    cfg.Resolution,
		colorR: make([]uint8, n),
		colorG: make([]uint8, n),
		colorB: make([]uint8, n),
		watts:  make([]float64, n),
		area:   make([]float64, n),
		depth:  make([]float64, n),
		tri:    make([]int32, n),
	}, nil
}

// Resolution returns the configured render-target side length.
func (r *Rasterizer) Resolution() int {
	return r.res
}

// clear resets all buffers for a new step. Cleared color is black, which the
// reduction classifies as background.
func (r *Rasterizer) clear() {
	for i := range r.depth {
		r.colorR[i] = 0
		r.colorG[i] = 0
		r.colorB[i] = 0
		r.watts[i] = 0
		r.area[i] = 0
		r.depth[i] = math.Inf(-1)
		r.tri[i] = -1
	}
}

// sunView is the orthographic sun-eye frame: an orthonormal basis with the
// depth axis pointing toward the sun, centered on the mesh bounding box.
type sunView struct {
	center      r3.Vec
	right, up   r3.Vec
	light       r3.Vec
	extent      float64 // full side length of the view volume
	res         int
	pixelFootpr float64 // world-space area covered by one texel, m²
}

func newSunView(center r3.Vec, diagonal float64, light r3.Vec, res int) sunView {
	// World-up as the up hint unless the light is near-vertical.
	hint := r3.Vec{Y: 1}
	if math.Abs(light.Y) > 0.99 {
		hint = r3.Vec{Z: 1}
	}
	right := r3.Unit(r3.Cross(hint, light))
	up := r3.Cross(light, right)

	extent := diagonal
	if extent <= 0 {
		extent = 1
	}
	px := extent / float64(res)
	return sunView{
		center:      center,
		right:       right,
		up:          up,
		light:       light,
		extent:      extent,
		res:         res,
		pixelFootpr: px * px,
	}
}

// project maps a world-space point to floating-point pixel coordinates plus
// depth along the light direction (larger is nearer the sun).
func (v sunView) project(p r3.Vec) (x, y, depth float64) {
	d := r3.Sub(p, v.center)
	half := v.extent / 2
	x = (r3.Dot(d, v.right) + half) / v.extent * float64(v.res)
	y = (r3.Dot(d, v.up) + half) / v.extent * float64(v.res)
	depth = r3.Dot(d, v.light)
	return
}

// Render rasterizes the mesh into the buffers for light direction light and
// beam insolation (W/m²). Row bands are processed concurrently; every band
// walks the full triangle list in order, so the output is deterministic.
func (r *Rasterizer) Render(mesh *geometry.Mesh, arr *layout.Array, light r3.Vec, insolation float64) error {
	r.clear()

	view := newSunView(mesh.Center(), mesh.Diagonal(), light, r.res)
	verts, norms := mesh.Vertices, mesh.Normals
	tris := make([][3]int, len(mesh.Triangles))
	for i, t := range mesh.Triangles {
		tris[i] = [3]int{t.A, t.B, t.C}
	}
	r.triCount = len(tris)

	// Pre-project all vertices once.
	sx := make([]float64, len(verts))
	sy := make([]float64, len(verts))
	sd := make([]float64, len(verts))
	for i, p := range verts {
		sx[i], sy[i], sd[i] = view.project(p)
	}

	bandRows := (r.res + r.cfg.Workers - 1) / r.cfg.Workers

	var g errgroup.Group
	for w := 0; w < r.cfg.Workers; w++ {
		y0 := w * bandRows
		y1 := min(y0+bandRows, r.res)
		if y0 >= y1 {
			break
		}
		g.Go(func() error {
			band := bandRaster{
				ras:        r,
				view:       view,
				arr:        arr,
				insolation: insolation,
				y0:         y0,
				y1:         y1,
			}
			for t := range tris {
				band.rasterizeTriangle(int32(t), tris[t], verts, norms, sx, sy, sd)
			}
			return nil
		})
	}
	return g.Wait()
}

// bandRaster rasterizes triangles into one horizontal band of the target.
type bandRaster struct {
	ras        *Rasterizer
	view       sunView
	arr        *layout.Array
	insolation float64
	y0, y1     int
}

func (b *bandRaster) rasterizeTriangle(ti int32, tri [3]int, verts, norms []r3.Vec, sx, sy, sd []float64) {
	i0, i1, i2 := tri[0], tri[1], tri[2]

	// Cull faces turned away from the sun. They receive no beam power, and
	// skipping them keeps the rasterized-triangle set identical to the
	// face-normal lit classification used by the silhouette pass.
	face := r3.Cross(r3.Sub(verts[i1], verts[i0]), r3.Sub(verts[i2], verts[i0]))
	if r3.Dot(face, b.view.light) <= 0 {
		return
	}

	x0, y0, d0 := sx[i0], sy[i0], sd[i0]
	x1, y1, d1 := sx[i1], sy[i1], sd[i1]
	x2, y2, d2 := sx[i2], sy[i2], sd[i2]

	// Signed double area in screen space; degenerate or edge-on triangles
	// cover no texels.
	det := (x1-x0)*(y2-y0) - (x2-x0)*(y1-y0)
	if math.Abs(det) < 1e-12 {
		return
	}
	inv := 1 / det

	minX := max(int(math.Floor(min3(x0, x1, x2))), 0)
	maxX := min(int(math.Ceil(max3(x0, x1, x2))), b.ras.res-1)
	minY := max(int(math.Floor(min3(y0, y1, y2))), b.y0)
	maxY := min(int(math.Ceil(max3(y0, y1, y2))), b.y1-1)
	if minX > maxX || minY > maxY {
		return
	}

	res := b.ras.res
	for py := minY; py <= maxY; py++ {
		cy := float64(py) + 0.5
		for px := minX; px <= maxX; px++ {
			cx := float64(px) + 0.5

			// Barycentric coordinates of the pixel center.
			w1 := ((cx-x0)*(y2-y0) - (x2-x0)*(cy-y0)) * inv
			w2 := ((x1-x0)*(cy-y0) - (cx-x0)*(y1-y0)) * inv
			w0 := 1 - w1 - w2
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}

			depth := w0*d0 + w1*d1 + w2*d2
			idx := py*res + px
			if depth <= b.ras.depth[idx] {
				continue
			}
			b.ras.depth[idx] = depth
			b.ras.tri[idx] = ti

			b.shadeFragment(idx, tri, w0, w1, w2, verts, norms)
		}
	}
}

// shadeFragment evaluates the irradiance contract for one covered texel:
// cosine-weighted incoming watts and tilt-corrected surface area, plus the
// nearest-sampled layout color used downstream to attribute both to a cell.
func (b *bandRaster) shadeFragment(idx int, tri [3]int, w0, w1, w2 float64, verts, norms []r3.Vec) {
	n := r3.Add(r3.Add(
		r3.Scale(w0, norms[tri[0]]),
		r3.Scale(w1, norms[tri[1]])),
		r3.Scale(w2, norms[tri[2]]))

	nLen := r3.Norm(n)
	cosFactor := 0.0
	if nLen > 0 {
		cosFactor = r3.Dot(n, b.view.light) / nLen
		if cosFactor < 0 {
			cosFactor = 0
		}
	}

	// Projected texel footprint vs. true surface area: the eye-space z
	// component of the unnormalized normal carries the foreshortening.
	nz := r3.Dot(n, b.view.light)
	mult := nLen / math.Max(nz, defaultEpsilon)
	if mult < 0 {
		mult = 0
	} else if mult > b.ras.cfg.MaxAreaMultiplier {
		mult = b.ras.cfg.MaxAreaMultiplier
	}

	p := r3.Add(r3.Add(
		r3.Scale(w0, verts[tri[0]]),
		r3.Scale(w1, verts[tri[1]])),
		r3.Scale(w2, verts[tri[2]]))

	col, ok := b.sampleLayout(p)
	if !ok {
		// Off-layout fragment: background color, but it still occludes.
		col = layout.Color{}
	}

	b.ras.colorR[idx] = col.R
	b.ras.colorG[idx] = col.G
	b.ras.colorB[idx] = col.B
	b.ras.watts[idx] = b.view.pixelFootpr * b.insolation * cosFactor
	b.ras.area[idx] = b.view.pixelFootpr * mult
}

// sampleLayout nearest-samples the layout image at the orthographic (x, z)
// projection of a model-space point. Nearest sampling is required so the
// reduction's exact color-key lookup still matches.
func (b *bandRaster) sampleLayout(p r3.Vec) (layout.Color, bool) {
	bounds := b.arr.Bounds
	du := bounds.MaxX - bounds.MinX
	dv := bounds.MaxZ - bounds.MinZ
	if du <= 0 || dv <= 0 {
		return layout.Color{}, false
	}
	u := (p.X - bounds.MinX) / du
	v := (p.Z - bounds.MinZ) / dv
	if u < 0 || u >= 1 || v < 0 || v >= 1 {
		return layout.Color{}, false
	}

	img := b.arr.Image
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	tx := img.Bounds().Min.X + int(u*float64(w))
	ty := img.Bounds().Min.Y + int(v*float64(h))

	off := img.PixOffset(tx, ty)
	return layout.Color{R: img.Pix[off], G: img.Pix[off+1], B: img.Pix[off+2]}, true
}

func min3(a, b, c float64) float64 { return math.Min(a, math.Min(b, c)) }
func max3(a, b, c float64) float64 { return math.Max(a, math.Max(b, c)) }
