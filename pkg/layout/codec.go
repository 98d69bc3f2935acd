package layout

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
)

// MaxStrings is the color-encoding limit on the number of strings in one
// layout image: string keys are drawn from an R/G grid with at most 255
// usable entries.
const MaxStrings = 256

// grayscaleCap is the maximum channel value the encoder leaves on background
// texels, keeping any background pattern clear of the white used to erase
// stale cell markings.
const grayscaleCap = 200

var (
	// ErrNoImage is returned when a codec operation is attempted without a
	// loaded layout image.
	ErrNoImage = errors.New("layout: no image loaded")

	// ErrTooManyStrings is returned when an array exceeds MaxStrings.
	ErrTooManyStrings = errors.New("layout: too many strings for color encoding")

	// ErrNonOpaquePixel is returned by Decode when the layout image contains
	// a texel with alpha below 255.
	ErrNonOpaquePixel = errors.New("layout: non-opaque pixel in layout image")
)

// Encode paints the array's cell assignment into its layout image in place.
//
// String color keys are assigned by walking a running color index c over an
// R/G grid of side steps = ceil(sqrt(N)), skipping the diagonal entries
// (c/steps == c%steps) whose red and green channels would coincide and so
// collide with the grayscale background test. Within a string of m cells,
// cell j gets blue channel 255*j/m, making wiring order recoverable by
// sorting on blue. Before painting, every grayscale texel is capped at 200
// and every stale colored texel is forced to opaque white.
func Encode(a *Array) error {
	if a.Image == nil {
		return ErrNoImage
	}
	n := len(a.Strings)
	if n >= MaxStrings {
		return fmt.Errorf("%w: %d strings, limit %d", ErrTooManyStrings, n, MaxStrings-1)
	}

	steps := int(math.Ceil(math.Sqrt(float64(n))))
	if steps < 1 {
		steps = 1
	}

	colors := make([]Color, n)
	c := 0
	for i := range a.Strings {
		for c/steps == c%steps {
			c++
		}
		colors[i] = Color{
			R: uint8(255 * (c / steps) / steps),
			G: uint8(255 * (c % steps) / steps),
		}
		c++
	}

	normalizeBackground(a.Image)

	for i, s := range a.Strings {
		m := len(s.Cells)
		for j, cell := range s.Cells {
			col := colors[i]
			col.B = uint8(255 * j / max(1, m))
			cell.Color = col
			for _, p := range cell.Pixels {
				setRGBA(a.Image, p.X, p.Y, col)
			}
		}
	}

	return nil
}

// normalizeBackground caps grayscale texels at grayscaleCap and erases all
// previously colored texels to opaque white.
func normalizeBackground(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			col := getRGB(img, x, y)
			if col.IsGrayscale() {
				v := col.R
				if v > grayscaleCap {
					v = grayscaleCap
				}
				setRGBA(img, x, y, Color{R: v, G: v, B: v})
			} else {
				setRGBA(img, x, y, Color{R: 255, G: 255, B: 255})
			}
		}
	}
}

// Decode scans a layout image in row-major order and reconstructs the string
// and cell partition. It is the left-inverse of Encode: decoding an encoded
// image reproduces the original string/cell partition and relative cell
// ordering, with fresh cell IDs assigned in discovery order.
func Decode(img *image.RGBA) ([]*CellString, error) {
	if img == nil {
		return nil, ErrNoImage
	}

	var strings []*CellString
	stringsByKey := make(map[Color]*CellString)
	cellsByKey := make(map[Color]*Cell)
	nextID := 0

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			off := img.PixOffset(x, y)
			if img.Pix[off+3] != 255 {
				return nil, fmt.Errorf("%w: pixel (%d,%d)", ErrNonOpaquePixel, x, y)
			}
			col := Color{R: img.Pix[off], G: img.Pix[off+1], B: img.Pix[off+2]}
			if col.IsGrayscale() {
				continue
			}

			key := col.StringKey()
			str, ok := stringsByKey[key]
			if !ok {
				str = &CellString{Name: fmt.Sprintf("String %d", len(strings)+1)}
				stringsByKey[key] = str
				strings = append(strings, str)
			}

			cell, ok := cellsByKey[col]
			if !ok {
				cell = &Cell{ID: nextID, Color: col}
				nextID++
				cellsByKey[col] = cell
				str.Cells = append(str.Cells, cell)
			}
			cell.Pixels = append(cell.Pixels, image.Point{X: x, Y: y})
		}
	}

	if len(strings) >= MaxStrings {
		return nil, fmt.Errorf("%w: decoded %d strings", ErrTooManyStrings, len(strings))
	}

	// Restore deterministic wiring order independent of scan order.
	for _, s := range strings {
		sort.SliceStable(s.Cells, func(i, j int) bool {
			return s.Cells[i].Color.B < s.Cells[j].Color.B
		})
	}

	return strings, nil
}

func getRGB(img *image.RGBA, x, y int) Color {
	off := img.PixOffset(x, y)
	return Color{R: img.Pix[off], G: img.Pix[off+1], B: img.Pix[off+2]}
}

func setRGBA(img *image.RGBA, x, y int, c Color) {
	off := img.PixOffset(x, y)
	img.Pix[off] = c.R
	img.Pix[off+1] = c.G
	img.Pix[off+2] = c.B
	img.Pix[off+3] = 255
}
