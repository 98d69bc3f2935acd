package layout

import (
	"errors"
	"image"
	"testing"
)

// buildTestArray lays out n strings of m cells each on a fresh image, one
// cell per row segment, and returns the array ready for Encode.
func buildTestArray(n, m, size int) *Array {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	// Opaque gray background with a gradient pattern.
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8((x + y) % 256)
			setRGBA(img, x, y, Color{R: v, G: v, B: v})
		}
	}

	a := &Array{Image: img}
	id := 0
	for s := 0; s < n; s++ {
		str := &CellString{Name: "test"}
		for c := 0; c < m; c++ {
			cell := &Cell{ID: id}
			id++
			// A 2x2 pixel block per cell, packed left to right, top to bottom.
			bx := (c * 3) % (size - 2)
			by := (s*3 + (c*3)/(size-2)*3) % (size - 2)
			cell.Pixels = []image.Point{
				{X: bx, Y: by}, {X: bx + 1, Y: by},
				{X: bx, Y: by + 1}, {X: bx + 1, Y: by + 1},
			}
			str.Cells = append(str.Cells, cell)
		}
		a.Strings = append(a.Strings, str)
	}
	return a
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		strings int
		cells   int
	}{
		{"single string single cell", 1, 1},
		{"single string many cells", 1, 12},
		{"several strings", 5, 4},
		{"many strings", 40, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := buildTestArray(tt.strings, tt.cells, 128)
			if err := Encode(a); err != nil {
				t.Fatalf("Encode: %v", err)
			}

			decoded, err := Decode(a.Image)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if len(decoded) != tt.strings {
				t.Fatalf("decoded %d strings, want %d", len(decoded), tt.strings)
			}

			// The decoder discovers strings in scan order, which need not be
			// the encoder's order; match them up by color key.
			byKey := make(map[Color]*CellString)
			for _, s := range decoded {
				byKey[s.Cells[0].Color.StringKey()] = s
			}
			for si, orig := range a.Strings {
				dec := byKey[orig.Cells[0].Color.StringKey()]
				if dec == nil {
					t.Fatalf("string %d: color key %v not decoded", si, orig.Cells[0].Color.StringKey())
				}
				if len(dec.Cells) != len(orig.Cells) {
					t.Fatalf("string %d: decoded %d cells, want %d", si, len(dec.Cells), len(orig.Cells))
				}
				for ci, oc := range orig.Cells {
					dc := dec.Cells[ci]
					if dc.Color != oc.Color {
						t.Errorf("string %d cell %d: color %v, want %v (wiring order lost)", si, ci, dc.Color, oc.Color)
					}
					if len(dc.Pixels) != len(oc.Pixels) {
						t.Errorf("string %d cell %d: %d pixels, want %d", si, ci, len(dc.Pixels), len(oc.Pixels))
						continue
					}
					for pi, p := range oc.Pixels {
						if dc.Pixels[pi] != p {
							t.Errorf("string %d cell %d pixel %d: %v, want %v", si, ci, pi, dc.Pixels[pi], p)
						}
					}
				}
			}
		})
	}
}

func TestEncodeBackgroundInvariance(t *testing.T) {
	a := buildTestArray(3, 3, 64)
	if err := Encode(a); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	cellPixels := make(map[image.Point]bool)
	for _, s := range a.Strings {
		for _, c := range s.Cells {
			for _, p := range c.Pixels {
				cellPixels[p] = true
			}
		}
	}

	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			col := getRGB(a.Image, x, y)
			if cellPixels[image.Point{X: x, Y: y}] {
				if col.IsGrayscale() {
					t.Fatalf("cell pixel (%d,%d) encoded as grayscale %v", x, y, col)
				}
				continue
			}
			if !col.IsGrayscale() {
				t.Errorf("background pixel (%d,%d) is not grayscale: %v", x, y, col)
			}
			if col.R > grayscaleCap {
				t.Errorf("background pixel (%d,%d) exceeds cap: %d", x, y, col.R)
			}
		}
	}
}

func TestEncodeColorKeysAvoidGrayscaleDiagonal(t *testing.T) {
	// Enough strings to walk well past the first grid diagonal entries.
	a := buildTestArray(60, 1, 255)
	if err := Encode(a); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	seen := make(map[Color]bool)
	for _, s := range a.Strings {
		key := s.Cells[0].Color.StringKey()
		if key.R == key.G {
			t.Errorf("string key %v sits on the R==G diagonal", key)
		}
		if seen[key] {
			t.Errorf("string key %v assigned twice", key)
		}
		seen[key] = true
	}
}

func TestEncodeErrors(t *testing.T) {
	t.Run("no image", func(t *testing.T) {
		a := &Array{Strings: []*CellString{{}}}
		if err := Encode(a); !errors.Is(err, ErrNoImage) {
			t.Fatalf("got %v, want ErrNoImage", err)
		}
	})

	t.Run("too many strings", func(t *testing.T) {
		a := &Array{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))}
		for i := 0; i < MaxStrings; i++ {
			a.Strings = append(a.Strings, &CellString{})
		}
		if err := Encode(a); !errors.Is(err, ErrTooManyStrings) {
			t.Fatalf("got %v, want ErrTooManyStrings", err)
		}
	})
}

func TestDecodeRejectsNonOpaque(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			setRGBA(img, x, y, Color{R: 100, G: 100, B: 100})
		}
	}
	img.Pix[img.PixOffset(2, 1)+3] = 254

	if _, err := Decode(img); !errors.Is(err, ErrNonOpaquePixel) {
		t.Fatalf("got %v, want ErrNonOpaquePixel", err)
	}
}

func TestDecodeSortsCellsByBlue(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 1))
	// One string, cells deliberately scanned in reverse wiring order.
	setRGBA(img, 0, 0, Color{R: 0, G: 127, B: 192})
	setRGBA(img, 1, 0, Color{R: 0, G: 127, B: 128})
	setRGBA(img, 2, 0, Color{R: 0, G: 127, B: 64})
	setRGBA(img, 3, 0, Color{R: 0, G: 127, B: 0})

	strings, err := Decode(img)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(strings) != 1 || len(strings[0].Cells) != 4 {
		t.Fatalf("decoded %d strings, want 1 with 4 cells", len(strings))
	}
	for i, c := range strings[0].Cells {
		if want := uint8(64 * i); c.Color.B != want {
			t.Errorf("cell %d: blue %d, want %d", i, c.Color.B, want)
		}
	}
}
