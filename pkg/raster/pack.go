package raster

import (
	"image"
	"math"
)

// PackScalar encodes a non-negative scalar into two 8-bit channels: the red
// channel carries twice the integer part, the green channel the fractional
// part. The representable range is [0, 127.5). This is the historical integer
// render-target encoding; the rasterizer itself accumulates in native floats
// and uses the pair only when exporting overlay images.
func PackScalar(v float64) (r, g uint8) {
	if v < 0 {
		v = 0
	}
	ip, fp := math.Modf(v)
	if ip > 127 {
		ip, fp = 127, 0.99
	}
	return uint8(2 * ip), uint8(fp * 255)
}

// UnpackScalar decodes a PackScalar pair back into scale·v. The red channel
// is divided by two (not multiplied) and the green channel by 255; the
// asymmetry must stay exactly paired with PackScalar.
func UnpackScalar(r, g uint8, scale float64) float64 {
	return scale * (float64(r)/2 + float64(g)/255)
}

// ColorImage copies the layout-color buffer of the last render into an
// opaque RGBA image for display overlays.
func (r *Rasterizer) ColorImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.res, r.res))
	for i := 0; i < r.res*r.res; i++ {
		img.Pix[i*4] = r.colorR[i]
		img.Pix[i*4+1] = r.colorG[i]
		img.Pix[i*4+2] = r.colorB[i]
		img.Pix[i*4+3] = 255
	}
	return img
}

// EncodedWattsImage exports the watts buffer through the 8-bit two-channel
// scalar encoding, red/green per texel, for inspection with legacy tooling.
func (r *Rasterizer) EncodedWattsImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.res, r.res))
	for i := 0; i < r.res*r.res; i++ {
		pr, pg := PackScalar(r.watts[i] * 10000)
		img.Pix[i*4] = pr
		img.Pix[i*4+1] = pg
		img.Pix[i*4+3] = 255
	}
	return img
}
