package decode

import (
	"image"
	"image/color"
)

// Bitmap is the only frame shape that reaches a renderer: packed 8-bit RGB,
// row-major, no padding.
type Bitmap struct {
	Width  int
	Height int
	Pix    []byte
}

func NewBitmap(width, height int) *Bitmap {
	return &Bitmap{Width: width, Height: height, Pix: make([]byte, width*height*3)}
}

func (b *Bitmap) ColorModel() color.Model { return color.RGBAModel }

func (b *Bitmap) Bounds() image.Rectangle { return image.Rect(0, 0, b.Width, b.Height) }

func (b *Bitmap) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return color.RGBA{}
	}
	i := (y*b.Width + x) * 3
	return color.RGBA{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2], A: 0xff}
}

// RGBA expands the bitmap to an opaque *image.RGBA for GPU upload.
func (b *Bitmap) RGBA() *image.RGBA {
	out := image.NewRGBA(b.Bounds())
	n := b.Width * b.Height
	for i := 0; i < n; i++ {
		out.Pix[i*4] = b.Pix[i*3]
		out.Pix[i*4+1] = b.Pix[i*3+1]
		out.Pix[i*4+2] = b.Pix[i*3+2]
		out.Pix[i*4+3] = 0xff
	}
	return out
}

// swapRB reverses the channel order of every packed 3-byte pixel in place.
// Applying it twice restores the input.
func swapRB(pix []byte) {
	for i := 0; i+2 < len(pix); i += 3 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
