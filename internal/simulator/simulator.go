package simulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"math/rand"
	"time"

	"topic-preview-go/internal/msgs"
)

var ErrInvalidOptions = errors.New("invalid simulator options")

type Options struct {
	// TypeName is msgs.TypeImage or msgs.TypeCompressedImage.
	TypeName string
	Width    int
	Height   int
	// Format selects the compressed container: "jpeg" or "png".
	Format  string
	Quality int
	// RowPadding adds bytes to every raw row so Step > Width*3.
	RowPadding int
	FrameID    string
}

// Generator renders a drifting gaussian spot over a colour gradient with
// per-pixel shot noise.
type Generator struct {
	opts  Options
	base  []float64
	sqrt  []float64
	rng   *rand.Rand
	frame int
}

func NewGenerator(opts Options) (*Generator, error) {
	if opts.Width < 1 || opts.Height < 1 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidOptions, opts.Width, opts.Height)
	}
	if opts.RowPadding < 0 {
		return nil, fmt.Errorf("%w: row padding %d", ErrInvalidOptions, opts.RowPadding)
	}
	switch opts.TypeName {
	case msgs.TypeImage:
	case msgs.TypeCompressedImage:
		if opts.Format == "" {
			opts.Format = "jpeg"
		}
		if opts.Format != "jpeg" && opts.Format != "png" {
			return nil, fmt.Errorf("%w: format %q", ErrInvalidOptions, opts.Format)
		}
	default:
		return nil, fmt.Errorf("%w: type %q", ErrInvalidOptions, opts.TypeName)
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 85
	}
	if opts.FrameID == "" {
		opts.FrameID = "sim"
	}

	total := opts.Width * opts.Height
	g := &Generator{
		opts: opts,
		base: make([]float64, total),
		sqrt: make([]float64, total),
		rng:  rand.New(rand.NewSource(1)),
	}
	spread := float64(total) / 20
	for i := 0; i < total; i++ {
		dx := float64(i%opts.Width) - float64(opts.Width)/2
		dy := float64(i/opts.Width) - float64(opts.Height)/2
		b := 200 * math.Exp(-(dx*dx+dy*dy)/spread)
		g.base[i] = b
		g.sqrt[i] = math.Sqrt(b)
	}
	return g, nil
}

func (g *Generator) Options() Options { return g.opts }

// Next renders the next frame stamped with now.
func (g *Generator) Next(now time.Time) (msgs.Message, error) {
	img := g.render()
	g.frame++
	header := msgs.Header{Stamp: msgs.StampFrom(now), FrameID: g.opts.FrameID}

	if g.opts.TypeName == msgs.TypeImage {
		return g.raw(header, img), nil
	}

	var buf bytes.Buffer
	var err error
	switch g.opts.Format {
	case "png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: g.opts.Quality})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", g.opts.Format, err)
	}
	return &msgs.CompressedImage{Header: header, Format: g.opts.Format, Data: buf.Bytes()}, nil
}

func (g *Generator) render() *image.RGBA {
	w, h := g.opts.Width, g.opts.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shiftX := g.frame % w
	shiftY := (g.frame / 2) % h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := ((y+shiftY)%h)*w + (x+shiftX)%w
			val := g.base[src] + g.rng.NormFloat64()*g.sqrt[src]
			img.SetRGBA(x, y, color.RGBA{
				R: clamp(val + 40),
				G: uint8(x * 255 / w),
				B: uint8(y * 255 / h),
				A: 0xff,
			})
		}
	}
	return img
}

func (g *Generator) raw(header msgs.Header, img *image.RGBA) *msgs.RawImage {
	w, h := g.opts.Width, g.opts.Height
	step := w*3 + g.opts.RowPadding
	data := make([]byte, step*h)
	for y := 0; y < h; y++ {
		row := data[y*step:]
		src := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			row[x*3+0] = src[x*4+2]
			row[x*3+1] = src[x*4+1]
			row[x*3+2] = src[x*4+0]
		}
	}
	return &msgs.RawImage{
		Header:   header,
		Height:   uint32(h),
		Width:    uint32(w),
		Encoding: msgs.EncodingBGR8,
		Step:     uint32(step),
		Data:     data,
	}
}

func clamp(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// Stream emits frames at rate per second until ctx is done. The channel is
// closed when the stream stops.
func Stream(ctx context.Context, g *Generator, rate float64) <-chan msgs.Message {
	out := make(chan msgs.Message)
	go func() {
		defer close(out)

		if rate <= 0 {
			rate = 1
		}
		ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				msg, err := g.Next(now)
				if err != nil {
					return
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
