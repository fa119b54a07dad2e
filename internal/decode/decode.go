package decode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"topic-preview-go/internal/msgs"
)

var (
	ErrUnsupportedEncoding = errors.New("unsupported pixel encoding")
	ErrShortBuffer         = errors.New("pixel buffer shorter than height*step")
	ErrUnknownFormat       = errors.New("unrecognized image container")
	ErrCodec               = errors.New("image codec failure")
	ErrTooLarge            = errors.New("frame exceeds pixel limit")
	ErrEmptyFrame          = errors.New("frame has zero width or height")
)

// DefaultMaxPixels admits frames up to 8K UHD.
const DefaultMaxPixels = 7680 * 4320

var supportedContainers = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/webp": true,
}

type Limits struct {
	MaxPixels int
}

// Decoder turns a received message into a Bitmap. It holds no per-frame
// state and is safe for concurrent use.
type Decoder struct {
	limits Limits
}

func New(limits Limits) *Decoder {
	if limits.MaxPixels <= 0 {
		limits.MaxPixels = DefaultMaxPixels
	}
	return &Decoder{limits: limits}
}

func (d *Decoder) Decode(m msgs.Message) (*Bitmap, error) {
	switch v := m.(type) {
	case *msgs.RawImage:
		return d.decodeRaw(v)
	case *msgs.CompressedImage:
		return d.decodeCompressed(v)
	default:
		return nil, fmt.Errorf("decode: unexpected message %T", m)
	}
}

func (d *Decoder) decodeRaw(m *msgs.RawImage) (*Bitmap, error) {
	if m.Encoding != msgs.EncodingBGR8 {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedEncoding, m.Encoding)
	}
	width, height := int(m.Width), int(m.Height)
	if err := d.checkSize(width, height); err != nil {
		return nil, err
	}
	rowBytes := width * 3
	step := int(m.Step)
	if step < rowBytes {
		return nil, fmt.Errorf("%w: step %d below row size %d", ErrShortBuffer, step, rowBytes)
	}
	if len(m.Data) < height*step {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(m.Data), height*step)
	}

	bmp := NewBitmap(width, height)
	if step == rowBytes {
		copy(bmp.Pix, m.Data[:height*rowBytes])
	} else {
		for y := 0; y < height; y++ {
			copy(bmp.Pix[y*rowBytes:(y+1)*rowBytes], m.Data[y*step:y*step+rowBytes])
		}
	}
	swapRB(bmp.Pix)
	return bmp, nil
}

func (d *Decoder) decodeCompressed(m *msgs.CompressedImage) (*Bitmap, error) {
	mime := mimetype.Detect(m.Data)
	if !supportedContainers[mime.String()] {
		return nil, fmt.Errorf("%w: detected %s (declared %q)", ErrUnknownFormat, mime.String(), m.Format)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(m.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s header: %v", ErrCodec, mime.Extension(), err)
	}
	if err := d.checkSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(m.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCodec, mime.Extension(), err)
	}
	return fromImage(img), nil
}

func (d *Decoder) checkSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyFrame, width, height)
	}
	if width > d.limits.MaxPixels/height {
		return fmt.Errorf("%w: %dx%d > %d", ErrTooLarge, width, height, d.limits.MaxPixels)
	}
	return nil
}

// fromImage drops alpha and packs any decoded image into RGB.
func fromImage(img image.Image) *Bitmap {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	bmp := NewBitmap(b.Dx(), b.Dy())
	for y := 0; y < bmp.Height; y++ {
		src := nrgba.Pix[y*nrgba.Stride:]
		dst := bmp.Pix[y*bmp.Width*3:]
		for x := 0; x < bmp.Width; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return bmp
}
