package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"topic-preview-go/internal/decode"
	"topic-preview-go/internal/msgs"
)

func TestGeneratorCompressedFramesDecode(t *testing.T) {
	for _, format := range []string{"jpeg", "png"} {
		g, err := NewGenerator(Options{TypeName: msgs.TypeCompressedImage, Width: 64, Height: 48, Format: format})
		if err != nil {
			t.Fatalf("NewGenerator(%s) error: %v", format, err)
		}
		msg, err := g.Next(time.Unix(10, 5))
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		ci, ok := msg.(*msgs.CompressedImage)
		if !ok {
			t.Fatalf("expected CompressedImage, got %T", msg)
		}
		if ci.Format != format || ci.Header.Stamp.Sec != 10 || ci.Header.FrameID != "sim" {
			t.Fatalf("unexpected message %q %+v", ci.Format, ci.Header)
		}
		bmp, err := decode.New(decode.Limits{}).Decode(msg)
		if err != nil {
			t.Fatalf("decode %s: %v", format, err)
		}
		if bmp.Width != 64 || bmp.Height != 48 {
			t.Fatalf("unexpected size %dx%d", bmp.Width, bmp.Height)
		}
	}
}

func TestGeneratorRawPadding(t *testing.T) {
	g, err := NewGenerator(Options{TypeName: msgs.TypeImage, Width: 10, Height: 4, RowPadding: 2})
	if err != nil {
		t.Fatalf("NewGenerator error: %v", err)
	}
	msg, err := g.Next(time.Now())
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	raw := msg.(*msgs.RawImage)
	if raw.Step != 32 || len(raw.Data) != 128 || raw.Encoding != msgs.EncodingBGR8 {
		t.Fatalf("unexpected raw layout step=%d len=%d enc=%q", raw.Step, len(raw.Data), raw.Encoding)
	}
	bmp, err := decode.New(decode.Limits{}).Decode(msg)
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	// Green carries the x gradient.
	_, green, _, _ := bmp.At(5, 0).RGBA()
	if uint8(green>>8) != uint8(5*255/10) {
		t.Fatalf("unexpected green at x=5: %d", green>>8)
	}
}

func TestGeneratorRejectsBadOptions(t *testing.T) {
	bad := []Options{
		{TypeName: msgs.TypeImage, Width: 0, Height: 4},
		{TypeName: "Video", Width: 4, Height: 4},
		{TypeName: msgs.TypeCompressedImage, Width: 4, Height: 4, Format: "gif"},
		{TypeName: msgs.TypeImage, Width: 4, Height: 4, RowPadding: -1},
	}
	for _, opts := range bad {
		if _, err := NewGenerator(opts); !errors.Is(err, ErrInvalidOptions) {
			t.Fatalf("NewGenerator(%+v) = %v, want ErrInvalidOptions", opts, err)
		}
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	g, err := NewGenerator(Options{TypeName: msgs.TypeImage, Width: 8, Height: 8})
	if err != nil {
		t.Fatalf("NewGenerator error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	out := Stream(ctx, g, 200)

	for i := 0; i < 3; i++ {
		select {
		case msg := <-out:
			if msg.TypeName() != msgs.TypeImage {
				t.Fatalf("unexpected type %s", msg.TypeName())
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("stream did not close after cancel")
		}
	}
}
