package display

import (
	"errors"
	"math"
	"testing"

	"topic-preview-go/internal/decode"
)

func TestAspectFitTransform(t *testing.T) {
	cases := []struct {
		viewW, viewH, frameW, frameH float64
		scale, offX, offY            float64
	}{
		{1280, 720, 640, 360, 2, 0, 0},
		{1280, 960, 640, 360, 2, 0, 120},
		{800, 600, 600, 600, 1, 100, 0},
	}
	for _, tc := range cases {
		scale, offX, offY := aspectFitTransform(tc.viewW, tc.viewH, tc.frameW, tc.frameH)
		if math.Abs(scale-tc.scale) > 1e-9 || math.Abs(offX-tc.offX) > 1e-9 || math.Abs(offY-tc.offY) > 1e-9 {
			t.Fatalf("aspectFitTransform(%v,%v,%v,%v) = %v,%v,%v", tc.viewW, tc.viewH, tc.frameW, tc.frameH, scale, offX, offY)
		}
	}
}

// These exercise only the state bookkeeping; nothing here touches ebiten.
func TestWindowQueuesSurfaceChanges(t *testing.T) {
	w := NewWindow(Options{Title: "t", StartHidden: true})
	if st := w.State(); st.Visible || st.Width != 1280 || st.Height != 720 {
		t.Fatalf("unexpected initial state %+v", st)
	}

	if err := w.Resize(1280, 960); err != nil {
		t.Fatalf("Resize error: %v", err)
	}
	if err := w.Show(); err != nil {
		t.Fatalf("Show error: %v", err)
	}
	st := w.State()
	if !st.Visible || st.Width != 1280 || st.Height != 960 {
		t.Fatalf("unexpected state %+v", st)
	}
	if len(w.pending) != 2 {
		t.Fatalf("expected 2 queued surface calls, got %d", len(w.pending))
	}
}

func TestWindowKeyedImages(t *testing.T) {
	w := NewWindow(Options{})
	if err := w.SetImage("a", decode.NewBitmap(2, 2)); err != nil {
		t.Fatalf("SetImage error: %v", err)
	}
	if err := w.SetImage("b", decode.NewBitmap(4, 1)); err != nil {
		t.Fatalf("SetImage error: %v", err)
	}
	if w.current != "b" || len(w.images) != 2 {
		t.Fatalf("unexpected images: current=%q n=%d", w.current, len(w.images))
	}
	if got := w.images["b"].Bounds().Dx(); got != 4 {
		t.Fatalf("unexpected width %d", got)
	}

	w.closed = true
	if err := w.SetImage("a", decode.NewBitmap(1, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := w.Resize(1, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestWindowRejectsEmptySize(t *testing.T) {
	w := NewWindow(Options{})
	for _, size := range [][2]int{{1280, 0}, {0, 720}, {-1, 5}} {
		if err := w.Resize(size[0], size[1]); !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("Resize(%d, %d) = %v, want ErrInvalidSize", size[0], size[1], err)
		}
	}
	if len(w.pending) != 0 {
		t.Fatalf("invalid sizes were queued: %d", len(w.pending))
	}
	if st := w.State(); st.Width != 1280 || st.Height != 720 {
		t.Fatalf("state changed: %+v", st)
	}
}
