package display

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"topic-preview-go/internal/decode"
	"topic-preview-go/internal/preview"
)

var (
	ErrClosed      = errors.New("window closed")
	ErrInvalidSize = errors.New("window size must be positive")
)

type Options struct {
	Title               string
	StartHidden         bool
	PreserveAspectRatio bool
	Width               int
	Height              int
}

// Window is an ebiten-backed surface. Resize and Show are queued and run
// inside the game loop's Update, which is the only goroutine allowed to touch
// window state.
type Window struct {
	opts Options

	mu      sync.Mutex
	images  map[string]*image.RGBA
	current string
	pending []func()
	state   preview.SurfaceState
	stopped bool
	closed  bool

	texture *ebiten.Image
	texKey  string
	texSrc  *image.RGBA
	started bool
}

func NewWindow(opts Options) *Window {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	return &Window{
		opts:   opts,
		images: make(map[string]*image.RGBA),
		state: preview.SurfaceState{
			Width:   opts.Width,
			Height:  opts.Height,
			Visible: !opts.StartHidden,
		},
	}
}

// SetImage replaces the image shown under key and makes it current.
func (w *Window) SetImage(key string, bmp *decode.Bitmap) error {
	rgba := bmp.RGBA()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.images[key] = rgba
	w.current = key
	return nil
}

func (w *Window) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return w.enqueue(func() {
		ebiten.SetWindowSize(width, height)
	}, func(s *preview.SurfaceState) {
		s.Width, s.Height = width, height
	})
}

func (w *Window) Show() error {
	return w.enqueue(func() {
		if ebiten.IsWindowMinimized() {
			ebiten.RestoreWindow()
		}
	}, func(s *preview.SurfaceState) {
		s.Visible = true
	})
}

func (w *Window) State() preview.SurfaceState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stop makes the game loop exit on its next Update.
func (w *Window) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
}

// Run starts the ebiten game loop. Must be called from the main goroutine.
func (w *Window) Run() error {
	ebiten.SetWindowSize(w.opts.Width, w.opts.Height)
	ebiten.SetWindowTitle(w.opts.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	err := ebiten.RunGame(w)

	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	if errors.Is(err, ebiten.Termination) {
		return nil
	}
	return err
}

func (w *Window) enqueue(fn func(), update func(*preview.SurfaceState)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	update(&w.state)
	w.pending = append(w.pending, fn)
	return nil
}

// --- ebiten.Game interface ---

func (w *Window) Update() error {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	stopped := w.stopped
	hideOnStart := !w.started && !w.state.Visible
	w.started = true
	w.mu.Unlock()

	if stopped {
		return ebiten.Termination
	}
	if hideOnStart {
		ebiten.MinimizeWindow()
	}
	for _, fn := range pending {
		fn()
	}
	return nil
}

func (w *Window) Draw(screen *ebiten.Image) {
	w.mu.Lock()
	visible := w.state.Visible
	key := w.current
	frame := w.images[key]
	w.mu.Unlock()

	if !visible || frame == nil {
		return
	}

	fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
	if w.texture == nil || w.texture.Bounds().Dx() != fw || w.texture.Bounds().Dy() != fh {
		if w.texture != nil {
			w.texture.Deallocate()
		}
		w.texture = ebiten.NewImage(fw, fh)
		w.texSrc = nil
	}
	if w.texSrc != frame || w.texKey != key {
		w.texture.WritePixels(frame.Pix)
		w.texSrc = frame
		w.texKey = key
	}

	sw, sh := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
	op := &ebiten.DrawImageOptions{}
	op.Filter = ebiten.FilterLinear
	if w.opts.PreserveAspectRatio {
		scale, offsetX, offsetY := aspectFitTransform(sw, sh, float64(fw), float64(fh))
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(offsetX, offsetY)
	} else {
		op.GeoM.Scale(sw/float64(fw), sh/float64(fh))
	}
	screen.DrawImage(w.texture, op)
}

func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
