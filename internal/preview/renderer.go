package preview

import (
	"errors"

	"topic-preview-go/internal/decode"
)

// SurfaceState is what a renderer reports about its display surface.
type SurfaceState struct {
	Width   int
	Height  int
	Visible bool
}

// Renderer is the display collaborator. Implementations serialize surface
// mutations themselves; the loop may call from any goroutine.
type Renderer interface {
	SetImage(key string, bmp *decode.Bitmap) error
	Resize(width, height int) error
	Show() error
	State() SurfaceState
}

// MultiRenderer fans every call out to all renderers. State reports the
// first one.
type MultiRenderer []Renderer

func (m MultiRenderer) SetImage(key string, bmp *decode.Bitmap) error {
	var errs []error
	for _, r := range m {
		if err := r.SetImage(key, bmp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRenderer) Resize(width, height int) error {
	var errs []error
	for _, r := range m {
		if err := r.Resize(width, height); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRenderer) Show() error {
	var errs []error
	for _, r := range m {
		if err := r.Show(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRenderer) State() SurfaceState {
	if len(m) == 0 {
		return SurfaceState{}
	}
	return m[0].State()
}
