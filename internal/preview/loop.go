// Package preview drives a topic subscription into a renderer.
//
// The loop is single-consumer and processes items strictly in arrival order.
// Nothing that goes wrong with a single item ends the loop: transport errors,
// undecodable frames and renderer failures are logged and skipped. The loop
// ends only when the subscription's sequence ends or its context is cancelled.
package preview

import (
	"context"
	"time"

	"go.uber.org/zap"

	"topic-preview-go/internal/decode"
	"topic-preview-go/internal/msgs"
	"topic-preview-go/internal/transport"
)

const DefaultTargetWidth = 1280

type State int

const (
	Uninitialized State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "uninitialized"
}

// Source is the consuming side of a subscription.
type Source interface {
	Items() <-chan transport.Item
	Close() error
}

type Decoder interface {
	Decode(m msgs.Message) (*decode.Bitmap, error)
}

type Options struct {
	// Topic keys the image in the renderer.
	Topic       string
	TargetWidth int
	// LogEvery throttles per-item error logs to every Nth occurrence.
	LogEvery int
}

type Loop struct {
	opts     Options
	source   Source
	decoder  Decoder
	renderer Renderer
	log      *zap.Logger

	state    State
	resized  bool
	errCount uint64
	stats    Stats
}

func New(opts Options, source Source, decoder Decoder, renderer Renderer, log *zap.Logger) *Loop {
	if opts.TargetWidth <= 0 {
		opts.TargetWidth = DefaultTargetWidth
	}
	if opts.LogEvery < 1 {
		opts.LogEvery = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		opts:     opts,
		source:   source,
		decoder:  decoder,
		renderer: renderer,
		log:      log.With(zap.String("topic", opts.Topic)),
	}
}

func (l *Loop) Stats() *Stats { return &l.stats }

// State must only be read after Run has returned.
func (l *Loop) State() State { return l.state }

// Run consumes the source until it ends (returns nil) or ctx is cancelled
// (returns ctx.Err()). The source is closed on return.
func (l *Loop) Run(ctx context.Context) error {
	defer l.source.Close()

	if l.renderer.State().Visible {
		l.state = Active
	}
	items := l.source.Items()
	for {
		select {
		case <-ctx.Done():
			l.log.Info("preview loop stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case item, ok := <-items:
			if !ok {
				l.log.Info("subscription ended", zap.Uint64("frames_rendered", l.stats.rendered.Load()))
				return nil
			}
			l.handle(item)
		}
	}
}

func (l *Loop) handle(item transport.Item) {
	l.stats.received.Add(1)
	if item.Err != nil {
		l.stats.transportErrors.Add(1)
		l.logError("receive failed", item.Err)
		return
	}
	l.stats.lastSeq.Store(item.Info.Seq)
	l.stats.dropped.Store(item.Info.Dropped)

	start := time.Now()
	bmp, err := l.decoder.Decode(item.Msg)
	if err != nil {
		l.stats.decodeErrors.Add(1)
		l.logError("decode failed", err, zap.Uint64("seq", item.Info.Seq), zap.String("type", item.Msg.TypeName()))
		return
	}
	l.stats.decodeNanos.Add(uint64(time.Since(start).Nanoseconds()))

	if l.state == Uninitialized {
		if err := l.activate(bmp); err != nil {
			l.stats.renderErrors.Add(1)
			l.logError("surface init failed", err)
			return
		}
	}

	if err := l.renderer.SetImage(l.opts.Topic, bmp); err != nil {
		l.stats.renderErrors.Add(1)
		l.logError("set image failed", err, zap.Uint64("seq", item.Info.Seq))
		return
	}
	l.stats.rendered.Add(1)
}

// activate sizes the surface to the first frame's aspect ratio and shows it.
// Later frames never resize the surface.
func (l *Loop) activate(bmp *decode.Bitmap) error {
	width := l.opts.TargetWidth
	height := surfaceHeight(bmp, width)
	if !l.resized {
		if err := l.renderer.Resize(width, height); err != nil {
			return err
		}
		l.resized = true
	}
	if err := l.renderer.Show(); err != nil {
		return err
	}
	l.state = Active
	l.log.Info("surface initialized",
		zap.Int("frame_width", bmp.Width),
		zap.Int("frame_height", bmp.Height),
		zap.Int("surface_width", width),
		zap.Int("surface_height", height),
	)
	return nil
}

// surfaceHeight keeps the first frame's aspect ratio at width. Very wide
// frames still get a one pixel tall surface.
func surfaceHeight(bmp *decode.Bitmap, width int) int {
	height := bmp.Height * width / bmp.Width
	if height < 1 {
		return 1
	}
	return height
}

func (l *Loop) logError(msg string, err error, fields ...zap.Field) {
	l.errCount++
	if l.opts.LogEvery > 1 && l.errCount%uint64(l.opts.LogEvery) != 1 {
		return
	}
	fields = append(fields, zap.Error(err), zap.Uint64("error_count", l.errCount))
	l.log.Warn(msg, fields...)
}
