package decode

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/sniffctl/internal/annotation"
	"github.com/danmuck/sniffctl/internal/capture"
	"github.com/danmuck/sniffctl/internal/progress"
)

// Context bundles what one decoder invocation reads: the stream, the usable
// bounds within it, cancellation, and the sinks it writes to. It is built per
// run and discarded afterwards.
type Context struct {
	ctx      context.Context
	Stream   *capture.Stream
	Bounds   capture.Window
	Sink     annotation.Sink
	Progress progress.Reporter
}

type ContextOption func(*Context)

func WithSink(sink annotation.Sink) ContextOption {
	return func(dc *Context) {
		if sink != nil {
			dc.Sink = sink
		}
	}
}

func WithProgress(r progress.Reporter) ContextOption {
	return func(dc *Context) {
		if r != nil {
			dc.Progress = r
		}
	}
}

// WithBounds sets the usable sample range. Only bounds.Start is applied: a
// window starting earlier is raised to it, while the window end is kept as
// configured and validated against the stream length.
func WithBounds(bounds capture.Window) ContextOption {
	return func(dc *Context) {
		dc.Bounds = bounds
	}
}

func NewContext(ctx context.Context, stream *capture.Stream, opts ...ContextOption) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	dc := &Context{
		ctx:      ctx,
		Stream:   stream,
		Sink:     annotation.Discard,
		Progress: progress.Discard,
	}
	if stream != nil {
		dc.Bounds = capture.FullWindow(stream)
	}
	for _, opt := range opts {
		opt(dc)
	}
	return dc
}

// Context returns the cancellation context of this run.
func (dc *Context) Context() context.Context {
	return dc.ctx
}

// Err returns an error matching ErrCanceled once the run was canceled.
func (dc *Context) Err() error {
	if err := dc.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(dc.ctx))
	}
	return nil
}

// Resolve turns a configured window into the effective scan window: the start
// is raised to the first usable sample and the end is kept. Empty windows are
// configuration errors; a window past the data is capture.ErrOutOfRange.
func (dc *Context) Resolve(w capture.Window) (capture.Window, error) {
	if dc.Stream == nil {
		return capture.Window{}, Configf("no sample stream")
	}
	if err := w.Validate(dc.Stream.Len()); err != nil {
		if errors.Is(err, capture.ErrEmptyWindow) {
			return capture.Window{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return capture.Window{}, err
	}
	eff := w
	if dc.Bounds.Start > eff.Start {
		eff.Start = dc.Bounds.Start
	}
	if eff.Start >= eff.End {
		return capture.Window{}, Configf("window %s starts past usable bounds %s", w, dc.Bounds)
	}
	return eff, nil
}
