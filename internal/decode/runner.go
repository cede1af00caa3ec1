package decode

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/sniffctl/internal/annotation"
	"github.com/danmuck/sniffctl/internal/capture"
	"github.com/danmuck/sniffctl/internal/progress"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Job is one decoder invocation scheduled by a Runner.
type Job struct {
	Decoder  string
	Task     Task
	Roles    capture.Roles
	Window   capture.Window
	Sink     annotation.Sink
	Progress progress.Reporter
}

// Outcome is the terminal report of one Job.
type Outcome struct {
	Decoder     string
	Result      *Result
	Status      Status
	Err         error
	Duration    time.Duration
	Annotations int
}

// Observer receives one call per finished job.
type Observer func(decoder string, status Status, duration time.Duration, annotations int)

// Runner executes jobs against one shared read-only stream, one goroutine per
// job.
type Runner struct {
	Stream  *capture.Stream
	Bounds  capture.Window
	Logger  *zerolog.Logger
	Observe Observer
}

// Run starts every job and waits for all of them. Outcomes are returned in job
// order.
func (r *Runner) Run(ctx context.Context, jobs []Job) []Outcome {
	out := make([]Outcome, len(jobs))
	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i] = r.runOne(ctx, jobs[i])
		}(i)
	}
	wg.Wait()
	return out
}

// RunOne executes a single job on the calling goroutine.
func (r *Runner) RunOne(ctx context.Context, job Job) Outcome {
	return r.runOne(ctx, job)
}

func (r *Runner) runOne(ctx context.Context, job Job) Outcome {
	logger := r.logger()
	name := job.Decoder
	if name == "" && job.Task != nil {
		name = job.Task.Name()
	}
	outcome := Outcome{Decoder: name}
	if job.Task == nil {
		outcome.Status = StatusFailed
		outcome.Err = ErrNilTask
		return outcome
	}

	sink := &countingSink{next: job.Sink}
	if sink.next == nil {
		sink.next = annotation.Discard
	}
	opts := []ContextOption{WithSink(sink), WithProgress(job.Progress)}
	if !r.Bounds.IsZero() {
		opts = append(opts, WithBounds(r.Bounds))
	}

	job.Task.Configure(job.Roles, job.Window)
	dc := NewContext(ctx, r.Stream, opts...)

	start := time.Now()
	res, err := job.Task.Run(dc)
	outcome.Duration = time.Since(start)
	outcome.Result = res
	outcome.Err = err
	outcome.Annotations = int(sink.n.Load())

	switch {
	case err == nil:
		outcome.Status = StatusComplete
	case errors.Is(err, ErrCanceled):
		outcome.Status = StatusCanceled
	default:
		outcome.Status = StatusFailed
	}

	event := logger.Info()
	if outcome.Status == StatusFailed {
		event = logger.Warn().Err(err)
	}
	records := 0
	if res != nil {
		records = res.Len()
	}
	event.
		Str("decoder", name).
		Str("window", job.Window.String()).
		Str("status", string(outcome.Status)).
		Int("records", records).
		Int("annotations", outcome.Annotations).
		Dur("duration", outcome.Duration).
		Msg("decode finished")

	if r.Observe != nil {
		r.Observe(name, outcome.Status, outcome.Duration, outcome.Annotations)
	}
	return outcome
}

func (r *Runner) logger() *zerolog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return &log.Logger
}

// countingSink forwards to next and counts emitted annotations. Clear calls
// are not counted.
type countingSink struct {
	next annotation.Sink
	n    atomic.Int64
}

func (s *countingSink) Clear(channel int) {
	s.next.Clear(channel)
}

func (s *countingSink) AddLabel(channel int, text string) {
	s.n.Add(1)
	s.next.AddLabel(channel, text)
}

func (s *countingSink) AddValue(channel int, start, end int64, value *big.Int, typeTag string) {
	s.n.Add(1)
	s.next.AddValue(channel, start, end, value, typeTag)
}

func (s *countingSink) AddInterval(channel int, start, end int64, label, styleTag string) {
	s.n.Add(1)
	s.next.AddInterval(channel, start, end, label, styleTag)
}

func (s *countingSink) AddError(channel int, start, end int64, text string) {
	s.n.Add(1)
	s.next.AddError(channel, start, end, text)
}
