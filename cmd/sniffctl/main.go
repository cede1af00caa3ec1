package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/sniffctl/internal/annotation"
	"github.com/danmuck/sniffctl/internal/capture/source"
	"github.com/danmuck/sniffctl/internal/config"
	"github.com/danmuck/sniffctl/internal/decode"
	"github.com/danmuck/sniffctl/internal/decoders"
	"github.com/danmuck/sniffctl/internal/observability"
)

var errRunFailed = errors.New("sniffctl: decoder failed")
var errRunCanceled = errors.New("sniffctl: decode canceled")

func main() {
	observability.InitLogger("sniffctl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	switch {
	case err == nil:
		return
	case errors.Is(err, errRunCanceled):
		fmt.Fprintf(os.Stderr, "sniffctl: %v\n", err)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "sniffctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sniffctl", flag.ContinueOnError)
	jobPath := fs.String("job", "cmd/sniffctl/job.toml", "decode job config path")
	capturePath := fs.String("capture", "", "override the job capture location")
	timeout := fs.Duration("timeout", 0, "override the job timeout")
	list := fs.Bool("list", false, "list registered decoders and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	registry, err := decoders.NewRegistry()
	if err != nil {
		return err
	}
	if *list {
		enc := json.NewEncoder(stdout)
		for _, meta := range registry.ListMetadata() {
			if err := enc.Encode(meta); err != nil {
				return err
			}
		}
		return nil
	}

	job, err := config.LoadJobConfig(*jobPath)
	if err != nil {
		return err
	}
	if *capturePath != "" {
		job.Capture = *capturePath
	}
	if *timeout > 0 {
		job.Timeout = *timeout
	}

	ctx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	src, err := source.Parse(job.Capture, job.SSH)
	if err != nil {
		return err
	}
	stream, err := source.Load(ctx, src, job.Limits)
	if err != nil {
		return fmt.Errorf("load %s: %w", src.Describe(), err)
	}

	sink := annotation.NewMemorySink()
	jobs := make([]decode.Job, 0, len(job.Decoders))
	for _, d := range job.Decoders {
		task, err := registry.New(d.ID, d.Options)
		if err != nil {
			return err
		}
		jobs = append(jobs, decode.Job{
			Decoder: d.ID,
			Task:    task,
			Roles:   d.Roles,
			Window:  d.Effective(stream.Len()),
			Sink:    sink,
		})
	}

	out, err := openOutput(job.Output, stdout)
	if err != nil {
		return err
	}

	runner := &decode.Runner{Stream: stream}
	outcomes := runner.Run(ctx, jobs)
	var annotations []annotation.Annotation
	if job.Annotations {
		annotations = sink.All()
	}
	if err := emit(out, outcomes, annotations); err != nil {
		return err
	}
	return exitError(outcomes)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func openOutput(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{stdout}, nil
	}
	return os.Create(path)
}

// emit writes the report to out and closes it. A failed close is reported
// since it may drop buffered output.
func emit(out io.WriteCloser, outcomes []decode.Outcome, annotations []annotation.Annotation) error {
	err := writeOutcomes(out, outcomes)
	if err == nil {
		err = writeAnnotations(out, annotations)
	}
	if cerr := out.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	return err
}

type recordLine struct {
	Decoder string `json:"decoder"`
	decode.Record
}

type summaryLine struct {
	Decoder     string        `json:"decoder"`
	Summary     bool          `json:"summary"`
	Status      decode.Status `json:"status"`
	Progress    int           `json:"progress"`
	Records     int           `json:"records"`
	Annotations int           `json:"annotations"`
	DurationMS  int64         `json:"duration_ms"`
	Error       string        `json:"error,omitempty"`
}

type annotationLine struct {
	Annotation annotation.Annotation `json:"annotation"`
}

// writeOutcomes emits every record as one JSON line, then one summary line
// per decoder.
func writeOutcomes(w io.Writer, outcomes []decode.Outcome) error {
	enc := json.NewEncoder(w)
	for _, o := range outcomes {
		if o.Result == nil {
			continue
		}
		for _, rec := range o.Result.Records() {
			if err := enc.Encode(recordLine{Decoder: o.Decoder, Record: rec}); err != nil {
				return err
			}
		}
	}
	for _, o := range outcomes {
		line := summaryLine{
			Decoder:     o.Decoder,
			Summary:     true,
			Status:      o.Status,
			Annotations: o.Annotations,
			DurationMS:  o.Duration.Round(time.Millisecond).Milliseconds(),
		}
		if o.Result != nil {
			line.Progress = o.Result.Progress()
			line.Records = o.Result.Len()
		}
		if o.Err != nil {
			line.Error = o.Err.Error()
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func writeAnnotations(w io.Writer, items []annotation.Annotation) error {
	enc := json.NewEncoder(w)
	for _, a := range items {
		if err := enc.Encode(annotationLine{Annotation: a}); err != nil {
			return err
		}
	}
	return nil
}

func exitError(outcomes []decode.Outcome) error {
	canceled := false
	for _, o := range outcomes {
		switch o.Status {
		case decode.StatusFailed:
			return fmt.Errorf("%w: %s: %v", errRunFailed, o.Decoder, o.Err)
		case decode.StatusCanceled:
			canceled = true
		}
	}
	if canceled {
		return errRunCanceled
	}
	return nil
}
