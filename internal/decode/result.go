package decode

import (
	"encoding/json"
	"math/big"
	"sort"

	"github.com/danmuck/sniffctl/internal/capture"
)

// Status is the terminal state of one decoder run.
type Status string

const (
	StatusComplete Status = "complete"
	StatusCanceled Status = "canceled"
	StatusFailed   Status = "failed"
)

// RecordKind names the protocol meaning of a Record.
type RecordKind string

// Record is one structured decode event over the sample interval
// [StartIdx, EndIdx]; Start and End are the matching timestamps.
type Record struct {
	Kind     RecordKind `json:"kind"`
	Channel  int        `json:"channel"`
	StartIdx int        `json:"start_idx"`
	EndIdx   int        `json:"end_idx"`
	Start    int64      `json:"start"`
	End      int64      `json:"end"`
	State    string     `json:"state,omitempty"`
	Bits     string     `json:"bits,omitempty"`
	Value    *big.Int   `json:"value,omitempty"`
	Text     string     `json:"text,omitempty"`
}

func (r Record) clone() Record {
	if r.Value != nil {
		r.Value = new(big.Int).Set(r.Value)
	}
	return r
}

// Result is the immutable output of one run: records ordered by interval
// start.
type Result struct {
	decoder  string
	window   capture.Window
	records  []Record
	status   Status
	progress int
}

func (r *Result) Decoder() string        { return r.decoder }
func (r *Result) Window() capture.Window { return r.window }
func (r *Result) Status() Status         { return r.status }
func (r *Result) Progress() int          { return r.progress }
func (r *Result) Len() int               { return len(r.records) }

// Records returns a copy of the ordered records.
func (r *Result) Records() []Record {
	out := make([]Record, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.clone()
	}
	return out
}

// Filter returns copies of the records of one kind, in order.
func (r *Result) Filter(kind RecordKind) []Record {
	out := make([]Record, 0)
	for _, rec := range r.records {
		if rec.Kind == kind {
			out = append(out, rec.clone())
		}
	}
	return out
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Decoder  string         `json:"decoder"`
		Window   capture.Window `json:"window"`
		Status   Status         `json:"status"`
		Progress int            `json:"progress"`
		Records  []Record       `json:"records"`
	}{
		Decoder:  r.decoder,
		Window:   r.window,
		Status:   r.status,
		Progress: r.progress,
		Records:  r.records,
	})
}

// ResultBuilder collects records during a run. It is owned by one task and is
// not safe for concurrent use.
type ResultBuilder struct {
	decoder string
	window  capture.Window
	records []Record
}

func NewResultBuilder(decoder string, window capture.Window) *ResultBuilder {
	return &ResultBuilder{decoder: decoder, window: window, records: make([]Record, 0, 16)}
}

func (b *ResultBuilder) Add(rec Record) {
	b.records = append(b.records, rec.clone())
}

// Len returns the number of records collected so far.
func (b *ResultBuilder) Len() int {
	return len(b.records)
}

// Finish sorts the records by start index and seals them into a Result. The
// builder must not be used afterwards.
func (b *ResultBuilder) Finish(status Status, progress int) *Result {
	recs := b.records
	b.records = nil
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].StartIdx < recs[j].StartIdx
	})
	return &Result{
		decoder:  b.decoder,
		window:   b.window,
		records:  recs,
		status:   status,
		progress: progress,
	}
}
