// Package progress carries 0..100 completion updates from running decoders.
package progress

import "sync"

// Reporter receives completion percentages.
type Reporter interface {
	Report(percent int)
}

// ReporterFunc adapts a function into a Reporter.
type ReporterFunc func(percent int)

func (f ReporterFunc) Report(percent int) {
	f(percent)
}

// Discard drops every update.
var Discard Reporter = ReporterFunc(func(int) {})

// Percent returns done*100/total truncated toward zero and clamped to
// [0,100]. A non-positive total reads as complete.
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	p := int(int64(done) * 100 / int64(total))
	return clamp(p)
}

// Monotonic forwards only strictly increasing percentages, clamped to
// [0,100], so the downstream reporter never sees a value go backwards or
// repeat.
type Monotonic struct {
	mu   sync.Mutex
	next Reporter
	last int
}

func NewMonotonic(next Reporter) *Monotonic {
	if next == nil {
		next = Discard
	}
	return &Monotonic{next: next, last: -1}
}

func (m *Monotonic) Report(percent int) {
	percent = clamp(percent)
	m.mu.Lock()
	if percent <= m.last {
		m.mu.Unlock()
		return
	}
	m.last = percent
	m.mu.Unlock()
	m.next.Report(percent)
}

// Last returns the last forwarded percentage, or -1 before the first report.
func (m *Monotonic) Last() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Recorder stores every update it receives.
type Recorder struct {
	mu      sync.Mutex
	updates []int
}

func (r *Recorder) Report(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, percent)
}

// Updates returns a copy of the received updates in order.
func (r *Recorder) Updates() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.updates))
	copy(out, r.updates)
	return out
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
