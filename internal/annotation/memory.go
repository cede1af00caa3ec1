package annotation

import (
	"math/big"
	"sort"
	"sync"
)

// MemorySink stores annotations in memory. It is safe for concurrent use and
// keeps submission order, so a single decoder's output is never reordered.
type MemorySink struct {
	mu     sync.RWMutex
	items  []Annotation
	labels map[int]string
}

func NewMemorySink() *MemorySink {
	return &MemorySink{labels: make(map[int]string)}
}

// Clear drops the label and every annotation on channel.
func (m *MemorySink) Clear(channel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	for _, a := range m.items {
		if a.Channel != channel {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(m.items); i++ {
		m.items[i] = Annotation{}
	}
	m.items = kept
	delete(m.labels, channel)
}

func (m *MemorySink) AddLabel(channel int, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels[channel] = text
	m.items = append(m.items, Annotation{Channel: channel, Kind: KindLabel, Text: text})
}

func (m *MemorySink) AddValue(channel int, start, end int64, value *big.Int, typeTag string) {
	var v *big.Int
	if value != nil {
		v = new(big.Int).Set(value)
	}
	m.append(Annotation{Channel: channel, Start: start, End: end, Kind: KindValue, Value: v, Type: typeTag})
}

func (m *MemorySink) AddInterval(channel int, start, end int64, label, styleTag string) {
	m.append(Annotation{Channel: channel, Start: start, End: end, Kind: KindInterval, Text: label, Style: styleTag})
}

func (m *MemorySink) AddError(channel int, start, end int64, text string) {
	m.append(Annotation{Channel: channel, Start: start, End: end, Kind: KindError, Text: text})
}

func (m *MemorySink) append(a Annotation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, a)
}

// Label returns the current label of channel.
func (m *MemorySink) Label(channel int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.labels[channel]
	return text, ok
}

// All returns every stored annotation in submission order.
func (m *MemorySink) All() []Annotation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Annotation, len(m.items))
	copy(out, m.items)
	return out
}

// Channel returns the non-label annotations of channel ordered by start
// timestamp. Equal starts keep submission order.
func (m *MemorySink) Channel(channel int) []Annotation {
	m.mu.RLock()
	out := make([]Annotation, 0)
	for _, a := range m.items {
		if a.Channel == channel && a.Kind != KindLabel {
			out = append(out, a)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// Len returns the number of stored annotations, labels included.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
