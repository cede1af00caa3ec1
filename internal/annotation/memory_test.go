package annotation

import (
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/danmuck/sniffctl/internal/testutil/testlog"
)

func TestMemorySinkClearAndLabel(t *testing.T) {
	testlog.Start(t)
	m := NewMemorySink()
	m.AddLabel(0, "TCK")
	m.AddInterval(0, 0, 10, "Reset", StyleState)
	m.AddLabel(1, "TMS")
	m.AddValue(1, 3, 4, big.NewInt(7), TypeSymbol)

	m.Clear(0)
	if _, ok := m.Label(0); ok {
		t.Fatalf("label should be cleared")
	}
	if got := m.Channel(0); len(got) != 0 {
		t.Fatalf("channel 0 should be empty: %+v", got)
	}
	if text, ok := m.Label(1); !ok || text != "TMS" {
		t.Fatalf("channel 1 label lost: %q %v", text, ok)
	}
	if got := m.Channel(1); len(got) != 1 || got[0].Value.Int64() != 7 {
		t.Fatalf("channel 1 annotations lost: %+v", got)
	}
	if m.Len() != 2 {
		t.Fatalf("unexpected len: %d", m.Len())
	}
}

func TestMemorySinkChannelSortedByStart(t *testing.T) {
	testlog.Start(t)
	m := NewMemorySink()
	m.AddInterval(2, 30, 40, "c", "")
	m.AddInterval(2, 10, 20, "a", "")
	m.AddError(2, 10, 12, "b")

	got := m.Channel(2)
	want := []string{"a", "b", "c"}
	for i, a := range got {
		if a.Text != want[i] {
			t.Fatalf("order mismatch at %d: got %q want %q", i, a.Text, want[i])
		}
	}
	if got[1].Kind != KindError {
		t.Fatalf("expected error kind, got %s", got[1].Kind)
	}
}

func TestMemorySinkCopiesValues(t *testing.T) {
	testlog.Start(t)
	m := NewMemorySink()
	v := big.NewInt(5)
	m.AddValue(0, 0, 1, v, TypeSymbol)
	v.SetInt64(9)
	if got := m.All()[0].Value.Int64(); got != 5 {
		t.Fatalf("sink aliased caller value: %d", got)
	}
}

func TestMemorySinkConcurrentWritersKeepOwnOrder(t *testing.T) {
	testlog.Start(t)
	m := NewMemorySink()
	const writers = 8
	const per = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(ch int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				m.AddInterval(ch, int64(i), int64(i), fmt.Sprintf("%d", i), "")
			}
		}(w)
	}
	wg.Wait()

	next := make(map[int]int)
	for _, a := range m.All() {
		if a.Text != fmt.Sprintf("%d", next[a.Channel]) {
			t.Fatalf("channel %d reordered: got %s want %d", a.Channel, a.Text, next[a.Channel])
		}
		next[a.Channel]++
	}
	for w := 0; w < writers; w++ {
		if next[w] != per {
			t.Fatalf("channel %d lost annotations: %d", w, next[w])
		}
	}
}
