package jtag

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/sniffctl/internal/annotation"
	"github.com/danmuck/sniffctl/internal/capture"
	"github.com/danmuck/sniffctl/internal/decode"
	"github.com/danmuck/sniffctl/internal/progress"
	"github.com/danmuck/sniffctl/internal/testutil/testlog"
)

const (
	chTCK = 0
	chTMS = 1
	chTDI = 2
	chTDO = 3
)

var allRoles = capture.Roles{RoleTCK: chTCK, RoleTMS: chTMS, RoleTDI: chTDI, RoleTDO: chTDO}

type cycle struct {
	tms, tdi, tdo uint8
}

// trace renders one TCK period per cycle: a high sample carrying the cycle's
// TMS/TDI/TDO followed by a low sample. Sample 0 is low, so the rising edge of
// cycle k is sample 1+2k.
func trace(t *testing.T, cycles []cycle) *capture.Stream {
	t.Helper()
	values := []uint64{0}
	for _, c := range cycles {
		base := uint64(c.tms)<<chTMS | uint64(c.tdi)<<chTDI | uint64(c.tdo)<<chTDO
		values = append(values, base|1<<chTCK, base)
	}
	ts := make([]int64, len(values))
	for i := range ts {
		ts[i] = int64(i * 10)
	}
	s, err := capture.NewStream(values, ts, 4, 1_000_000)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	return s
}

func runDecoder(t *testing.T, ctx context.Context, s *capture.Stream, roles capture.Roles, w capture.Window, rep progress.Reporter) (*decode.Result, *annotation.MemorySink, error) {
	t.Helper()
	d := New()
	d.Configure(roles, w)
	sink := annotation.NewMemorySink()
	dc := decode.NewContext(ctx, s, decode.WithSink(sink), decode.WithProgress(rep))
	res, err := d.Run(dc)
	return res, sink, err
}

var toShiftDR = []cycle{{tms: 0}, {tms: 1}, {tms: 0}, {tms: 0}}

func bitOrderCycles() []cycle {
	cycles := append([]cycle{}, toShiftDR...)
	cycles = append(cycles,
		cycle{tms: 0, tdi: 1, tdo: 0},
		cycle{tms: 0, tdi: 0, tdo: 1},
		cycle{tms: 0, tdi: 1, tdo: 1},
		cycle{tms: 1, tdi: 1, tdo: 0},
		cycle{tms: 1},
		cycle{tms: 0},
	)
	return cycles
}

func TestShiftRegisterBitOrder(t *testing.T) {
	testlog.Start(t)
	s := trace(t, bitOrderCycles())
	res, sink, err := runDecoder(t, context.Background(), s, allRoles, capture.FullWindow(s), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	tdi := res.Filter(KindTDI)
	tdo := res.Filter(KindTDO)
	if len(tdi) != 1 || len(tdo) != 1 {
		t.Fatalf("expected one tdi and one tdo record, got %d %d", len(tdi), len(tdo))
	}
	if tdi[0].Bits != "1101" || tdi[0].Value.Int64() != 0b1101 {
		t.Fatalf("tdi bits=%q value=%v, want 1101", tdi[0].Bits, tdi[0].Value)
	}
	if tdo[0].Bits != "0110" || tdo[0].Value.Int64() != 0b0110 {
		t.Fatalf("tdo bits=%q value=%v, want 0110", tdo[0].Bits, tdo[0].Value)
	}
	if tdi[0].StartIdx != 9 || tdi[0].EndIdx != 15 || tdi[0].Start != 90 || tdi[0].End != 150 {
		t.Fatalf("unexpected tdi interval %+v", tdi[0])
	}
	if tdi[0].State != "Update-DR" || tdi[0].Channel != chTDI {
		t.Fatalf("unexpected tdi state/channel %+v", tdi[0])
	}

	values := sink.Channel(chTDI)
	if len(values) != 1 || values[0].Kind != annotation.KindValue || values[0].Value.Int64() != 13 || values[0].Type != annotation.TypeSymbol {
		t.Fatalf("unexpected tdi annotations %+v", values)
	}

	want := []string{"Test-Logic-Reset", "Run-Test/Idle", "Select-DR-Scan", "Capture-DR", "Shift-DR", "Exit1-DR", "Update-DR"}
	states := res.Filter(KindState)
	got := make([]string, 0, len(states))
	for _, r := range states {
		got = append(got, r.State)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("state walk %v, want %v", got, want)
	}
}

func TestInstructionScanAcrossPause(t *testing.T) {
	testlog.Start(t)
	cycles := []cycle{
		{tms: 0}, {tms: 1}, {tms: 1}, {tms: 0}, {tms: 0}, // reset -> idle -> sel-dr -> sel-ir -> capture-ir -> shift-ir
		{tms: 0, tdi: 1},
		{tms: 1, tdi: 1}, // -> exit1-ir
		{tms: 0},         // -> pause-ir
		{tms: 1},         // -> exit2-ir
		{tms: 0},         // -> shift-ir
		{tms: 0, tdi: 0},
		{tms: 1, tdi: 1}, // -> exit1-ir
		{tms: 1},         // -> update-ir
		{tms: 0},
	}
	s := trace(t, cycles)
	res, _, err := runDecoder(t, context.Background(), s, capture.Roles{RoleTCK: chTCK, RoleTMS: chTMS, RoleTDI: chTDI}, capture.FullWindow(s), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	tdi := res.Filter(KindTDI)
	if len(tdi) != 1 {
		t.Fatalf("expected one tdi record, got %d", len(tdi))
	}
	if tdi[0].Bits != "1011" || tdi[0].State != "Update-IR" {
		t.Fatalf("unexpected IR record %+v", tdi[0])
	}
	if tdi[0].StartIdx != 1+2*5 || tdi[0].EndIdx != 1+2*11 {
		t.Fatalf("run must span the pause: %+v", tdi[0])
	}
	if len(res.Filter(KindTDO)) != 0 {
		t.Fatalf("unassigned tdo must not be decoded")
	}
}

func TestNineSampleIdleScenario(t *testing.T) {
	testlog.Start(t)
	values := make([]uint64, 9)
	ts := make([]int64, 9)
	for i := range values {
		values[i] = uint64(i % 2)
		ts[i] = int64(i)
	}
	s, err := capture.NewStream(values, ts, 2, 1000)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	res, sink, err := runDecoder(t, context.Background(), s, capture.Roles{RoleTCK: 0, RoleTMS: 1}, capture.FullWindow(s), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Filter(KindTDI))+len(res.Filter(KindTDO)) != 0 {
		t.Fatalf("expected no shift records")
	}
	intervals := sink.Channel(1)
	if len(intervals) != 1 {
		t.Fatalf("expected exactly one tms interval, got %+v", intervals)
	}
	got := intervals[0]
	if got.Kind != annotation.KindInterval || got.Text != "Test-Logic-Reset" || got.Start != 0 || got.End != 1 || got.Style != annotation.StyleState {
		t.Fatalf("unexpected interval %+v", got)
	}
	if states := res.Filter(KindState); len(states) != 1 || states[0].StartIdx != 0 || states[0].EndIdx != 1 {
		t.Fatalf("unexpected state records %+v", states)
	}
}

func TestResetHeldEmitsNothing(t *testing.T) {
	testlog.Start(t)
	cycles := make([]cycle, 12)
	for i := range cycles {
		cycles[i] = cycle{tms: 1, tdi: 1, tdo: 1}
	}
	s := trace(t, cycles)
	res, sink, err := runDecoder(t, context.Background(), s, allRoles, capture.FullWindow(s), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Len() != 0 {
		t.Fatalf("expected no records, got %+v", res.Records())
	}
	if sink.Len() != 4 {
		t.Fatalf("expected only the four role labels, got %+v", sink.All())
	}
}

func TestDeterministic(t *testing.T) {
	testlog.Start(t)
	s := trace(t, bitOrderCycles())
	r1, s1, err := runDecoder(t, context.Background(), s, allRoles, capture.FullWindow(s), nil)
	if err != nil {
		t.Fatalf("run 1: %v", err)
	}
	r2, s2, err := runDecoder(t, context.Background(), s, allRoles, capture.FullWindow(s), nil)
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	j1, _ := r1.MarshalJSON()
	j2, _ := r2.MarshalJSON()
	if string(j1) != string(j2) {
		t.Fatalf("results differ:\n%s\n%s", j1, j2)
	}
	if !reflect.DeepEqual(s1.All(), s2.All()) {
		t.Fatalf("annotation streams differ")
	}
}

func TestAnnotationsDoNotOverlap(t *testing.T) {
	testlog.Start(t)
	cycles := bitOrderCycles()
	cycles = append(cycles, bitOrderCycles()[1:]...)
	s := trace(t, cycles)
	_, sink, err := runDecoder(t, context.Background(), s, allRoles, capture.FullWindow(s), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, ch := range []int{chTMS, chTDI, chTDO} {
		anns := sink.Channel(ch)
		if len(anns) == 0 {
			t.Fatalf("channel %d has no annotations", ch)
		}
		for i := 1; i < len(anns); i++ {
			if anns[i].Start <= anns[i-1].End {
				t.Fatalf("channel %d: %+v overlaps %+v", ch, anns[i], anns[i-1])
			}
		}
	}
	if len(sink.Channel(chTDI)) != 2 {
		t.Fatalf("expected two tdi values, got %+v", sink.Channel(chTDI))
	}
}

func TestProgressMonotonic(t *testing.T) {
	testlog.Start(t)
	s := trace(t, bitOrderCycles())
	rec := &progress.Recorder{}
	res, _, err := runDecoder(t, context.Background(), s, allRoles, capture.FullWindow(s), rec)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	updates := rec.Updates()
	if len(updates) == 0 || updates[len(updates)-1] != 100 {
		t.Fatalf("progress must end at 100, got %v", updates)
	}
	for i := 1; i < len(updates); i++ {
		if updates[i] < updates[i-1] {
			t.Fatalf("progress went backwards: %v", updates)
		}
	}
	if res.Progress() != 100 || res.Status() != decode.StatusComplete {
		t.Fatalf("unexpected final status %s/%d", res.Status(), res.Progress())
	}
}

func TestCancellationPartial(t *testing.T) {
	testlog.Start(t)
	var cycles []cycle
	for i := 0; i < 12; i++ {
		cycles = append(cycles, bitOrderCycles()...)
		cycles = append(cycles, cycle{tms: 1}, cycle{tms: 1}, cycle{tms: 1}, cycle{tms: 1}, cycle{tms: 1})
	}
	s := trace(t, cycles)
	n := s.Len()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelAt := n / 2
	rec := &progress.Recorder{}
	rep := progress.ReporterFunc(func(p int) {
		rec.Report(p)
		if p >= progress.Percent(cancelAt, n) {
			cancel()
		}
	})

	res, _, err := runDecoder(t, ctx, s, allRoles, capture.FullWindow(s), rep)
	if !errors.Is(err, decode.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if res == nil || res.Status() != decode.StatusCanceled {
		t.Fatalf("expected partial canceled result, got %+v", res)
	}
	if res.Len() == 0 {
		t.Fatalf("expected records before cancellation")
	}
	for _, r := range res.Records() {
		if r.EndIdx > cancelAt+1 {
			t.Fatalf("record %+v ends past cancellation at %d", r, cancelAt+1)
		}
	}
	for _, p := range rec.Updates() {
		if p == 100 {
			t.Fatalf("canceled run must not report 100: %v", rec.Updates())
		}
	}
	if res.Progress() >= 100 {
		t.Fatalf("unexpected partial progress %d", res.Progress())
	}
}

func TestConfigurationErrors(t *testing.T) {
	testlog.Start(t)
	s := trace(t, bitOrderCycles())

	cases := []struct {
		name  string
		roles capture.Roles
		w     capture.Window
		want  error
	}{
		{name: "missing tms", roles: capture.Roles{RoleTCK: chTCK}, w: capture.FullWindow(s), want: decode.ErrConfiguration},
		{name: "explicit unassigned tck", roles: capture.Roles{RoleTCK: capture.Unassigned, RoleTMS: chTMS}, w: capture.FullWindow(s), want: decode.ErrConfiguration},
		{name: "channel too wide", roles: capture.Roles{RoleTCK: chTCK, RoleTMS: 9}, w: capture.FullWindow(s), want: capture.ErrInvalidChannel},
		{name: "empty window", roles: allRoles, w: capture.Window{Start: 4, End: 4}, want: decode.ErrConfiguration},
		{name: "inverted window", roles: allRoles, w: capture.Window{Start: 6, End: 2}, want: decode.ErrConfiguration},
		{name: "past data", roles: allRoles, w: capture.Window{Start: 0, End: s.Len() + 1}, want: capture.ErrOutOfRange},
	}
	for _, tc := range cases {
		_, sink, err := runDecoder(t, context.Background(), s, tc.roles, tc.w, nil)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if sink.Len() != 0 {
			t.Fatalf("%s: annotations emitted before validation: %+v", tc.name, sink.All())
		}
	}
}

func TestRunOncePerConfigure(t *testing.T) {
	testlog.Start(t)
	s := trace(t, bitOrderCycles())
	d := New()
	d.Configure(allRoles, capture.FullWindow(s))
	if _, err := d.Run(decode.NewContext(context.Background(), s)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := d.Run(decode.NewContext(context.Background(), s)); !errors.Is(err, decode.ErrAlreadyRun) {
		t.Fatalf("expected ErrAlreadyRun, got %v", err)
	}
	d.Configure(allRoles, capture.FullWindow(s))
	if _, err := d.Run(decode.NewContext(context.Background(), s)); err != nil {
		t.Fatalf("re-configured run: %v", err)
	}
}

func TestSubWindowAndBounds(t *testing.T) {
	testlog.Start(t)
	s := trace(t, bitOrderCycles())
	d := New()
	d.Configure(allRoles, capture.Window{Start: 0, End: 8})
	dc := decode.NewContext(context.Background(), s, decode.WithBounds(capture.Window{Start: 2, End: s.Len()}))
	res, err := d.Run(dc)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Window() != (capture.Window{Start: 2, End: 8}) {
		t.Fatalf("unexpected effective window %s", res.Window())
	}
	for _, r := range res.Records() {
		if r.StartIdx < 2 || r.EndIdx >= 8 {
			t.Fatalf("record outside window: %+v", r)
		}
	}
}

func TestRegisterAndFactory(t *testing.T) {
	testlog.Start(t)
	r := decode.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatalf("register: %v", err)
	}
	task, err := r.New(ID, nil)
	if err != nil || task.Name() != ID {
		t.Fatalf("new: %v %v", task, err)
	}
	if _, err := r.New(ID, decode.Options{"auto_reset": "true"}); !errors.Is(err, decode.ErrConfiguration) {
		t.Fatalf("expected option rejection, got %v", err)
	}
}
