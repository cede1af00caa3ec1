// Package jtag decodes a JTAG TAP controller walk from TCK, TMS, TDI and TDO.
package jtag

import (
	"math/big"

	"github.com/danmuck/sniffctl/internal/annotation"
	"github.com/danmuck/sniffctl/internal/capture"
	"github.com/danmuck/sniffctl/internal/decode"
	"github.com/danmuck/sniffctl/internal/progress"
	"github.com/rs/zerolog/log"
)

const ID = "jtag"

const (
	RoleTCK = "tck"
	RoleTMS = "tms"
	RoleTDI = "tdi"
	RoleTDO = "tdo"
)

const (
	KindTDI   decode.RecordKind = "tdi"
	KindTDO   decode.RecordKind = "tdo"
	KindState decode.RecordKind = "state"
)

// Roles lists the TAP signals. TCK and TMS drive the state machine; TDI and
// TDO are optional and only decoded when assigned.
var Roles = []decode.RoleSpec{
	{Name: RoleTCK, Label: "TCK", Required: true},
	{Name: RoleTMS, Label: "TMS", Required: true},
	{Name: RoleTDI, Label: "TDI"},
	{Name: RoleTDO, Label: "TDO"},
}

var Metadata = decode.Metadata{
	ID:          ID,
	Name:        "JTAG",
	Description: "TAP controller state walk with TDI/TDO shift register values",
	Roles:       Roles,
}

// Decoder is the TAP controller decode task.
type Decoder struct {
	decode.Config
}

func New() *Decoder {
	return &Decoder{}
}

// Factory builds a Decoder. The decoder takes no options.
func Factory(opts decode.Options) (decode.Task, error) {
	if err := opts.Only(); err != nil {
		return nil, err
	}
	return New(), nil
}

// Register adds the decoder to r.
func Register(r *decode.Registry) error {
	return r.Register(Metadata, Factory)
}

func (d *Decoder) Name() string {
	return ID
}

// Run scans the configured window once. On cancellation it returns the
// records decoded so far with status canceled and an error matching
// decode.ErrCanceled.
func (d *Decoder) Run(dc *decode.Context) (*decode.Result, error) {
	if dc == nil {
		return nil, decode.Configf("nil decode context")
	}
	roles, window, err := d.Begin()
	if err != nil {
		return nil, err
	}
	bindings, err := decode.Bind(dc.Stream, roles, Roles)
	if err != nil {
		return nil, err
	}
	eff, err := dc.Resolve(window)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("decoder", ID).
		Str("window", eff.String()).
		Uint64("tck_mask", bindings[RoleTCK].Mask).
		Uint64("tms_mask", bindings[RoleTMS].Mask).
		Uint64("tdi_mask", bindings[RoleTDI].Mask).
		Uint64("tdo_mask", bindings[RoleTDO].Mask).
		Msg("decode window resolved")

	decode.Prepare(dc.Sink, bindings, Roles)

	s := &scan{
		dc:            dc,
		stream:        dc.Stream,
		sink:          dc.Sink,
		progress:      progress.NewMonotonic(dc.Progress),
		out:           decode.NewResultBuilder(ID, eff),
		tck:           bindings[RoleTCK],
		tms:           bindings[RoleTMS],
		tdi:           bindings[RoleTDI],
		tdo:           bindings[RoleTDO],
		win:           eff,
		state:         TestLogicReset,
		intervalStart: eff.Start,
	}
	return s.run()
}

// scan holds the running state of one decode.
type scan struct {
	dc       *decode.Context
	stream   *capture.Stream
	sink     annotation.Sink
	progress *progress.Monotonic
	out      *decode.ResultBuilder

	tck, tms, tdi, tdo decode.Binding

	win           capture.Window
	state         State
	intervalStart int
	shift         shiftRun
}

// shiftRun accumulates the bits of one Shift-DR or Shift-IR run. Bits are
// stored oldest first and rendered newest first.
type shiftRun struct {
	active     bool
	start, end int
	tdi, tdo   []byte
}

func (r *shiftRun) reset() {
	r.active = false
	r.tdi = r.tdi[:0]
	r.tdo = r.tdo[:0]
}

func (r *shiftRun) add(idx int, tdi, tdo uint8) {
	if !r.active {
		r.active = true
		r.start = idx
	}
	r.end = idx
	r.tdi = append(r.tdi, '0'+tdi)
	r.tdo = append(r.tdo, '0'+tdo)
}

// bits renders oldest-first bits as a string with the newest bit first, so
// the first sampled bit is the least significant.
func bits(oldestFirst []byte) string {
	out := make([]byte, len(oldestFirst))
	for i, b := range oldestFirst {
		out[len(out)-1-i] = b
	}
	return string(out)
}

func (s *scan) run() (*decode.Result, error) {
	start, end := s.win.Start, s.win.End
	first, err := s.stream.Sample(start)
	if err != nil {
		return nil, err
	}
	prevClk := s.tck.Bit(first)

	for idx := start + 1; idx < end; idx++ {
		if err := s.dc.Err(); err != nil {
			return s.out.Finish(decode.StatusCanceled, max(s.progress.Last(), 0)), err
		}
		v, err := s.stream.Sample(idx)
		if err != nil {
			return nil, err
		}
		clk := s.tck.Bit(v)
		if capture.EdgeOf(prevClk, clk) == capture.EdgeRising {
			if err := s.clock(idx, v); err != nil {
				return nil, err
			}
		}
		prevClk = clk
		s.progress.Report(progress.Percent(idx-start, end-start))
	}

	s.progress.Report(100)
	log.Debug().Str("decoder", ID).Int("records", s.out.Len()).Msg("decode scan complete")
	return s.out.Finish(decode.StatusComplete, 100), nil
}

// clock advances the machine on one TCK rising edge at sample idx.
func (s *scan) clock(idx int, sample uint64) error {
	cur := s.state
	switch {
	case cur.IsCapture():
		s.shift.reset()
	case cur.IsShift():
		s.shift.add(idx, s.tdi.Bit(sample), s.tdo.Bit(sample))
	}

	next := cur.Next(s.tms.Bit(sample))
	if next == cur {
		return nil
	}
	if next.IsUpdate() {
		if err := s.emitShift(next); err != nil {
			return err
		}
	}
	if err := s.emitState(cur, idx); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *scan) emitState(prev State, idx int) error {
	start, err := s.stream.Timestamp(s.intervalStart)
	if err != nil {
		return err
	}
	end, err := s.stream.Timestamp(idx)
	if err != nil {
		return err
	}
	ch := int(s.tms.Channel)
	s.sink.AddInterval(ch, start, end, prev.String(), annotation.StyleState)
	s.out.Add(decode.Record{
		Kind:     KindState,
		Channel:  ch,
		StartIdx: s.intervalStart,
		EndIdx:   idx,
		Start:    start,
		End:      end,
		State:    prev.String(),
	})
	s.intervalStart = idx + 1
	return nil
}

func (s *scan) emitShift(update State) error {
	defer s.shift.reset()
	if !s.shift.active {
		return nil
	}
	start, err := s.stream.Timestamp(s.shift.start)
	if err != nil {
		return err
	}
	end, err := s.stream.Timestamp(s.shift.end)
	if err != nil {
		return err
	}
	for _, line := range []struct {
		kind decode.RecordKind
		b    decode.Binding
		raw  []byte
	}{
		{KindTDI, s.tdi, s.shift.tdi},
		{KindTDO, s.tdo, s.shift.tdo},
	} {
		if !line.b.Assigned {
			continue
		}
		str := bits(line.raw)
		value, ok := new(big.Int).SetString(str, 2)
		if !ok {
			return decode.Configf("unparsable %s bits %q", line.kind, str)
		}
		ch := int(line.b.Channel)
		s.sink.AddValue(ch, start, end, value, annotation.TypeSymbol)
		s.out.Add(decode.Record{
			Kind:     line.kind,
			Channel:  ch,
			StartIdx: s.shift.start,
			EndIdx:   s.shift.end,
			Start:    start,
			End:      end,
			State:    update.String(),
			Bits:     str,
			Value:    value,
		})
	}
	return nil
}
