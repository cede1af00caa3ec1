// Package uart decodes asynchronous start/stop framed serial lines.
//
// Each assigned line is scanned independently: idle, start edge, data bits
// sampled at bit centres, optional parity, stop bit. Bad stop or parity bits
// are reported as anomalies and never abort the decode.
package uart

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/danmuck/sniffctl/internal/annotation"
	"github.com/danmuck/sniffctl/internal/capture"
	"github.com/danmuck/sniffctl/internal/decode"
	"github.com/danmuck/sniffctl/internal/progress"
	"github.com/rs/zerolog/log"
)

const ID = "uart"

const (
	RoleRXD = "rxd"
	RoleTXD = "txd"
)

const (
	KindRXD          decode.RecordKind = "rxd"
	KindTXD          decode.RecordKind = "txd"
	KindFramingError decode.RecordKind = "framing-error"
	KindParityError  decode.RecordKind = "parity-error"
)

var Roles = []decode.RoleSpec{
	{Name: RoleRXD, Label: "RxD"},
	{Name: RoleTXD, Label: "TxD"},
}

var Metadata = decode.Metadata{
	ID:          ID,
	Name:        "UART",
	Description: "Asynchronous serial framing with optional parity",
	Roles:       Roles,
	Options:     optionKeys,
}

// Decoder is the UART framer task.
type Decoder struct {
	decode.Config
	settings Settings
}

func New(settings Settings) (*Decoder, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{settings: settings}, nil
}

func Factory(opts decode.Options) (decode.Task, error) {
	settings, err := ParseSettings(opts)
	if err != nil {
		return nil, err
	}
	return New(settings)
}

// Register adds the decoder to r.
func Register(r *decode.Registry) error {
	return r.Register(Metadata, Factory)
}

func (d *Decoder) Name() string {
	return ID
}

func (d *Decoder) Settings() Settings {
	return d.settings
}

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
	lines := make([]line, 0, 2)
	for _, spec := range []struct {
		role string
		kind decode.RecordKind
	}{{RoleRXD, KindRXD}, {RoleTXD, KindTXD}} {
		if b := bindings[spec.role]; b.Assigned {
			lines = append(lines, line{b: b, kind: spec.kind})
		}
	}
	if len(lines) == 0 {
		return nil, decode.Configf("at least one of %s, %s must be assigned", RoleRXD, RoleTXD)
	}
	eff, err := dc.Resolve(window)
	if err != nil {
		return nil, err
	}
	bit := float64(dc.Stream.Rate()) / float64(d.settings.Baud)
	if bit < 2 {
		return nil, decode.Configf("sample rate %d too low for %d baud", dc.Stream.Rate(), d.settings.Baud)
	}

	log.Debug().
		Str("decoder", ID).
		Str("window", eff.String()).
		Int("baud", d.settings.Baud).
		Float64("bit_ticks", bit).
		Int("lines", len(lines)).
		Msg("decode window resolved")

	decode.Prepare(dc.Sink, bindings, Roles)

	f := &framer{
		dc:       dc,
		stream:   dc.Stream,
		sink:     dc.Sink,
		progress: progress.NewMonotonic(dc.Progress),
		out:      decode.NewResultBuilder(ID, eff),
		settings: d.settings,
		bit:      bit,
		win:      eff,
		passes:   len(lines),
	}
	for pass, l := range lines {
		if err := f.scan(pass, l); err != nil {
			if res := f.canceled(err); res != nil {
				return res, err
			}
			return nil, err
		}
	}
	f.progress.Report(100)
	return f.out.Finish(decode.StatusComplete, 100), nil
}

type line struct {
	b    decode.Binding
	kind decode.RecordKind
}

type framer struct {
	dc       *decode.Context
	stream   *capture.Stream
	sink     annotation.Sink
	progress *progress.Monotonic
	out      *decode.ResultBuilder
	settings Settings
	bit      float64
	win      capture.Window
	passes   int
}

// frame is one decoded character.
type frame struct {
	startIdx, endIdx int
	data             uint64
	framingErr       bool
	parityErr        bool
}

func (f *framer) canceled(err error) *decode.Result {
	if !errors.Is(err, decode.ErrCanceled) {
		return nil
	}
	return f.out.Finish(decode.StatusCanceled, max(f.progress.Last(), 0))
}

// level returns the logical line level at sample i: 1 idle, 0 active.
func (f *framer) level(l line, i int) (uint8, error) {
	v, err := f.stream.Sample(i)
	if err != nil {
		return 0, err
	}
	b := l.b.Bit(v)
	if f.settings.Inverted {
		b ^= 1
	}
	return b, nil
}

func (f *framer) report(pass, idx int) {
	span := f.win.End - f.win.Start
	f.progress.Report(progress.Percent(pass*span+idx-f.win.Start, f.passes*span))
}

func (f *framer) scan(pass int, l line) error {
	start, end := f.win.Start, f.win.End
	prev, err := f.level(l, start)
	if err != nil {
		return err
	}
	idx := start + 1
	for idx < end {
		if err := f.dc.Err(); err != nil {
			return err
		}
		cur, err := f.level(l, idx)
		if err != nil {
			return err
		}
		if prev == 1 && cur == 0 {
			fr, ok, err := f.frameAt(l, idx)
			if err != nil {
				return err
			}
			if !ok {
				if fr.endIdx >= end {
					break
				}
				prev = cur
				f.report(pass, idx)
				idx++
				continue
			}
			if err := f.emit(l, fr); err != nil {
				return err
			}
			if prev, err = f.level(l, fr.endIdx); err != nil {
				return err
			}
			f.report(pass, fr.endIdx)
			idx = fr.endIdx + 1
			continue
		}
		prev = cur
		f.report(pass, idx)
		idx++
	}
	return nil
}

// centre returns the timestamp of the middle of bit k of a frame whose start
// edge is at t0. k=0 is the start bit.
func (f *framer) centre(t0 int64, k int) int64 {
	return t0 + int64(math.Floor((float64(k)+0.5)*f.bit))
}

// frameAt decodes the frame whose start edge is sample idx. It reports
// ok=false for a glitch or for a frame running past the window; the latter
// has endIdx >= window end.
func (f *framer) frameAt(l line, idx int) (frame, bool, error) {
	fr := frame{startIdx: idx}
	t0, err := f.stream.Timestamp(idx)
	if err != nil {
		return fr, false, err
	}
	last, err := f.stream.Timestamp(f.win.End - 1)
	if err != nil {
		return fr, false, err
	}
	// sample reads bit k at the last sample at or before its centre. An index
	// at or past the window end means the frame runs out of data.
	sample := func(k int) (uint8, int, error) {
		tc := f.centre(t0, k)
		if tc > last {
			return 0, f.win.End, nil
		}
		i := f.stream.IndexAt(tc)
		if i >= f.win.End {
			return 0, i, nil
		}
		b, err := f.level(l, i)
		return b, i, err
	}

	startBit, i, err := sample(0)
	if err != nil || i >= f.win.End {
		fr.endIdx = i
		return fr, false, err
	}
	if startBit != 0 {
		fr.endIdx = i
		return fr, false, nil
	}

	n := f.settings.DataBits
	for k := 0; k < n; k++ {
		b, i, err := sample(1 + k)
		if err != nil || i >= f.win.End {
			fr.endIdx = i
			return fr, false, err
		}
		if f.settings.MSBFirst {
			fr.data = fr.data<<1 | uint64(b)
		} else {
			fr.data |= uint64(b) << k
		}
	}

	k := 1 + n
	if want, framed := f.settings.parityBit(fr.data); framed {
		b, i, err := sample(k)
		if err != nil || i >= f.win.End {
			fr.endIdx = i
			return fr, false, err
		}
		fr.parityErr = b != want
		k++
	}

	stop, i, err := sample(k)
	if err != nil || i >= f.win.End {
		fr.endIdx = i
		return fr, false, err
	}
	fr.framingErr = stop != 1
	fr.endIdx = i
	return fr, true, nil
}

func (f *framer) emit(l line, fr frame) error {
	start, err := f.stream.Timestamp(fr.startIdx)
	if err != nil {
		return err
	}
	end, err := f.stream.Timestamp(fr.endIdx)
	if err != nil {
		return err
	}
	ch := int(l.b.Channel)
	value := new(big.Int).SetUint64(fr.data)
	text := fmt.Sprintf("0x%02X", fr.data)
	f.out.Add(decode.Record{
		Kind:     l.kind,
		Channel:  ch,
		StartIdx: fr.startIdx,
		EndIdx:   fr.endIdx,
		Start:    start,
		End:      end,
		Bits:     fmt.Sprintf("%0*b", f.settings.DataBits, fr.data),
		Value:    value,
		Text:     text,
	})

	anomalies := make([]string, 0, 2)
	if fr.parityErr {
		anomalies = append(anomalies, "parity error")
		f.out.Add(decode.Record{Kind: KindParityError, Channel: ch, StartIdx: fr.startIdx, EndIdx: fr.endIdx, Start: start, End: end, Text: text})
	}
	if fr.framingErr {
		anomalies = append(anomalies, "framing error")
		f.out.Add(decode.Record{Kind: KindFramingError, Channel: ch, StartIdx: fr.startIdx, EndIdx: fr.endIdx, Start: start, End: end, Text: text})
	}
	if len(anomalies) > 0 {
		f.sink.AddError(ch, start, end, text+": "+strings.Join(anomalies, ", "))
		return nil
	}
	f.sink.AddValue(ch, start, end, value, annotation.TypeSymbol)
	return nil
}
