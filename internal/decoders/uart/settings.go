package uart

import (
	"github.com/danmuck/sniffctl/internal/decode"
)

// Parity selects the optional parity bit after the data bits.
type Parity string

const (
	ParityNone  Parity = "none"
	ParityOdd   Parity = "odd"
	ParityEven  Parity = "even"
	ParityMark  Parity = "mark"
	ParitySpace Parity = "space"
)

// Option keys accepted by the decoder.
const (
	OptBaud     = "baud"
	OptDataBits = "data_bits"
	OptParity   = "parity"
	OptStopBits = "stop_bits"
	OptInverted = "inverted"
	OptMSBFirst = "msb_first"
)

var optionKeys = []string{OptBaud, OptDataBits, OptParity, OptStopBits, OptInverted, OptMSBFirst}

// Settings is the line configuration of one UART decode.
type Settings struct {
	Baud     int
	DataBits int
	Parity   Parity
	StopBits float64
	Inverted bool
	MSBFirst bool
}

// DefaultSettings is 8N1 with no baud rate; Baud must always be set.
func DefaultSettings() Settings {
	return Settings{DataBits: 8, Parity: ParityNone, StopBits: 1}
}

// ParseSettings reads decoder options over DefaultSettings.
func ParseSettings(opts decode.Options) (Settings, error) {
	if err := opts.Only(optionKeys...); err != nil {
		return Settings{}, err
	}
	s := DefaultSettings()
	var err error
	if s.Baud, err = opts.Int(OptBaud, 0); err != nil {
		return Settings{}, err
	}
	if s.DataBits, err = opts.Int(OptDataBits, s.DataBits); err != nil {
		return Settings{}, err
	}
	s.Parity = Parity(opts.String(OptParity, string(s.Parity)))
	if s.StopBits, err = opts.Float(OptStopBits, s.StopBits); err != nil {
		return Settings{}, err
	}
	if s.Inverted, err = opts.Bool(OptInverted, false); err != nil {
		return Settings{}, err
	}
	if s.MSBFirst, err = opts.Bool(OptMSBFirst, false); err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}

func (s Settings) Validate() error {
	if s.Baud <= 0 {
		return decode.Configf("baud %d must be positive", s.Baud)
	}
	if s.DataBits < 5 || s.DataBits > 9 {
		return decode.Configf("data_bits %d not in [5,9]", s.DataBits)
	}
	switch s.Parity {
	case ParityNone, ParityOdd, ParityEven, ParityMark, ParitySpace:
	default:
		return decode.Configf("unknown parity %q", s.Parity)
	}
	switch s.StopBits {
	case 1, 1.5, 2:
	default:
		return decode.Configf("stop_bits %v not one of 1, 1.5, 2", s.StopBits)
	}
	return nil
}

// parityBit returns the expected parity level for data, and false when no
// parity bit is framed.
func (s Settings) parityBit(data uint64) (uint8, bool) {
	ones := uint8(0)
	for v := data; v != 0; v &= v - 1 {
		ones ^= 1
	}
	switch s.Parity {
	case ParityEven:
		return ones, true
	case ParityOdd:
		return ones ^ 1, true
	case ParityMark:
		return 1, true
	case ParitySpace:
		return 0, true
	}
	return 0, false
}
