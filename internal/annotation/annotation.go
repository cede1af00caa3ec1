// Package annotation owns the display-facing record stream that decoders emit
// alongside their structured results.
package annotation

import (
	"math/big"
)

// Kind distinguishes the payload an Annotation carries.
type Kind string

const (
	KindLabel    Kind = "label"
	KindValue    Kind = "value"
	KindInterval Kind = "interval"
	KindError    Kind = "error"
)

// Type tags and styles used by the bundled decoders.
const (
	TypeSymbol = "symbol"
	StyleState = "#e0e0e0"
)

// Annotation is one timestamped, channel-scoped semantic record.
type Annotation struct {
	Channel int      `json:"channel"`
	Start   int64    `json:"start"`
	End     int64    `json:"end"`
	Kind    Kind     `json:"kind"`
	Text    string   `json:"text,omitempty"`
	Value   *big.Int `json:"value,omitempty"`
	Type    string   `json:"type,omitempty"`
	Style   string   `json:"style,omitempty"`
}

// Sink accepts annotations from running decoders. Implementations must accept
// concurrent calls from independent decoders and must not reorder the calls
// of any single caller.
type Sink interface {
	Clear(channel int)
	AddLabel(channel int, text string)
	AddValue(channel int, start, end int64, value *big.Int, typeTag string)
	AddInterval(channel int, start, end int64, label, styleTag string)
	AddError(channel int, start, end int64, text string)
}

// Discard drops every annotation.
var Discard Sink = discard{}

type discard struct{}

func (discard) Clear(int)                                     {}
func (discard) AddLabel(int, string)                          {}
func (discard) AddValue(int, int64, int64, *big.Int, string)  {}
func (discard) AddInterval(int, int64, int64, string, string) {}
func (discard) AddError(int, int64, int64, string)            {}
