// Package decoders wires the bundled protocol decoders into a registry.
package decoders

import (
	"fmt"

	"github.com/danmuck/sniffctl/internal/decode"
	"github.com/danmuck/sniffctl/internal/decoders/jtag"
	"github.com/danmuck/sniffctl/internal/decoders/uart"
)

var builtins = []func(*decode.Registry) error{
	jtag.Register,
	uart.Register,
}

// Register adds every bundled decoder to r.
func Register(r *decode.Registry) error {
	for _, register := range builtins {
		if err := register(r); err != nil {
			return fmt.Errorf("decoders: %w", err)
		}
	}
	return nil
}

// NewRegistry returns a registry holding every bundled decoder.
func NewRegistry() (*decode.Registry, error) {
	r := decode.NewRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}
