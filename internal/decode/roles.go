package decode

import (
	"fmt"

	"github.com/danmuck/sniffctl/internal/annotation"
	"github.com/danmuck/sniffctl/internal/capture"
)

// RoleSpec declares one protocol role of a decoder.
type RoleSpec struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// Binding is a role resolved against a stream. Mask is only meaningful when
// Assigned is true.
type Binding struct {
	Role     string
	Label    string
	Channel  capture.Channel
	Mask     uint64
	Assigned bool
}

// Bit extracts this binding's bit from a raw sample. Unassigned bindings
// always read 0.
func (b Binding) Bit(sample uint64) uint8 {
	if !b.Assigned || sample&b.Mask == 0 {
		return 0
	}
	return 1
}

// Bindings maps role names to resolved bindings.
type Bindings map[string]Binding

// Bind validates roles against specs and the stream width. Required roles must
// be assigned; optional unassigned roles resolve to a disabled binding and
// never produce a shift.
func Bind(stream *capture.Stream, roles capture.Roles, specs []RoleSpec) (Bindings, error) {
	out := make(Bindings, len(specs))
	for _, spec := range specs {
		ch := roles.Get(spec.Name)
		b := Binding{Role: spec.Name, Label: spec.Label, Channel: ch}
		if !ch.Assigned() {
			if spec.Required {
				return nil, Configf("required role %q is unassigned", spec.Name)
			}
			out[spec.Name] = b
			continue
		}
		mask, err := stream.MaskOf(ch)
		if err != nil {
			return nil, fmt.Errorf("%w: role %q: %w", ErrConfiguration, spec.Name, err)
		}
		b.Mask = mask
		b.Assigned = true
		out[spec.Name] = b
	}
	return out, nil
}

// Prepare clears stale annotations on every assigned channel and labels it
// with its role. Unassigned roles are skipped. Calling it twice leaves the
// sink in the same state.
func Prepare(sink annotation.Sink, bindings Bindings, specs []RoleSpec) {
	for _, spec := range specs {
		b, ok := bindings[spec.Name]
		if !ok || !b.Assigned {
			continue
		}
		sink.Clear(int(b.Channel))
		sink.AddLabel(int(b.Channel), b.Label)
	}
}
