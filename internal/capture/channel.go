package capture

import (
	"fmt"
	"sort"
	"strings"
)

// Channel is a bit position within a sample, or Unassigned.
type Channel int

// Unassigned marks a role that is not bound to any channel.
const Unassigned Channel = -1

// Assigned reports whether c refers to a real bit position.
func (c Channel) Assigned() bool {
	return c >= 0
}

// Mask returns 1<<c. It never shifts by an unassigned or oversized index.
func (c Channel) Mask() (uint64, error) {
	if !c.Assigned() {
		return 0, ErrUnassigned
	}
	if int(c) >= MaxChannels {
		return 0, fmt.Errorf("%w: channel %d not in [0,%d)", ErrInvalidChannel, c, MaxChannels)
	}
	return uint64(1) << uint(c), nil
}

// Roles maps symbolic protocol roles to channels.
type Roles map[string]Channel

// Get returns the channel bound to role, or Unassigned.
func (r Roles) Get(role string) Channel {
	if r == nil {
		return Unassigned
	}
	ch, ok := r[strings.TrimSpace(role)]
	if !ok {
		return Unassigned
	}
	return ch
}

// Clone returns a copy of r.
func (r Roles) Clone() Roles {
	out := make(Roles, len(r))
	for role, ch := range r {
		out[role] = ch
	}
	return out
}

// Names returns the bound role names in sorted order.
func (r Roles) Names() []string {
	names := make([]string, 0, len(r))
	for role := range r {
		names = append(names, role)
	}
	sort.Strings(names)
	return names
}

// Edge classifies a sample-to-sample transition of one channel.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
)

// EdgeOf compares two consecutive bit values.
func EdgeOf(prev, cur uint8) Edge {
	switch {
	case prev == cur:
		return EdgeNone
	case cur != 0:
		return EdgeRising
	default:
		return EdgeFalling
	}
}

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	default:
		return "none"
	}
}
