package decode

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrDecoderExists   = errors.New("decode: decoder already registered")
	ErrDecoderNil      = errors.New("decode: decoder factory is nil")
	ErrUnknownDecoder  = errors.New("decode: unknown decoder")
	ErrInvalidMetadata = errors.New("decode: invalid decoder metadata")
)

// Metadata is the identity and role surface of one decoder.
type Metadata struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Roles       []RoleSpec `json:"roles"`
	Options     []string   `json:"options,omitempty"`
}

// Factory builds a fresh, unconfigured task from decoder options.
type Factory func(opts Options) (Task, error)

type entry struct {
	meta    Metadata
	factory Factory
}

// Registry stores decoder factories by stable identifier.
type Registry struct {
	mu    sync.RWMutex
	items map[string]entry
}

// NewRegistry creates an empty decoder registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]entry)}
}

// ValidateMetadata checks required metadata fields and id format.
func ValidateMetadata(meta Metadata) error {
	id := strings.TrimSpace(meta.ID)
	name := strings.TrimSpace(meta.Name)
	desc := strings.TrimSpace(meta.Description)
	if id == "" || name == "" || desc == "" {
		return fmt.Errorf("%w: id, name, and description are required", ErrInvalidMetadata)
	}
	if !isValidID(id) {
		return fmt.Errorf("%w: invalid id format %q", ErrInvalidMetadata, id)
	}
	seen := make(map[string]struct{}, len(meta.Roles))
	for _, role := range meta.Roles {
		if strings.TrimSpace(role.Name) == "" {
			return fmt.Errorf("%w: %s: empty role name", ErrInvalidMetadata, id)
		}
		if _, dup := seen[role.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate role %q", ErrInvalidMetadata, id, role.Name)
		}
		seen[role.Name] = struct{}{}
	}
	return nil
}

// Register adds a decoder factory to the registry.
func (r *Registry) Register(meta Metadata, factory Factory) error {
	if factory == nil {
		return ErrDecoderNil
	}
	if err := ValidateMetadata(meta); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[meta.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDecoderExists, meta.ID)
	}
	r.items[meta.ID] = entry{meta: meta, factory: factory}
	return nil
}

// Resolve returns decoder metadata by id.
func (r *Registry) Resolve(id string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[id]
	return e.meta, ok
}

// New builds a task for id.
func (r *Registry) New(id string, opts Options) (Task, error) {
	r.mu.RLock()
	e, ok := r.items[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecoder, id)
	}
	task, err := e.factory(opts)
	if err != nil {
		return nil, fmt.Errorf("decode: build %s: %w", id, err)
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilTask, id)
	}
	return task, nil
}

// ListMetadata returns deterministic metadata ordering by id.
func (r *Registry) ListMetadata() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Metadata, 0, len(r.items))
	for _, e := range r.items {
		list = append(list, e.meta)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

func isValidID(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(id)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
