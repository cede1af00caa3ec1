package decode

import (
	"sync"

	"github.com/danmuck/sniffctl/internal/capture"
)

// Task is the decoder boundary. Configure stores the role mapping and window
// without touching data; Run performs the decode once per configuration.
type Task interface {
	Name() string
	Configure(roles capture.Roles, window capture.Window)
	Run(dc *Context) (*Result, error)
}

// Config is the stored configuration shared by the bundled decoders. Embed it
// to get Configure and the run-once guard.
type Config struct {
	mu     sync.Mutex
	roles  capture.Roles
	window capture.Window
	ran    bool
}

func (c *Config) Configure(roles capture.Roles, window capture.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles = roles.Clone()
	c.window = window
	c.ran = false
}

// Begin claims the single run of the current configuration and returns a
// snapshot of it.
func (c *Config) Begin() (capture.Roles, capture.Window, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ran {
		return nil, capture.Window{}, ErrAlreadyRun
	}
	c.ran = true
	return c.roles.Clone(), c.window, nil
}
