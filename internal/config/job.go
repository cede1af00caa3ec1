package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/sniffctl/internal/capture"
	"github.com/danmuck/sniffctl/internal/capture/source"
	"github.com/danmuck/sniffctl/internal/capture/wire"
	"github.com/danmuck/sniffctl/internal/decode"
)

const DefaultJobTimeout = 30 * time.Second

type jobFile struct {
	Capture         string       `toml:"capture"`
	Timeout         string       `toml:"timeout"`
	Output          string       `toml:"output"`
	Annotations     bool         `toml:"annotations"`
	MaxCaptureBytes uint64       `toml:"max_capture_bytes"`
	SSH             SSHConfig    `toml:"ssh"`
	Decoders        []jobDecoder `toml:"decoder"`
}

type jobDecoder struct {
	ID      string         `toml:"id"`
	Start   *int           `toml:"start"`
	End     *int           `toml:"end"`
	Roles   map[string]int `toml:"roles"`
	Options map[string]any `toml:"options"`
}

// JobConfig is one resolved sniffctl run.
type JobConfig struct {
	Capture string
	Timeout time.Duration
	// Output is a file path, or "-" for stdout.
	Output      string
	Annotations bool
	Limits      wire.Limits
	SSH         source.SSH
	Decoders    []DecoderJob
}

// DecoderJob is one [[decoder]] entry. A zero Window.End means the end of
// the capture.
type DecoderJob struct {
	ID      string
	Roles   capture.Roles
	Window  capture.Window
	Options decode.Options
}

func DefaultJobConfig() JobConfig {
	return JobConfig{
		Timeout: DefaultJobTimeout,
		Output:  "-",
		Limits:  wire.DefaultLimits(),
	}
}

func LoadJobConfig(path string) (JobConfig, error) {
	cfg := DefaultJobConfig()

	var raw jobFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return JobConfig{}, fmt.Errorf("%w: job config parse failed (%s): %w", ErrInvalidConfig, path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return JobConfig{}, fmt.Errorf("%w: unknown keys %v", ErrInvalidConfig, undecoded)
	}

	if meta.IsDefined("capture") {
		cfg.Capture = strings.TrimSpace(raw.Capture)
	}

	if meta.IsDefined("timeout") {
		d, err := parseDuration(raw.Timeout)
		if err != nil {
			return JobConfig{}, fmt.Errorf("%w: timeout %q: %v", ErrInvalidConfig, raw.Timeout, err)
		}
		cfg.Timeout = d
	}

	if meta.IsDefined("output") {
		if out := strings.TrimSpace(raw.Output); out != "" {
			cfg.Output = out
		}
	}

	if meta.IsDefined("annotations") {
		cfg.Annotations = raw.Annotations
	}

	if meta.IsDefined("max_capture_bytes") {
		cfg.Limits = limitsFor(raw.MaxCaptureBytes)
	}

	if meta.IsDefined("ssh") {
		if meta.IsDefined("ssh", "timeout") {
			if _, err := parseDuration(raw.SSH.Timeout); err != nil {
				return JobConfig{}, fmt.Errorf("%w: ssh.timeout %q: %v", ErrInvalidConfig, raw.SSH.Timeout, err)
			}
		}
		cfg.SSH = raw.SSH.Source()
	}

	for i, d := range raw.Decoders {
		job, err := d.resolve()
		if err != nil {
			return JobConfig{}, fmt.Errorf("%w: decoder[%d]: %v", ErrInvalidConfig, i, err)
		}
		cfg.Decoders = append(cfg.Decoders, job)
	}

	if err := ValidateJobConfig(cfg); err != nil {
		return JobConfig{}, err
	}
	return cfg, nil
}

func (d jobDecoder) resolve() (DecoderJob, error) {
	job := DecoderJob{
		ID:      strings.ToLower(strings.TrimSpace(d.ID)),
		Roles:   make(capture.Roles, len(d.Roles)),
		Options: make(decode.Options, len(d.Options)),
	}
	if job.ID == "" {
		return DecoderJob{}, fmt.Errorf("id is required")
	}
	for role, ch := range d.Roles {
		job.Roles[role] = capture.Channel(ch)
	}
	for key, v := range d.Options {
		job.Options[key] = fmt.Sprint(v)
	}
	if d.Start != nil {
		job.Window.Start = *d.Start
	}
	if d.End != nil {
		job.Window.End = *d.End
	}
	if job.Window.Start < 0 || job.Window.End < 0 {
		return DecoderJob{}, fmt.Errorf("negative window %d..%d", job.Window.Start, job.Window.End)
	}
	return job, nil
}

func ValidateJobConfig(cfg JobConfig) error {
	if cfg.Capture == "" {
		return fmt.Errorf("%w: job config missing capture", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if len(cfg.Decoders) == 0 {
		return fmt.Errorf("%w: job config has no [[decoder]] entries", ErrInvalidConfig)
	}
	return nil
}

// Effective returns the entry's window against a capture of n samples.
func (d DecoderJob) Effective(n int) capture.Window {
	w := d.Window
	if w.End == 0 {
		w.End = n
	}
	return w
}
