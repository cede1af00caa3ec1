package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	DefaultName          = "sniffd"
	DefaultAddr          = ":9300"
	DefaultDecodeTimeout = "30s"
)

// ServerConfig configures the sniffd decode service.
type ServerConfig struct {
	Name        string   `toml:"name"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	// AuthToken enables bearer auth on POST /decode when set.
	AuthToken     string `toml:"auth_token"`
	DecodeTimeout string `toml:"decode_timeout"`
	// MaxCaptureBytes caps one capture container payload; 0 keeps the codec
	// default.
	MaxCaptureBytes uint64 `toml:"max_capture_bytes"`
	// CaptureRoot is the directory server-side capture paths resolve under.
	// Empty disables server-side paths.
	CaptureRoot string    `toml:"capture_root"`
	AllowRemote bool      `toml:"allow_remote"`
	SSH         SSHConfig `toml:"ssh"`
	// TLS serves HTTPS when both files are set. A client CA additionally
	// requires verified client certificates.
	TLSCertFile     string `toml:"tls_cert_file"`
	TLSKeyFile      string `toml:"tls_key_file"`
	TLSClientCAFile string `toml:"tls_client_ca_file"`
}

// SSHConfig holds the credentials used for ssh:// capture locations.
type SSHConfig struct {
	User                        string `toml:"user"`
	Port                        string `toml:"port"`
	KeyPath                     string `toml:"key_path"`
	KnownHostsPath              string `toml:"known_hosts_path"`
	InsecureSkipHostKeyChecking bool   `toml:"insecure_skip_host_key_checking"`
	Timeout                     string `toml:"timeout"`
}

func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	applyServerDefaults(&cfg)
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// DefaultServerConfig is the configuration used when no file is given.
func DefaultServerConfig() ServerConfig {
	var cfg ServerConfig
	applyServerDefaults(&cfg)
	return cfg
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.DecodeTimeout == "" {
		cfg.DecodeTimeout = DefaultDecodeTimeout
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: server config missing name", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("%w: server config missing addr", ErrInvalidConfig)
	}
	if d, err := parseDuration(cfg.DecodeTimeout); err != nil || d <= 0 {
		return fmt.Errorf("%w: decode_timeout %q must be a positive duration", ErrInvalidConfig, cfg.DecodeTimeout)
	}
	if cfg.SSH.Timeout != "" {
		if _, err := parseDuration(cfg.SSH.Timeout); err != nil {
			return fmt.Errorf("%w: ssh.timeout %q: %v", ErrInvalidConfig, cfg.SSH.Timeout, err)
		}
	}
	if cfg.AllowRemote && strings.TrimSpace(cfg.SSH.KeyPath) == "" {
		return fmt.Errorf("%w: allow_remote requires ssh.key_path", ErrInvalidConfig)
	}
	if cfg.AllowRemote && !cfg.SSH.InsecureSkipHostKeyChecking && strings.TrimSpace(cfg.SSH.KnownHostsPath) == "" {
		return fmt.Errorf("%w: allow_remote requires ssh.known_hosts_path", ErrInvalidConfig)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return fmt.Errorf("%w: tls_cert_file and tls_key_file must be set together", ErrInvalidConfig)
	}
	if cfg.TLSClientCAFile != "" && cfg.TLSCertFile == "" {
		return fmt.Errorf("%w: tls_client_ca_file requires tls_cert_file", ErrInvalidConfig)
	}
	return nil
}

// TLSEnabled reports whether the service terminates TLS itself.
func (c ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Timeout returns the per-request decode deadline.
func (c ServerConfig) Timeout() time.Duration {
	d, err := parseDuration(c.DecodeTimeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultDecodeTimeout)
	}
	return d
}

func parseDuration(raw string) (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(raw))
}
