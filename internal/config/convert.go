package config

import (
	"github.com/danmuck/sniffctl/internal/capture/source"
	"github.com/danmuck/sniffctl/internal/capture/wire"
)

// Limits returns the capture codec limits for this service.
func (c ServerConfig) Limits() wire.Limits {
	return limitsFor(c.MaxCaptureBytes)
}

// SSHBase returns the credentials applied to every ssh:// capture location.
func (c ServerConfig) SSHBase() source.SSH {
	return c.SSH.Source()
}

// Source converts the file form into source credentials. An unparsable
// timeout leaves the dialer default in place.
func (s SSHConfig) Source() source.SSH {
	base := source.SSH{
		User:                        s.User,
		Port:                        s.Port,
		KeyPath:                     s.KeyPath,
		KnownHostsPath:              s.KnownHostsPath,
		InsecureSkipHostKeyChecking: s.InsecureSkipHostKeyChecking,
	}
	if d, err := parseDuration(s.Timeout); err == nil {
		base.Timeout = d
	}
	return base
}

func limitsFor(maxBytes uint64) wire.Limits {
	limits := wire.DefaultLimits()
	if maxBytes > 0 {
		limits.MaxPayloadBytes = maxBytes
	}
	return limits
}
