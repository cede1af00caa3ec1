package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/danmuck/sniffctl/internal/capture"
	"github.com/danmuck/sniffctl/internal/capture/wire"
	"github.com/rs/zerolog/log"
)

var ErrInvalidSource = errors.New("source: invalid capture source")

// Source opens an encoded capture container for reading.
type Source interface {
	Describe() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// File reads a capture container from the local filesystem.
type File struct {
	Path string
}

func (f File) Describe() string {
	return "file:" + f.Path
}

func (f File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(f.Path) == "" {
		return nil, fmt.Errorf("%w: file path is required", ErrInvalidSource)
	}
	return os.Open(f.Path)
}

// Load opens src and decodes one capture stream from it.
func Load(ctx context.Context, src Source, limits wire.Limits) (*capture.Stream, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", src.Describe(), err)
	}
	defer rc.Close()

	stream, err := wire.Decode(rc, limits)
	if err != nil {
		return nil, fmt.Errorf("decode capture %s: %w", src.Describe(), err)
	}
	log.Debug().
		Str("source", src.Describe()).
		Int("samples", stream.Len()).
		Int("channels", stream.Channels()).
		Int64("rate", stream.Rate()).
		Msg("capture loaded")
	return stream, nil
}

// Parse resolves a capture location. Plain paths and file:// URLs become
// File sources; ssh://user@host[:port]/path becomes an SSH source that takes
// its credentials from base.
func Parse(raw string, base SSH) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty location", ErrInvalidSource)
	}
	if !strings.Contains(raw, "://") {
		return File{Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	switch u.Scheme {
	case "file":
		return File{Path: u.Path}, nil
	case "ssh":
		s := base
		s.Host = u.Hostname()
		if port := u.Port(); port != "" {
			s.Port = port
		}
		if u.User != nil && u.User.Username() != "" {
			s.User = u.User.Username()
		}
		s.Path = u.Path
		if s.Path == "" {
			return nil, fmt.Errorf("%w: ssh location has no path", ErrInvalidSource)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, u.Scheme)
	}
}
