package source

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/danmuck/sniffctl/internal/capture"
	"github.com/danmuck/sniffctl/internal/capture/wire"
	"github.com/danmuck/sniffctl/internal/testutil/testlog"
)

func TestLoadFile(t *testing.T) {
	testlog.Start(t)
	s, err := capture.NewStream([]uint64{0, 3, 1}, []int64{0, 5, 9}, 2, 48_000)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	var buf bytes.Buffer
	if err := wire.Encode(&buf, s); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "trace.snif")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Load(context.Background(), File{Path: path}, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got.Values(), s.Values()) || got.Rate() != 48_000 {
		t.Fatalf("unexpected stream: values=%v rate=%d", got.Values(), got.Rate())
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	_, err := Load(context.Background(), File{Path: filepath.Join(t.TempDir(), "missing")}, wire.DefaultLimits())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestFileOpenCanceled(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (File{Path: "x"}).Open(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParse(t *testing.T) {
	testlog.Start(t)
	base := SSH{User: "ops", KeyPath: "/keys/id"}

	src, err := Parse("captures/a.snif", base)
	if err != nil {
		t.Fatalf("parse path: %v", err)
	}
	if f, ok := src.(File); !ok || f.Path != "captures/a.snif" {
		t.Fatalf("unexpected source: %#v", src)
	}

	src, err = Parse("ssh://analyzer@bench.local:2222/var/captures/run1.snif", base)
	if err != nil {
		t.Fatalf("parse ssh: %v", err)
	}
	remote, ok := src.(SSH)
	if !ok {
		t.Fatalf("expected SSH source, got %#v", src)
	}
	if remote.Host != "bench.local" || remote.Port != "2222" || remote.User != "analyzer" {
		t.Fatalf("unexpected remote: %+v", remote)
	}
	if remote.Path != "/var/captures/run1.snif" || remote.KeyPath != "/keys/id" {
		t.Fatalf("unexpected remote path or key: %+v", remote)
	}

	for _, raw := range []string{"", "ftp://host/x", "ssh://host"} {
		if _, err := Parse(raw, base); !errors.Is(err, ErrInvalidSource) {
			t.Fatalf("expected ErrInvalidSource for %q, got %v", raw, err)
		}
	}
}

func TestSSHRequiresCredentials(t *testing.T) {
	testlog.Start(t)
	if _, err := (SSH{Host: "bench", Path: "/x"}).clientConfig(); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("expected missing user error, got %v", err)
	}
	if _, err := (SSH{Path: "/x"}).address(); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("expected missing host error, got %v", err)
	}
	addr, err := (SSH{Host: "bench"}).address()
	if err != nil || addr != "bench:22" {
		t.Fatalf("unexpected default address: %q %v", addr, err)
	}
	if got := shellEscape("it's"); got != `'it'"'"'s'` {
		t.Fatalf("unexpected escape: %s", got)
	}
}
