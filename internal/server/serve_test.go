package server

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/danmuck/sniffctl/internal/config"
	"github.com/danmuck/sniffctl/internal/testutil/testlog"
	"github.com/danmuck/sniffctl/internal/testutil/tlstest"
)

// startServing runs s on a loopback listener and returns its address plus a
// stop func that waits for a clean shutdown.
func startServing(t *testing.T, s *Server) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()
	return ln.Addr().String(), func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("serve returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("serve did not stop")
		}
	}
}

func getHealth(client *http.Client, url string) (int, error) {
	resp, err := client.Get(url + "/health")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func TestServeListenerPlain(t *testing.T) {
	testlog.Start(t)
	addr, stop := startServing(t, newTestServer(t, nil))
	defer stop()
	code, err := getHealth(&http.Client{Timeout: 5 * time.Second}, "http://"+addr)
	if err != nil || code != http.StatusOK {
		t.Fatalf("health over http: code=%d err=%v", code, err)
	}
}

func TestServeListenerTLS(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewCA(t)
	certFile, keyFile := ca.Server(t, "127.0.0.1", "localhost")
	s := newTestServer(t, func(c *config.ServerConfig) {
		c.TLSCertFile = certFile
		c.TLSKeyFile = keyFile
	})
	addr, stop := startServing(t, s)
	defer stop()

	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: ca.ClientConfig(t, "")},
	}
	code, err := getHealth(client, "https://"+addr)
	if err != nil || code != http.StatusOK {
		t.Fatalf("health over https: code=%d err=%v", code, err)
	}

	untrusted := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12}},
	}
	if _, err := getHealth(untrusted, "https://"+addr); err == nil {
		t.Fatalf("expected unknown authority error")
	}
}

func TestServeListenerMutualTLS(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewCA(t)
	certFile, keyFile := ca.Server(t, "127.0.0.1")
	s := newTestServer(t, func(c *config.ServerConfig) {
		c.TLSCertFile = certFile
		c.TLSKeyFile = keyFile
		c.TLSClientCAFile = ca.File()
	})
	addr, stop := startServing(t, s)
	defer stop()

	anonymous := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: ca.ClientConfig(t, "")},
	}
	if _, err := getHealth(anonymous, "https://"+addr); err == nil {
		t.Fatalf("expected handshake failure without a client certificate")
	}

	bench := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: ca.ClientConfig(t, "bench-01")},
	}
	code, err := getHealth(bench, "https://"+addr)
	if err != nil || code != http.StatusOK {
		t.Fatalf("health with client cert: code=%d err=%v", code, err)
	}
}

func TestServeListenerBadKeyPair(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, func(c *config.ServerConfig) {
		c.TLSCertFile = "/nonexistent/server.crt"
		c.TLSKeyFile = "/nonexistent/server.key"
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := s.ServeListener(context.Background(), ln); err == nil {
		t.Fatalf("expected key pair error")
	}
}
