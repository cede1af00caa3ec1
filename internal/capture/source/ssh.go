package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSH streams a capture container from a remote analyzer host by running
// cat on it.
type SSH struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
	Path                        string
}

func (s SSH) Describe() string {
	return fmt.Sprintf("ssh://%s@%s%s", s.User, s.Host, s.Path)
}

func (s SSH) Open(ctx context.Context) (io.ReadCloser, error) {
	if strings.TrimSpace(s.Path) == "" {
		return nil, fmt.Errorf("%w: remote path is required", ErrInvalidSource)
	}
	client, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	if err := session.Start("cat -- " + shellEscape(s.Path)); err != nil {
		session.Close()
		client.Close()
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		client.Close()
	})
	return &remoteReader{r: stdout, session: session, client: client, stop: stop}, nil
}

type remoteReader struct {
	r       io.Reader
	session *ssh.Session
	client  *ssh.Client
	stop    func() bool
}

func (r *remoteReader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

func (r *remoteReader) Close() error {
	r.stop()
	r.session.Close()
	return r.client.Close()
}

func (s SSH) dial(ctx context.Context) (*ssh.Client, error) {
	address, err := s.address()
	if err != nil {
		return nil, err
	}
	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: s.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (s SSH) address() (string, error) {
	host := strings.TrimSpace(s.Host)
	if host == "" {
		return "", fmt.Errorf("%w: ssh host is required", ErrInvalidSource)
	}
	if s.Port != "" {
		return net.JoinHostPort(host, s.Port), nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, "22"), nil
}

func (s SSH) clientConfig() (*ssh.ClientConfig, error) {
	if s.User == "" {
		return nil, fmt.Errorf("%w: ssh user is required", ErrInvalidSource)
	}

	signer, err := s.signer()
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if s.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := s.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            s.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.Timeout,
	}, nil
}

func (s SSH) signer() (ssh.Signer, error) {
	if s.KeyPath == "" {
		return nil, fmt.Errorf("%w: ssh key path is required", ErrInvalidSource)
	}
	privateKey, err := os.ReadFile(s.KeyPath)
	if err != nil {
		return nil, err
	}
	if len(s.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, s.Passphrase)
	}
	return ssh.ParsePrivateKey(privateKey)
}

func (s SSH) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(s.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(path)
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
