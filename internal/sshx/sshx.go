// Package sshx wraps golang.org/x/crypto/ssh with the small remote-exec
// surface the checkers need: dial with password or key auth, run one
// command, capture both streams.
package sshx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config holds what is needed to open one SSH connection.
type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	PrivateKey string // PEM encoded
	Passphrase string
	Timeout    time.Duration
}

// Client is a live SSH connection.
type Client struct {
	client *ssh.Client
	host   string
}

// Dial opens a connection to cfg.Host. The context bounds the TCP dial;
// the handshake is bounded by cfg.Timeout. Key auth wins when both a key
// and a password are configured.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	var auth []ssh.AuthMethod
	if cfg.PrivateKey != "" {
		var signer ssh.Signer
		var err error
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(cfg.PrivateKey), []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(cfg.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no authentication method configured")
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	return &Client{client: ssh.NewClient(sshConn, chans, reqs), host: cfg.Host}, nil
}

// Run executes cmd and returns stdout and stderr separately. A non-zero
// remote exit is returned as the error; use ExitCode to inspect it. On
// context cancellation the remote process gets SIGTERM.
func (c *Client) Run(ctx context.Context, cmd string) (stdout, stderr string, err error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	var out, errOut bytes.Buffer
	session.Stdout = &out
	session.Stderr = &errOut

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err := <-done:
		return out.String(), errOut.String(), err
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return out.String(), errOut.String(), ctx.Err()
	}
}

// Host returns the host this client is connected to.
func (c *Client) Host() string { return c.host }

// Close tears down the connection.
func (c *Client) Close() error { return c.client.Close() }

// ExitCode reports whether err is a remote non-zero exit, and its status.
func ExitCode(err error) (int, bool) {
	var ee *ssh.ExitError
	if errors.As(err, &ee) {
		return ee.ExitStatus(), true
	}
	return 0, false
}
