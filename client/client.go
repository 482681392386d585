// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client talks to a pkgshelld server.
//
// The server runs nothing but the repository shell, so a client
// writes shell commands to a session and reads the answers back.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mdlayher/vsock"
	"github.com/u-root/pkgshell/ds"
	"golang.org/x/crypto/ssh"
)

const defaultTimeout = 30 * time.Second

// V allows debug printing.
var V = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	V = f
}

// Cmd is a connection to a repository server.
// As in exec.Command, its controls are exposed and can be set
// directly before Dial.
type Cmd struct {
	config ssh.ClientConfig
	client *ssh.Client

	Host           string
	Port           string
	User           string
	HostKeyFile    string
	PrivateKeyFile string
	// Network is tcp, unix or vsock. For vsock, Host is the
	// context ID.
	Network string
	Timeout time.Duration
}

// Command returns a Cmd for host. The host may be a name from the
// ssh config file or a dnssd: URI.
func Command(host string) *Cmd {
	return &Cmd{
		Host:    host,
		Network: "tcp",
		Timeout: defaultTimeout,
		config: ssh.ClientConfig{
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		},
	}
}

// WithPrivateKeyFile adds a private key file to a Cmd
func (c *Cmd) WithPrivateKeyFile(key string) *Cmd {
	c.PrivateKeyFile = key
	return c
}

// WithHostKeyFile adds a host key to a Cmd
func (c *Cmd) WithHostKeyFile(key string) *Cmd {
	c.HostKeyFile = key
	return c
}

// WithPort adds a port to a Cmd
func (c *Cmd) WithPort(port string) *Cmd {
	c.Port = port
	return c
}

// WithUser sets the login name.
func (c *Cmd) WithUser(user string) *Cmd {
	c.User = user
	return c
}

// WithNetwork sets the network to dial.
func (c *Cmd) WithNetwork(network string) *Cmd {
	c.Network = network
	return c
}

// WithTimeout bounds connection setup.
func (c *Cmd) WithTimeout(d time.Duration) *Cmd {
	c.Timeout = d
	return c
}

// address works out where to connect: a dnssd: host is looked up,
// anything else is filtered through the ssh config file.
func (c *Cmd) address(ctx context.Context) (string, string, error) {
	if strings.HasPrefix(c.Host, ds.Default) {
		q, err := ds.Parse(c.Host)
		if err != nil {
			return "", "", err
		}
		return ds.Lookup(ctx, q)
	}
	if c.Network != "tcp" {
		return c.Host, c.Port, nil
	}
	port, err := GetPort(c.Host, c.Port)
	if err != nil {
		return "", "", err
	}
	return GetHostName(c.Host), port, nil
}

func (c *Cmd) dial(ctx context.Context, host, port string) (net.Conn, string, error) {
	switch c.Network {
	case "vsock":
		id, p, err := vsockIdPort(host, port)
		if err != nil {
			return nil, "", err
		}
		conn, err := vsock.Dial(id, p, nil)
		return conn, fmt.Sprintf("vsock:%d:%d", id, p), err
	case "unix":
		d := net.Dialer{Timeout: c.Timeout}
		conn, err := d.DialContext(ctx, c.Network, host)
		return conn, host, err
	default:
		addr := net.JoinHostPort(host, port)
		d := net.Dialer{Timeout: c.Timeout}
		conn, err := d.DialContext(ctx, c.Network, addr)
		return conn, addr, err
	}
}

// Dial connects and authenticates.
func (c *Cmd) Dial(ctx context.Context) error {
	if err := c.UserKeyConfig(); err != nil {
		return err
	}
	if len(c.HostKeyFile) > 0 {
		if err := c.HostKeyConfig(c.HostKeyFile); err != nil {
			return err
		}
	}
	c.config.User = GetUser(c.Host, c.User)
	c.config.Timeout = c.Timeout

	host, port, err := c.address(ctx)
	if err != nil {
		return err
	}
	conn, addr, err := c.dial(ctx, host, port)
	V("dial(%s, %s, %s): %v", c.Network, host, port, err)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.Host, err)
	}
	if c.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
			V("set deadline: %v", err)
		}
	}
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, &c.config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		V("clear deadline: %v", err)
	}
	c.client = ssh.NewClient(sc, chans, reqs)
	return nil
}

// wait waits for s, closing it if ctx ends first.
func wait(ctx context.Context, s *ssh.Session) error {
	done := make(chan error, 1)
	go func() { done <- s.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.Close()
		<-done
		return ctx.Err()
	}
}

// session runs one shell session reading stdin. With cmd empty the
// server runs a full session, which stdin must end with exit.
func (c *Cmd) session(ctx context.Context, cmd string, stdin io.Reader) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("%s: not connected", c.Host)
	}
	s, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer s.Close()
	var stdout, stderr bytes.Buffer
	s.Stdin = stdin
	s.Stdout = &stdout
	s.Stderr = &stderr
	if cmd == "" {
		err = s.Shell()
	} else {
		err = s.Start(cmd)
	}
	if err != nil {
		return "", err
	}
	if err := wait(ctx, s); err != nil {
		if stderr.Len() > 0 {
			return stdout.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), err
	}
	return stdout.String(), nil
}

// Run sends each line of script to a new shell session, followed by
// exit, and returns everything the shell wrote.
func (c *Cmd) Run(ctx context.Context, script ...string) (string, error) {
	var b strings.Builder
	for _, l := range script {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("exit\n")
	return c.RunReader(ctx, strings.NewReader(b.String()))
}

// RunReader is Run for a script already in the form the shell reads.
func (c *Cmd) RunReader(ctx context.Context, script io.Reader) (string, error) {
	return c.session(ctx, "", script)
}

// Exec runs the single command line, as "ssh host line" would.
func (c *Cmd) Exec(ctx context.Context, line string) (string, error) {
	return c.session(ctx, line, strings.NewReader(""))
}

// Close closes the connection.
func (c *Cmd) Close() error {
	var errs error
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		c.client = nil
	}
	return errs
}
