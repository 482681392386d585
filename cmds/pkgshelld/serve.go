// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/mdlayher/vsock"
	"github.com/u-root/pkgshell/client"
	"github.com/u-root/pkgshell/config"
	"github.com/u-root/pkgshell/ds"
	"github.com/u-root/pkgshell/index"
	"github.com/u-root/pkgshell/repo"
	"github.com/u-root/pkgshell/server"
	"github.com/u-root/pkgshell/shell"
	"github.com/u-root/pkgshell/transfer"
)

const anyCID = math.MaxUint32

type modifier struct {
	name string
	f    func(context.Context, *ssh.Server) error
}

func (m *modifier) String() string {
	return m.name
}

// modifiers are called once the ssh server is set up and before
// s.Serve() in serve() is called. A failing modifier is logged and
// the server runs without it, so modifiers must not leave the server
// half changed.
var modifiers []*modifier

func commonsetup() error {
	if *debug {
		v = log.Printf
		if *klog {
			v = kernelLog()
		}
		server.SetVerbose(verbose)
		shell.SetVerbose(verbose)
		repo.SetVerbose(verbose)
		index.SetVerbose(verbose)
		transfer.SetVerbose(verbose)
		client.SetVerbose(verbose)
		ds.Verbose(verbose)
	}
	return nil
}

func listen(network, port string) (net.Listener, error) {
	// Sadly, vsock is not in the standard Go net package.
	// It should be but ...
	var (
		ln  net.Listener
		err error
	)

	switch network {
	case "vsock":
		var p uint64
		p, err = strconv.ParseUint(port, 0, 16)
		if err != nil {
			return nil, err
		}
		ln, err = vsock.ListenContextID(anyCID, uint32(p), nil)

	case "unix", "unixpacket":
		// net.JoinHostPort really ought to work for UDS, but it's very naive.
		// It does not take the network type as a parameter.
		ln, err = net.Listen(network, port)

	default:
		ln, err = net.Listen(network, net.JoinHostPort("", port))
	}
	return ln, err
}

func register(network, addr string, timeout time.Duration) error {
	if len(addr) == 0 {
		return nil
	}
	// If the address is set, Dial it over the network and send "ok".
	// A host that is slow to start listening can use this to learn
	// when the server is up.
	c, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return err
	}
	defer c.Close()
	if _, err := c.Write([]byte("ok")); err != nil {
		return fmt.Errorf("writing ok to register address: %w", err)
	}
	return nil
}

// newServer returns the ssh server for sh with the modifiers applied.
func newServer(ctx context.Context, sh *shell.Shell) (*ssh.Server, error) {
	s, err := server.New(*pubKeyFile, *hostKeyFile, sh)
	if err != nil {
		return nil, fmt.Errorf("New(%q, %q): %w", *pubKeyFile, *hostKeyFile, err)
	}
	for _, m := range modifiers {
		if err := m.f(ctx, s); err != nil {
			log.Printf("Error %v from modifier %s", err, m)
		}
	}
	return s, nil
}

func serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := config.Load()
	if err != nil {
		return err
	}
	verbose("config %+v", c)
	sh, err := c.Open(ctx, log.Writer())
	if err != nil {
		return err
	}

	ln, err := listen(*network, *port)
	if err != nil {
		return err
	}
	log.Printf("Listening on %v", ln.Addr())

	s, err := newServer(ctx, sh)
	if err != nil {
		ln.Close()
		return err
	}

	// register can return an error, but it should not block serving.
	if err := register(*network, *registerAddr, *registerTO); err != nil {
		verbose("Register(%v, %v, %v): %v", *network, *registerAddr, *registerTO, err)
	}

	// If there is a hup, we stop serving.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGTERM)
	defer signal.Stop(sigs)

	go func() {
		select {
		case sig := <-sigs:
			log.Printf("Received %v, Shutdown pkgshelld listen ...", sig)
		case <-ctx.Done():
		}
		if err := s.Shutdown(context.Background()); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	if err := s.Serve(ln); !errors.Is(err, ssh.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	verbose("Daemon returns")
	return nil
}
