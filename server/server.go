// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/gliderlabs/ssh"
	"github.com/google/uuid"
	"github.com/u-root/pkgshell/shell"
	gossh "golang.org/x/crypto/ssh"
)

const defaultPort = "17022"

var (
	v       = func(string, ...interface{}) {}
	tenants atomic.Int64
)

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// Tenants returns the number of open sessions.
func Tenants() int {
	return int(tenants.Load())
}

// AuthorizedKeys parses every key in an authorized_keys file.
// Options and comments are ignored.
func AuthorizedKeys(data []byte) ([]ssh.PublicKey, error) {
	var keys []ssh.PublicKey
	for len(bytes.TrimSpace(data)) > 0 {
		k, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			return keys, err
		}
		keys = append(keys, k)
		data = rest
	}
	if len(keys) == 0 {
		return nil, errors.New("no keys")
	}
	return keys, nil
}

// handler returns the session handler running sh.
func handler(sh *shell.Shell) ssh.Handler {
	return func(s ssh.Session) {
		tenants.Add(1)
		defer tenants.Add(-1)
		id := uuid.New()
		raw := s.RawCommand()
		log.Printf("session %s: %s from %v, command %q", id, s.User(), s.RemoteAddr(), raw)

		var err error
		ptyReq, winCh, isPty := s.Pty()
		switch {
		case raw != "":
			err = sh.Exec(s.Context(), raw, s, s)
		case isPty:
			v("session %s: pty %q %dx%d", id, ptyReq.Term, ptyReq.Window.Width, ptyReq.Window.Height)
			resize := make(chan [2]int, 1)
			resize <- [2]int{ptyReq.Window.Width, ptyReq.Window.Height}
			go func() {
				defer close(resize)
				for w := range winCh {
					resize <- [2]int{w.Width, w.Height}
				}
			}()
			err = sh.RunTerminal(s.Context(), s, resize)
		default:
			err = sh.Run(s.Context(), s, s, false)
		}

		code := 0
		if err != nil {
			v("session %s: %v", id, err)
			code = 1
		}
		if err := s.Exit(code); err != nil {
			v("session %s: exit: %v", id, err)
		}
		log.Printf("session %s: done", id)
	}
}

// New returns an SSH server handing every session to sh.
//
// Clients authenticate with any key in the authorizedKeys file, which
// is read again for each attempt. Without authorizedKeys there is no
// authentication at all; that is only for tests. There is no port
// forwarding and no way to run anything but the shell.
func New(authorizedKeys, hostKeyFile string, sh *shell.Shell) (*ssh.Server, error) {
	v("configure SSH server")
	server := &ssh.Server{
		// Pick a reasonable default, which can be used for a call to listen and which
		// will be overridden later from a listen.Addr
		Addr:    ":" + defaultPort,
		Handler: handler(sh),
	}
	if authorizedKeys != "" {
		server.PublicKeyHandler = func(ctx ssh.Context, key ssh.PublicKey) bool {
			data, err := os.ReadFile(authorizedKeys)
			if err != nil {
				log.Print(err)
				return false
			}
			allowed, err := AuthorizedKeys(data)
			if err != nil {
				log.Printf("%s: %v", authorizedKeys, err)
			}
			for _, k := range allowed {
				if ssh.KeysEqual(key, k) {
					v("%s: key %s accepted", ctx.User(), gossh.FingerprintSHA256(key))
					return true
				}
			}
			v("%s: key %s refused", ctx.User(), gossh.FingerprintSHA256(key))
			return false
		}
	}
	if hostKeyFile != "" {
		if err := server.SetOption(ssh.HostKeyFile(hostKeyFile)); err != nil {
			return nil, fmt.Errorf("host key %q: %w", hostKeyFile, err)
		}
	}
	return server, nil
}
