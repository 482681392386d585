// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server is for building package shell servers, a.k.a. pkgshelld.
//
// A pkgshelld is an ssh server with a special handler. On a normal ssh
// session, the main task is to run a command attached to a stdin,
// stdout, and stderr. This handler runs no command at all: every
// session, whatever it asks for, gets the package shell, so an
// account served this way can only manage the repository.
//
// A session with a pty gets an interactive shell with line editing.
// A session without one, such as "ssh host < script", gets the same
// shell without a prompt, which is what scripted clients use. A
// session started with a command, as in "ssh host list", runs that one
// shell command and exits.
//
// The basic flow of setting up a server is similar to most such servers:
// a call to New(), preceded or followed by a call to net.Listen to get
// a socket, and a call to Serve with the listener. For a usage example,
// see TestDaemonSession.
package server
