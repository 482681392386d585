// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pkgrepo manages a remote package repository served by pkgshelld,
// or by sshd with pkgshell as the login shell.
//
// Synopsis:
//
//	pkgrepo [--host HOST] COMMAND [ARGS]
//
// Description:
//
//	The host is a name from ~/.ssh/config, an address, or a dnssd:
//	URI such as dnssd:?repo=core. Every flag may also be set in the
//	environment as PKGREPO_<FLAG>, for instance PKGREPO_HOST.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
