// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pkgshell is a login shell that only manages a package repository.
//
// Synopsis:
//
//	pkgshell [-d] [-c command]
//
// Description:
//
//	Set pkgshell as the login shell of the repository account, or run
//	it from sshd with ForceCommand. On a terminal it prompts and edits
//	lines; otherwise it reads commands from standard input, so scripts
//	can pipe in a whole session. sshd runs "pkgshell -c command" for
//	"ssh host command".
//
//	The environment, and the YAML file named by PKGSHELL_CONFIG,
//	configure the repository.
//
// Options:
//
//	-c: run one command and exit
//	-d: enable debug prints
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/u-root/pkgshell/config"
	"github.com/u-root/pkgshell/index"
	"github.com/u-root/pkgshell/repo"
	"github.com/u-root/pkgshell/shell"
	"github.com/u-root/pkgshell/transfer"
	"golang.org/x/term"
)

var (
	debug   = flag.Bool("d", false, "enable debug prints")
	command = flag.String("c", "", "run one command and exit")

	v = func(string, ...interface{}) {}
)

type stdio struct {
	io.Reader
	io.Writer
}

// run serves one session on stdin and stdout.
func run(ctx context.Context, sh *shell.Shell, line string, stdin *os.File, stdout io.Writer) error {
	if line != "" {
		return sh.Exec(ctx, line, stdin, stdout)
	}
	fd := int(stdin.Fd())
	if !term.IsTerminal(fd) {
		return sh.Run(ctx, stdin, stdout, false)
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		v("raw mode: %v; reading lines", err)
		return sh.Run(ctx, stdin, stdout, true)
	}
	defer term.Restore(fd, old)
	var resize chan [2]int
	if w, h, err := term.GetSize(fd); err == nil {
		resize = make(chan [2]int, 1)
		resize <- [2]int{w, h}
		close(resize)
	}
	return sh.RunTerminal(ctx, stdio{stdin, stdout}, resize)
}

func main() {
	flag.Parse()
	if *debug {
		v = log.Printf
		shell.SetVerbose(log.Printf)
		repo.SetVerbose(log.Printf)
		index.SetVerbose(log.Printf)
		transfer.SetVerbose(log.Printf)
	}
	// sshd passes "-c command"; anything else is not a command.
	if flag.NArg() > 0 {
		log.Fatalf("usage: pkgshell [-d] [-c command]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGTERM, os.Interrupt)
	defer stop()

	c, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	v("config %+v", c)
	sh, err := c.Open(ctx, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
	if err := run(ctx, sh, *command, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
