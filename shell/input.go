// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shell

import (
	"context"
	"io"

	"github.com/u-root/pkgshell/transfer"
	"golang.org/x/term"
)

// input yields command lines, showing prompt first when it is not
// empty.
type input interface {
	line(ctx context.Context, prompt string) (string, error)
}

// body reads the lines of a received file, without a prompt.
type body struct {
	in input
}

func (b body) Next(ctx context.Context) (string, error) {
	return b.in.line(ctx, "")
}

// streamInput reads lines from a plain byte stream.
type streamInput struct {
	l   *transfer.Lines
	out io.Writer
}

func (s *streamInput) line(ctx context.Context, prompt string) (string, error) {
	if prompt != "" {
		if _, err := io.WriteString(s.out, prompt); err != nil {
			return "", err
		}
	}
	return s.l.Next(ctx)
}

type result struct {
	s   string
	err error
}

// termInput reads lines through a term.Terminal, which does the line
// editing and echo a kernel tty would. A line is only read when one is
// asked for, so the prompt is always drawn after earlier output.
type termInput struct {
	t       *term.Terminal
	req     chan string
	res     chan result
	done    chan struct{}
	pending bool
	err     error
}

func newTermInput(t *term.Terminal) *termInput {
	in := &termInput{t: t, req: make(chan string), res: make(chan result), done: make(chan struct{})}
	go in.read()
	return in
}

func (in *termInput) read() {
	for {
		var p string
		select {
		case p = <-in.req:
		case <-in.done:
			return
		}
		in.t.SetPrompt(p)
		s, err := in.t.ReadLine()
		select {
		case in.res <- result{s: s, err: err}:
		case <-in.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (in *termInput) line(ctx context.Context, prompt string) (string, error) {
	if in.err != nil {
		return "", in.err
	}
	if !in.pending {
		select {
		case in.req <- prompt:
			in.pending = true
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	select {
	case r := <-in.res:
		in.pending = false
		if r.err != nil {
			in.err = r.err
		}
		return r.s, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// close stops the reader once its pending ReadLine returns.
func (in *termInput) close() {
	close(in.done)
}
