// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shell implements the restricted command shell.
//
// A session prints a banner, then reads one command per line and
// answers it until exit or the end of input. Only the verbs listed by
// help exist; there is no way to reach a general shell. Failures are
// reported as text and the session goes on. Only an error writing to
// the client, or the session context ending, stops a session early.
//
// The response texts are read by scripts, so they should not change.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/u-root/pkgshell/repo"
	"github.com/u-root/pkgshell/transfer"
	"golang.org/x/term"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// Prompt is shown before each command in interactive sessions.
const Prompt = "pkgrepo> "

// Recorder records commands.
type Recorder interface {
	Record(command string) error
}

// Shell serves sessions against one repository. It holds no session
// state, so one Shell may serve many sessions at once.
type Shell struct {
	store *repo.Store
	hist  Recorder
	recv  transfer.Receiver
}

// Option configures a Shell.
type Option func(*Shell)

// WithIdleTimeout bounds the wait for each line of a received file.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Shell) { s.recv.IdleTimeout = d }
}

// New returns a Shell for store, recording commands in hist.
func New(store *repo.Store, hist Recorder, opts ...Option) *Shell {
	s := &Shell{
		store: store,
		hist:  hist,
		recv:  transfer.Receiver{Dir: store.Dirs().Upload},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// errWriter remembers the first write error; later writes fail with it.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

// session is the state of one connection.
type session struct {
	*Shell
	in  input
	out *errWriter
}

// Run runs a session reading commands from in and answering on out.
// With interactive set, the prompt is shown before each command.
// Run returns nil at exit or end of input.
func (s *Shell) Run(ctx context.Context, in io.Reader, out io.Writer, interactive bool) error {
	l := transfer.NewLines(in)
	defer l.Close()
	prompt := ""
	if interactive {
		prompt = Prompt
	}
	w := &errWriter{w: out}
	return s.loop(ctx, &session{Shell: s, in: &streamInput{l: l, out: w}, out: w}, prompt)
}

// RunTerminal runs an interactive session on a terminal that has no
// kernel tty behind it, such as an SSH channel with a pty request.
// resize, if not nil, delivers window size changes.
func (s *Shell) RunTerminal(ctx context.Context, rw io.ReadWriter, resize <-chan [2]int) error {
	t := term.NewTerminal(rw, "")
	if resize != nil {
		go func() {
			for sz := range resize {
				if err := t.SetSize(sz[0], sz[1]); err != nil {
					v("shell: resize: %v", err)
				}
			}
		}()
	}
	in := newTermInput(t)
	defer in.close()
	return s.loop(ctx, &session{Shell: s, in: in, out: &errWriter{w: t}}, Prompt)
}

// Exec runs the single command line, as for "ssh host list". A
// received file is read from in.
func (s *Shell) Exec(ctx context.Context, line string, in io.Reader, out io.Writer) error {
	l := transfer.NewLines(in)
	defer l.Close()
	w := &errWriter{w: out}
	ss := &session{Shell: s, in: &streamInput{l: l, out: w}, out: w}
	ss.execute(ctx, Parse(line))
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.err
}

func (s *Shell) loop(ctx context.Context, ss *session, prompt string) error {
	ss.banner()
	for ss.out.err == nil {
		l, err := ss.in.line(ctx, prompt)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(ss.out, "\nEnd of input. Exiting...")
			return ss.out.err
		}
		if err != nil {
			return err
		}
		c := Parse(l)
		if c.Verb == VerbNone {
			continue
		}
		if !ss.execute(ctx, c) {
			return ss.out.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintln(ss.out)
	}
	return ss.out.err
}

// execute runs c and reports whether the session goes on.
func (ss *session) execute(ctx context.Context, c Command) bool {
	if c.Verb == VerbNone {
		return true
	}
	if c.Verb == VerbExit {
		fmt.Fprintln(ss.out, "Logging out...")
		return false
	}
	if err := ss.hist.Record(c.Line); err != nil {
		fmt.Fprintf(ss.out, "Warning: history: %v\n", err)
	}
	v("shell: %v %q", c.Verb, c.Arg)
	switch c.Verb {
	case VerbAdd:
		ss.add(ctx, c.Arg)
	case VerbRemove:
		ss.remove(ctx, c.Arg)
	case VerbList:
		ss.list(ctx)
	case VerbClean:
		ss.clean(ctx)
	case VerbStatus:
		ss.status(ctx)
	case VerbReceive:
		return ss.receive(ctx, c.Arg)
	case VerbSend:
		ss.send(c.Arg)
	case VerbHelp:
		ss.help()
	default:
		fmt.Fprintf(ss.out, "Unknown command: %s\n", c.Name)
		fmt.Fprintln(ss.out, "Type 'help' for a list of available commands")
	}
	return true
}
