// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/u-root/pkgshell/pkg"
)

// DefaultIdleTimeout bounds the wait for each line of a received body.
const DefaultIdleTimeout = 10 * time.Minute

// A LineSource yields input lines without their line ending.
// Next returns io.EOF at the end of input, and ctx.Err() if ctx is
// done first.
type LineSource interface {
	Next(ctx context.Context) (string, error)
}

type line struct {
	s   string
	err error
}

// Lines is a LineSource reading from an io.Reader on its own
// goroutine, so that waiting for a line can be abandoned.
type Lines struct {
	c    chan line
	done chan struct{}
	once sync.Once
	err  error
}

var _ LineSource = &Lines{}

// NewLines starts reading lines from r. Lines may be of any length.
// Call Close to stop reading; the goroutine exits once its pending
// Read returns.
func NewLines(r io.Reader) *Lines {
	l := &Lines{c: make(chan line), done: make(chan struct{})}
	go l.read(r)
	return l
}

func (l *Lines) send(x line) bool {
	select {
	case l.c <- x:
		return true
	case <-l.done:
		return false
	}
}

func (l *Lines) read(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		s, err := br.ReadString('\n')
		if len(s) > 0 {
			s = strings.TrimSuffix(s, "\n")
			s = strings.TrimSuffix(s, "\r")
			if !l.send(line{s: s}) {
				return
			}
		}
		if err != nil {
			l.send(line{err: err})
			return
		}
	}
}

// Next implements LineSource.Next.
func (l *Lines) Next(ctx context.Context) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	select {
	case x := <-l.c:
		if x.err != nil {
			l.err = x.err
		}
		return x.s, x.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the reader goroutine.
func (l *Lines) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// Received describes a received file.
type Received struct {
	Path      string
	Name      string
	Size      int64
	Signature bool
}

// Receiver stores bodies read from a LineSource in Dir.
type Receiver struct {
	Dir string
	// IdleTimeout bounds the wait for each line. Zero means
	// DefaultIdleTimeout, negative means no bound.
	IdleTimeout time.Duration
}

func (r *Receiver) next(ctx context.Context, lines LineSource) (string, error) {
	d := r.IdleTimeout
	if d == 0 {
		d = DefaultIdleTimeout
	}
	if d < 0 {
		return lines.Next(ctx)
	}
	ictx, cancel := context.WithTimeoutCause(ctx, d, ErrIdle)
	defer cancel()
	s, err := lines.Next(ictx)
	if err != nil && errors.Is(context.Cause(ictx), ErrIdle) {
		return "", ErrIdle
	}
	if errors.Is(err, io.EOF) {
		return "", ErrTruncated
	}
	return s, err
}

// Drain reads and discards lines through the sentinel.
func (r *Receiver) Drain(ctx context.Context, lines LineSource) error {
	for {
		s, err := r.next(ctx, lines)
		if err != nil {
			return err
		}
		if s == Sentinel {
			return nil
		}
	}
}

// Receive reads a base64 body ended by the sentinel line from lines and
// stores it in Dir under the base name of filename.
//
// Every line through the sentinel is consumed, even when the name is
// bad or the body does not decode, so that no body line is ever taken
// for a command. The file appears only if the whole body decodes; it
// replaces any file of the same name. If input ends, ctx is done or
// the idle timeout expires before the sentinel, nothing is written.
func (r *Receiver) Receive(ctx context.Context, lines LineSource, filename string) (Received, error) {
	name, err := CleanName(filename)
	if err != nil {
		if derr := r.Drain(ctx, lines); derr != nil {
			return Received{}, multierror.Append(err, derr)
		}
		return Received{}, err
	}
	f, err := os.CreateTemp(r.Dir, ".receive-")
	if err != nil {
		if derr := r.Drain(ctx, lines); derr != nil {
			return Received{}, multierror.Append(err, derr)
		}
		return Received{}, err
	}
	defer os.Remove(f.Name())
	defer f.Close()
	v("transfer: receiving %q via %q", name, f.Name())

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := Decode(f, pr)
		pr.CloseWithError(err)
		done <- err
	}()

	var (
		werr  error
		count int
	)
	for {
		s, err := r.next(ctx, lines)
		if err != nil {
			pw.CloseWithError(err)
			<-done
			return Received{}, fmt.Errorf("receiving %s: %w", name, err)
		}
		if s == Sentinel {
			break
		}
		count++
		// After a decode error the pipe is closed; keep consuming.
		if werr == nil {
			_, werr = io.WriteString(pw, s+"\n")
		}
	}
	pw.Close()
	if err := <-done; err != nil {
		return Received{}, fmt.Errorf("receiving %s: %w", name, err)
	}
	v("transfer: %q: %d lines", name, count)

	if err := f.Sync(); err != nil {
		return Received{}, err
	}
	fi, err := f.Stat()
	if err != nil {
		return Received{}, err
	}
	if err := f.Chmod(0644); err != nil {
		return Received{}, err
	}
	dst := filepath.Join(r.Dir, name)
	if err := os.Rename(f.Name(), dst); err != nil {
		return Received{}, err
	}
	return Received{
		Path:      dst,
		Name:      name,
		Size:      fi.Size(),
		Signature: strings.HasSuffix(name, pkg.SigSuffix),
	}, nil
}
