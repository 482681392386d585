// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// slice is a LineSource over fixed lines.
type slice struct {
	lines []string
	n     int
}

func (s *slice) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.n >= len(s.lines) {
		return "", io.EOF
	}
	s.n++
	return s.lines[s.n-1], nil
}

// blocked never yields a line.
type blocked struct{}

func (blocked) Next(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func encodeLines(t *testing.T, b []byte) []string {
	t.Helper()
	var e bytes.Buffer
	if err := Encode(&e, bytes.NewReader(b)); err != nil {
		t.Fatalf("Encode: %v != nil", err)
	}
	if e.Len() == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(e.String(), "\n"), "\n")
}

func payloads() map[string][]byte {
	r := rand.New(rand.NewSource(7))
	random := make([]byte, 100*1024+5)
	r.Read(random)
	return map[string][]byte{
		"empty":    {},
		"one":      {0xff},
		"newlines": []byte("\n\r\nEOF\n-----END FILE DATA-----\n"),
		"exact":    bytes.Repeat([]byte{'x'}, 57),
		"random":   random,
	}
}

func TestEncodeLines(t *testing.T) {
	for name, b := range payloads() {
		for i, l := range encodeLines(t, b) {
			if len(l) > LineLen {
				t.Errorf("%s: line %d is %d long, want <= %d", name, i, len(l), LineLen)
			}
			if l == Sentinel {
				t.Errorf("%s: line %d is the sentinel", name, i)
			}
		}
	}
}

func TestReceiveRoundTrip(t *testing.T) {
	v = t.Logf
	dir := t.TempDir()
	r := &Receiver{Dir: dir}
	for name, b := range payloads() {
		lines := &slice{lines: append(encodeLines(t, b), Sentinel, "list")}
		got, err := r.Receive(context.Background(), lines, "sub/dir/"+name+".pkg.tar.zst")
		if err != nil {
			t.Errorf("Receive(%s): %v != nil", name, err)
			continue
		}
		if got.Path != filepath.Join(dir, name+".pkg.tar.zst") || got.Size != int64(len(b)) || got.Signature {
			t.Errorf("Receive(%s): got %+v", name, got)
		}
		f, err := os.ReadFile(got.Path)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(f, b) {
			t.Errorf("Receive(%s): file differs from what was sent", name)
		}
		// The line after the sentinel is left for the shell.
		if l, _ := lines.Next(context.Background()); l != "list" {
			t.Errorf("Receive(%s): next line got %q, want %q", name, l, "list")
		}
	}
}

func TestReceiveSendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for name, b := range payloads() {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, b, 0644); err != nil {
			t.Fatal(err)
		}
		var out bytes.Buffer
		if err := Send(&out, p); err != nil {
			t.Fatalf("Send(%s): %v != nil", name, err)
		}
		if !strings.HasPrefix(out.String(), "Sending file: "+name+"\n") {
			t.Errorf("Send(%s): output starts %q", name, out.String()[:20])
		}
		got, err := Extract(out.Bytes())
		if err != nil {
			t.Errorf("Extract(%s): %v != nil", name, err)
			continue
		}
		if !bytes.Equal(got, b) {
			t.Errorf("Extract(%s): got %d bytes, want %d", name, len(got), len(b))
		}
	}
}

func TestCleanName(t *testing.T) {
	var tests = []struct {
		in, want string
		err      bool
	}{
		{"foo-1-1-any.pkg.tar.zst", "foo-1-1-any.pkg.tar.zst", false},
		{"../../etc/passwd", "passwd", false},
		{"/etc/cron.d/evil", "evil", false},
		{`..\..\evil.sig`, "evil.sig", false},
		{"", "", true},
		{".", "", true},
		{"..", "", true},
		{"a/..", "", true},
		{"/", "", true},
		{".hidden", "", true},
	}
	for _, tt := range tests {
		got, err := CleanName(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("CleanName(%q): got (%q, %v), want (%q, err %v)", tt.in, got, err, tt.want, tt.err)
		}
		if err != nil && !errors.Is(err, ErrBadName) {
			t.Errorf("CleanName(%q): %v is not ErrBadName", tt.in, err)
		}
	}
}

func TestReceiveTraversal(t *testing.T) {
	d := t.TempDir()
	up := filepath.Join(d, "uploads")
	if err := os.Mkdir(up, 0755); err != nil {
		t.Fatal(err)
	}
	r := &Receiver{Dir: up}
	lines := &slice{lines: append(encodeLines(t, []byte("pwned")), Sentinel)}
	got, err := r.Receive(context.Background(), lines, "../escape")
	if err != nil {
		t.Fatalf("Receive: %v != nil", err)
	}
	if got.Path != filepath.Join(up, "escape") {
		t.Errorf("Receive(../escape): stored at %q, want inside %q", got.Path, up)
	}
	if _, err := os.Stat(filepath.Join(d, "escape")); err == nil {
		t.Errorf("Receive(../escape): file written outside the upload directory")
	}

	lines = &slice{lines: []string{"AAAA", Sentinel, "status"}}
	if _, err := r.Receive(context.Background(), lines, ".."); !errors.Is(err, ErrBadName) {
		t.Errorf("Receive(..): got %v, want %v", err, ErrBadName)
	}
	if l, _ := lines.Next(context.Background()); l != "status" {
		t.Errorf("Receive(..): body not consumed, next line %q", l)
	}
}

func TestReceiveDecodeError(t *testing.T) {
	dir := t.TempDir()
	r := &Receiver{Dir: dir}
	lines := &slice{lines: []string{"!!!! not base64 !!!!", "QUJD", Sentinel, "clean"}}
	if _, err := r.Receive(context.Background(), lines, "bad.pkg.tar.zst"); !errors.Is(err, ErrDecode) {
		t.Errorf("Receive(bad data): got %v, want %v", err, ErrDecode)
	}
	if l, _ := lines.Next(context.Background()); l != "clean" {
		t.Errorf("Receive(bad data): next line got %q, want %q", l, "clean")
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ents) != 0 {
		t.Errorf("Receive(bad data): left %d files, want none", len(ents))
	}
}

func TestReceiveAborts(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var tests = []struct {
		name  string
		r     *Receiver
		ctx   context.Context
		lines LineSource
		want  error
	}{
		{"truncated", &Receiver{Dir: dir}, context.Background(), &slice{lines: []string{"QUJD"}}, ErrTruncated},
		{"idle", &Receiver{Dir: dir, IdleTimeout: 10 * time.Millisecond}, context.Background(), blocked{}, ErrIdle},
		{"canceled", &Receiver{Dir: dir}, ctx, blocked{}, context.Canceled},
	}
	for _, tt := range tests {
		if _, err := tt.r.Receive(tt.ctx, tt.lines, "x.sig"); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ents) != 0 {
		t.Errorf("aborted receives left %d files, want none", len(ents))
	}
}

func TestLines(t *testing.T) {
	pr, pw := io.Pipe()
	l := NewLines(pr)
	defer l.Close()
	go func() {
		io.WriteString(pw, "add foo\r\n"+strings.Repeat("A", 100000)+"\nlast")
		pw.Close()
	}()
	ctx := context.Background()
	for _, want := range []string{"add foo", strings.Repeat("A", 100000), "last"} {
		got, err := l.Next(ctx)
		if err != nil || got != want {
			t.Fatalf("Next: got (%.20q, %v), want (%.20q, nil)", got, err, want)
		}
	}
	if _, err := l.Next(ctx); err != io.EOF {
		t.Errorf("Next at end: got %v, want %v", err, io.EOF)
	}
	if _, err := l.Next(ctx); err != io.EOF {
		t.Errorf("Next after end: got %v, want %v", err, io.EOF)
	}

	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := NewLines(blockedReader{}).Next(tctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next on a silent reader: got %v, want %v", err, context.DeadlineExceeded)
	}
}

type blockedReader struct{}

func (blockedReader) Read([]byte) (int, error) {
	select {}
}

func TestLocate(t *testing.T) {
	repo, up := t.TempDir(), t.TempDir()
	for _, p := range []string{filepath.Join(repo, "a"), filepath.Join(up, "a"), filepath.Join(up, "b")} {
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	var tests = []struct {
		name, want string
		err        error
	}{
		{"a", filepath.Join(repo, "a"), nil},
		{"b", filepath.Join(up, "b"), nil},
		{filepath.Join(up, "b"), filepath.Join(up, "b"), nil},
		{"c", "", ErrNotFound},
		{"", "", ErrBadName},
	}
	for _, tt := range tests {
		got, err := Locate(tt.name, repo, up)
		if got != tt.want || !errors.Is(err, tt.err) {
			t.Errorf("Locate(%q): got (%q, %v), want (%q, %v)", tt.name, got, err, tt.want, tt.err)
		}
	}
}

func TestExtractFraming(t *testing.T) {
	if _, err := Extract([]byte("Error: File not found: x\n")); !errors.Is(err, ErrFraming) {
		t.Errorf("Extract(no markers): got %v, want %v", err, ErrFraming)
	}
	if _, err := Extract([]byte(StartMarker + "\nQUJD\n")); !errors.Is(err, ErrFraming) {
		t.Errorf("Extract(no end): got %v, want %v", err, ErrFraming)
	}
	// Lines may come back with carriage returns from a terminal.
	got, err := Extract([]byte("noise\r\n" + StartMarker + "\r\nQU\r\nJD\r\n" + EndMarker + "\r\n"))
	if err != nil || string(got) != "ABC" {
		t.Errorf("Extract(CRLF): got (%q, %v), want (\"ABC\", nil)", got, err)
	}
}
