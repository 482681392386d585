// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAppend(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".pkg_shell_history")
	l := New(p)
	l.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local) }

	var tests = []struct {
		cmd  string
		want string
	}{
		{"add foo-1.0-1-x86_64.pkg.tar.zst", "2026-03-04 05:06:07 - add foo-1.0-1-x86_64.pkg.tar.zst"},
		{"list", "2026-03-04 05:06:07 - list"},
		{"bogus\nexit", "2026-03-04 05:06:07 - bogus exit"},
	}
	for _, tt := range tests {
		if err := l.Record(tt.cmd); err != nil {
			t.Fatalf("Record(%q): %v != nil", tt.cmd, err)
		}
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	if len(got) != len(tests) {
		t.Fatalf("history: got %d lines, want %d", len(got), len(tests))
	}
	for i, tt := range tests {
		if got[i] != tt.want {
			t.Errorf("line %d: got %q, want %q", i, got[i], tt.want)
		}
	}
}

func TestAppendConcurrent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "h")
	// Two Logs on one file stand in for two sessions.
	a, b := New(p), New(p)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := a.Record(fmt.Sprintf("status %d", i)); err != nil {
				t.Errorf("Record: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if err := b.Record(fmt.Sprintf("list %d", i)); err != nil {
				t.Errorf("Record: %v", err)
			}
		}(i)
	}
	wg.Wait()
	d, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(d), "\n"), "\n")
	if len(lines) != 100 {
		t.Errorf("got %d lines, want 100", len(lines))
	}
	for _, l := range lines {
		if _, err := time.Parse(TimeFormat, l[:len(TimeFormat)]); err != nil || l[len(TimeFormat):len(TimeFormat)+3] != " - " {
			t.Errorf("malformed line %q", l)
		}
	}
}

func TestTouch(t *testing.T) {
	p := filepath.Join(t.TempDir(), "h")
	l := New(p)
	if err := l.Touch(); err != nil {
		t.Fatalf("Touch: %v != nil", err)
	}
	if err := l.Record("help"); err != nil {
		t.Fatal(err)
	}
	// Touching again must not truncate.
	if err := l.Touch(); err != nil {
		t.Fatalf("Touch: %v != nil", err)
	}
	if fi, err := os.Stat(p); err != nil || fi.Size() == 0 {
		t.Errorf("after Touch: got (%v, %v), want a non-empty file", fi, err)
	}
}
