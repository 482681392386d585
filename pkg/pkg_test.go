// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkg

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	var tests = []struct {
		in   string
		want File
	}{
		{"foo-1.0-1-x86_64.pkg.tar.zst", File{Filename: "foo-1.0-1-x86_64.pkg.tar.zst", Name: "foo", Version: "1.0", Release: "1", Arch: "x86_64", Ext: "tar.zst"}},
		{"foo-bar-baz-2:3.4.5-12-any.pkg.tar.xz", File{Filename: "foo-bar-baz-2:3.4.5-12-any.pkg.tar.xz", Name: "foo-bar-baz", Version: "2:3.4.5", Release: "12", Arch: "any", Ext: "tar.xz"}},
		{"/some/dir/lib32-glibc-2.39-1-x86_64.pkg.tar.zst", File{Filename: "lib32-glibc-2.39-1-x86_64.pkg.tar.zst", Name: "lib32-glibc", Version: "2.39", Release: "1", Arch: "x86_64", Ext: "tar.zst"}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v != nil", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q): got %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseBad(t *testing.T) {
	for _, n := range []string{
		"",
		"foo",
		"foo.pkg.tar.zst",
		"foo-1.0-x86_64.pkg.tar.zst",
		"-1.0-1-x86_64.pkg.tar.zst",
		"foo-1.0-1-x86_64.pkg.",
		"foo-1.0-1-x86_64.pkg.tar.zst.sig",
		"repo.db.tar.gz",
	} {
		if _, err := Parse(n); !errors.Is(err, ErrName) {
			t.Errorf("Parse(%q): got %v, want %v", n, err, ErrName)
		}
	}
}

func TestFileNames(t *testing.T) {
	f, err := Parse("foo-1.1-2-x86_64.pkg.tar.zst")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := f.FullVersion(), "1.1-2"; got != want {
		t.Errorf("FullVersion: got %q, want %q", got, want)
	}
	if got, want := f.Sig(), "foo-1.1-2-x86_64.pkg.tar.zst.sig"; got != want {
		t.Errorf("Sig: got %q, want %q", got, want)
	}
	if got, want := f.String(), "foo 1.1-2"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
}

func TestVercmp(t *testing.T) {
	var tests = []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.1", -1},
		{"1.1", "1.0", 1},
		{"1.10", "1.9", 1},
		{"1.01", "1.1", 0},
		{"1.0a", "1.0b", -1},
		{"1.0b", "1.0beta", -1},
		{"1.0beta", "1.0p", -1},
		{"1.0p", "1.0pre", -1},
		{"1.0pre", "1.0rc", -1},
		{"1.0rc", "1.0", -1},
		{"1.0", "1.0.a", -1},
		{"1.0.a", "1.0.1", -1},
		{"1.0-2", "1.0-10", -1},
		{"1.0-1", "1.0", 0},
		{"1:1.0-1", "2.0-1", 1},
		{"0:2.0-1", "2.0-1", 0},
		{"20240101-1", "20231231-5", 1},
		{"1.0_1", "1.0.1", 0},
		{"1.0..1", "1.0.1", 1},
	}
	for _, tt := range tests {
		if got := Vercmp(tt.a, tt.b); got != tt.want {
			t.Errorf("Vercmp(%q, %q): got %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := Vercmp(tt.b, tt.a); got != -tt.want {
			t.Errorf("Vercmp(%q, %q): got %d, want %d", tt.b, tt.a, got, -tt.want)
		}
	}
}

func TestSortFiles(t *testing.T) {
	var files []File
	for _, n := range []string{
		"foo-1.10-1-x86_64.pkg.tar.zst",
		"foo-1.2-1-x86_64.pkg.tar.zst",
		"foo-1.9-3-x86_64.pkg.tar.zst",
		"foo-1.9-12-x86_64.pkg.tar.zst",
	} {
		f, err := Parse(n)
		if err != nil {
			t.Fatal(err)
		}
		files = append(files, f)
	}
	SortFiles(files)
	want := []string{"1.2-1", "1.9-3", "1.9-12", "1.10-1"}
	for i, f := range files {
		if f.FullVersion() != want[i] {
			t.Errorf("SortFiles: element %d: got %q, want %q", i, f.FullVersion(), want[i])
		}
	}
}
