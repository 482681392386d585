// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pkg knows the naming rules for package files in a
// repository directory.
//
// A package file is named <name>-<version>-<release>-<arch>.pkg.<ext>,
// e.g. foo-bar-1.2.3-1-x86_64.pkg.tar.zst. The name may contain
// hyphens, so the name is everything to the left of the last three
// hyphen-separated fields. A package may have a detached signature,
// stored beside it as the package file name plus SigSuffix.
package pkg

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// SigSuffix is appended to a package file name to name its signature.
	SigSuffix = ".sig"
	// marker separates the package stem from the archive extension.
	marker = ".pkg."
)

// ErrName is returned for file names that are not package file names.
var ErrName = errors.New("not a package file name")

// File describes one package file, as decoded from its name.
type File struct {
	Filename string
	Name     string
	Version  string
	Release  string
	Arch     string
	Ext      string
}

// Parse decodes a package file name. Any directory part is ignored.
func Parse(filename string) (File, error) {
	base := filepath.Base(filename)
	if strings.HasSuffix(base, SigSuffix) {
		return File{}, fmt.Errorf("%q is a signature: %w", base, ErrName)
	}
	i := strings.LastIndex(base, marker)
	if i <= 0 || i+len(marker) == len(base) {
		return File{}, fmt.Errorf("%q: no %q extension: %w", base, marker, ErrName)
	}
	stem, ext := base[:i], base[i+len(marker):]
	f := strings.Split(stem, "-")
	if len(f) < 4 {
		return File{}, fmt.Errorf("%q: want name-version-release-arch: %w", base, ErrName)
	}
	n := len(f)
	p := File{
		Filename: base,
		Name:     strings.Join(f[:n-3], "-"),
		Version:  f[n-3],
		Release:  f[n-2],
		Arch:     f[n-1],
		Ext:      ext,
	}
	if p.Name == "" || p.Version == "" || p.Release == "" || p.Arch == "" {
		return File{}, fmt.Errorf("%q: empty field: %w", base, ErrName)
	}
	return p, nil
}

// IsPackage reports whether name parses as a package file name.
func IsPackage(name string) bool {
	_, err := Parse(name)
	return err == nil
}

// FullVersion returns version-release, the form the index uses.
func (f File) FullVersion() string {
	return f.Version + "-" + f.Release
}

// Sig returns the signature file name for f.
func (f File) Sig() string {
	return f.Filename + SigSuffix
}

// String implements fmt.Stringer.
func (f File) String() string {
	return f.Name + " " + f.FullVersion()
}
