// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package index manages the binary index of a package repository.
//
// The index is an archive rewritten by an external tool (repo-add and
// repo-remove). This package hides that tool behind the Indexer
// interface, so the repository store never runs a subprocess itself,
// and tests can substitute an in-memory indexer.
package index

import (
	"context"
	"io"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// Entry is one package as recorded in the index.
type Entry struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Desc     string `yaml:"description"`
	Filename string `yaml:"filename,omitempty"`
}

// Indexer is the capability to rewrite and read a repository index.
// Progress and tool output are written to w.
type Indexer interface {
	// Insert adds or replaces the entry for a package file already
	// present in the repository directory.
	Insert(ctx context.Context, w io.Writer, filename string) error
	// Delete removes the entry for the named package.
	Delete(ctx context.Context, w io.Writer, name string) error
	// Rebuild replaces the index with one describing exactly filenames.
	// An empty list produces an empty index.
	Rebuild(ctx context.Context, w io.Writer, filenames []string) error
	// List returns the entries in index order.
	List(ctx context.Context) ([]Entry, error)
}

// Lookup returns the entry for name, if any.
func Lookup(entries []Entry, name string) (Entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
