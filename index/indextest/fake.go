// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package indextest provides an in-memory index.Indexer for tests.
package indextest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/u-root/pkgshell/index"
	"github.com/u-root/pkgshell/pkg"
)

// Fake records index operations in memory. It derives entries from
// file names, which is what the real tool ends up recording.
type Fake struct {
	mu      sync.Mutex
	entries []index.Entry
	// Calls counts operations by name: insert, delete, rebuild, list.
	Calls map[string]int
	// Fail, if set, makes the named operation return it.
	Fail map[string]error
}

var _ index.Indexer = &Fake{}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{Calls: map[string]int{}, Fail: map[string]error{}}
}

func (f *Fake) call(op string) error {
	f.Calls[op]++
	return f.Fail[op]
}

func entry(filename string) (index.Entry, error) {
	p, err := pkg.Parse(filename)
	if err != nil {
		return index.Entry{}, err
	}
	return index.Entry{Name: p.Name, Version: p.FullVersion(), Desc: p.Name + " package", Filename: p.Filename}, nil
}

// Insert implements index.Indexer.Insert.
func (f *Fake) Insert(_ context.Context, w io.Writer, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("insert"); err != nil {
		return err
	}
	e, err := entry(filename)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "==> Adding package '%s'\n", e.Filename)
	for i := range f.entries {
		if f.entries[i].Name == e.Name {
			f.entries[i] = e
			return nil
		}
	}
	f.entries = append(f.entries, e)
	return nil
}

// Delete implements index.Indexer.Delete.
func (f *Fake) Delete(_ context.Context, w io.Writer, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("delete"); err != nil {
		return err
	}
	for i := range f.entries {
		if f.entries[i].Name == name {
			fmt.Fprintf(w, "==> Removing existing entry '%s'...\n", name)
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("package matching %q not found", name)
}

// Rebuild implements index.Indexer.Rebuild.
func (f *Fake) Rebuild(_ context.Context, w io.Writer, filenames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("rebuild"); err != nil {
		return err
	}
	var entries []index.Entry
	for _, n := range filenames {
		e, err := entry(n)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	fmt.Fprintf(w, "==> Creating updated database file with %d entries\n", len(entries))
	f.entries = entries
	return nil
}

// List implements index.Indexer.List.
func (f *Fake) List(context.Context) ([]index.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("list"); err != nil {
		return nil, err
	}
	return append([]index.Entry(nil), f.entries...), nil
}
