// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// RepoAdd is an Indexer that runs pacman's repo-add and repo-remove
// in the repository directory.
type RepoAdd struct {
	// Dir is the repository directory; the tools run there.
	Dir string
	// DB is the index file name, e.g. repo.db.tar.gz.
	DB string
	// AddCmd and RemoveCmd name the tools. They default to
	// repo-add and repo-remove, found in $PATH.
	AddCmd    string
	RemoveCmd string
}

var _ Indexer = &RepoAdd{}

// NewRepoAdd returns a RepoAdd for the index db in dir.
func NewRepoAdd(dir, db string) *RepoAdd {
	return &RepoAdd{Dir: dir, DB: db, AddCmd: "repo-add", RemoveCmd: "repo-remove"}
}

func (r *RepoAdd) run(ctx context.Context, w io.Writer, dir, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Dir = dir
	c.Stdout, c.Stderr = w, w
	v("index: run %q in %q", c.Args, dir)
	if err := c.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Insert implements Indexer.Insert.
func (r *RepoAdd) Insert(ctx context.Context, w io.Writer, filename string) error {
	return r.run(ctx, w, r.Dir, r.AddCmd, r.DB, filepath.Base(filename))
}

// Delete implements Indexer.Delete.
func (r *RepoAdd) Delete(ctx context.Context, w io.Writer, name string) error {
	return r.run(ctx, w, r.Dir, r.RemoveCmd, r.DB, name)
}

// Rebuild implements Indexer.Rebuild.
// The new index, its .files companion and their symlinks are built
// in a scratch directory inside the repository and renamed over the
// live ones, so a failed rebuild leaves the old index in place.
func (r *RepoAdd) Rebuild(ctx context.Context, w io.Writer, filenames []string) error {
	tmp, err := os.MkdirTemp(r.Dir, ".rebuild-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	args := []string{filepath.Join(tmp, r.DB)}
	for _, f := range filenames {
		args = append(args, filepath.Join(r.Dir, filepath.Base(f)))
	}
	if err := r.run(ctx, w, r.Dir, r.AddCmd, args...); err != nil {
		return err
	}

	ents, err := os.ReadDir(tmp)
	if err != nil {
		return err
	}
	for _, e := range ents {
		from, to := filepath.Join(tmp, e.Name()), filepath.Join(r.Dir, e.Name())
		v("index: rename %q -> %q", from, to)
		if err := os.Rename(from, to); err != nil {
			return err
		}
	}
	return nil
}

// List implements Indexer.List by reading the index archive.
func (r *RepoAdd) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadDB(filepath.Join(r.Dir, r.DB))
}
