// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package repo

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/disk"
)

// Status summarizes a repository.
type Status struct {
	Packages int
	Signed   int
	// Size is the total size of the files in the repository directory.
	Size int64
	// IndexMod is the index modification time; zero if there is none.
	IndexMod time.Time
	// Disk is the usage of the file system holding the repository,
	// or nil if it could not be had.
	Disk *disk.UsageStat
}

// Status returns statistics about the repository. It does not fail:
// what can not be determined is left zero.
func (s *Store) Status(ctx context.Context) Status {
	var st Status
	if files, err := s.Packages(); err == nil {
		st.Packages = len(files)
		for _, f := range files {
			if isFile(filepath.Join(s.dirs.Repo, f.Sig())) {
				st.Signed++
			}
		}
	} else {
		v("repo: status: %v", err)
	}

	err := filepath.WalkDir(s.dirs.Repo, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				st.Size += fi.Size()
			}
		}
		return nil
	})
	if err != nil {
		v("repo: status: walk: %v", err)
	}

	if fi, err := os.Stat(s.dirs.DB()); err == nil {
		st.IndexMod = fi.ModTime()
	}

	if u, err := disk.UsageWithContext(ctx, s.dirs.Repo); err == nil {
		st.Disk = u
	} else {
		v("repo: status: disk usage: %v", err)
	}
	return st
}
