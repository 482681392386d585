// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// LockName is the advisory lock file in the repository directory.
// repo-add takes <db>.lck for itself, so this must differ from that.
const LockName = ".pkgshell.lock"

const defaultLockPoll = 100 * time.Millisecond

// lock takes the repository-wide lock, waiting until ctx is done.
// flock(2) locks belong to the open file, so two sessions in one
// process exclude each other just as two processes do.
func (s *Store) lock(ctx context.Context) (func(), error) {
	n := filepath.Join(s.dirs.Repo, LockName)
	f, err := os.OpenFile(n, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock: %w", err)
	}
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			f.Close()
			return nil, fmt.Errorf("lock %q: %w", n, err)
		}
		v("repo: %q is busy, waiting", n)
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("waiting for repository lock: %w", ctx.Err())
		case <-time.After(s.lockPoll):
		}
	}
	v("repo: locked %q", n)
	return func() {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
			v("repo: unlock %q: %v", n, err)
		}
		f.Close()
		v("repo: unlocked %q", n)
	}, nil
}
