// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package repo implements the package store behind the shell: the
// files in a repository directory and the index that describes them.
//
// A Store never changes the process working directory. Every path it
// uses comes from its Dirs. Operations that change files and the index
// (Add, Remove, Clean, Init) run under an advisory lock on the
// repository, so that concurrent sessions cannot interleave a file
// change with another session's index rewrite. After any of them
// succeeds, the index lists exactly the package files present.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/u-root/pkgshell/index"
	"github.com/u-root/pkgshell/pkg"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

var (
	// ErrUsage marks a missing or malformed argument.
	ErrUsage = errors.New("usage")
	// ErrNotFound marks a package or file that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotIndexed is returned by a best-effort Remove that deleted
	// files of a package the index did not list.
	ErrNotIndexed = fmt.Errorf("package %w in index", ErrNotFound)
)

// Dirs is the repository context handed to every operation.
type Dirs struct {
	// Repo is the architecture directory holding packages and index.
	Repo string
	// DBName is the index file name inside Repo.
	DBName string
	// Upload holds received files that are not yet added.
	Upload string
	// Work is where relative paths given to Add are resolved.
	Work string
}

// DB returns the path of the index file.
func (d Dirs) DB() string {
	return filepath.Join(d.Repo, d.DBName)
}

// RemovePolicy decides what Remove does with a package that has no
// index entry.
type RemovePolicy int

const (
	// RemoveStrict fails before touching any file.
	RemoveStrict RemovePolicy = iota
	// RemoveBestEffort deletes the package's files anyway and reports
	// ErrNotIndexed.
	RemoveBestEffort
)

// ParseRemovePolicy parses "strict" or "best-effort".
func ParseRemovePolicy(s string) (RemovePolicy, error) {
	switch strings.ToLower(s) {
	case "", "strict":
		return RemoveStrict, nil
	case "best-effort", "besteffort", "force":
		return RemoveBestEffort, nil
	}
	return RemoveStrict, fmt.Errorf("remove policy %q: want strict or best-effort", s)
}

func (p RemovePolicy) String() string {
	if p == RemoveBestEffort {
		return "best-effort"
	}
	return "strict"
}

// Store is a package repository.
type Store struct {
	dirs     Dirs
	ix       index.Indexer
	policy   RemovePolicy
	lockPoll time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithRemovePolicy sets the Remove policy. The default is RemoveStrict.
func WithRemovePolicy(p RemovePolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLockPoll sets how often a busy repository lock is retried.
func WithLockPoll(d time.Duration) Option {
	return func(s *Store) { s.lockPoll = d }
}

// New returns a Store for dirs, using ix to maintain the index.
func New(dirs Dirs, ix index.Indexer, opts ...Option) *Store {
	s := &Store{dirs: dirs, ix: ix, lockPoll: defaultLockPoll}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dirs returns the repository context of s.
func (s *Store) Dirs() Dirs {
	return s.dirs
}

// Init creates the directories and, if there is no index yet, an
// empty one.
func (s *Store) Init(ctx context.Context, w io.Writer) error {
	for _, d := range []string{s.dirs.Repo, s.dirs.Upload} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	if _, err := os.Stat(s.dirs.DB()); err == nil {
		return nil
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	fmt.Fprintf(w, "Initializing empty repository database at %s...\n", s.dirs.DB())
	if err := s.ix.Rebuild(ctx, w, nil); err != nil {
		return fmt.Errorf("initializing repository database: %w", err)
	}
	fmt.Fprintln(w, "Repository database initialized successfully.")
	return nil
}

// Packages returns the package files in the repository, sorted by
// file name. Hidden files, signatures and the index are skipped.
func (s *Store) Packages() ([]pkg.File, error) {
	ents, err := os.ReadDir(s.dirs.Repo)
	if err != nil {
		return nil, err
	}
	var files []pkg.File
	for _, e := range ents {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if f, err := pkg.Parse(e.Name()); err == nil {
			files = append(files, f)
		}
	}
	return files, nil
}

// signatures returns the signature files in the repository, keyed by
// the package file name they sign.
func (s *Store) signatures() (map[string]pkg.File, error) {
	ents, err := os.ReadDir(s.dirs.Repo)
	if err != nil {
		return nil, err
	}
	sigs := map[string]pkg.File{}
	for _, e := range ents {
		n := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, pkg.SigSuffix) {
			continue
		}
		if f, err := pkg.Parse(strings.TrimSuffix(n, pkg.SigSuffix)); err == nil {
			sigs[f.Filename] = f
		}
	}
	return sigs, nil
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// resolve finds the file named by an add argument: as given
// (relative to Work), else by base name in the repository, else by
// base name in the upload directory.
func (s *Store) resolve(p string) (string, error) {
	first := p
	if !filepath.IsAbs(p) {
		first = filepath.Join(s.dirs.Work, p)
	}
	base := filepath.Base(p)
	for _, c := range []string{first, filepath.Join(s.dirs.Repo, base), filepath.Join(s.dirs.Upload, base)} {
		v("repo: try %q", c)
		if isFile(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("package file %w: %s", ErrNotFound, p)
}

// copyFile copies src to dst, atomically replacing dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.CreateTemp(filepath.Dir(dst), ".incoming-")
	if err != nil {
		return err
	}
	defer os.Remove(out.Name())
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(out.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(out.Name(), dst)
}

// removeFile removes a repository file, printing its name.
// A file that is already gone is not an error.
func (s *Store) removeFile(w io.Writer, name string) (bool, error) {
	err := os.Remove(filepath.Join(s.dirs.Repo, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	fmt.Fprintf(w, "Removing %s\n", name)
	return true, nil
}

// Add adds the package file at path to the repository.
//
// The file is copied into the repository unless it is already there,
// along with a signature found beside it or in the upload directory.
// Adding a file the index already lists under the same file name does
// nothing. Copies are not undone if the index update fails.
func (s *Store) Add(ctx context.Context, w io.Writer, path string) error {
	if path == "" {
		return fmt.Errorf("%w: add <package-file.pkg.tar.zst>", ErrUsage)
	}
	src, err := s.resolve(path)
	if err != nil {
		return err
	}
	p, err := pkg.Parse(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	dst := filepath.Join(s.dirs.Repo, p.Filename)
	if !isFile(dst) {
		fmt.Fprintln(w, "Copying package to repository...")
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("copying package: %w", err)
		}
	} else if ents, err := s.ix.List(ctx); err != nil {
		v("repo: can not read index (%v); adding anyway", err)
	} else {
		for _, e := range ents {
			if e.Filename == p.Filename {
				fmt.Fprintf(w, "Package %s is already in the repository.\n", p.Filename)
				return nil
			}
		}
	}

	sig := filepath.Join(s.dirs.Repo, p.Sig())
	if !isFile(sig) {
		for _, c := range []string{src + pkg.SigSuffix, filepath.Join(s.dirs.Upload, p.Sig())} {
			if !isFile(c) {
				continue
			}
			fmt.Fprintf(w, "Copying signature file %s to repository...\n", c)
			if err := copyFile(c, sig); err != nil {
				return fmt.Errorf("copying signature: %w", err)
			}
			break
		}
	}

	fmt.Fprintln(w, "Updating repository database...")
	if err := s.ix.Insert(ctx, w, p.Filename); err != nil {
		return fmt.Errorf("adding package to repository: %w", err)
	}
	return nil
}

// Remove removes the named package from the index, then deletes every
// package file whose name begins with name followed by a hyphen, and
// their signatures: every version for every architecture. It returns
// the number of package files deleted.
//
// The match is on the file name prefix, so removing foo also deletes
// foo-bar files. Packages caught that way are removed from the index
// too, so that it still lists exactly the files present.
//
// What happens when the index has no entry for name depends on the
// RemovePolicy.
func (s *Store) Remove(ctx context.Context, w io.Writer, name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: remove <package-name>", ErrUsage)
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	ents, err := s.ix.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("checking repository contents: %w", err)
	}
	_, indexed := index.Lookup(ents, name)
	if !indexed && s.policy == RemoveStrict {
		return 0, fmt.Errorf("package %w in repository: %s", ErrNotFound, name)
	}

	files, err := s.Packages()
	if err != nil {
		return 0, err
	}
	sigs, err := s.signatures()
	if err != nil {
		return 0, err
	}
	prefix := name + "-"
	var matched []pkg.File
	others := map[string]bool{}
	for _, f := range files {
		if !strings.HasPrefix(f.Filename, prefix) {
			continue
		}
		matched = append(matched, f)
		if f.Name != name {
			others[f.Name] = true
		}
	}

	if indexed {
		fmt.Fprintln(w, "Removing package from database...")
		if err := s.ix.Delete(ctx, w, name); err != nil {
			return 0, fmt.Errorf("removing package from database: %w", err)
		}
	} else {
		fmt.Fprintf(w, "Package %s is not in the database; removing its files anyway.\n", name)
	}
	var names []string
	for o := range others {
		names = append(names, o)
	}
	sort.Strings(names)
	for _, o := range names {
		if _, ok := index.Lookup(ents, o); !ok {
			continue
		}
		fmt.Fprintf(w, "Removing %s from database: its files match %s*\n", o, prefix)
		if err := s.ix.Delete(ctx, w, o); err != nil {
			return 0, fmt.Errorf("removing package from database: %w", err)
		}
	}

	var (
		errs error
		n    int
	)
	fmt.Fprintln(w, "Removing package files and signatures...")
	for _, f := range matched {
		ok, err := s.removeFile(w, f.Filename)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		if ok {
			n++
		}
	}
	for fn, f := range sigs {
		if !strings.HasPrefix(fn, prefix) {
			continue
		}
		if _, err := s.removeFile(w, f.Sig()); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		return n, errs
	}
	if !indexed {
		if n == 0 {
			return 0, fmt.Errorf("package %w in repository: %s", ErrNotFound, name)
		}
		return n, fmt.Errorf("%s: %w", name, ErrNotIndexed)
	}
	return n, nil
}

// List returns the packages the index describes, in index order.
// If the index can not be read, the list is computed from the file
// names, without descriptions.
func (s *Store) List(ctx context.Context) ([]index.Entry, error) {
	ents, err := s.ix.List(ctx)
	if err == nil {
		return ents, nil
	}
	v("repo: index unreadable (%v), listing files", err)
	files, ferr := s.Packages()
	if ferr != nil {
		return nil, multierror.Append(err, ferr)
	}
	ents = make([]index.Entry, 0, len(files))
	for _, f := range files {
		ents = append(ents, index.Entry{Name: f.Name, Version: f.FullVersion(), Filename: f.Filename})
	}
	return ents, nil
}

// Clean deletes all but the newest version of every package, with
// their signatures, and then rebuilds the index from the files that
// remain. It returns the number of versions deleted.
//
// Failed deletions do not stop the clean. The rebuild always runs
// last, even if ctx is canceled part way, so that the index matches
// the files whatever happened before it.
func (s *Store) Clean(ctx context.Context, w io.Writer) (int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	files, err := s.Packages()
	if err != nil {
		return 0, err
	}
	groups := map[string][]pkg.File{}
	for _, f := range files {
		groups[f.Name] = append(groups[f.Name], f)
	}
	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}
	sort.Strings(names)

	var (
		errs    error
		removed int
	)
	for _, n := range names {
		g := groups[n]
		if len(g) < 2 {
			continue
		}
		pkg.SortFiles(g)
		fmt.Fprintf(w, "Cleaning old versions of %s...\n", n)
		for _, old := range g[:len(g)-1] {
			ok, err := s.removeFile(w, old.Filename)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if _, err := s.removeFile(w, old.Sig()); err != nil {
				errs = multierror.Append(errs, err)
			}
			if ok {
				removed++
			}
		}
	}

	fmt.Fprintln(w, "Rebuilding repository database...")
	left, err := s.Packages()
	if err != nil {
		return removed, multierror.Append(errs, err)
	}
	keep := make([]string, 0, len(left))
	for _, f := range left {
		keep = append(keep, f.Filename)
	}
	if err := s.ix.Rebuild(context.WithoutCancel(ctx), w, keep); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("rebuilding repository database: %w", err))
	}
	return removed, errs
}
