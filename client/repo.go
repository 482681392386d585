// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/u-root/pkgshell/transfer"
)

// RemoteError is a failure the shell reported in its output.
type RemoteError struct {
	Op string
	// Msg is the first line of the report, or the whole output if
	// no line looks like one.
	Msg string
}

func (e *RemoteError) Error() string {
	return e.Op + ": " + e.Msg
}

// remoteError finds the shell's complaint in out.
func remoteError(op, out string) *RemoteError {
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, "Error") {
			return &RemoteError{Op: op, Msg: strings.TrimSpace(l)}
		}
	}
	return &RemoteError{Op: op, Msg: "unexpected response: " + strings.TrimSpace(out)}
}

// Package is one entry of the package list.
type Package struct {
	Repo        string `yaml:"repo" json:"repo"`
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

const rule = "----------------------"

// ParseList returns the packages in the output of list.
func ParseList(out string) []Package {
	var pkgs []Package
	in := false
	s := bufio.NewScanner(strings.NewReader(out))
	for s.Scan() {
		l := strings.TrimRight(s.Text(), "\r")
		if l == rule {
			if in {
				break
			}
			in = true
			continue
		}
		if !in {
			continue
		}
		f := strings.Fields(l)
		if len(f) < 3 {
			continue
		}
		pkgs = append(pkgs, Package{Repo: f[0], Name: f[1], Version: f[2], Description: strings.Join(f[3:], " ")})
	}
	return pkgs
}

var removed = regexp.MustCompile(`Removed (\d+) old package versions`)

// ParseClean returns the number of files clean removed, and an error if
// it failed.
func ParseClean(out string) (int, error) {
	n := 0
	if m := removed.FindStringSubmatch(out); m != nil {
		n, _ = strconv.Atoi(m[1])
	}
	if !strings.Contains(out, "Repository cleaned successfully") {
		return n, remoteError("clean", out)
	}
	return n, nil
}

// ParseStatus returns the key: value lines of the output of status.
// The disk usage line is split at its first colon like the others.
func ParseStatus(out string) map[string]string {
	st := map[string]string{}
	in := false
	s := bufio.NewScanner(strings.NewReader(out))
	for s.Scan() {
		l := strings.TrimSpace(s.Text())
		if l == "Repository Status:" {
			in = true
			continue
		}
		if !in {
			continue
		}
		k, val, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		st[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return st
}

// uploadScript streams the shell input that sends each file to the
// upload directory, then runs the extra lines.
func uploadScript(files []string, extra ...string) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		var err error
		defer func() { pw.CloseWithError(err) }()
		for _, f := range files {
			if err = sendFile(pw, f); err != nil {
				return
			}
		}
		for _, l := range append(extra, "exit") {
			if _, err = fmt.Fprintln(pw, l); err != nil {
				return
			}
		}
	}()
	return pr
}

func sendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := fmt.Fprintf(w, "receive %s\n", filepath.Base(path)); err != nil {
		return err
	}
	if err := transfer.Encode(w, f); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, transfer.Sentinel)
	return err
}

// Upload sends a package file to the upload directory, along with its
// detached signature when one sits next to it. With add set the
// package is then added to the repository.
func (c *Cmd) Upload(ctx context.Context, path string, add bool) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%s: not a regular file", path)
	}
	files := []string{path}
	if _, err := os.Stat(path + ".sig"); err == nil {
		files = append(files, path+".sig")
	}
	name := filepath.Base(path)
	var extra []string
	if add {
		extra = append(extra, "add "+name)
	}
	script := uploadScript(files, extra...)
	defer script.Close()
	out, err := c.RunReader(ctx, script)
	if err != nil {
		return out, err
	}
	var errs error
	if !strings.Contains(out, "File received successfully: "+name) {
		errs = multierror.Append(errs, remoteError("upload "+name, out))
	}
	if len(files) > 1 && !strings.Contains(out, "Signature file received successfully: "+name+".sig") {
		errs = multierror.Append(errs, remoteError("upload "+name+".sig", out))
	}
	if add && errs == nil && !strings.Contains(out, "Package added successfully") {
		errs = multierror.Append(errs, remoteError("add "+name, out))
	}
	return out, errs
}

// Add adds a package that is already on the server.
func (c *Cmd) Add(ctx context.Context, name string) (string, error) {
	out, err := c.Exec(ctx, "add "+name)
	if err != nil {
		return out, err
	}
	if !strings.Contains(out, "Package added successfully") {
		return out, remoteError("add "+name, out)
	}
	return out, nil
}

// ErrUnindexed is returned by Remove when the package files were
// deleted but the package was not in the index.
var ErrUnindexed = errors.New("package was not in the repository database")

// Remove removes every version of a package.
func (c *Cmd) Remove(ctx context.Context, name string) (string, error) {
	out, err := c.Exec(ctx, "remove "+name)
	if err != nil {
		return out, err
	}
	switch {
	case strings.Contains(out, "Package removed successfully"):
		return out, nil
	case strings.Contains(out, "was not in the repository database"):
		return out, fmt.Errorf("remove %s: %w", name, ErrUnindexed)
	}
	return out, remoteError("remove "+name, out)
}

// List returns the packages in the repository.
func (c *Cmd) List(ctx context.Context) ([]Package, error) {
	out, err := c.Exec(ctx, "list")
	if err != nil {
		return nil, err
	}
	if !strings.Contains(out, "Total packages:") {
		return nil, remoteError("list", out)
	}
	return ParseList(out), nil
}

// Clean removes old package versions and returns how many files went.
func (c *Cmd) Clean(ctx context.Context) (int, error) {
	out, err := c.Exec(ctx, "clean")
	if err != nil {
		return 0, err
	}
	return ParseClean(out)
}

// Status returns the repository statistics.
func (c *Cmd) Status(ctx context.Context) (map[string]string, error) {
	out, err := c.Exec(ctx, "status")
	if err != nil {
		return nil, err
	}
	st := ParseStatus(out)
	if len(st) == 0 {
		return nil, remoteError("status", out)
	}
	return st, nil
}

// Download returns the contents of a file in the repository or the
// upload directory.
func (c *Cmd) Download(ctx context.Context, name string) ([]byte, error) {
	out, err := c.Exec(ctx, "send "+name)
	if err != nil {
		return nil, err
	}
	b, err := transfer.Extract([]byte(out))
	if errors.Is(err, transfer.ErrFraming) {
		return nil, remoteError("send "+name, out)
	}
	return b, err
}
