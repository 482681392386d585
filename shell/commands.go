// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/u-root/pkgshell/repo"
	"github.com/u-root/pkgshell/transfer"
)

const rule = "----------------------"

func (ss *session) banner() {
	fmt.Fprint(ss.out, `================================================================
                 ARCH REPOSITORY MANAGEMENT SHELL
================================================================
Type 'help' to see available commands

`)
}

func (ss *session) help() {
	fmt.Fprint(ss.out, `Available commands:
  add <package-file.pkg.tar.zst>  - Add a package to the repository
  remove <package-name>           - Remove a package from the repository
  list                            - List all packages in the repository
  clean                           - Clean up old package versions
  receive <filename>              - Receive a package file through the SSH connection
  send <filename>                 - Send a file from the repository to the client
  status                          - Show repository statistics
  help                            - Show this help message
  exit                            - Log out
`)
}

func (ss *session) add(ctx context.Context, arg string) {
	if arg == "" {
		fmt.Fprintln(ss.out, "Error: No package specified")
		fmt.Fprintln(ss.out, "Usage: add <package-file.pkg.tar.zst>")
		return
	}
	err := ss.store.Add(ctx, ss.out, arg)
	switch {
	case err == nil:
		fmt.Fprintln(ss.out, "Package added successfully.")
	case errors.Is(err, repo.ErrNotFound):
		fmt.Fprintf(ss.out, "Error: Package file not found: %s\n", arg)
		fmt.Fprintln(ss.out, "Note: Package must be in the current directory, the upload directory or already in the repository")
	default:
		fmt.Fprintf(ss.out, "Error adding package to repository: %v\n", err)
	}
}

func (ss *session) remove(ctx context.Context, arg string) {
	if arg == "" {
		fmt.Fprintln(ss.out, "Error: No package specified")
		fmt.Fprintln(ss.out, "Usage: remove <package-name>")
		return
	}
	n, err := ss.store.Remove(ctx, ss.out, arg)
	switch {
	case err == nil:
		fmt.Fprintln(ss.out, "Package removed successfully.")
	case errors.Is(err, repo.ErrNotIndexed):
		fmt.Fprintf(ss.out, "Warning: %s was not in the repository database; removed %d package files anyway.\n", arg, n)
	case errors.Is(err, repo.ErrNotFound):
		fmt.Fprintf(ss.out, "Error: Package not found in repository: %s\n", arg)
	default:
		fmt.Fprintf(ss.out, "Error removing package: %v\n", err)
	}
}

// repoName is the repository name as pacman knows it, taken from the
// index file name.
func (ss *session) repoName() string {
	n, _, _ := strings.Cut(ss.store.Dirs().DBName, ".db")
	return n
}

func (ss *session) list(ctx context.Context) {
	fmt.Fprintln(ss.out, "Packages in repository:")
	fmt.Fprintln(ss.out, rule)
	ents, err := ss.store.List(ctx)
	if err != nil {
		fmt.Fprintf(ss.out, "Error listing packages: %v\n", err)
		return
	}
	r := ss.repoName()
	for _, e := range ents {
		fmt.Fprintln(ss.out, strings.TrimSpace(strings.Join([]string{r, e.Name, e.Version, e.Desc}, " ")))
	}
	fmt.Fprintln(ss.out, rule)
	fmt.Fprintf(ss.out, "Total packages: %d\n", len(ents))
}

func (ss *session) clean(ctx context.Context) {
	fmt.Fprintln(ss.out, "Cleaning repository...")
	n, err := ss.store.Clean(ctx, ss.out)
	if err != nil {
		fmt.Fprintf(ss.out, "Error cleaning repository: %v\n", err)
		fmt.Fprintf(ss.out, "Removed %d old package versions before the error.\n", n)
		return
	}
	fmt.Fprintf(ss.out, "Repository cleaned successfully. Removed %d old package versions.\n", n)
}

func (ss *session) status(ctx context.Context) {
	st := ss.store.Status(ctx)
	fmt.Fprintln(ss.out, "Repository Status:")
	fmt.Fprintln(ss.out, "-----------------")
	fmt.Fprintf(ss.out, "Total packages: %d\n", st.Packages)
	fmt.Fprintf(ss.out, "Signed packages: %d\n", st.Signed)
	fmt.Fprintf(ss.out, "Repository size: %s\n", humanize.IBytes(uint64(st.Size)))
	if st.IndexMod.IsZero() {
		fmt.Fprintln(ss.out, "Last database update: Never")
	} else {
		fmt.Fprintf(ss.out, "Last database update: %s\n", st.IndexMod.Format("2006-01-02 15:04:05"))
	}
	if d := st.Disk; d != nil {
		fmt.Fprintln(ss.out, "Disk usage:")
		fmt.Fprintf(ss.out, "  Filesystem: %s, Size: %s, Used: %s, Avail: %s, Use%%: %.0f%%\n",
			d.Fstype, humanize.IBytes(d.Total), humanize.IBytes(d.Used), humanize.IBytes(d.Free), d.UsedPercent)
	}
}

// receive reports whether the session may go on. When the body stalls
// or input ends before the sentinel, the rest of the input can not be
// told apart from body lines, so the session has to end.
func (ss *session) receive(ctx context.Context, arg string) bool {
	if arg == "" {
		fmt.Fprintln(ss.out, "Error: No filename specified")
		fmt.Fprintln(ss.out, "Usage: receive <filename>")
		return true
	}
	name, err := transfer.CleanName(arg)
	if err != nil {
		fmt.Fprintf(ss.out, "Error: %v\n", err)
		fmt.Fprintf(ss.out, "Discarding input up to a line containing only '%s'...\n", transfer.Sentinel)
	} else {
		fmt.Fprintf(ss.out, "Ready to receive file: %s\n", name)
		fmt.Fprintf(ss.out, "Please paste the base64-encoded file content and end with a line containing only '%s'\n", transfer.Sentinel)
		fmt.Fprintln(ss.out, "Waiting for data...")
	}
	r, err := ss.recv.Receive(ctx, body{in: ss.in}, arg)
	switch {
	case errors.Is(err, transfer.ErrIdle), errors.Is(err, transfer.ErrTruncated):
		fmt.Fprintf(ss.out, "Error receiving file: %v\n", err)
		fmt.Fprintln(ss.out, "Transfer incomplete, aborting session")
		return false
	case errors.Is(err, transfer.ErrBadName):
		return true
	case err != nil:
		fmt.Fprintf(ss.out, "Error receiving file: %v\n", err)
		return true
	}
	if r.Signature {
		fmt.Fprintf(ss.out, "Signature file received successfully: %s\n", r.Name)
	} else {
		fmt.Fprintf(ss.out, "File received successfully: %s\n", r.Name)
	}
	fmt.Fprintf(ss.out, "Size: %s\n", humanize.IBytes(uint64(r.Size)))
	if !r.Signature {
		fmt.Fprintf(ss.out, "Use 'add %s' to add it to the repository\n", r.Path)
	}
	return true
}

func (ss *session) send(arg string) {
	if arg == "" {
		fmt.Fprintln(ss.out, "Error: No filename specified")
		fmt.Fprintln(ss.out, "Usage: send <filename>")
		return
	}
	d := ss.store.Dirs()
	p, err := transfer.Locate(arg, d.Repo, d.Upload)
	if err != nil {
		fmt.Fprintf(ss.out, "Error: File not found: %s\n", arg)
		fmt.Fprintln(ss.out, "The file must be in the repository, uploads directory, or you must specify a full path.")
		return
	}
	if err := transfer.Send(ss.out, p); err != nil {
		fmt.Fprintf(ss.out, "Error sending file: %v\n", err)
	}
}
