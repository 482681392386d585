// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package index

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicBzip2 = []byte("BZh")
)

// ReadDB reads the entries of the index archive at file.
// A missing file is an empty index.
func ReadDB(file string) ([]Entry, error) {
	f, err := os.Open(file)
	if errors.Is(err, os.ErrNotExist) {
		v("index: %q does not exist, empty index", file)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	e, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("reading index %q: %w", file, err)
	}
	return e, nil
}

// Decode reads index entries from a, possibly compressed, tar stream.
// The compression is recognized by its magic number, since repo-add
// picks it from the file extension and a .db symlink hides that.
func Decode(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(6)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	// An empty file is what repo-add leaves for an index with no entries
	// on some versions; treat it as such.
	if len(head) == 0 {
		return nil, nil
	}

	var tr io.Reader
	switch {
	case bytes.HasPrefix(head, magicGzip):
		z, err := pgzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer z.Close()
		tr = z
	case bytes.HasPrefix(head, magicXz):
		z, err := xz.NewReader(br)
		if err != nil {
			return nil, err
		}
		tr = z
	case bytes.HasPrefix(head, magicZstd):
		z, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer z.Close()
		tr = z
	case bytes.HasPrefix(head, magicBzip2):
		tr = bzip2.NewReader(br)
	default:
		tr = br
	}
	return readTar(tar.NewReader(tr))
}

func readTar(tr *tar.Reader) ([]Entry, error) {
	var entries []Entry
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		if h.Typeflag != tar.TypeReg || path.Base(h.Name) != "desc" {
			continue
		}
		e, err := parseDesc(tr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", h.Name, err)
		}
		v("index: %s: %+v", h.Name, e)
		entries = append(entries, e)
	}
}

// parseDesc parses a desc file: %KEY% lines, each followed by
// value lines and a blank line.
func parseDesc(r io.Reader) (Entry, error) {
	var (
		e   Entry
		key string
	)
	s := bufio.NewScanner(r)
	for s.Scan() {
		l := s.Text()
		if len(l) > 2 && strings.HasPrefix(l, "%") && strings.HasSuffix(l, "%") {
			key = l
			continue
		}
		if l == "" {
			key = ""
			continue
		}
		switch key {
		case "%NAME%":
			e.Name = l
		case "%VERSION%":
			e.Version = l
		case "%DESC%":
			if e.Desc != "" {
				e.Desc += " "
			}
			e.Desc += l
		case "%FILENAME%":
			e.Filename = l
		}
	}
	if err := s.Err(); err != nil {
		return Entry{}, err
	}
	if e.Name == "" {
		return Entry{}, fmt.Errorf("no %%NAME%%")
	}
	return e, nil
}
