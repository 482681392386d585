// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

func regular(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Locate finds the file to send: name in each of dirs in order, then
// name itself.
func Locate(name string, dirs ...string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrBadName)
	}
	for _, d := range dirs {
		if p := filepath.Join(d, name); regular(p) {
			return p, nil
		}
	}
	if regular(name) {
		return name, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Send writes the file at path to w, framed by the START and END
// markers, followed by instructions for saving it by hand.
func Send(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	base := filepath.Base(path)
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Sending file: %s\n", base)
	fmt.Fprintf(bw, "Size: %s\n", humanize.IBytes(uint64(fi.Size())))
	fmt.Fprintln(bw, "Base64 encoded data follows (copy everything between START and END markers):")
	fmt.Fprintln(bw, StartMarker)
	if err := Encode(bw, f); err != nil {
		return err
	}
	fmt.Fprintln(bw, EndMarker)
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "To save this file on your local machine:")
	fmt.Fprintln(bw, "1. Copy all the data between the START and END markers")
	fmt.Fprintln(bw, "2. Run this command in your local terminal:")
	fmt.Fprintf(bw, "   echo 'PASTE_DATA_HERE' | base64 -d > %s\n", base)
	return bw.Flush()
}
