// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transfer moves files over a line-oriented text channel.
//
// Files go to the shell as base64 lines ended by a line holding only
// EOF. Files come back between a START and an END marker line. Neither
// direction has any other framing, so both ends must agree on these
// exact lines.
package transfer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

const (
	// Sentinel ends a received body.
	Sentinel = "EOF"
	// StartMarker and EndMarker frame a sent body.
	StartMarker = "-----START FILE DATA-----"
	EndMarker   = "-----END FILE DATA-----"
	// LineLen is the length of encoded body lines.
	LineLen = 76
)

var (
	// ErrBadName is returned for a file name that does not name a file.
	ErrBadName = errors.New("invalid file name")
	// ErrDecode is returned when a body is not valid base64.
	ErrDecode = errors.New("invalid base64 data")
	// ErrNotFound is returned when a file to send does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrTruncated is returned when input ends before the sentinel.
	ErrTruncated = errors.New("input ended before the " + Sentinel + " line")
	// ErrIdle is returned when no line arrives for too long.
	ErrIdle = errors.New("timed out waiting for data")
	// ErrFraming is returned when sent text lacks its markers.
	ErrFraming = errors.New("no " + StartMarker + " ... " + EndMarker + " block")
)

// CleanName returns the base name of a received file. Directories in
// name are dropped, so the result always names a file directly inside
// the upload directory.
func CleanName(name string) (string, error) {
	b := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	switch b {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	if strings.HasPrefix(b, ".") {
		// Hidden names collide with temporary files.
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return b, nil
}
