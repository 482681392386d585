// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package history appends shell commands to a history file.
package history

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// TimeFormat is the layout of the time stamp that starts each line.
const TimeFormat = "2006-01-02 15:04:05"

// Entry is one history line.
type Entry struct {
	Time    time.Time
	Command string
}

// String returns the line as written, without the newline.
func (e Entry) String() string {
	return fmt.Sprintf("%s - %s", e.Time.Format(TimeFormat), e.Command)
}

// Log is an append-only history file. It is safe for concurrent use;
// separate processes appending to the same file rely on O_APPEND.
type Log struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New returns a Log writing to path.
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the file the Log writes to.
func (l *Log) Path() string {
	return l.path
}

// Touch creates the history file if it does not exist.
func (l *Log) Touch() error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	return f.Close()
}

// Append writes e. A zero e.Time is replaced by the current time.
// Line breaks in the command are flattened to keep one entry per line.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	e.Command = strings.NewReplacer("\r", " ", "\n", " ").Replace(e.Command)
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(e.String() + "\n"); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Record appends command with the current time.
func (l *Log) Record(command string) error {
	return l.Append(Entry{Command: command})
}
