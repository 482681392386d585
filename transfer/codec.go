// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transfer

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var nl = []byte{'\n'}

// lineWriter breaks its output into LineLen byte lines.
type lineWriter struct {
	w io.Writer
	n int
}

func (l *lineWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		k := LineLen - l.n
		if k > len(p) {
			k = len(p)
		}
		if _, err := l.w.Write(p[:k]); err != nil {
			return total - len(p), err
		}
		l.n += k
		p = p[k:]
		if l.n == LineLen {
			if _, err := l.w.Write(nl); err != nil {
				return total - len(p), err
			}
			l.n = 0
		}
	}
	return total, nil
}

// Encode writes r to w as standard base64 in LineLen character lines,
// each ended by a newline. An empty r writes nothing.
func Encode(w io.Writer, r io.Reader) error {
	bw := bufio.NewWriter(w)
	lw := &lineWriter{w: bw}
	enc := base64.NewEncoder(base64.StdEncoding, lw)
	if _, err := io.Copy(enc, r); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if lw.n > 0 {
		if _, err := bw.Write(nl); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// spaceFilter drops white space, which base64 lines may carry from
// terminals and mailers.
type spaceFilter struct {
	r io.Reader
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func (s *spaceFilter) Read(p []byte) (int, error) {
	for {
		n, err := s.r.Read(p)
		j := 0
		for _, c := range p[:n] {
			if !isSpace(c) {
				p[j] = c
				j++
			}
		}
		if j > 0 || err != nil {
			return j, err
		}
	}
}

// Decode writes the bytes encoded in base64 text r to w.
// Invalid input yields an error wrapping ErrDecode.
func Decode(w io.Writer, r io.Reader) error {
	d := base64.NewDecoder(base64.StdEncoding, &spaceFilter{r: r})
	_, err := io.Copy(w, d)
	var ce base64.CorruptInputError
	if errors.As(err, &ce) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return err
}

// Extract returns the file carried in text written by Send.
// Lines outside the markers are ignored.
func Extract(text []byte) ([]byte, error) {
	var (
		body  strings.Builder
		in    bool
		found bool
	)
	for _, l := range strings.Split(string(text), "\n") {
		l = strings.TrimRight(l, "\r")
		switch {
		case !in && l == StartMarker:
			in = true
		case in && l == EndMarker:
			found = true
		case in:
			body.WriteString(l)
		}
		if found {
			break
		}
	}
	if !found {
		return nil, ErrFraming
	}
	var b bytes.Buffer
	if err := Decode(&b, strings.NewReader(body.String())); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
