// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pkg

import (
	"sort"
	"strings"
)

// Vercmp compares two full versions of the form [epoch:]version[-release]
// the way pacman's vercmp does. It returns -1, 0 or 1.
//
// Ordering examples, lowest first:
// 1.0a < 1.0b < 1.0beta < 1.0p < 1.0pre < 1.0rc < 1.0 < 1.0.a < 1.0.1
func Vercmp(a, b string) int {
	if a == b {
		return 0
	}
	e1, v1, r1, hasR1 := parseEVR(a)
	e2, v2, r2, hasR2 := parseEVR(b)
	if c := rpmvercmp(e1, e2); c != 0 {
		return c
	}
	if c := rpmvercmp(v1, v2); c != 0 {
		return c
	}
	if hasR1 && hasR2 {
		return rpmvercmp(r1, r2)
	}
	return 0
}

// SortFiles sorts package files by ascending version.
func SortFiles(files []File) {
	sort.SliceStable(files, func(i, j int) bool {
		return Vercmp(files[i].FullVersion(), files[j].FullVersion()) < 0
	})
}

func parseEVR(s string) (epoch, version, release string, hasRelease bool) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	epoch = "0"
	if i < len(s) && s[i] == ':' {
		if i > 0 {
			epoch = s[:i]
		}
		s = s[i+1:]
	}
	if j := strings.LastIndexByte(s, '-'); j >= 0 {
		return epoch, s[:j], s[j+1:], true
	}
	return epoch, s, "", false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }

// rpmvercmp compares segment by segment. Digits compare numerically,
// letters lexically, and a numeric segment beats an alpha one.
func rpmvercmp(a, b string) int {
	if a == b {
		return 0
	}
	one, two := 0, 0
	for one < len(a) && two < len(b) {
		p1, p2 := one, two
		for one < len(a) && !isAlnum(a[one]) {
			one++
		}
		for two < len(b) && !isAlnum(b[two]) {
			two++
		}
		if one == len(a) || two == len(b) {
			break
		}
		// Different separator lengths end the comparison.
		if one-p1 != two-p2 {
			if one-p1 < two-p2 {
				return -1
			}
			return 1
		}
		p1, p2 = one, two
		isnum := isDigit(a[p1])
		if isnum {
			for p1 < len(a) && isDigit(a[p1]) {
				p1++
			}
			for p2 < len(b) && isDigit(b[p2]) {
				p2++
			}
		} else {
			for p1 < len(a) && isAlpha(a[p1]) {
				p1++
			}
			for p2 < len(b) && isAlpha(b[p2]) {
				p2++
			}
		}
		s1, s2 := a[one:p1], b[two:p2]
		if s2 == "" {
			if isnum {
				return 1
			}
			return -1
		}
		if isnum {
			s1 = strings.TrimLeft(s1, "0")
			s2 = strings.TrimLeft(s2, "0")
			if len(s1) != len(s2) {
				if len(s1) > len(s2) {
					return 1
				}
				return -1
			}
		}
		if c := strings.Compare(s1, s2); c != 0 {
			return c
		}
		one, two = p1, p2
	}
	if one == len(a) && two == len(b) {
		return 0
	}
	// A leftover alpha segment never beats an empty string.
	if (one == len(a) && !isAlpha(b[two])) || (one < len(a) && isAlpha(a[one])) {
		return -1
	}
	return 1
}
