// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shell

import (
	"strings"
	"unicode"
)

// Verb is a shell command.
type Verb int

const (
	// VerbNone is a blank line.
	VerbNone Verb = iota
	VerbAdd
	VerbRemove
	VerbList
	VerbClean
	VerbStatus
	VerbReceive
	VerbSend
	VerbHelp
	// VerbExit covers exit, quit and logout.
	VerbExit
	VerbUnknown
)

var verbs = map[string]Verb{
	"add":     VerbAdd,
	"remove":  VerbRemove,
	"list":    VerbList,
	"clean":   VerbClean,
	"status":  VerbStatus,
	"receive": VerbReceive,
	"send":    VerbSend,
	"help":    VerbHelp,
	"exit":    VerbExit,
	"quit":    VerbExit,
	"logout":  VerbExit,
}

func (v Verb) String() string {
	for n, x := range verbs {
		if x == v && x != VerbExit {
			return n
		}
	}
	switch v {
	case VerbExit:
		return "exit"
	case VerbNone:
		return ""
	}
	return "unknown"
}

// Command is a parsed command line.
type Command struct {
	Verb Verb
	// Name is the verb as typed.
	Name string
	// Arg is the rest of the line, trimmed. It may hold spaces.
	Arg string
	// Line is the whole trimmed line.
	Line string
}

// Parse splits a line into a verb and its argument.
// Verbs are case sensitive.
func Parse(line string) Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Verb: VerbNone}
	}
	name, arg := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		name, arg = line[:i], strings.TrimSpace(line[i:])
	}
	c := Command{Name: name, Arg: arg, Line: line}
	v, ok := verbs[name]
	if !ok {
		v = VerbUnknown
	}
	c.Verb = v
	return c
}
