// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package main

import (
	"log"

	"github.com/u-root/u-root/pkg/ulog"
)

// There is no kernel log here; prints go to the default log.
func kernelLog() func(string, ...interface{}) {
	ulog.Log = log.Default()
	return ulog.Log.Printf
}
