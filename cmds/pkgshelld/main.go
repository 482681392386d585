// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pkgshelld serves the package repository shell over SSH.
//
// Synopsis:
//
//	pkgshelld [OPTIONS]
//
// Description:
//
//	Every SSH session gets the repository shell and nothing else:
//	an interactive shell with a pty, a script session without one, or
//	a single command for "ssh host command". Clients log in with any
//	key in the -pk file. The repository is configured as for pkgshell.
//
// Options:
//
//	-d:          enable debug prints
//	-klog:       log debug prints in the kernel log
//	-net:        network to listen on: tcp, unix or vsock
//	-sp:         port to listen on
//	-hk:         host key file
//	-pk:         authorized keys file
//	-register:   address to tell that we are listening
//	-dnssd:      advertise the server with DNS-SD
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/u-root/pkgshell/client"
)

var (
	hostKeyFile = flag.String("hk", "", "file for host key")
	pubKeyFile  = flag.String("pk", "authorized_keys", "file for authorized public keys")
	port        = flag.String("sp", client.DefaultPort, "port to listen on")
	network     = flag.String("net", "tcp", "network to use")

	debug = flag.Bool("d", false, "enable debug prints")
	klog  = flag.Bool("klog", false, "Log pkgshelld messages in kernel log, not stdout")

	// Some networks are not well behaved, and for them we implement registration.
	registerAddr = flag.String("register", "", "address and port to register with after listen on the server port")
	registerTO   = flag.Duration("registerTO", 5*time.Second, "time.Duration for Dial address for registering")

	// v allows debug printing.
	// Do not call it directly, call verbose instead.
	v = func(string, ...interface{}) {}
)

func verbose(f string, a ...interface{}) {
	v("PKGSHELLD:"+f, a...)
}

func main() {
	flag.Parse()
	if flag.NArg() > 0 {
		log.Fatalf("usage: pkgshelld [OPTIONS]; got arguments %q", flag.Args())
	}
	if err := commonsetup(); err != nil {
		log.Fatal(err)
	}
	verbose("Args %v pid %d", os.Args, os.Getpid())
	if err := serve(context.Background()); err != nil {
		log.Fatal(err)
	}
}
