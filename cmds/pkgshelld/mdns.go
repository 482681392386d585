// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/gliderlabs/ssh"
	"github.com/u-root/pkgshell/ds"
)

var (
	dsEnabled   = flag.Bool("dnssd", false, "advertise service using DNSSD")
	dsInstance  = flag.String("dsInstance", "", "DNSSD instance name")
	dsDomain    = flag.String("dsDomain", "local", "DNSSD domain")
	dsService   = flag.String("dsService", ds.Service, "DNSSD Service Type")
	dsInterface = flag.String("dsInterface", "", "DNSSD Interface")
	dsTxtStr    = flag.String("dsTxt", "", "DNSSD key-value pair string parameterizing advertisement, e.g. repo=core")
)

func init() {
	modifiers = append(modifiers, &modifier{f: servemDNS, name: "mDNS"})
}

type handleWrapper struct {
	handle ssh.Handler
}

func (w *handleWrapper) handler(s ssh.Session) {
	ds.Tenant(1)
	defer ds.Tenant(-1)
	w.handle(s)
}

// servemDNS advertises the server and counts its sessions in the
// advertisement.
func servemDNS(ctx context.Context, s *ssh.Server) error {
	if !*dsEnabled {
		return nil
	}
	if *debug {
		ds.Verbose(log.Printf)
	}
	txt := ds.ParseKv(*dsTxtStr)

	v("Advertising w/dnssd %q", txt)
	p, err := strconv.Atoi(*port)
	if err != nil {
		return fmt.Errorf("could not parse port: %s, %w", *port, err)
	}

	if err := ds.Register(ctx, *dsInstance, *dsDomain, *dsService, *dsInterface, p, txt); err != nil {
		return fmt.Errorf("could not advertise with dns-sd: %w", err)
	}

	wrap := &handleWrapper{
		handle: s.Handler,
	}
	s.Handler = wrap.handler
	return nil
}
