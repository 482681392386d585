// Copyright 2022-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ds advertises and finds package repository servers with
// DNS-SD.
//
// A client names a server as a dnssd URI,
// dnssd://domain/_service._network?key=value, where every part may be
// left out. "dnssd:?repo=extra" picks any server of the repository
// named extra on the local domain.
package ds

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brutella/dnssd"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"golang.org/x/exp/slices"
)

var (
	v       = func(string, ...interface{}) {}
	tenChan = make(chan int, 1)
)

// Query is a parsed dnssd URI.
type Query struct {
	Type   string
	Domain string
	// Text holds the TXT values a server must have. A key with
	// several values matches any of them.
	Text map[string][]string
}

const (
	// Default is the URI that finds any server.
	Default = "dnssd:"
	// Service is the DNS-SD service type of pkgshelld.
	Service = "_pkgrepo._tcp"

	dsTimeout  = 1 * time.Second
	timeFormat = "15:04:05.000"
	dsUpdate   = 60 * time.Second
)

// ErrNoService is returned when no server answers a query.
var ErrNoService = errors.New("dnssd found no suitable service")

// Verbose sets the debug print function.
func Verbose(f func(string, ...interface{})) {
	v = f
}

// required reports whether the TXT record src has every value req asks for.
func required(src map[string]string, req map[string][]string) bool {
	for k := range req {
		if !slices.Contains(req[k], src[k]) {
			return false
		}
	}
	return true
}

// Parse parses a dnssd URI.
func Parse(uri string) (Query, error) {
	result := Query{
		Type:   Service,
		Domain: "local",
	}

	u, err := url.Parse(uri)
	if err != nil {
		return result, fmt.Errorf("parsing url %s: %w", uri, err)
	}

	if u.Scheme != "dnssd" {
		return result, fmt.Errorf("%q is not a dns-sd URI", uri)
	}

	// following dns-sd URI conventions from CUPS
	if u.Host != "" {
		result.Domain = u.Host
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		result.Type = p
	}

	result.Text = u.Query()
	return result, nil
}

// Lookup browses for a server matching query and returns its address
// and port. It gives up after a second, or when ctx is done.
func Lookup(ctx context.Context, query Query) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, dsTimeout)
	defer cancel()

	service := fmt.Sprintf("%s.%s.", strings.Trim(query.Type, "."), strings.Trim(query.Domain, "."))
	v("Browsing for %s", service)

	respCh := make(chan dnssd.BrowseEntry, 1)
	addFn := func(e dnssd.BrowseEntry) {
		v("%s	Add	%s	%s	%s	%s (%s)", time.Now().Format(timeFormat), e.IfaceName, e.Domain, e.Type, e.Name, e.IPs)
		if len(e.IPs) == 0 || !required(e.Text, query.Text) {
			return
		}
		select {
		case respCh <- e:
		default:
		}
	}
	rmvFn := func(e dnssd.BrowseEntry) {
		v("%s	Rmv	%s	%s	%s	%s", time.Now().Format(timeFormat), e.IfaceName, e.Domain, e.Type, e.Name)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- dnssd.LookupType(ctx, service, addFn, rmvFn)
	}()

	select {
	case e := <-respCh:
		if len(e.IPs) > 1 {
			v("more than one address for %s, using %s", e.Name, e.IPs[0])
		}
		return e.IPs[0].String(), strconv.Itoa(e.Port), nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return "", "", fmt.Errorf("%s: %w", service, err)
		}
		return "", "", fmt.Errorf("%s: %w", service, ErrNoService)
	}
}

// ParseKv parses a TXT record given as k=v,k=v. A key with no value
// is set to "true".
func ParseKv(arg string) map[string]string {
	txt := make(map[string]string)
	if len(arg) == 0 {
		return txt
	}
	for _, pair := range strings.Split(arg, ",") {
		z := strings.SplitN(pair, "=", 2)
		if len(z) > 1 {
			txt[z[0]] = z[1]
		} else {
			txt[z[0]] = "true"
		}
	}
	return txt
}

// DefaultInstance is the instance name used when none is given.
func DefaultInstance() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "pkgshelld"
	}
	return hostname + "-pkgshelld"
}

var (
	tenantMu sync.Mutex
	tenants  int
)

// UpdateSysInfo refreshes the load and memory values in txt.
func UpdateSysInfo(txt map[string]string) {
	tenantMu.Lock()
	txt["tenants"] = strconv.Itoa(tenants)
	tenantMu.Unlock()

	if vm, err := mem.VirtualMemory(); err == nil {
		txt["mem_avail"] = strconv.FormatUint(vm.Available, 10)
		txt["mem_total"] = strconv.FormatUint(vm.Total, 10)
	} else {
		v("memory info: %v", err)
	}
	if l, err := load.Avg(); err == nil {
		txt["load1"] = strconv.FormatFloat(l.Load1, 'f', 2, 64)
		txt["load5"] = strconv.FormatFloat(l.Load5, 'f', 2, 64)
		txt["load15"] = strconv.FormatFloat(l.Load15, 'f', 2, 64)
		txt["load_ratio"] = fmt.Sprintf("%.6f", l.Load5/float64(runtime.NumCPU()))
	} else {
		v("load info: %v", err)
	}
	v("UpdateSysInfo %v", txt)
}

// DefaultTxt fills in the keys every server advertises.
func DefaultTxt(txt map[string]string) {
	if len(txt["arch"]) == 0 {
		txt["arch"] = runtime.GOARCH
	}
	if len(txt["os"]) == 0 {
		txt["os"] = runtime.GOOS
	}
	if len(txt["cores"]) == 0 {
		txt["cores"] = strconv.Itoa(runtime.NumCPU())
	}
}

// Tenant changes the advertised session count by delta. It does not
// block; an update that finds one already queued is folded into the
// count and sent with the next one.
func Tenant(delta int) {
	v("tenant delta %d", delta)
	tenantMu.Lock()
	tenants += delta
	tenantMu.Unlock()
	select {
	case tenChan <- delta:
	default:
	}
}

// Register advertises a server until ctx is done.
func Register(ctx context.Context, instance, domain, service, iface string, port int, txt map[string]string) error {
	v("starting dns-sd server")
	if len(instance) == 0 {
		instance = DefaultInstance()
	}
	v("Advertising: %s.%s.%s.", strings.Trim(instance, "."), strings.Trim(service, "."), strings.Trim(domain, "."))

	resp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("dnssd responder: %w", err)
	}

	var ifaces []string
	if len(iface) > 0 {
		ifaces = append(ifaces, iface)
	}

	DefaultTxt(txt)
	UpdateSysInfo(txt)

	srv, err := dnssd.NewService(dnssd.Config{
		Name:   instance,
		Type:   service,
		Domain: domain,
		Port:   port,
		Ifaces: ifaces,
		Text:   txt,
	})
	if err != nil {
		return fmt.Errorf("advertise: new service: %w", err)
	}

	handle, err := resp.Add(srv)
	if err != nil {
		return fmt.Errorf("advertise: %w", err)
	}
	v("%s	Registered %s", time.Now().Format(timeFormat), handle.Service().ServiceInstanceName())

	go func() {
		t := time.NewTicker(dsUpdate)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tenChan:
			case <-t.C:
			}
			UpdateSysInfo(txt)
			handle.UpdateText(txt, resp)
		}
	}()

	go func() {
		if err := resp.Respond(ctx); err != nil && ctx.Err() == nil {
			v("dns-sd responder: %v", err)
		}
	}()

	return nil
}
