// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/u-root/pkgshell/history"
	"github.com/u-root/pkgshell/index/indextest"
	"github.com/u-root/pkgshell/repo"
	"github.com/u-root/pkgshell/server"
	"github.com/u-root/pkgshell/shell"
	"golang.org/x/crypto/ssh"
)

const listOut = `Packages in repository:
----------------------
repo bar 2-1 bar package
repo foo 1.1-1 the foo tool
----------------------
Total packages: 2
`

func TestParseList(t *testing.T) {
	want := []Package{
		{Repo: "repo", Name: "bar", Version: "2-1", Description: "bar package"},
		{Repo: "repo", Name: "foo", Version: "1.1-1", Description: "the foo tool"},
	}
	if got := ParseList(listOut); !reflect.DeepEqual(got, want) {
		t.Errorf("ParseList: got %+v, want %+v", got, want)
	}
	if got := ParseList("Packages in repository:\n" + rule + "\n" + rule + "\nTotal packages: 0\n"); len(got) != 0 {
		t.Errorf("ParseList(empty): got %+v, want none", got)
	}
}

func TestParseClean(t *testing.T) {
	var tests = []struct {
		out  string
		n    int
		fail bool
	}{
		{out: "Cleaning repository...\nRepository cleaned successfully. Removed 3 old package versions.\n", n: 3},
		{out: "Cleaning repository...\nRepository cleaned successfully. Removed 0 old package versions.\n", n: 0},
		{out: "Cleaning repository...\nError cleaning repository: boom\nRemoved 2 old package versions before the error.\n", n: 2, fail: true},
	}
	for _, tt := range tests {
		n, err := ParseClean(tt.out)
		if n != tt.n || (err != nil) != tt.fail {
			t.Errorf("ParseClean(%q): (%d, %v), want (%d, fail %v)", tt.out, n, err, tt.n, tt.fail)
		}
		var re *RemoteError
		if tt.fail && !errors.As(err, &re) {
			t.Errorf("ParseClean(%q): %v is not a RemoteError", tt.out, err)
		}
	}
}

func TestParseStatus(t *testing.T) {
	out := `Repository Status:
-----------------
Total packages: 2
Signed packages: 1
Repository size: 4.0 KiB
Last database update: Never
Disk usage:
  Filesystem: ext4, Size: 1.0 GiB, Used: 1 B, Avail: 1.0 GiB, Use%: 0%
`
	st := ParseStatus("Type 'help' to see: available commands\n" + out)
	for k, want := range map[string]string{
		"Total packages":       "2",
		"Signed packages":      "1",
		"Repository size":      "4.0 KiB",
		"Last database update": "Never",
		"Disk usage":           "",
		"Filesystem":           "ext4, Size: 1.0 GiB, Used: 1 B, Avail: 1.0 GiB, Use%: 0%",
	} {
		if got, ok := st[k]; !ok || got != want {
			t.Errorf("ParseStatus[%q]: got %q, want %q", k, got, want)
		}
	}
	if _, ok := st["Type 'help' to see"]; ok {
		t.Errorf("ParseStatus parsed text before the status header")
	}
}

// genKey writes an ed25519 private key to dir/name, and its public key
// to dir/name.pub.
func genKey(t *testing.T, dir, name string) string {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	kf := filepath.Join(dir, name)
	if err := os.WriteFile(kf, pem.EncodeToMemory(b), 0600); err != nil {
		t.Fatal(err)
	}
	pk, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(kf+".pub", ssh.MarshalAuthorizedKey(pk), 0644); err != nil {
		t.Fatal(err)
	}
	return kf
}

type daemon struct {
	port    string
	key     string
	hostKey string
	dirs    repo.Dirs
}

func startDaemon(t *testing.T) *daemon {
	t.Helper()
	V = t.Logf
	d := t.TempDir()
	dirs := repo.Dirs{Repo: filepath.Join(d, "repo"), DBName: "repo.db.tar.gz", Upload: filepath.Join(d, "uploads"), Work: d}
	for _, n := range []string{dirs.Repo, dirs.Upload} {
		if err := os.MkdirAll(n, 0755); err != nil {
			t.Fatal(err)
		}
	}
	sh := shell.New(repo.New(dirs, indextest.New()), history.New(filepath.Join(d, "history")))
	key := genKey(t, d, "user")
	hk := genKey(t, d, "host")
	s, err := server.New(key+".pub", hk, sh)
	if err != nil {
		t.Fatalf("server.New: %v != nil", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve(ln)
	t.Cleanup(func() { s.Close() })
	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return &daemon{port: port, key: key, hostKey: hk + ".pub", dirs: dirs}
}

func (d *daemon) dial(t *testing.T) *Cmd {
	t.Helper()
	c := Command("127.0.0.1").WithPort(d.port).WithPrivateKeyFile(d.key).WithHostKeyFile(d.hostKey).WithUser("pkguser").WithTimeout(10 * time.Second)
	if err := c.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v != nil", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSession(t *testing.T) {
	d := startDaemon(t)
	c := d.dial(t)
	ctx := context.Background()

	dir := t.TempDir()
	pkg := filepath.Join(dir, "foo-1.0-1-x86_64.pkg.tar.zst")
	data := bytes.Repeat([]byte("\x28\xb5\x2f\xfd\x00\xff package"), 100)
	if err := os.WriteFile(pkg, data, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pkg+".sig", []byte("sig"), 0644); err != nil {
		t.Fatal(err)
	}
	if out, err := c.Upload(ctx, pkg, true); err != nil {
		t.Fatalf("Upload: %v != nil\n%s", err, out)
	}
	for _, n := range []string{"foo-1.0-1-x86_64.pkg.tar.zst", "foo-1.0-1-x86_64.pkg.tar.zst.sig"} {
		if _, err := os.Stat(filepath.Join(d.dirs.Repo, n)); err != nil {
			t.Errorf("%s not in the repository: %v", n, err)
		}
	}

	pkgs, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v != nil", err)
	}
	if len(pkgs) != 1 || pkgs[0].Name != "foo" || pkgs[0].Version != "1.0-1" {
		t.Errorf("List: got %+v, want foo 1.0-1", pkgs)
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v != nil", err)
	}
	if st["Total packages"] != "1" || st["Signed packages"] != "1" {
		t.Errorf("Status: got %v, want 1 package, 1 signed", st)
	}

	got, err := c.Download(ctx, "foo-1.0-1-x86_64.pkg.tar.zst")
	if err != nil {
		t.Fatalf("Download: %v != nil", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Download: got %d bytes, want %d", len(got), len(data))
	}
	var re *RemoteError
	if _, err := c.Download(ctx, "nosuch"); !errors.As(err, &re) {
		t.Errorf("Download(nosuch): got %v, want a RemoteError", err)
	}

	if n, err := c.Clean(ctx); err != nil || n != 0 {
		t.Errorf("Clean: (%d, %v) != (0, nil)", n, err)
	}
	if _, err := c.Remove(ctx, "foo"); err != nil {
		t.Errorf("Remove(foo): %v != nil", err)
	}
	if _, err := c.Remove(ctx, "foo"); !errors.As(err, &re) {
		t.Errorf("Remove(foo) again: got %v, want a RemoteError", err)
	}
	if _, err := c.Add(ctx, "nosuch-1-1-any.pkg.tar.zst"); !errors.As(err, &re) {
		t.Errorf("Add(nosuch): got %v, want a RemoteError", err)
	}
}

func TestDialWrongHostKey(t *testing.T) {
	d := startDaemon(t)
	other := genKey(t, t.TempDir(), "other")
	c := Command("127.0.0.1").WithPort(d.port).WithPrivateKeyFile(d.key).WithHostKeyFile(other + ".pub")
	if err := c.Dial(context.Background()); err == nil {
		c.Close()
		t.Fatal("Dial with the wrong host key: nil != an error")
	}
}

func TestNotConnected(t *testing.T) {
	if _, err := Command("nowhere").Exec(context.Background(), "list"); err == nil {
		t.Fatal("Exec without Dial: nil != an error")
	}
}
