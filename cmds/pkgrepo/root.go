// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/u-root/pkgshell/client"
	"github.com/u-root/pkgshell/ds"
	"gopkg.in/yaml.v3"
)

// app holds what every command needs.
type app struct {
	v      *viper.Viper
	stdout io.Writer
}

func (a *app) dial(ctx context.Context) (*client.Cmd, error) {
	host := a.v.GetString("host")
	if host == "" {
		return nil, errors.New("no host: use --host or PKGREPO_HOST")
	}
	c := client.Command(host).
		WithPort(a.v.GetString("port")).
		WithPrivateKeyFile(a.v.GetString("identity")).
		WithHostKeyFile(a.v.GetString("host-key")).
		WithUser(a.v.GetString("user")).
		WithNetwork(a.v.GetString("net")).
		WithTimeout(a.v.GetDuration("timeout"))
	if err := c.Dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// with runs f on a connection that is closed afterwards.
func (a *app) with(cmd *cobra.Command, f func(context.Context, *client.Cmd) error) error {
	ctx := cmd.Context()
	c, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return f(ctx, c)
}

func (a *app) yaml() bool {
	return a.v.GetString("format") == "yaml"
}

func (a *app) encode(x interface{}) error {
	e := yaml.NewEncoder(a.stdout)
	e.SetIndent(2)
	if err := e.Encode(x); err != nil {
		return err
	}
	return e.Close()
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout}
	root := &cobra.Command{
		Use:           "pkgrepo",
		Short:         "Manage a remote package repository",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch f := a.v.GetString("format"); f {
			case "text", "yaml":
			default:
				return fmt.Errorf("format %q: want text or yaml", f)
			}
			if a.v.GetBool("debug") {
				l := log.New(stderr, "", log.LstdFlags)
				client.SetVerbose(l.Printf)
				ds.Verbose(l.Printf)
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	f := root.PersistentFlags()
	f.StringP("host", "H", "", "SSH host, address or dnssd: URI")
	f.StringP("port", "p", "", "port, default from ssh config or "+client.DefaultPort)
	f.StringP("identity", "i", "", "private key file, default from ssh config or "+client.DefaultKeyFile)
	f.String("host-key", "", "public host key file to check the server against")
	f.StringP("user", "l", "", "login name")
	f.String("net", "tcp", "network: tcp, unix or vsock")
	f.Duration("timeout", 30*time.Second, "connection timeout")
	f.String("format", "text", "output format: text or yaml")
	f.BoolP("debug", "d", false, "enable debug prints")

	a.v.SetEnvPrefix("PKGREPO")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(f); err != nil {
		panic(err)
	}

	root.AddCommand(
		a.uploadCmd(),
		a.publishCmd(),
		a.addCmd(),
		a.removeCmd(),
		a.listCmd(),
		a.cleanCmd(),
		a.statusCmd(),
		a.downloadCmd(),
	)
	return root
}
