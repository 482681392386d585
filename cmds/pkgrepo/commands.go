// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/u-root/pkgshell/client"
)

const rule = "----------------------"

func (a *app) upload(cmd *cobra.Command, files []string, add bool) error {
	return a.with(cmd, func(ctx context.Context, c *client.Cmd) error {
		var errs error
		for _, f := range files {
			if _, err := c.Upload(ctx, f, add); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", f, err))
				continue
			}
			if add {
				fmt.Fprintf(a.stdout, "Package %s published successfully\n", filepath.Base(f))
			} else {
				fmt.Fprintf(a.stdout, "File %s uploaded successfully\n", filepath.Base(f))
			}
		}
		return errs
	})
}

func (a *app) uploadCmd() *cobra.Command {
	var add bool
	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload package files, and their signatures, to the upload directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.upload(cmd, args, add)
		},
	}
	cmd.Flags().BoolVarP(&add, "add", "a", false, "add the packages to the repository after uploading")
	return cmd
}

func (a *app) publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish FILE...",
		Short: "Upload packages and add them to the repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.upload(cmd, args, true)
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add FILE",
		Short: "Add a package that is already on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.with(cmd, func(ctx context.Context, c *client.Cmd) error {
				if _, err := c.Add(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Package %s added successfully\n", args[0])
				return nil
			})
		},
	}
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove every version of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.with(cmd, func(ctx context.Context, c *client.Cmd) error {
				_, err := c.Remove(ctx, args[0])
				switch {
				case errors.Is(err, client.ErrUnindexed):
					fmt.Fprintf(a.stdout, "Warning: %s was not in the repository database; its files were removed\n", args[0])
					return nil
				case err != nil:
					return err
				}
				fmt.Fprintf(a.stdout, "Package %s removed successfully\n", args[0])
				return nil
			})
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the packages in the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.with(cmd, func(ctx context.Context, c *client.Cmd) error {
				pkgs, err := c.List(ctx)
				if err != nil {
					return err
				}
				if a.yaml() {
					if pkgs == nil {
						pkgs = []client.Package{}
					}
					return a.encode(pkgs)
				}
				fmt.Fprintln(a.stdout, "Packages in repository:")
				fmt.Fprintln(a.stdout, rule)
				for _, p := range pkgs {
					fmt.Fprintf(a.stdout, "%s %s - %s\n", p.Name, p.Version, p.Description)
				}
				fmt.Fprintln(a.stdout, rule)
				fmt.Fprintf(a.stdout, "Total packages: %d\n", len(pkgs))
				return nil
			})
		},
	}
}

func (a *app) cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove all but the newest version of each package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.with(cmd, func(ctx context.Context, c *client.Cmd) error {
				n, err := c.Clean(ctx)
				if a.yaml() {
					if eerr := a.encode(map[string]int{"removed": n}); eerr != nil {
						return eerr
					}
					return err
				}
				if err != nil {
					return fmt.Errorf("%w (%d old package versions removed)", err, n)
				}
				fmt.Fprintf(a.stdout, "Repository cleaned successfully. Removed %d old package versions.\n", n)
				return nil
			})
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show repository statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.with(cmd, func(ctx context.Context, c *client.Cmd) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				if a.yaml() {
					return a.encode(st)
				}
				keys := make([]string, 0, len(st))
				for k := range st {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				fmt.Fprintln(a.stdout, "Repository Status:")
				for _, k := range keys {
					fmt.Fprintf(a.stdout, "  %s: %s\n", k, st[k])
				}
				return nil
			})
		},
	}
}

func (a *app) downloadCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download FILE",
		Short: "Download a file from the repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = filepath.Base(args[0])
			}
			return a.with(cmd, func(ctx context.Context, c *client.Cmd) error {
				b, err := c.Download(ctx, args[0])
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, b, 0644); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Downloaded %s to %s (%s)\n", args[0], out, humanize.IBytes(uint64(len(b))))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "file to write, default the base name of FILE")
	return cmd
}
