// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config reads the shell configuration from the environment,
// optionally over a YAML file named by PKGSHELL_CONFIG.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/u-root/pkgshell/history"
	"github.com/u-root/pkgshell/index"
	"github.com/u-root/pkgshell/repo"
	"github.com/u-root/pkgshell/shell"
	"github.com/u-root/pkgshell/transfer"
)

// FileEnv names the optional configuration file.
const FileEnv = "PKGSHELL_CONFIG"

// Config is the shell configuration.
type Config struct {
	RepoDir        string        `mapstructure:"repo_dir" yaml:"repo_dir"`
	DBName         string        `mapstructure:"db_name" yaml:"db_name"`
	UploadDir      string        `mapstructure:"upload_dir" yaml:"upload_dir"`
	HistoryFile    string        `mapstructure:"history_file" yaml:"history_file"`
	WorkDir        string        `mapstructure:"work_dir" yaml:"work_dir"`
	RemovePolicy   string        `mapstructure:"remove_policy" yaml:"remove_policy"`
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout" yaml:"receive_timeout"`
	RepoAdd        string        `mapstructure:"repo_add" yaml:"repo_add"`
	RepoRemove     string        `mapstructure:"repo_remove" yaml:"repo_remove"`
}

// keys maps configuration keys to their environment variables.
var keys = map[string]string{
	"repo_dir":        "REPO_DIR",
	"db_name":         "DB_NAME",
	"upload_dir":      "UPLOAD_DIR",
	"history_file":    "HISTORY_FILE",
	"work_dir":        "WORK_DIR",
	"remove_policy":   "REMOVE_POLICY",
	"receive_timeout": "RECEIVE_TIMEOUT",
	"repo_add":        "REPO_ADD",
	"repo_remove":     "REPO_REMOVE",
}

// expand replaces a leading ~ with the home directory.
func expand(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// Load returns the configuration. Environment variables override the
// file, which overrides the defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/"
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = home
	}

	v := viper.New()
	v.SetDefault("repo_dir", "/srv/repo/x86_64")
	v.SetDefault("db_name", "repo.db.tar.gz")
	v.SetDefault("upload_dir", filepath.Join(home, "uploads"))
	v.SetDefault("history_file", filepath.Join(home, ".pkg_shell_history"))
	v.SetDefault("work_dir", wd)
	v.SetDefault("remove_policy", repo.RemoveStrict.String())
	v.SetDefault("receive_timeout", transfer.DefaultIdleTimeout)
	v.SetDefault("repo_add", "repo-add")
	v.SetDefault("repo_remove", "repo-remove")
	for k, e := range keys {
		if err := v.BindEnv(k, e); err != nil {
			return nil, err
		}
	}

	if p := os.Getenv(FileEnv); p != "" {
		v.SetConfigFile(p)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", p, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	for _, p := range []*string{&c.RepoDir, &c.UploadDir, &c.HistoryFile, &c.WorkDir} {
		*p = expand(*p, home)
	}
	if _, err := repo.ParseRemovePolicy(c.RemovePolicy); err != nil {
		return nil, err
	}
	if c.DBName == "" || strings.ContainsRune(c.DBName, '/') {
		return nil, fmt.Errorf("DB_NAME %q: want a file name", c.DBName)
	}
	return &c, nil
}

// Dirs returns the repository context.
func (c *Config) Dirs() repo.Dirs {
	return repo.Dirs{Repo: c.RepoDir, DBName: c.DBName, Upload: c.UploadDir, Work: c.WorkDir}
}

// Ensure creates the repository and upload directories and the
// history file.
func (c *Config) Ensure() error {
	for _, d := range []string{c.RepoDir, c.UploadDir, filepath.Dir(c.HistoryFile)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return history.New(c.HistoryFile).Touch()
}

// Indexer returns the repo-add driver for the repository.
func (c *Config) Indexer() *index.RepoAdd {
	ix := index.NewRepoAdd(c.RepoDir, c.DBName)
	ix.AddCmd, ix.RemoveCmd = c.RepoAdd, c.RepoRemove
	return ix
}

// Store returns the package store for the repository.
func (c *Config) Store() *repo.Store {
	p, _ := repo.ParseRemovePolicy(c.RemovePolicy)
	return repo.New(c.Dirs(), c.Indexer(), repo.WithRemovePolicy(p))
}

// History returns the history log.
func (c *Config) History() *history.Log {
	return history.New(c.HistoryFile)
}

// Open prepares the repository and returns a shell serving it.
// Messages from creating an empty index go to w.
func (c *Config) Open(ctx context.Context, w io.Writer) (*shell.Shell, error) {
	if err := c.Ensure(); err != nil {
		return nil, err
	}
	st := c.Store()
	if err := st.Init(ctx, w); err != nil {
		return nil, err
	}
	return shell.New(st, c.History(), shell.WithIdleTimeout(c.ReceiveTimeout)), nil
}
