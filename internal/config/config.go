// Package config parses and writes the repo-local ".oxen/config" file:
// remotes, VNode/chunk sizing, and shallow/subtree/depth limits (spec.md
// §6.2, §4.7). Line-oriented key=value, grounded on gitcore's
// parseRemotesFromConfig parsing style for ".git/config".
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
)

// Remote is one named remote URL.
type Remote struct {
	Name string
	URL  string
}

// Config is the full repo-local configuration.
type Config struct {
	RepoID           string
	DefaultRemote    string
	Remotes          []Remote
	VNodeSize        int
	AvgChunkSize     int
	IsShallow        bool
	SubtreePaths     []string
	Depth            int // -1 = unlimited
	AllowDisjointPush bool
}

// Default returns the configuration a freshly-initialized repository gets.
func Default() *Config {
	return &Config{
		VNodeSize:    merkle.DefaultVNodeSize,
		AvgChunkSize: merkle.DefaultAvgChunkSize,
		Depth:        -1,
	}
}

// Load reads a config file, or returns Default() if it does not exist yet
// (mirroring gitcore's "missing config is not an error" stance).
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch {
		case key == "repo_id":
			cfg.RepoID = value
		case key == "default_remote":
			cfg.DefaultRemote = value
		case key == "vnode_size":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.VNodeSize = n
			}
		case key == "avg_chunk_size":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.AvgChunkSize = n
			}
		case key == "is_shallow":
			cfg.IsShallow = value == "true"
		case key == "subtree_paths":
			if value != "" {
				cfg.SubtreePaths = strings.Split(value, ",")
			}
		case key == "depth":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.Depth = n
			}
		case key == "allow_disjoint_push":
			cfg.AllowDisjointPush = value == "true"
		case strings.HasPrefix(key, "remote."):
			name := strings.TrimPrefix(key, "remote.")
			cfg.Remotes = append(cfg.Remotes, Remote{Name: name, URL: value})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scan %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config atomically (temp + rename), consistent with every
// other write path in the repo.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("config: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	w := bufio.NewWriter(tmp)
	fmt.Fprintf(w, "repo_id=%s\n", c.RepoID)
	fmt.Fprintf(w, "default_remote=%s\n", c.DefaultRemote)
	fmt.Fprintf(w, "vnode_size=%d\n", c.VNodeSize)
	fmt.Fprintf(w, "avg_chunk_size=%d\n", c.AvgChunkSize)
	fmt.Fprintf(w, "is_shallow=%t\n", c.IsShallow)
	fmt.Fprintf(w, "subtree_paths=%s\n", strings.Join(c.SubtreePaths, ","))
	fmt.Fprintf(w, "depth=%d\n", c.Depth)
	fmt.Fprintf(w, "allow_disjoint_push=%t\n", c.AllowDisjointPush)
	for _, rem := range c.Remotes {
		fmt.Fprintf(w, "remote.%s=%s\n", rem.Name, rem.URL)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// ClearLimits resets shallow/subtree/depth limits, called after a
// successful full fetch (spec.md §4.7, Open Question #3).
func (c *Config) ClearLimits() {
	c.IsShallow = false
	c.SubtreePaths = nil
	c.Depth = -1
}

// GetRemote looks up a named remote.
func (c *Config) GetRemote(name string) (Remote, bool) {
	for _, r := range c.Remotes {
		if r.Name == name {
			return r, true
		}
	}
	return Remote{}, false
}

// SetRemote adds or updates a remote.
func (c *Config) SetRemote(name, url string) {
	for i, r := range c.Remotes {
		if r.Name == name {
			c.Remotes[i].URL = url
			return
		}
	}
	c.Remotes = append(c.Remotes, Remote{Name: name, URL: url})
}
