// Package config loads mantis.toml, the project manifest: which paths to
// analyze, which to ignore, and the analysis knobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"

	"mantis/internal/flow"
)

// ManifestName is the file the loader walks up to find.
const ManifestName = "mantis.toml"

// Config is the parsed manifest.
type Config struct {
	// Root is the directory containing the manifest.
	Root string

	Paths    []string
	Ignore   []string
	Analysis Analysis

	ignoreGlobs []glob.Glob
}

// Analysis is the [analysis] section.
type Analysis struct {
	// LoopPasses bounds the loop fix-point iteration.
	LoopPasses int `toml:"loop-passes"`
	// Taint enables source-to-sink tracking.
	Taint bool `toml:"taint"`
	// Debug surfaces internal errors as diagnostics.
	Debug bool `toml:"debug"`
	// Threads caps analysis parallelism; 0 means GOMAXPROCS.
	Threads int `toml:"threads"`
}

type manifest struct {
	Paths    []string `toml:"paths"`
	Ignore   []string `toml:"ignore"`
	Analysis Analysis `toml:"analysis"`
}

// ErrPathsMissing indicates a manifest without a paths list.
var ErrPathsMissing = errors.New("missing paths")

// FindManifest walks up from startDir to locate mantis.toml.
func FindManifest(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load parses the manifest at path.
func Load(path string) (*Config, error) {
	var m manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("paths") || len(m.Paths) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrPathsMissing)
	}
	cfg := &Config{
		Root:     filepath.Dir(path),
		Paths:    m.Paths,
		Ignore:   m.Ignore,
		Analysis: m.Analysis,
	}
	cfg.Analysis.LoopPasses = flow.ClampLoopPasses(cfg.Analysis.LoopPasses)
	if err := cfg.compileIgnores(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default is the configuration used when no manifest exists: analyze the
// start directory with the stock knobs.
func Default(root string) *Config {
	return &Config{
		Root:  root,
		Paths: []string{"."},
		Analysis: Analysis{
			LoopPasses: flow.DefaultLoopPasses,
		},
	}
}

// Discover finds and loads the manifest governing startDir, falling back
// to Default when none exists.
func Discover(startDir string) (*Config, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		abs, err := filepath.Abs(startDir)
		if err != nil {
			return nil, err
		}
		return Default(abs), nil
	}
	return Load(path)
}

func (c *Config) compileIgnores() error {
	c.ignoreGlobs = c.ignoreGlobs[:0]
	for _, pattern := range c.Ignore {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		c.ignoreGlobs = append(c.ignoreGlobs, g)
	}
	return nil
}

// Ignored reports whether a path (relative to the root, slash-separated)
// matches an ignore pattern.
func (c *Config) Ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range c.ignoreGlobs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// SourceFiles walks the configured paths and returns every analyzable
// file, sorted, with ignores applied.
func (c *Config) SourceFiles() ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range c.Paths {
		base := filepath.Join(c.Root, filepath.FromSlash(p))
		info, err := os.Stat(base)
		if err != nil {
			return nil, fmt.Errorf("configured path %q: %w", p, err)
		}
		if !info.IsDir() {
			if c.keep(base, seen) {
				out = append(out, base)
			}
			continue
		}
		err = filepath.Walk(base, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				if rel, rerr := filepath.Rel(c.Root, path); rerr == nil && c.Ignored(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".xp") {
				return nil
			}
			if c.keep(path, seen) {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Config) keep(path string, seen map[string]struct{}) bool {
	rel, err := filepath.Rel(c.Root, path)
	if err != nil {
		rel = path
	}
	if c.Ignored(rel) {
		return false
	}
	if _, dup := seen[path]; dup {
		return false
	}
	seen[path] = struct{}{}
	return true
}
