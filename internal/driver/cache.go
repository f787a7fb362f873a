package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"mantis/internal/diag"
	"mantis/internal/source"
)

// cacheSchemaVersion invalidates every entry when the payload layout
// changes. Bump on any CachedResult change.
const cacheSchemaVersion uint16 = 1

// Digest is the sha256 of a file's content; it keys the disk cache.
type Digest [32]byte

func hashFile(fs *source.FileSet, id source.FileID) Digest {
	f := fs.Get(id)
	if f == nil {
		return Digest{}
	}
	return sha256.Sum256(f.Content)
}

// CachedResult is the serialized per-file outcome.
type CachedResult struct {
	Schema uint16
	Issues []diag.Issue
}

// DiskCache stores analysis results keyed by content digest, so a rerun
// over unchanged files replays issues instead of re-analyzing.
// Safe for concurrent use.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// OpenDiskCache initializes the cache at the standard user location.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// OpenDiskCacheAt initializes the cache at an explicit directory.
func OpenDiskCacheAt(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) pathFor(key Digest) string {
	// "results" keeps the entries apart from anything else sharing the
	// app cache dir.
	return filepath.Join(c.dir, "results", hex.EncodeToString(key[:])+".mp")
}

// Put serializes the result under the key. The schema version is stamped
// here; callers never set it.
func (c *DiskCache) Put(key Digest, res *CachedResult) error {
	if c == nil || res == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	res.Schema = cacheSchemaVersion
	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := msgpack.NewEncoder(f).Encode(res); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get loads a result by key. A missing entry or a schema mismatch is a
// miss, not an error.
func (c *DiskCache) Get(key Digest) (*CachedResult, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var res CachedResult
	if err := msgpack.NewDecoder(f).Decode(&res); err != nil {
		return nil, false
	}
	if res.Schema != cacheSchemaVersion {
		return nil, false
	}
	return &res, true
}

// DropAll invalidates the whole cache.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}

// rebindIssues points cached spans at the FileID the file received in
// this run. FileIDs are per-FileSet and never stable across runs.
func rebindIssues(issues []diag.Issue, file source.FileID) []diag.Issue {
	out := make([]diag.Issue, len(issues))
	for i, issue := range issues {
		for j := range issue.Annotations {
			issue.Annotations[j].Span.File = file
		}
		for j := range issue.Fixes {
			for k := range issue.Fixes[j].Edits {
				issue.Fixes[j].Edits[k].Span.File = file
			}
		}
		out[i] = issue
	}
	return out
}
