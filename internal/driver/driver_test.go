package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"mantis/internal/ast"
	"mantis/internal/collector"
	"mantis/internal/config"
	"mantis/internal/diag"
	"mantis/internal/source"
)

func TestDiskCacheRoundTrip(t *testing.T) {
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDiskCacheAt: %v", err)
	}
	key := Digest{1, 2, 3}
	put := &CachedResult{Issues: []diag.Issue{
		diag.Error(diag.CodeUndefinedVariable, source.Span{File: 7, Start: 0, End: 2}, "$y is not defined"),
	}}
	if err := cache.Put(key, put); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := cache.Get(key)
	if !ok {
		t.Fatalf("entry should hit")
	}
	if len(got.Issues) != 1 || got.Issues[0].Code != diag.CodeUndefinedVariable {
		t.Fatalf("issues did not survive the round trip: %+v", got.Issues)
	}
	if got.Issues[0].Message != "$y is not defined" {
		t.Fatalf("message lost: %q", got.Issues[0].Message)
	}
	if got.Schema != cacheSchemaVersion {
		t.Fatalf("Put stamps the schema version")
	}
}

func TestDiskCacheMissOnUnknownKey(t *testing.T) {
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDiskCacheAt: %v", err)
	}
	if _, ok := cache.Get(Digest{9}); ok {
		t.Fatalf("an unknown key is a miss")
	}
}

func TestDiskCacheSchemaMismatchIsMiss(t *testing.T) {
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDiskCacheAt: %v", err)
	}
	key := Digest{4}
	p := cache.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := msgpack.NewEncoder(f).Encode(&CachedResult{Schema: cacheSchemaVersion + 1}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	if _, ok := cache.Get(key); ok {
		t.Fatalf("a stale schema must read as a miss")
	}
}

func TestDiskCacheNilReceiver(t *testing.T) {
	var cache *DiskCache
	if err := cache.Put(Digest{1}, &CachedResult{}); err != nil {
		t.Fatalf("nil cache Put: %v", err)
	}
	if _, ok := cache.Get(Digest{1}); ok {
		t.Fatalf("nil cache never hits")
	}
	if err := cache.DropAll(); err != nil {
		t.Fatalf("nil cache DropAll: %v", err)
	}
}

func TestDiskCacheDropAll(t *testing.T) {
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDiskCacheAt: %v", err)
	}
	key := Digest{5}
	if err := cache.Put(key, &CachedResult{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cache.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	if _, ok := cache.Get(key); ok {
		t.Fatalf("DropAll should invalidate every entry")
	}
}

func TestRebindIssues(t *testing.T) {
	issues := []diag.Issue{
		diag.Error(diag.CodeUndefinedVariable, source.Span{File: 42, Start: 1, End: 3}, "x").
			WithAnnotation(source.Span{File: 42, Start: 5, End: 6}, "context"),
	}
	out := rebindIssues(issues, 3)
	for _, ann := range out[0].Annotations {
		if ann.Span.File != 3 {
			t.Fatalf("annotation not rebound: %+v", ann)
		}
	}
}

// fakeFrontend parses nothing: it loads the file for content hashing and
// fabricates a module whose single statement reads an unset variable.
type fakeFrontend struct{}

func (fakeFrontend) Load(_ context.Context, path string, fs *source.FileSet, in *source.Interner) (*ast.Module, []collector.Comment, error) {
	id, err := fs.Load(path)
	if err != nil {
		return nil, nil, err
	}
	module := &ast.Module{
		File: id,
		Stmts: []ast.Stmt{
			&ast.ExprStmt{
				Sp:   source.Span{File: id, Start: 0, End: 2},
				Expr: &ast.Variable{Sp: source.Span{File: id, Start: 0, End: 2}, Name: in.Intern("y")},
			},
		},
	}
	return module, nil, nil
}

func projectDir(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	manifest := filepath.Join(dir, config.ManifestName)
	if err := os.WriteFile(manifest, []byte("paths = [\"src\"]\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", "a.xp"), []byte("$y;\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	cfg, err := config.Load(manifest)
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	return cfg
}

func TestAnalyzeReportsAndCaches(t *testing.T) {
	cfg := projectDir(t)
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDiskCacheAt: %v", err)
	}

	res, err := Analyze(context.Background(), fakeFrontend{}, Options{Config: cfg, Cache: cache})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Files) != 1 {
		t.Fatalf("one file expected, got %d", len(res.Files))
	}
	first := res.Files[0]
	if first.FromCache {
		t.Fatalf("a cold cache cannot hit")
	}
	if len(first.Issues) != 1 || first.Issues[0].Code != diag.CodeUndefinedVariable {
		t.Fatalf("issues = %+v", first.Issues)
	}
	if !res.HasErrors() {
		t.Fatalf("an error-level issue makes the run failing")
	}

	// Second run replays from the cache and rebinds spans to the fresh
	// file set.
	res2, err := Analyze(context.Background(), fakeFrontend{}, Options{Config: cfg, Cache: cache})
	if err != nil {
		t.Fatalf("Analyze (warm): %v", err)
	}
	second := res2.Files[0]
	if !second.FromCache {
		t.Fatalf("unchanged content should replay from cache")
	}
	if len(second.Issues) != 1 || second.Issues[0].Code != diag.CodeUndefinedVariable {
		t.Fatalf("cached issues = %+v", second.Issues)
	}
	if got := second.Issues[0].Annotations[0].Span.File; got != second.File {
		t.Fatalf("cached span rebound to %v, want %v", got, second.File)
	}
}

func TestAnalyzeEmitsProgressEvents(t *testing.T) {
	cfg := projectDir(t)
	events := make(chan Event, 32)

	if _, err := Analyze(context.Background(), fakeFrontend{}, Options{Config: cfg, Events: events}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	seen := map[Stage]map[Status]bool{}
	for ev := range events {
		if seen[ev.Stage] == nil {
			seen[ev.Stage] = map[Status]bool{}
		}
		seen[ev.Stage][ev.Status] = true
	}
	if !seen[StageLoad][StatusDone] {
		t.Fatalf("load completion never reported: %v", seen)
	}
	if !seen[StageAnalyze][StatusDone] {
		t.Fatalf("analyze completion never reported: %v", seen)
	}
}
