package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mantis/internal/flow"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), `
paths = ["src", "lib"]
ignore = ["vendor/**"]

[analysis]
loop-passes = 6
taint = true
threads = 2
`)
	cfg, err := Load(filepath.Join(dir, ManifestName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != dir {
		t.Fatalf("Root = %q, want %q", cfg.Root, dir)
	}
	if len(cfg.Paths) != 2 || cfg.Paths[0] != "src" {
		t.Fatalf("Paths = %v", cfg.Paths)
	}
	if cfg.Analysis.LoopPasses != 6 || !cfg.Analysis.Taint || cfg.Analysis.Threads != 2 {
		t.Fatalf("Analysis = %+v", cfg.Analysis)
	}
}

func TestLoadRejectsMissingPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), `
[analysis]
taint = true
`)
	_, err := Load(filepath.Join(dir, ManifestName))
	if !errors.Is(err, ErrPathsMissing) {
		t.Fatalf("expected ErrPathsMissing, got %v", err)
	}
}

func TestLoadClampsLoopPasses(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), `
paths = ["src"]

[analysis]
loop-passes = 1
`)
	cfg, err := Load(filepath.Join(dir, ManifestName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analysis.LoopPasses != flow.DefaultLoopPasses {
		t.Fatalf("LoopPasses = %d, want the clamped default", cfg.Analysis.LoopPasses)
	}
}

func TestLoadRejectsBadIgnorePattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), `
paths = ["src"]
ignore = ["[unclosed"]
`)
	if _, err := Load(filepath.Join(dir, ManifestName)); err == nil {
		t.Fatalf("an invalid glob should fail the load")
	}
}

func TestFindManifestWalksUp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), "paths = [\"src\"]\n")
	nested := filepath.Join(dir, "src", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	path, ok, err := FindManifest(nested)
	if err != nil || !ok {
		t.Fatalf("FindManifest: ok=%v err=%v", ok, err)
	}
	if path != filepath.Join(dir, ManifestName) {
		t.Fatalf("found %q", path)
	}
}

func TestDiscoverFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(cfg.Paths) != 1 || cfg.Paths[0] != "." {
		t.Fatalf("default paths = %v", cfg.Paths)
	}
	if cfg.Analysis.LoopPasses != flow.DefaultLoopPasses {
		t.Fatalf("default loop passes = %d", cfg.Analysis.LoopPasses)
	}
}

func TestSourceFilesWalkAndIgnore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), `
paths = ["src"]
ignore = ["src/gen/**", "**/*_skip.xp"]
`)
	writeFile(t, filepath.Join(dir, "src", "a.xp"), "")
	writeFile(t, filepath.Join(dir, "src", "nested", "b.xp"), "")
	writeFile(t, filepath.Join(dir, "src", "nested", "c_skip.xp"), "")
	writeFile(t, filepath.Join(dir, "src", "gen", "d.xp"), "")
	writeFile(t, filepath.Join(dir, "src", "readme.md"), "")

	cfg, err := Load(filepath.Join(dir, ManifestName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	files, err := cfg.SourceFiles()
	if err != nil {
		t.Fatalf("SourceFiles: %v", err)
	}
	want := map[string]bool{
		filepath.Join(dir, "src", "a.xp"):           true,
		filepath.Join(dir, "src", "nested", "b.xp"): true,
	}
	if len(files) != len(want) {
		t.Fatalf("files = %v", files)
	}
	for _, f := range files {
		if !want[f] {
			t.Fatalf("unexpected file %s", f)
		}
	}
}

func TestSourceFilesMissingPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), "paths = [\"nope\"]\n")
	cfg, err := Load(filepath.Join(dir, ManifestName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.SourceFiles(); err == nil {
		t.Fatalf("a missing configured path should error")
	}
}

func TestIgnoredIsSlashAgnostic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestName), `
paths = ["."]
ignore = ["vendor/**"]
`)
	cfg, err := Load(filepath.Join(dir, ManifestName))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Ignored(filepath.Join("vendor", "lib", "x.xp")) {
		t.Fatalf("vendor files should be ignored regardless of separator")
	}
	if cfg.Ignored("src/x.xp") {
		t.Fatalf("src files are not ignored")
	}
}
