package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLineLookup(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("demo.xp", []byte("ab\ncd\nef"))

	cases := []struct {
		off  uint32
		line uint32
	}{
		{0, 1}, // 'a'
		{2, 1}, // the newline still belongs to line 1
		{3, 2}, // 'c'
		{5, 2},
		{6, 3}, // 'e'
		{7, 3},
	}
	for _, tc := range cases {
		if got := fs.Line(id, tc.off); got != tc.line {
			t.Errorf("Line(%d) = %d, want %d", tc.off, got, tc.line)
		}
	}

	if got := fs.Line(FileID(99), 0); got != 0 {
		t.Fatalf("an unknown file resolves to line 0, got %d", got)
	}
}

func TestResolveSpan(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("demo.xp", []byte("ab\ncd\nef"))

	start, end := fs.Resolve(Span{File: id, Start: 3, End: 7})
	if (start != LineCol{Line: 2, Col: 1}) {
		t.Fatalf("start = %+v, want 2:1", start)
	}
	if (end != LineCol{Line: 3, Col: 2}) {
		t.Fatalf("end = %+v, want 3:2", end)
	}
}

func TestGetLine(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("demo.xp", []byte("ab\ncd\nef"))
	f := fs.Get(id)

	for lineNum, want := range map[uint32]string{
		0: "",
		1: "ab",
		2: "cd",
		3: "ef", // no trailing newline
		4: "",
	} {
		if got := f.GetLine(lineNum); got != want {
			t.Errorf("GetLine(%d) = %q, want %q", lineNum, got, want)
		}
	}
}

func TestReAddProducesFreshID(t *testing.T) {
	fs := NewFileSet()
	first := fs.AddVirtual("demo.xp", []byte("v1"))
	second := fs.AddVirtual("demo.xp", []byte("v2"))
	if first == second {
		t.Fatalf("re-adding a path must allocate a new id")
	}

	latest, ok := fs.GetLatest("demo.xp")
	if !ok || latest != second {
		t.Fatalf("GetLatest = (%v, %v), want (%v, true)", latest, ok, second)
	}

	// Both versions remain addressable; spans recorded against the first
	// id keep resolving into the old content.
	if fs.Source(first) != "v1" || fs.Source(second) != "v2" {
		t.Fatalf("versioned content lost: %q / %q", fs.Source(first), fs.Source(second))
	}
}

func TestGetOutOfRange(t *testing.T) {
	fs := NewFileSet()
	if fs.Get(FileID(7)) != nil {
		t.Fatalf("Get past the arena must return nil")
	}
	if fs.Source(FileID(7)) != "" {
		t.Fatalf("Source of an unknown id is empty")
	}
	if _, ok := fs.GetLatest("missing.xp"); ok {
		t.Fatalf("GetLatest must miss on unknown paths")
	}
}

func TestLoadNormalizesBOMAndCRLF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "win.xp")
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("$a;\r\n$b;\r\n")...)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fs := NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	f := fs.Get(id)
	if f.Flags&FileHadBOM == 0 {
		t.Fatalf("BOM flag not recorded")
	}
	if f.Flags&FileNormalizedCRLF == 0 {
		t.Fatalf("CRLF flag not recorded")
	}
	if got := fs.Source(id); got != "$a;\n$b;\n" {
		t.Fatalf("normalized content = %q", got)
	}
	if fs.Line(id, 4) != 2 {
		t.Fatalf("line index must be built from the normalized bytes")
	}
}

func TestVirtualFileFlag(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("stdin", []byte("x"))
	if fs.Get(id).Flags&FileVirtual == 0 {
		t.Fatalf("AddVirtual must set the virtual flag")
	}
}
