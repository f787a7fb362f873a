package diagfmt

import (
	"strings"
	"testing"

	"mantis/internal/diag"
	"mantis/internal/source"
)

func TestPrettyBasicLayout(t *testing.T) {
	fs := source.NewFileSet()
	id := fs.AddVirtual("demo.xp", []byte("let x = $user->name;\nlet y = 2;\n"))
	span := source.Span{File: id, Start: 8, End: 19}

	issue := diag.Error(diag.CodePropertyAccessOnNull, span, "property access on null").
		WithNote("value narrowed to null in this branch").
		WithHelp("guard the access with a null check")

	var buf strings.Builder
	Pretty(&buf, []diag.Issue{issue}, fs, PrettyOpts{
		PathMode:  PathModeBasename,
		ShowNotes: true,
	})
	out := buf.String()

	if !strings.Contains(out, "demo.xp:1:9: error[property-access-on-null]: property access on null") {
		t.Fatalf("missing header line in output:\n%s", out)
	}
	if !strings.Contains(out, "let x = $user->name;") {
		t.Fatalf("missing source excerpt:\n%s", out)
	}
	if !strings.Contains(out, "^~~~~~~~~~") {
		t.Fatalf("missing underline:\n%s", out)
	}
	if !strings.Contains(out, "= note: value narrowed to null in this branch") {
		t.Fatalf("missing note:\n%s", out)
	}
	if !strings.Contains(out, "= help: guard the access with a null check") {
		t.Fatalf("missing help:\n%s", out)
	}
}

func TestPrettyShowsFixTitles(t *testing.T) {
	fs := source.NewFileSet()
	id := fs.AddVirtual("demo.xp", []byte("function f() {}\n"))
	span := source.Span{File: id, Start: 0, End: 8}

	issue := diag.Warning(diag.CodeMissingOverrideAttribute, span, "missing attribute").
		WithFix("add #[Override]", diag.FixSafe, diag.TextEdit{
			Span:    source.Span{File: id, Start: 0, End: 0},
			NewText: "#[Override]\n",
		})

	var buf strings.Builder
	Pretty(&buf, []diag.Issue{issue}, fs, PrettyOpts{PathMode: PathModeBasename, ShowFixes: true})
	if !strings.Contains(buf.String(), "fix: add #[Override] (safe, 1 edit(s))") {
		t.Fatalf("missing fix line:\n%s", buf.String())
	}
}

func TestPrettySecondaryAnnotations(t *testing.T) {
	fs := source.NewFileSet()
	id := fs.AddVirtual("demo.xp", []byte("echo $input;\n$input = read();\n"))
	primary := source.Span{File: id, Start: 5, End: 11}
	secondary := source.Span{File: id, Start: 13, End: 19}

	issue := diag.Error(diag.CodeTaintedDataToSink, primary, "user input reaches echo").
		WithAnnotation(secondary, "tainted value originates here")

	var buf strings.Builder
	Pretty(&buf, []diag.Issue{issue}, fs, PrettyOpts{PathMode: PathModeBasename})
	out := buf.String()
	if !strings.Contains(out, "demo.xp:2:1: tainted value originates here") {
		t.Fatalf("missing secondary annotation:\n%s", out)
	}
}
