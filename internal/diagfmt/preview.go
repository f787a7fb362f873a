package diagfmt

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"mantis/internal/diag"
	"mantis/internal/source"
)

type editPreview struct {
	before []string
	after  []string
}

// buildEditPreview renders the lines an edit touches before and after
// its application, so JSON consumers can show a diff without re-reading
// the file.
func buildEditPreview(fs *source.FileSet, edit diag.TextEdit) (editPreview, error) {
	file := fs.Get(edit.Span.File)
	if file == nil {
		return editPreview{}, fmt.Errorf("file %d not in FileSet", edit.Span.File)
	}

	startPos, endPos := fs.Resolve(edit.Span)
	startLine := startPos.Line
	endLine := endPos.Line
	if endLine < startLine {
		endLine = startLine
	}

	blockStart := lineStartOffset(file, startLine)
	blockEnd := lineEndOffset(file, endLine)
	if blockEnd < blockStart {
		blockEnd = blockStart
	}
	lenContent, err := safecast.Conv[uint32](len(file.Content))
	if err != nil {
		return editPreview{}, fmt.Errorf("file content overflow: %w", err)
	}
	if blockEnd > lenContent {
		blockEnd = lenContent
	}

	original := append([]byte(nil), file.Content[blockStart:blockEnd]...)
	relStart := int(edit.Span.Start) - int(blockStart)
	relEnd := int(edit.Span.End) - int(blockStart)
	if relStart < 0 || relStart > len(original) || relEnd < relStart || relEnd > len(original) {
		return editPreview{}, fmt.Errorf("edit span outside preview block")
	}

	after := make([]byte, 0, len(original)+len(edit.NewText))
	after = append(after, original[:relStart]...)
	after = append(after, edit.NewText...)
	after = append(after, original[relEnd:]...)

	return editPreview{
		before: splitLines(original),
		after:  splitLines(after),
	}, nil
}

func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	return strings.Split(strings.TrimRight(string(content), "\n"), "\n")
}

func lineStartOffset(f *source.File, line uint32) uint32 {
	if line <= 1 {
		return 0
	}
	idx := line - 2
	if int(idx) < len(f.LineIdx) {
		return f.LineIdx[idx] + 1
	}
	n, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		panic(fmt.Errorf("file content overflow: %w", err))
	}
	return n
}

func lineEndOffset(f *source.File, line uint32) uint32 {
	if line == 0 {
		return 0
	}
	idx := line - 1
	if int(idx) < len(f.LineIdx) {
		return f.LineIdx[idx] + 1
	}
	n, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		panic(fmt.Errorf("file content overflow: %w", err))
	}
	return n
}
