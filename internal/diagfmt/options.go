// Package diagfmt renders issues for terminals, JSON consumers, and
// SARIF uploaders. It reads the FileSet; it never mutates issues.
package diagfmt

// PathMode specifies how file paths are displayed.
type PathMode uint8

const (
	// PathModeAuto chooses relative or absolute automatically.
	PathModeAuto PathMode = iota
	PathModeAbsolute
	PathModeRelative
	PathModeBasename
)

func (m PathMode) format() string {
	switch m {
	case PathModeAbsolute:
		return "absolute"
	case PathModeRelative:
		return "relative"
	case PathModeBasename:
		return "basename"
	}
	return "auto"
}

// PrettyOpts configures terminal rendering.
type PrettyOpts struct {
	Color    bool
	PathMode PathMode
	// Context is the number of source lines shown around the primary
	// span; negative disables the source excerpt.
	Context   int
	ShowNotes bool
	ShowFixes bool
}

// JSONOpts configures JSON output.
type JSONOpts struct {
	PathMode PathMode
	// IncludePositions adds line/col to every location.
	IncludePositions bool
	// Max truncates the issue list; 0 means unlimited.
	Max             int
	IncludeNotes    bool
	IncludeFixes    bool
	IncludePreviews bool
}

// SarifMeta names the tool in SARIF output.
type SarifMeta struct {
	ToolName    string
	ToolVersion string
}
