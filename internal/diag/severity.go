package diag

// Level defines the importance of an issue.
type Level uint8

const (
	// LevelNote is for informational issues.
	LevelNote Level = iota
	// LevelHelp is for actionable suggestions.
	LevelHelp
	// LevelWarning is for likely-but-not-certain problems.
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelNote:
		return "NOTE"
	case LevelHelp:
		return "HELP"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}
