package logfile

import "sort"

// Severity ranks a note. Lower values are shown first.
type Severity int

const (
	SeverityCritical Severity = iota
	SeverityWarning
	SeverityInfo
	SeveritySuccess
)

// Marker is the symbol a note of this severity is rendered with.
func (s Severity) Marker() string {
	switch s {
	case SeverityCritical:
		return "❌"
	case SeverityWarning:
		return "⚠️"
	case SeverityInfo:
		return "ℹ️"
	case SeveritySuccess:
		return "✅"
	default:
		return ""
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeveritySuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Note is a single diagnostic line.
type Note struct {
	Severity Severity
	Text     string
	// Emphasis renders the whole line in bold.
	Emphasis bool
}

func critical(text string) Note { return Note{Severity: SeverityCritical, Text: text} }
func warning(text string) Note  { return Note{Severity: SeverityWarning, Text: text} }
func info(text string) Note     { return Note{Severity: SeverityInfo, Text: text} }
func success(text string) Note  { return Note{Severity: SeveritySuccess, Text: text} }

// String renders the note with its severity marker, e.g. "⚠️ Less than 8GB RAM available".
func (n Note) String() string {
	line := n.Severity.Marker() + " " + n.Text
	if n.Emphasis {
		return "**" + line + "**"
	}
	return line
}

// SortNotes orders notes by severity, critical first. Notes of equal
// severity keep their relative order.
func SortNotes(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Severity < notes[j].Severity
	})
}

// CountBySeverity tallies notes per severity.
func CountBySeverity(notes []Note) map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, n := range notes {
		counts[n.Severity]++
	}
	return counts
}
