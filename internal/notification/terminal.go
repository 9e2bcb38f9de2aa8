package notification

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ryubing/robocop-go/internal/logfile"
)

// Terminal renders reports for the command line.
type Terminal struct {
	w      io.Writer
	styles terminalStyles
}

type terminalStyles struct {
	title    lipgloss.Style
	section  lipgloss.Style
	label    lipgloss.Style
	code     lipgloss.Style
	footer   lipgloss.Style
	severity map[logfile.Severity]lipgloss.Style
}

var boldLabelRegex = regexp.MustCompile(`\*\*([^*]+?):\*\*`)

// NewTerminal renders to w, picking the colour profile from w itself so
// pipes and files get plain text.
func NewTerminal(w io.Writer) *Terminal {
	r := lipgloss.NewRenderer(w)
	return &Terminal{
		w: w,
		styles: terminalStyles{
			title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#4A90E2")),
			section: r.NewStyle().Bold(true).Underline(true),
			label:   r.NewStyle().Bold(true),
			code:    r.NewStyle().Foreground(lipgloss.Color("#A0A0A0")).PaddingLeft(2),
			footer:  r.NewStyle().Faint(true),
			severity: map[logfile.Severity]lipgloss.Style{
				logfile.SeverityCritical: r.NewStyle().Foreground(lipgloss.Color("#E5534B")).Bold(true),
				logfile.SeverityWarning:  r.NewStyle().Foreground(lipgloss.Color("#D29922")),
				logfile.SeverityInfo:     r.NewStyle().Foreground(lipgloss.Color("#539BF5")),
				logfile.SeveritySuccess:  r.NewStyle().Foreground(lipgloss.Color("#57AB5A")),
			},
		},
	}
}

// Render writes the report section by section.
func (t *Terminal) Render(r *logfile.Report) error {
	var b strings.Builder
	b.WriteString(t.styles.title.Render(r.Title))
	b.WriteString("\n")

	for _, s := range r.Sections {
		b.WriteString("\n")
		b.WriteString(t.styles.section.Render(s.Name))
		b.WriteString("\n")

		switch s.Name {
		case logfile.SectionNotes:
			b.WriteString(t.renderNotes(r.Diagnostics.Notes, s.Value))
		case logfile.SectionLatestError:
			if r.Diagnostics.LatestError != "" {
				b.WriteString(t.styles.code.Render(r.Diagnostics.LatestError))
			} else {
				b.WriteString(s.Value)
			}
		default:
			b.WriteString(t.plain(s.Value))
		}
		b.WriteString("\n")
	}

	if r.Footer != "" {
		b.WriteString("\n")
		b.WriteString(t.styles.footer.Render(r.Footer))
		b.WriteString("\n")
	}

	_, err := io.WriteString(t.w, b.String())
	return err
}

func (t *Terminal) renderNotes(notes []logfile.Note, fallback string) string {
	if len(notes) == 0 {
		return fallback
	}
	lines := make([]string, len(notes))
	for i, n := range notes {
		style := t.styles.severity[n.Severity]
		lines[i] = style.Render(n.Severity.Marker() + " " + n.Text)
	}
	return strings.Join(lines, "\n")
}

// plain replaces the markdown "**Label:**" markup with terminal styling.
func (t *Terminal) plain(value string) string {
	return boldLabelRegex.ReplaceAllStringFunc(value, func(m string) string {
		label := boldLabelRegex.FindStringSubmatch(m)[1]
		return t.styles.label.Render(label + ":")
	})
}

// reportJSON is the machine-readable form of a report.
type reportJSON struct {
	Title       string            `json:"title"`
	Footer      string            `json:"footer,omitempty"`
	Fields      map[string]string `json:"fields"`
	LatestError string            `json:"latest_error,omitempty"`
	Mods        []noteJSON        `json:"mods"`
	Notes       []noteJSON        `json:"notes"`
}

type noteJSON struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *logfile.Report) error {
	out := reportJSON{
		Title:       r.Title,
		Footer:      r.Footer,
		Fields:      r.Fields.Export(),
		LatestError: r.Diagnostics.LatestError,
		Mods:        notesJSON(r.Diagnostics.Mods),
		Notes:       notesJSON(r.Diagnostics.Notes),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func notesJSON(notes []logfile.Note) []noteJSON {
	out := make([]noteJSON, len(notes))
	for i, n := range notes {
		out[i] = noteJSON{Severity: n.Severity.String(), Text: n.Text}
	}
	return out
}
