package logfile

import (
	"fmt"
	"strings"
)

// ReportColor is the embed colour used for every analysis report.
const ReportColor = 0x4A90E2

// Section names, in display order.
const (
	SectionHardware    = "Hardware Info"
	SectionEmulator    = "Ryujinx Info"
	SectionSettings    = "Settings"
	SectionEmptyLog    = "Empty Log"
	SectionLatestError = "Latest Error Snippet"
	SectionMods        = "Mods"
	SectionNotes       = "Notes"
)

// Defaults for sections with nothing to show.
const (
	NoErrorsFound = "No errors found in log"
	NoModsFound   = "No mods found"
	NoNotes       = "No notes"
)

const emptyLogAdvice = "This log file appears to be empty. To get a proper log, follow these steps:\n" +
	"1) Start a game up.\n" +
	"2) Play until your issue occurs.\n" +
	"3) Upload your log file."

// Section is one named block of a report.
type Section struct {
	Name   string
	Value  string
	Inline bool
}

// Report is the rendered result of one analysis, independent of where it is posted.
type Report struct {
	Title    string
	Color    int
	Footer   string
	Sections []Section

	Fields      FieldSet
	Diagnostics Diagnostics
}

// Assemble lays out fields and diagnostics into the fixed report structure.
func Assemble(fields FieldSet, d Diagnostics) *Report {
	r := &Report{
		Title:       fields.Get(FieldGameName),
		Color:       ReportColor,
		Fields:      fields,
		Diagnostics: d,
	}

	r.add(SectionHardware, labelLines(fields, []labelField{
		{"CPU", FieldCPU},
		{"GPU", FieldGPU},
		{"RAM", FieldRAM},
		{"OS", FieldOS},
	}), true)

	r.add(SectionEmulator, labelLines(fields, []labelField{
		{"Version", FieldEmulatorVersion},
		{"Firmware", FieldFirmware},
	}), true)

	r.add(SectionSettings, labelLines(fields, []labelField{
		{"Audio Backend", FieldAudioBackend},
		{"Console Mode", FieldDockedMode},
		{"PPTC", FieldPPTC},
		{"Shader Cache", FieldShaderCache},
		{"VSync", FieldVsync},
		{"Resolution", FieldResolution},
		{"Ignore Missing Services", FieldMissingServices},
	}), true)

	if !fields.Known(FieldGameName) {
		r.add(SectionEmptyLog, emptyLogAdvice, false)
	}

	latestError := NoErrorsFound
	if d.LatestError != "" {
		latestError = "```" + d.LatestError + "```"
	}
	r.add(SectionLatestError, latestError, false)

	r.add(SectionMods, joinNotes(d.Mods, NoModsFound), false)
	r.add(SectionNotes, joinNotes(d.Notes, NoNotes), false)

	return r
}

// WithFooter returns a copy of the report crediting the uploader.
func (r *Report) WithFooter(author string) *Report {
	out := *r
	out.Footer = fmt.Sprintf("Log uploaded by %s", author)
	return &out
}

// Section returns the section with the given name.
func (r *Report) Section(name string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

func (r *Report) add(name, value string, inline bool) {
	r.Sections = append(r.Sections, Section{Name: name, Value: value, Inline: inline})
}

type labelField struct {
	label string
	field Field
}

func labelLines(fields FieldSet, rows []labelField) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = fmt.Sprintf("**%s:** %s", row.label, fields.Get(row.field))
	}
	return strings.Join(lines, "\n")
}

func joinNotes(notes []Note, fallback string) string {
	if len(notes) == 0 {
		return fallback
	}
	lines := make([]string, len(notes))
	for i, n := range notes {
		lines[i] = n.String()
	}
	return strings.Join(lines, "\n")
}
