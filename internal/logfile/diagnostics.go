package logfile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Diagnostics is everything the independent analysis passes found.
type Diagnostics struct {
	// LatestError is the head of the last |E| group, empty when the log has none.
	LatestError string
	// Mods lists loaded mods in the order they were found.
	Mods []Note
	// Notes is sorted by severity.
	Notes []Note
}

const (
	minRecommendedRAMMB  = 8000
	cacheCollisionMarker = "Cache collision found"
)

// defaultLogCategories are the log levels a useful log must have enabled.
var defaultLogCategories = []string{"Info", "Warning", "Error", "Guest", "Stub"}

var (
	modsRegex         = regexp.MustCompile(`Found mod\s'(.+?)'\s(\[.+?\])`)
	controllersRegex  = regexp.MustCompile(`Hid Configure: ([^\r\n]+)`)
	ramAvailableRegex = regexp.MustCompile(`Available\s(\d+)\sMB`)
)

// passInput is shared, read-only state handed to every pass.
type passInput struct {
	text   string
	fields FieldSet
	groups [][]string
}

type pass struct {
	name string
	run  func(in *passInput) []Note
}

// notePasses run in this order; their output is then sorted by severity.
var notePasses = []pass{
	{name: "controllers", run: controllersPass},
	{name: "ram", run: ramPass},
	{name: "platform", run: platformPass},
	{name: "log_categories", run: logCategoriesPass},
	{name: "firmware", run: firmwarePass},
	{name: "cache_collision", run: cacheCollisionPass},
	{name: "elapsed_time", run: elapsedTimePass},
}

// Diagnose runs every analysis pass over the normalized log text.
func Diagnose(text string, fields FieldSet) Diagnostics {
	in := &passInput{
		text:   text,
		fields: fields,
		groups: errorGroups(text),
	}

	var d Diagnostics
	d.LatestError, _ = latestErrorSnippet(in.groups)
	d.Mods = runPass(pass{name: "mods", run: modsPass}, in)

	for _, p := range notePasses {
		d.Notes = append(d.Notes, runPass(p, in)...)
	}
	SortNotes(d.Notes)

	return d
}

// runPass isolates a pass: if it panics it contributes no notes.
func runPass(p pass, in *passInput) (notes []Note) {
	defer func() {
		if r := recover(); r != nil {
			notes = nil
		}
	}()
	return p.run(in)
}

func modsPass(in *passInput) []Note {
	var notes []Note
	for _, m := range modsRegex.FindAllStringSubmatch(in.text, -1) {
		kind := "RomFS"
		if m[2] == "[E]" {
			kind = "ExeFS"
		}
		notes = append(notes, info(fmt.Sprintf("%s (%s)", m[1], kind)))
	}
	return notes
}

func controllersPass(in *passInput) []Note {
	var notes []Note
	seen := make(map[string]bool)
	for _, m := range controllersRegex.FindAllStringSubmatch(in.text, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		notes = append(notes, info(m[1]))
	}
	if len(notes) == 0 {
		return []Note{warning("No controller information found")}
	}
	return notes
}

func ramPass(in *passInput) []Note {
	m := ramAvailableRegex.FindStringSubmatch(in.text)
	if m == nil {
		return nil
	}
	available, err := strconv.Atoi(m[1])
	if err != nil || available >= minRecommendedRAMMB {
		return nil
	}
	return []Note{warning("Less than 8GB RAM available")}
}

func platformPass(in *passInput) []Note {
	var notes []Note
	osName := in.fields.Get(FieldOS)
	gpu := in.fields.Get(FieldGPU)

	if strings.Contains(osName, "Darwin") {
		n := critical("macOS is currently unsupported")
		n.Emphasis = true
		notes = append(notes, n)
	}
	if strings.Contains(gpu, "Intel") && (strings.Contains(osName, "Darwin") || strings.Contains(osName, "Windows")) {
		n := warning("Intel iGPUs are known to have driver issues, consider using a discrete GPU")
		n.Emphasis = true
		notes = append(notes, n)
	}
	return notes
}

func logCategoriesPass(in *passInput) []Note {
	raw := strings.ReplaceAll(strings.TrimSpace(in.fields.Get(FieldLogsEnabled)), " ", "")
	enabled := make(map[string]bool)
	for _, c := range strings.Split(raw, ",") {
		enabled[c] = true
	}

	var notes []Note
	for _, c := range defaultLogCategories {
		if !enabled[c] {
			notes = append(notes, warning(c+" log is not enabled"))
		}
	}
	if len(notes) == 0 {
		return []Note{success("Default logs enabled")}
	}
	return notes
}

func firmwarePass(in *passInput) []Note {
	if in.fields.Known(FieldFirmware) {
		return nil
	}
	return []Note{critical("Nintendo Switch firmware not found")}
}

func cacheCollisionPass(in *passInput) []Note {
	for _, group := range in.groups {
		for _, line := range group {
			if strings.Contains(line, cacheCollisionMarker) {
				return []Note{warning("Cache collision detected. Investigate possible shader cache issues")}
			}
		}
	}
	return nil
}

func elapsedTimePass(in *passInput) []Note {
	ts := lastTimestamp(in.text)
	if ts == "" {
		return nil
	}
	// drop the milliseconds
	return []Note{info(fmt.Sprintf("Time elapsed: `%s`", ts[:8]))}
}
