package logfile

import "strings"

const (
	errorMarker = "|E|"
	// snippetLines is how many lines of the latest error group are reported.
	snippetLines = 2
)

type errorScanState int

const (
	outsideError errorScanState = iota
	insideError
)

// errorGroups splits the log into error groups. A line containing |E| opens a
// group and lines starting with a space continue it. Every other line is
// skipped without changing state, so a trace interleaved with other log
// output stays in its group until the next |E| line.
func errorGroups(text string) [][]string {
	var (
		groups  [][]string
		current []string
		state   = outsideError
	)

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "":
			continue
		case strings.Contains(line, errorMarker):
			flush()
			current = []string{line}
			state = insideError
		case state == insideError && line[0] == ' ':
			current = append(current, line)
		}
	}
	flush()

	return groups
}

// latestErrorSnippet returns the first lines of the last error group.
func latestErrorSnippet(groups [][]string) (string, bool) {
	if len(groups) == 0 {
		return "", false
	}
	last := groups[len(groups)-1]
	if len(last) > snippetLines {
		last = last[:snippetLines]
	}
	return strings.Join(last, "\n"), true
}
