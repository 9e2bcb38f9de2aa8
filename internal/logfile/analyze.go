package logfile

// Analyze turns raw downloaded text into a report. It fails only when the
// text is not a log at all (ErrNoTimestamp).
func Analyze(raw string) (*Report, error) {
	text, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	fields := ExtractFields(text)
	return Assemble(fields, Diagnose(text, fields)), nil
}
