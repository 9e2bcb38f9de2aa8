package logfile

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func noteTexts(notes []Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.String()
	}
	return out
}

func hasNote(notes []Note, severity Severity, substr string) bool {
	for _, n := range notes {
		if n.Severity == severity && strings.Contains(n.Text, substr) {
			return true
		}
	}
	return false
}

func TestDiagnose_Sample(t *testing.T) {
	d := Diagnose(sampleLog, ExtractFields(sampleLog))

	wantNotes := []string{
		"ℹ️ ProController | PlayerIndex = Player1",
		"ℹ️ Handheld | PlayerIndex = Handheld",
		"ℹ️ Time elapsed: `00:02:10`",
		"✅ Default logs enabled",
	}
	if diff := cmp.Diff(wantNotes, noteTexts(d.Notes)); diff != "" {
		t.Errorf("Notes mismatch (-want +got):\n%s", diff)
	}

	wantMods := []string{"ℹ️ Widescreen (ExeFS)", "ℹ️ HDTextures (RomFS)"}
	if diff := cmp.Diff(wantMods, noteTexts(d.Mods)); diff != "" {
		t.Errorf("Mods mismatch (-want +got):\n%s", diff)
	}

	wantError := "00:01:05.000 |E| HLE.OsThread.33 KernelSyscall: Invalid memory state\n    at Ryujinx.HLE.HOS.Kernel.Foo"
	if d.LatestError != wantError {
		t.Errorf("LatestError = %q, want %q", d.LatestError, wantError)
	}
}

func TestDiagnose_MacWithIntelGPU(t *testing.T) {
	d := Diagnose(macLog, ExtractFields(macLog))

	if !hasNote(d.Notes, SeverityCritical, "macOS is currently unsupported") {
		t.Error("Expected critical macOS note")
	}
	if !hasNote(d.Notes, SeverityWarning, "Intel iGPUs") {
		t.Error("Expected Intel iGPU warning")
	}
	if !hasNote(d.Notes, SeverityWarning, "Less than 8GB RAM available") {
		t.Error("Expected low RAM warning")
	}
	if !hasNote(d.Notes, SeverityCritical, "firmware not found") {
		t.Error("Expected missing firmware note")
	}
	if !hasNote(d.Notes, SeverityWarning, "No controller information found") {
		t.Error("Expected missing controller warning")
	}
	for _, category := range []string{"Warning", "Guest", "Stub"} {
		if !hasNote(d.Notes, SeverityWarning, category+" log is not enabled") {
			t.Errorf("Expected %s log warning", category)
		}
	}
	if hasNote(d.Notes, SeveritySuccess, "Default logs enabled") {
		t.Error("Did not expect default logs success note")
	}
	if d.LatestError != "" {
		t.Errorf("Expected no error snippet, got %q", d.LatestError)
	}

	// Critical notes come first and keep insertion order among themselves.
	if d.Notes[0].Text != "macOS is currently unsupported" {
		t.Errorf("First note = %q, want macOS note", d.Notes[0].Text)
	}
	if d.Notes[1].Text != "Nintendo Switch firmware not found" {
		t.Errorf("Second note = %q, want firmware note", d.Notes[1].Text)
	}
}

func TestDiagnose_IntelGPUOnLinux(t *testing.T) {
	fields := FieldSet{
		FieldOS:  "Linux 6.1.0",
		FieldGPU: "Intel UHD Graphics 620",
	}
	d := Diagnose("00:00:00.000 |I| x", fields)
	if hasNote(d.Notes, SeverityWarning, "Intel iGPUs") {
		t.Error("Intel iGPU warning should only fire on Windows or macOS")
	}
}

func TestDiagnose_UnknownOSNeverFiresPlatformChecks(t *testing.T) {
	d := Diagnose("00:00:00.000 |I| x", ExtractFields(""))
	if hasNote(d.Notes, SeverityCritical, "macOS") || hasNote(d.Notes, SeverityWarning, "Intel") {
		t.Error("Platform checks must not fire when OS and GPU are Unknown")
	}
}

func TestDiagnose_RAMBoundary(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want bool
	}{
		{"below threshold", "RAM: Total 8192 MB ; Available 7999 MB", true},
		{"at threshold", "RAM: Total 16384 MB ; Available 8000 MB", false},
		{"no available value", "RAM: Total 16384 MB", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diagnose(tt.log, ExtractFields(tt.log))
			if got := hasNote(d.Notes, SeverityWarning, "Less than 8GB"); got != tt.want {
				t.Errorf("low RAM warning = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiagnose_CacheCollision(t *testing.T) {
	log := "00:00:00.000 |E| Gpu Shader: Cache collision found\n" +
		"00:00:01.000 |I| later\n"
	d := Diagnose(log, ExtractFields(log))
	if !hasNote(d.Notes, SeverityWarning, "Cache collision detected") {
		t.Error("Expected cache collision warning")
	}

	clean := "00:00:00.000 |I| Gpu Shader: Cache collision found outside an error\n"
	d = Diagnose(clean, ExtractFields(clean))
	if hasNote(d.Notes, SeverityWarning, "Cache collision detected") {
		t.Error("Cache collision outside error groups must not be flagged")
	}
}

func TestDiagnose_TraceAfterInterleavedLine(t *testing.T) {
	log := "00:00:01.000 |E| HLE.OsThread: Unhandled exception\n" +
		"00:00:01.001 |I| Some info line\n" +
		"   at Ryujinx.Foo.Bar()\n"
	d := Diagnose(log, ExtractFields(log))

	want := "00:00:01.000 |E| HLE.OsThread: Unhandled exception\n   at Ryujinx.Foo.Bar()"
	if d.LatestError != want {
		t.Errorf("LatestError = %q, want %q", d.LatestError, want)
	}
}

func TestDiagnose_CacheCollisionAfterInterleavedLine(t *testing.T) {
	log := "00:00:00.000 |E| Gpu Shader: compile failed\n" +
		"00:00:00.500 |I| Gpu Shader: retrying\n" +
		" Cache collision found here\n"
	d := Diagnose(log, ExtractFields(log))
	if !hasNote(d.Notes, SeverityWarning, "Cache collision detected") {
		t.Errorf("Expected cache collision warning, got %v", noteTexts(d.Notes))
	}
}

func TestDiagnose_Mods(t *testing.T) {
	log := "Found mod 'Widescreen' [E]\nFound mod 'HDTextures' [R]\nFound mod 'Other' [F]\n"
	d := Diagnose(log, ExtractFields(log))

	want := []string{"Widescreen (ExeFS)", "HDTextures (RomFS)", "Other (RomFS)"}
	got := make([]string, len(d.Mods))
	for i, m := range d.Mods {
		got[i] = m.Text
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Mods mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorGroups(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want [][]string
	}{
		{
			name: "no errors",
			log:  "00:00:00.000 |I| fine\n00:00:01.000 |W| careful\n",
			want: nil,
		},
		{
			name: "continuation lines",
			log:  "a |E| one\n  trace 1\n  trace 2\n",
			want: [][]string{{"a |E| one", "  trace 1", "  trace 2"}},
		},
		{
			name: "blank line keeps group open",
			log:  "a |E| one\n  trace 1\n\n  trace 2\n",
			want: [][]string{{"a |E| one", "  trace 1", "  trace 2"}},
		},
		{
			name: "interleaved line keeps group open",
			log:  "a |E| one\nb |I| info\n  trace after info\n",
			want: [][]string{{"a |E| one", "  trace after info"}},
		},
		{
			name: "continuation before any error is ignored",
			log:  "  stray\na |I| info\n",
			want: nil,
		},
		{
			name: "new marker starts new group",
			log:  "a |E| one\n  t1\nb |E| two\n  t2\r\n",
			want: [][]string{{"a |E| one", "  t1"}, {"b |E| two", "  t2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, errorGroups(tt.log)); diff != "" {
				t.Errorf("errorGroups mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLatestErrorSnippet(t *testing.T) {
	snippet, ok := latestErrorSnippet([][]string{{"x |E| old"}, {"y |E| new", "  l2", "  l3"}})
	if !ok {
		t.Fatal("Expected a snippet")
	}
	if snippet != "y |E| new\n  l2" {
		t.Errorf("snippet = %q", snippet)
	}

	if _, ok := latestErrorSnippet(nil); ok {
		t.Error("Expected no snippet for no groups")
	}
}

func TestSortNotes_StableBySeverity(t *testing.T) {
	notes := []Note{
		success("s1"),
		info("i1"),
		warning("w1"),
		critical("c1"),
		info("i2"),
		warning("w2"),
		critical("c2"),
		success("s2"),
	}
	SortNotes(notes)

	var got []string
	for _, n := range notes {
		got = append(got, n.Text)
	}
	want := []string{"c1", "c2", "w1", "w2", "i1", "i2", "s1", "s2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SortNotes mismatch (-want +got):\n%s", diff)
	}
}

func TestNoteString(t *testing.T) {
	n := critical("macOS is currently unsupported")
	n.Emphasis = true
	if got := n.String(); got != "**❌ macOS is currently unsupported**" {
		t.Errorf("String() = %q", got)
	}
	if got := warning("x").String(); got != "⚠️ x" {
		t.Errorf("String() = %q", got)
	}
}

func TestCountBySeverity(t *testing.T) {
	counts := CountBySeverity([]Note{critical("a"), warning("b"), warning("c")})
	if counts[SeverityCritical] != 1 || counts[SeverityWarning] != 2 || counts[SeverityInfo] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
