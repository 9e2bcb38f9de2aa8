package logfile

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/stoewer/go-strcase"
)

// Unknown is the value of every field whose rule found nothing.
const Unknown = "Unknown"

// Field names a value recovered from the log.
type Field string

// Hardware, emulator and game fields.
const (
	FieldCPU             Field = "CpuModel"
	FieldGPU             Field = "GpuModel"
	FieldRAM             Field = "RamTotal"
	FieldOS              Field = "OperatingSystem"
	FieldEmulatorVersion Field = "EmulatorVersion"
	FieldFirmware        Field = "FirmwareVersion"
	FieldGameName        Field = "GameName"
	FieldLogsEnabled     Field = "EnabledLogCategories"
)

// User settings. These are logged every time they change, so the last value wins.
const (
	FieldAudioBackend    Field = "AudioBackend"
	FieldDockedMode      Field = "DockedMode"
	FieldPPTC            Field = "PptcEnabled"
	FieldVsync           Field = "VsyncEnabled"
	FieldShaderCache     Field = "ShaderCacheEnabled"
	FieldResolution      Field = "Resolution"
	FieldMissingServices Field = "MissingServicesIgnored"
)

// FieldSet holds a value for every field of the schema, possibly Unknown.
type FieldSet map[Field]string

// Get returns the value of f, or Unknown if f was never extracted.
func (fs FieldSet) Get(f Field) string {
	if v, ok := fs[f]; ok {
		return v
	}
	return Unknown
}

// Known reports whether f resolved to a real value.
func (fs FieldSet) Known(f Field) bool {
	return fs.Get(f) != Unknown
}

// Export returns the fields keyed by snake_case name, for JSON output and storage.
func (fs FieldSet) Export() map[string]string {
	out := make(map[string]string, len(fieldRules))
	for _, f := range Fields() {
		out[strcase.SnakeCase(string(f))] = fs.Get(f)
	}
	return out
}

// Fields lists the schema in extraction order.
func Fields() []Field {
	fields := make([]Field, len(fieldRules))
	for i, rule := range fieldRules {
		fields[i] = rule.field
	}
	return fields
}

// extractor finds the raw value of a field in the log text.
type extractor func(text string) (string, bool)

// fieldRule is one row of the extraction table.
type fieldRule struct {
	field   Field
	extract extractor
	display func(raw string) string
}

var fieldRules = []fieldRule{
	{field: FieldCPU, extract: labeled("CPU")},
	{field: FieldGPU, extract: labeled("PrintGpuInformation")},
	{field: FieldRAM, extract: labeled("RAM")},
	{field: FieldOS, extract: labeled("Operating System")},
	{field: FieldEmulatorVersion, extract: labeled("Ryujinx Version")},
	{field: FieldFirmware, extract: labeled("Firmware Version")},
	{field: FieldGameName, extract: labeled("Loader LoadNca: Application Loaded"), display: CleanGameName},
	{field: FieldLogsEnabled, extract: labeled("Logs Enabled")},

	{field: FieldAudioBackend, extract: lastLineToken("AudioBackend set to:")},
	{field: FieldDockedMode, extract: lastLineToken("EnableDockedMode set to:"), display: mapped(dockedDisplay)},
	{field: FieldPPTC, extract: lastLineToken("EnablePtc set to:"), display: mapped(toggleDisplay)},
	{field: FieldVsync, extract: lastLineToken("EnableVsync set to:"), display: mapped(toggleDisplay)},
	{field: FieldShaderCache, extract: lastLineToken("EnableShaderCache set to:"), display: mapped(toggleDisplay)},
	{field: FieldResolution, extract: lastLineToken("ResScale set to:"), display: mapped(resolutionDisplay)},
	{field: FieldMissingServices, extract: lastLineToken("IgnoreMissingServices set to:"), display: mapped(ignoredDisplay)},
}

var (
	dockedDisplay = map[string]string{"True": "Docked", "False": "Handheld"}
	toggleDisplay = map[string]string{"True": "Enabled", "False": "Disabled"}

	ignoredDisplay = map[string]string{"True": "Ignored", "False": "Not ignored"}

	resolutionDisplay = map[string]string{
		"1":  "Native (720p/1080p)",
		"2":  "2x (1440p/2160p)",
		"3":  "3x (2160p/3240p)",
		"4":  "4x (2880p/4320p)",
		"-1": "Custom",
	}
)

// ExtractFields runs every rule of the table against text. It never fails:
// a rule without a match leaves its field Unknown.
func ExtractFields(text string) FieldSet {
	fs := make(FieldSet, len(fieldRules))
	for _, rule := range fieldRules {
		value := Unknown
		if raw, ok := rule.extract(text); ok && raw != "" {
			value = raw
			if rule.display != nil {
				value = rule.display(raw)
			}
		}
		fs[rule.field] = value
	}
	return fs
}

// labeled matches "Label: value" lines. RAM is logged as "RAM: Total 16297 MB ;"
// so an optional "Total" token is skipped before the value.
func labeled(label string) extractor {
	re := regexp.MustCompile(regexp.QuoteMeta(label) + `:(?:\sTotal)?\s([^;\r\n]*)`)
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return strings.TrimRightFunc(m[1], unicode.IsSpace), true
	}
}

// lastLineToken takes the last line containing substr and returns its final
// whitespace-delimited token.
func lastLineToken(substr string) extractor {
	return func(text string) (string, bool) {
		idx := strings.LastIndex(text, substr)
		if idx < 0 {
			return "", false
		}
		start := strings.LastIndexByte(text[:idx], '\n') + 1
		end := len(text)
		if n := strings.IndexByte(text[idx:], '\n'); n >= 0 {
			end = idx + n
		}
		tokens := strings.Fields(text[start:end])
		if len(tokens) == 0 {
			return "", false
		}
		return tokens[len(tokens)-1], true
	}
}

// mapped translates raw values through a field-specific table. Values the
// table does not know pass through unchanged.
func mapped(table map[string]string) func(string) string {
	return func(raw string) string {
		if v, ok := table[raw]; ok {
			return v
		}
		return raw
	}
}

var archSuffixRegex = regexp.MustCompile(`\s\[(64|32)-bit\]$`)

// CleanGameName strips the trailing " [64-bit]" or " [32-bit]" annotation.
func CleanGameName(name string) string {
	return archSuffixRegex.ReplaceAllString(name, "")
}
