package denylist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	testAppID   = "0100000000010000"
	testBuildID = "ABCDEF0123456789ABCDEF0123456789"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	stateDir := t.TempDir()
	s, err := Open(stateDir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s, stateDir
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		check func(string) bool
		want  bool
	}{
		{"app id", testAppID, IsAppIDValid, true},
		{"app id too short", "01000000000100", IsAppIDValid, false},
		{"app id too long", testAppID + "0", IsAppIDValid, false},
		{"app id with dash", "0100-00000001000", IsAppIDValid, false},
		{"app id non ascii", "01000000000100é", IsAppIDValid, false},
		{"build id 32", testBuildID, IsBuildIDValid, true},
		{"build id 64", strings.Repeat("a1", 32), IsBuildIDValid, true},
		{"build id 31", testBuildID[:31], IsBuildIDValid, false},
		{"build id 65", strings.Repeat("a", 65), IsBuildIDValid, false},
		{"build id with space", "ABCDEF0123456789 BCDEF0123456789", IsBuildIDValid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.id); got != tt.want {
				t.Errorf("valid(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestNormalizeBuildID(t *testing.T) {
	for n := minBuildIDLength; n <= buildIDLength; n++ {
		id := strings.Repeat("AbC9", 16)[:n]
		got := NormalizeBuildID(id)

		if len(got) != buildIDLength {
			t.Fatalf("len(NormalizeBuildID(%q)) = %d, want 64", id, len(got))
		}
		if !strings.HasPrefix(got, strings.ToLower(id)) {
			t.Errorf("NormalizeBuildID(%q) = %q, lost the original content", id, got)
		}
		if strings.Trim(got[n:], "0") != "" {
			t.Errorf("NormalizeBuildID(%q) = %q, padding is not all zeros", id, got)
		}
		if got != strings.ToLower(got) {
			t.Errorf("NormalizeBuildID(%q) = %q, not lowercase", id, got)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s, _ := openTestStore(t)
	set, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(set.AppIDs) != 0 || len(set.BuildIDs) != 0 {
		t.Errorf("expected empty set, got %+v", set)
	}
}

func TestAppIDLifecycle(t *testing.T) {
	s, _ := openTestStore(t)

	added, err := s.AddAppID(strings.ToUpper("0100ABCD00010000"), "crashes on boot")
	if err != nil || !added {
		t.Fatalf("AddAppID() = %v, %v", added, err)
	}
	if added, _ := s.AddAppID("0100abcd00010000", "again"); added {
		t.Error("AddAppID() of an existing id should return false")
	}

	disabled, err := s.IsAppIDDisabled("0100ABCD00010000")
	if err != nil || !disabled {
		t.Errorf("IsAppIDDisabled() = %v, %v, want true", disabled, err)
	}

	set, _ := s.List()
	if note := set.AppIDs["0100abcd00010000"]; note != "crashes on boot" {
		t.Errorf("note = %q, first note should be kept", note)
	}

	removed, err := s.RemoveAppID("0100abcd00010000")
	if err != nil || !removed {
		t.Fatalf("RemoveAppID() = %v, %v", removed, err)
	}
	if removed, _ := s.RemoveAppID("0100abcd00010000"); removed {
		t.Error("RemoveAppID() of a missing id should return false")
	}
	if disabled, _ := s.IsAppIDDisabled("0100abcd00010000"); disabled {
		t.Error("id still disabled after removal")
	}
}

func TestBuildIDLifecycle(t *testing.T) {
	s, _ := openTestStore(t)

	if added, err := s.AddBuildID(testBuildID, ""); err != nil || !added {
		t.Fatalf("AddBuildID() = %v, %v", added, err)
	}

	// the padded and unpadded forms name the same build
	padded := NormalizeBuildID(testBuildID)
	if disabled, _ := s.IsBuildIDDisabled(padded); !disabled {
		t.Error("padded build id should be disabled")
	}
	if disabled, _ := s.IsBuildIDDisabled(strings.ToLower(testBuildID)); !disabled {
		t.Error("lowercase build id should be disabled")
	}

	set, _ := s.List()
	want := map[string]string{padded: ""}
	if diff := cmp.Diff(want, set.BuildIDs); diff != "" {
		t.Errorf("BuildIDs mismatch (-want +got):\n%s", diff)
	}

	if removed, err := s.RemoveBuildID(padded); err != nil || !removed {
		t.Errorf("RemoveBuildID() = %v, %v", removed, err)
	}
}

func TestInvalidIDsRejected(t *testing.T) {
	s, _ := openTestStore(t)

	if _, err := s.AddAppID("short", ""); !errors.Is(err, ErrInvalidAppID) {
		t.Errorf("AddAppID() error = %v, want ErrInvalidAppID", err)
	}
	if _, err := s.RemoveAppID("short"); !errors.Is(err, ErrInvalidAppID) {
		t.Errorf("RemoveAppID() error = %v, want ErrInvalidAppID", err)
	}
	if _, err := s.AddBuildID("short", ""); !errors.Is(err, ErrInvalidBuildID) {
		t.Errorf("AddBuildID() error = %v, want ErrInvalidBuildID", err)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Error("rejected ids must not create the file")
	}
}

func TestLoad_LegacyFlatMap(t *testing.T) {
	s, _ := openTestStore(t)
	legacy := `{"0100000000010000": "old note", "01007ef00011e000": ""}`
	if err := os.WriteFile(s.Path(), []byte(legacy), 0644); err != nil {
		t.Fatalf("Failed to write legacy file: %v", err)
	}

	set, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := &Set{
		AppIDs:   map[string]string{"0100000000010000": "old note", "01007ef00011e000": ""},
		BuildIDs: map[string]string{},
	}
	if diff := cmp.Diff(want, set); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	// the first mutation rewrites the file in the current format
	if _, err := s.AddBuildID(testBuildID, "note"); err != nil {
		t.Fatalf("AddBuildID() error = %v", err)
	}
	data, _ := os.ReadFile(s.Path())
	if !strings.Contains(string(data), `"app_id":{"0100000000010000":"old note"`) {
		t.Errorf("file not migrated: %s", data)
	}
}

func TestOpen_RenamesLegacyFile(t *testing.T) {
	stateDir := t.TempDir()
	dataDir := filepath.Join(stateDir, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatal(err)
	}
	legacyPath := filepath.Join(dataDir, LegacyFileName)
	if err := os.WriteFile(legacyPath, []byte(`{"0100000000010000": ""}`), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(stateDir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := os.Stat(legacyPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("legacy file should have been renamed")
	}
	if disabled, _ := s.IsAppIDDisabled("0100000000010000"); !disabled {
		t.Error("legacy entry should be visible after rename")
	}
}

func TestLoad_SeesExternalEdits(t *testing.T) {
	s, _ := openTestStore(t)
	if _, err := s.AddAppID(testAppID, ""); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(s.Path(), []byte(`{"app_id":{},"build_id":{}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if disabled, _ := s.IsAppIDDisabled(testAppID); disabled {
		t.Error("store must read the file on every query")
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	s, _ := openTestStore(t)
	if err := os.WriteFile(s.Path(), []byte(`{"app_id":`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); err == nil {
		t.Error("Load() should fail on invalid JSON")
	}
}

func TestConcurrentMutations(t *testing.T) {
	s, _ := openTestStore(t)

	ids := []string{
		"0100000000000001", "0100000000000002", "0100000000000003", "0100000000000004",
		"0100000000000005", "0100000000000006", "0100000000000007", "0100000000000008",
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.AddAppID(id, ""); err != nil {
				t.Errorf("AddAppID(%s) error = %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	set, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(set.AppIDs) != len(ids) {
		t.Errorf("lost writes: got %d ids, want %d", len(set.AppIDs), len(ids))
	}
}
