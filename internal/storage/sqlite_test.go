package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	storage, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func sampleAnalysis(runID string, ts time.Time) *Analysis {
	return &Analysis{
		RunID:           runID,
		Timestamp:       ts,
		GuildID:         "guild-1",
		ChannelID:       "chan-1",
		MessageID:       "msg-" + runID,
		Author:          "@mario",
		Filename:        "Ryujinx_" + runID + ".log",
		UploadBytes:     2 << 20,
		DownloadBytes:   26000,
		Status:          StatusOK,
		Game:            "Super Mario Odyssey",
		EmulatorVersion: "1.1.1217",
		OS:              "Microsoft Windows 10.0.19045 (X64)",
		CriticalNotes:   1,
		WarningNotes:    2,
		Fields:          map[string]string{"game_name": "Super Mario Odyssey"},
		DurationMs:      420,
	}
}

func TestNew(t *testing.T) {
	storage := newTestStorage(t)
	if storage.db == nil {
		t.Fatal("Expected database connection to be initialized")
	}
	if v := storage.getSchemaVersion(); v != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", v, currentSchemaVersion)
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	storage, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()
}

func TestNew_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := New(dbPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.SaveAnalysis(ctx, sampleAnalysis("a", time.Now())); err != nil {
		t.Fatal(err)
	}
	_ = first.Close()

	second, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = second.Close() }()

	got, err := second.RecentAnalyses(ctx, 1, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("got %d analyses after reopen, want 1", len(got))
	}
}

func TestSaveAndRetrieveAnalysis(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	want := sampleAnalysis("run-1", time.Now().Add(-time.Hour).Truncate(time.Second))
	if err := storage.SaveAnalysis(ctx, want); err != nil {
		t.Fatalf("SaveAnalysis() error = %v", err)
	}
	if want.ID == 0 {
		t.Error("Expected ID to be set")
	}

	got, err := storage.RecentAnalyses(ctx, 1, 10, nil)
	if err != nil {
		t.Fatalf("RecentAnalyses() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d analyses, want 1", len(got))
	}
	if diff := cmp.Diff(want, got[0], cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveAnalysis_DefaultsTimestamp(t *testing.T) {
	storage := newTestStorage(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	storage.now = func() time.Time { return fixed }

	a := &Analysis{RunID: "r", Filename: "message.txt", Status: StatusFailed, ErrorKind: "DecodeError"}
	if err := storage.SaveAnalysis(context.Background(), a); err != nil {
		t.Fatalf("SaveAnalysis() error = %v", err)
	}
	if !a.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", a.Timestamp, fixed)
	}
}

func TestRecentAnalyses(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	entries := []*Analysis{
		sampleAnalysis("old", now.AddDate(0, 0, -10)),
		sampleAnalysis("yesterday", now.AddDate(0, 0, -1)),
		sampleAnalysis("recent", now.Add(-time.Minute)),
	}
	failed := sampleAnalysis("failed", now.Add(-2*time.Minute))
	failed.Status = StatusFailed
	failed.ErrorKind = "TransportError"
	other := sampleAnalysis("other-guild", now.Add(-3*time.Minute))
	other.GuildID = "guild-2"
	entries = append(entries, failed, other)

	for _, a := range entries {
		if err := storage.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("SaveAnalysis(%s) error = %v", a.RunID, err)
		}
	}

	tests := []struct {
		name   string
		days   int
		limit  int
		filter *Filter
		want   []string
	}{
		{"last week newest first", 7, 10, nil, []string{"recent", "failed", "other-guild", "yesterday"}},
		{"limit", 7, 2, nil, []string{"recent", "failed"}},
		{"by guild", 30, 10, &Filter{GuildID: "guild-2"}, []string{"other-guild"}},
		{"by status", 30, 10, &Filter{Status: StatusFailed}, []string{"failed"}},
		{"everything", 30, 10, &Filter{}, []string{"recent", "failed", "other-guild", "yesterday", "old"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.RecentAnalyses(ctx, tt.days, tt.limit, tt.filter)
			if err != nil {
				t.Fatalf("RecentAnalyses() error = %v", err)
			}
			var ids []string
			for _, a := range got {
				ids = append(ids, a.RunID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("RecentAnalyses() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCleanupOldAnalyses(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	for i, age := range []int{100, 95, 10, 0} {
		a := sampleAnalysis(fmt.Sprintf("r%d", i), now.AddDate(0, 0, -age))
		if err := storage.SaveAnalysis(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := storage.CleanupOldAnalyses(ctx, 90)
	if err != nil {
		t.Fatalf("CleanupOldAnalyses() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	remaining, _ := storage.RecentAnalyses(ctx, 365, 100, nil)
	if len(remaining) != 2 {
		t.Errorf("remaining = %d, want 2", len(remaining))
	}

	// nothing left to clean
	if deleted, _ := storage.CleanupOldAnalyses(ctx, 90); deleted != 0 {
		t.Errorf("second cleanup deleted %d rows", deleted)
	}
}

func TestGetStatistics(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	games := []string{"Super Mario Odyssey", "Super Mario Odyssey", "Splatoon 2", "Unknown"}
	for i, game := range games {
		a := sampleAnalysis(fmt.Sprintf("ok%d", i), now)
		a.Game = game
		if err := storage.SaveAnalysis(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	for i, kind := range []string{"TransportError", "TransportError", "DecodeError"} {
		a := &Analysis{RunID: fmt.Sprintf("f%d", i), GuildID: "guild-1", Filename: "x.log", Status: StatusFailed, ErrorKind: kind}
		if err := storage.SaveAnalysis(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	st, err := storage.GetStatistics(ctx, nil)
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}

	want := &Statistics{
		Total:       7,
		ByStatus:    map[string]int{StatusOK: 4, StatusFailed: 3},
		ByErrorKind: map[string]int{"TransportError": 2, "DecodeError": 1},
		TopGames: []GameCount{
			{Game: "Super Mario Odyssey", Count: 2},
			{Game: "Splatoon 2", Count: 1},
		},
		DownloadBytes: 4 * 26000,
	}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("GetStatistics() mismatch (-want +got):\n%s", diff)
	}
	if got := st.DownloadedHuman(); got != "104 kB" {
		t.Errorf("DownloadedHuman() = %q, want 104 kB", got)
	}

	filtered, err := storage.GetStatistics(ctx, &Filter{Status: StatusFailed})
	if err != nil {
		t.Fatal(err)
	}
	if filtered.Total != 3 || len(filtered.TopGames) != 0 {
		t.Errorf("filtered stats = %+v", filtered)
	}
}

func TestGetStatistics_Empty(t *testing.T) {
	storage := newTestStorage(t)
	st, err := storage.GetStatistics(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	if st.Total != 0 || len(st.ByStatus) != 0 || st.TopGames != nil {
		t.Errorf("expected empty stats, got %+v", st)
	}
}

func TestMigrateFromV1(t *testing.T) {
	storage := newTestStorage(t)

	// rebuild a version 1 database and migrate it again
	if _, err := storage.db.Exec(`DROP TABLE analyses`); err != nil {
		t.Fatal(err)
	}
	if err := storage.migrateV1(); err != nil {
		t.Fatal(err)
	}
	if err := storage.setSchemaVersion(1); err != nil {
		t.Fatal(err)
	}
	if err := storage.initSchema(); err != nil {
		t.Fatalf("initSchema() error = %v", err)
	}

	if v := storage.getSchemaVersion(); v != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", v, currentSchemaVersion)
	}
	if err := storage.SaveAnalysis(context.Background(), sampleAnalysis("after", time.Now())); err != nil {
		t.Errorf("SaveAnalysis() after migration error = %v", err)
	}
}

func TestClose(t *testing.T) {
	storage, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := storage.SaveAnalysis(context.Background(), sampleAnalysis("x", time.Now())); err == nil {
		t.Error("Expected error after Close")
	}
}
