package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ecosort/ecoscan/pkg/stats"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ecoscan.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)

	want := stats.Snapshot{
		UserID:            "42",
		Username:          "sam",
		Token:             "tok123",
		Score:             850,
		ItemsAnalyzed:     5,
		StreakDays:        3,
		CO2SavedKg:        1.5,
		TreesPlanted:      2,
		WeeklyActivity:    [7]int{1, 0, 2, 0, 0, 1, 1},
		PerfectWeekStreak: false,
		Level:             stats.LevelWarrior,
	}

	if err := db.SaveSnapshot(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestSaveSnapshot_Overwrites(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveSnapshot(stats.Snapshot{Score: 100, Level: stats.LevelExplorer}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSnapshot(stats.Snapshot{Score: 250, Level: stats.LevelExplorer}); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 250 {
		t.Errorf("score = %d, want the latest write 250", got.Score)
	}
}

func TestLoadSnapshot_AbsentRecord(t *testing.T) {
	db := openTestDB(t)

	got, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("absent record must not error, got: %v", err)
	}
	if got != stats.Default() {
		t.Errorf("absent record should yield the default snapshot, got %+v", got)
	}
}

func TestLoadSnapshot_CorruptRecord(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.sql.Exec(`INSERT INTO user_state(name, snapshot) VALUES('user', 'not json at all')`); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadSnapshot()
	if err == nil {
		t.Fatal("corrupt record should surface a PersistenceError")
	}
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PersistenceError, got %T", err)
	}
	// But the caller still gets a usable default state.
	if got != stats.Default() {
		t.Errorf("corrupt record should yield the default snapshot, got %+v", got)
	}
}

func TestClearSnapshot(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveSnapshot(stats.Snapshot{UserID: "42", Token: "tok", Score: 500, Level: stats.LevelWarrior}); err != nil {
		t.Fatal(err)
	}
	if err := db.ClearSnapshot(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	got, err := db.LoadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got.SignedIn() {
		t.Errorf("session survived logout: %+v", got)
	}
	if got != stats.Default() {
		t.Errorf("after clear = %+v, want default", got)
	}
}

func TestAnalysisHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	conf := 87
	rows := []AnalysisRow{
		{BatchID: "batch-1", ItemIndex: 0, Label: "Plastic Bottle", Category: "Recyclable", ConfidencePercent: &conf},
		{BatchID: "batch-1", ItemIndex: 1, Label: "Analysis Failed (File 2)", Category: "Error", Failed: true, ErrorMessage: "server error: 502"},
	}
	if err := db.AppendAnalyses(ctx, rows); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := db.RecentAnalyses(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}

	// Newest first: the failed row was inserted last.
	if !got[0].Failed || got[0].ErrorMessage != "server error: 502" {
		t.Errorf("first row = %+v", got[0])
	}
	if got[1].ConfidencePercent == nil || *got[1].ConfidencePercent != 87 {
		t.Errorf("confidence = %v", got[1].ConfidencePercent)
	}
	if got[0].AnalyzedAt.IsZero() {
		t.Error("analyzed_at not recorded")
	}
}

func TestRecentAnalyses_Limit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var rows []AnalysisRow
	for i := 0; i < 5; i++ {
		rows = append(rows, AnalysisRow{BatchID: "b", ItemIndex: i, Label: "x", Category: "y"})
	}
	if err := db.AppendAnalyses(ctx, rows); err != nil {
		t.Fatal(err)
	}

	got, err := db.RecentAnalyses(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("rows = %d, want 3", len(got))
	}
}
