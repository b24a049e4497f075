package gamification

import (
	"testing"

	"github.com/ecosort/ecoscan/pkg/stats"
)

func TestNormalizeSnapshot(t *testing.T) {
	tests := []struct {
		name string
		body string
		want stats.Snapshot
	}{
		{
			name: "snake_case fields",
			body: `{"username":"sam","score":850,"items_analyzed":5,"streak":3,"co2_saved":1.5,"trees_planted":2}`,
			want: stats.Snapshot{
				Username: "sam", Score: 850, ItemsAnalyzed: 5, StreakDays: 3,
				CO2SavedKg: 1.5, TreesPlanted: 2, Level: stats.LevelWarrior,
			},
		},
		{
			name: "camelCase fields",
			body: `{"username":"sam","score":120,"itemsAnalyzed":1,"streakDays":1,"co2Saved":0.3,"treesPlanted":1,"perfectWeekStreak":true,"weeklyActivity":[1,1,1,1,1,1,1]}`,
			want: stats.Snapshot{
				Username: "sam", Score: 120, ItemsAnalyzed: 1, StreakDays: 1,
				CO2SavedKg: 0.3, TreesPlanted: 1, PerfectWeekStreak: true,
				WeeklyActivity: [7]int{1, 1, 1, 1, 1, 1, 1}, Level: stats.LevelExplorer,
			},
		},
		{
			name: "missing optional fields default to zero",
			body: `{"score":50,"items_analyzed":1}`,
			want: stats.Snapshot{Score: 50, ItemsAnalyzed: 1, Level: stats.LevelBase},
		},
		{
			name: "empty object",
			body: `{}`,
			want: stats.Snapshot{Level: stats.LevelBase},
		},
		{
			name: "camelCase spelling wins when both present",
			body: `{"itemsAnalyzed":7,"items_analyzed":3}`,
			want: stats.Snapshot{ItemsAnalyzed: 7, Level: stats.LevelBase},
		},
		{
			name: "short weekly activity array",
			body: `{"weeklyActivity":[2,1]}`,
			want: stats.Snapshot{WeeklyActivity: [7]int{2, 1, 0, 0, 0, 0, 0}, Level: stats.LevelBase},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSnapshot(tt.body)
			if got != tt.want {
				t.Errorf("NormalizeSnapshot() =\n  %+v\nwant\n  %+v", got, tt.want)
			}
		})
	}
}

// A server stats response missing co2Saved and weeklyActivity must normalize
// without error to zero values, not panic or reject.
func TestNormalizeSnapshot_MissingCO2AndWeekly(t *testing.T) {
	got := NormalizeSnapshot(`{"username":"sam","score":300,"items_analyzed":2,"streak":1}`)

	if got.CO2SavedKg != 0 {
		t.Errorf("co2Saved = %v, want 0", got.CO2SavedKg)
	}
	if got.WeeklyActivity != [7]int{} {
		t.Errorf("weeklyActivity = %v, want all zeros", got.WeeklyActivity)
	}
	if got.PerfectWeekStreak {
		t.Error("perfectWeekStreak should default to false")
	}
}
