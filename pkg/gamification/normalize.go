package gamification

import (
	"github.com/tidwall/gjson"

	"github.com/ecosort/ecoscan/pkg/stats"
)

// NormalizeSnapshot maps a server stats payload onto a stats.Snapshot.
// The backend has shipped both snake_case and camelCase spellings of these
// fields over time, so both are accepted here, in one place. Defaults per
// field when absent:
//
//	score, itemsAnalyzed, streak, co2Saved, treesPlanted  -> 0
//	perfectWeekStreak                                     -> false
//	weeklyActivity                                        -> [0,0,0,0,0,0,0]
//
// The returned snapshot carries no session fields; merging identity back in
// is the store's job.
func NormalizeSnapshot(body string) stats.Snapshot {
	snap := stats.Default()

	snap.Username = pick(body, "username", "user_name").String()
	snap.Score = int(pick(body, "score").Int())
	snap.ItemsAnalyzed = int(pick(body, "itemsAnalyzed", "items_analyzed").Int())
	snap.StreakDays = int(pick(body, "streak", "streakDays", "streak_days").Int())
	snap.CO2SavedKg = pick(body, "co2Saved", "co2_saved").Float()
	snap.TreesPlanted = int(pick(body, "treesPlanted", "trees_planted").Int())
	snap.PerfectWeekStreak = pick(body, "perfectWeekStreak", "perfect_week_streak").Bool()

	if week := pick(body, "weeklyActivity", "weekly_activity"); week.IsArray() {
		for i, v := range week.Array() {
			if i >= len(snap.WeeklyActivity) {
				break
			}
			snap.WeeklyActivity[i] = int(v.Int())
		}
	}

	snap.Level = stats.LevelForScore(snap.Score)
	return snap
}

// pick returns the first existing field among the given spellings.
func pick(body string, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := gjson.Get(body, p); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}
