package stats

import "time"

// Eco levels, a pure function of score.
const (
	LevelBase     = "Eco-Explorer"
	LevelExplorer = "Eco Explorer"
	LevelWarrior  = "Eco Warrior"
	LevelExpert   = "Eco Expert"
)

// Snapshot is the user's stats state: session identity, the optimistic
// counters, and the gamification bookkeeping. It is the unit of persistence
// and of server reconciliation.
type Snapshot struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`

	Score         int `json:"score"`
	ItemsAnalyzed int `json:"itemsAnalyzed"`
	StreakDays    int `json:"streakDays"`

	CO2SavedKg   float64 `json:"co2SavedKg"`
	TreesPlanted int     `json:"treesPlanted"`

	// WeeklyActivity has exactly 7 slots, Monday=0 .. Sunday=6.
	WeeklyActivity    [7]int `json:"weeklyActivity"`
	PerfectWeekStreak bool   `json:"perfectWeekStreak"`

	Level string `json:"level"`
}

// Default returns the documented starting snapshot: all-zero counters and the
// base level. Used on first run, after logout, and when the durable record is
// corrupt or absent.
func Default() Snapshot {
	return Snapshot{Level: LevelBase}
}

// SignedIn reports whether the snapshot carries a usable session.
func (s Snapshot) SignedIn() bool {
	return s.UserID != "" && s.Token != ""
}

// LevelForScore maps a score onto an eco level. Thresholds: 100, 500, 1000.
func LevelForScore(score int) string {
	switch {
	case score >= 1000:
		return LevelExpert
	case score >= 500:
		return LevelWarrior
	case score >= 100:
		return LevelExplorer
	}
	return LevelBase
}

// WeekdaySlot maps a time onto the weekly-activity index: Monday=0 .. Sunday=6.
func WeekdaySlot(t time.Time) int {
	// time.Weekday counts Sunday=0; shift so Monday leads the week.
	return (int(t.Weekday()) + 6) % 7
}

func allSlotsNonzero(week [7]int) bool {
	for _, v := range week {
		if v == 0 {
			return false
		}
	}
	return true
}
