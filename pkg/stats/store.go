package stats

import "sync"

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Mirror is the durable side of the store. Every mutation is flushed through
// it; Clear wipes the durable record on logout.
type Mirror interface {
	SaveSnapshot(Snapshot) error
	ClearSnapshot() error
}

// Store is the single in-memory owner of the user's Snapshot. All mutation
// goes through its methods; presentation layers only ever get copies.
type Store struct {
	mu     sync.Mutex
	snap   Snapshot
	mirror Mirror
	log    Logger
}

// NewStore builds a Store starting from the default snapshot. mirror and log
// may be nil.
func NewStore(mirror Mirror, log Logger) *Store {
	if log == nil {
		log = nopLogger{}
	}
	return &Store{snap: Default(), mirror: mirror, log: log}
}

// Snapshot returns a copy of the current state.
func (st *Store) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snap
}

// Rehydrate replaces in-memory state with a previously persisted snapshot.
// It does not write back to the mirror: the mirror is where it came from.
func (st *Store) Rehydrate(snap Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if snap.Level == "" {
		snap.Level = LevelForScore(snap.Score)
	}
	st.snap = snap
}

// SetSession records the signed-in identity after a login.
func (st *Store) SetSession(userID, username, token string) {
	st.mutate(func(s *Snapshot) {
		s.UserID = userID
		s.Username = username
		s.Token = token
	})
}

// ReplaceFromServer overwrites the stats counters with an authoritative
// server snapshot, keeping the local session identity. Last writer wins:
// whichever response arrives last is the state we keep.
func (st *Store) ReplaceFromServer(server Snapshot) {
	st.mutate(func(s *Snapshot) {
		s.Score = server.Score
		s.ItemsAnalyzed = server.ItemsAnalyzed
		s.StreakDays = server.StreakDays
		s.CO2SavedKg = server.CO2SavedKg
		s.TreesPlanted = server.TreesPlanted
		s.WeeklyActivity = server.WeeklyActivity
		s.PerfectWeekStreak = server.PerfectWeekStreak
		if server.Username != "" {
			s.Username = server.Username
		}
	})
}

// Reset clears both the in-memory state and the durable record (logout).
func (st *Store) Reset() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.snap = Default()
	if st.mirror == nil {
		return nil
	}
	return st.mirror.ClearSnapshot()
}

// mutate applies fn under the lock, recomputes the derived level, and flushes
// the result through the mirror. A mirror failure is logged, never fatal.
func (st *Store) mutate(fn func(*Snapshot)) Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.snap)
	st.snap.Level = LevelForScore(st.snap.Score)
	if st.mirror != nil {
		if err := st.mirror.SaveSnapshot(st.snap); err != nil {
			st.log.Warnf("Could not persist stats snapshot: %v", err)
		}
	}
	return st.snap
}
