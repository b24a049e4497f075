package stats

import (
	"context"
	"sync"
	"time"
)

// Point awards around the fifth successful analysis.
const (
	earlyAward      = 150
	steadyAward     = 250
	earlyAwardCount = 4
)

// syncTimeout bounds one detached leaderboard push.
const syncTimeout = 30 * time.Second

// Syncer pushes the cumulative score to the remote leaderboard and returns
// the server's authoritative snapshot.
type Syncer interface {
	PushScore(ctx context.Context, userID, token string, score, itemsAnalyzed int) (Snapshot, error)
}

// Reconciler folds per-item analysis outcomes into the Store and issues
// best-effort leaderboard syncs. Local state is the source of truth for the
// session; the remote record catches up opportunistically.
type Reconciler struct {
	store  *Store
	syncer Syncer
	log    Logger

	// now is swappable for tests exercising the weekly-activity slots.
	now func() time.Time

	wg sync.WaitGroup
}

// NewReconciler builds a Reconciler. syncer and log may be nil; a nil syncer
// disables remote reconciliation entirely.
func NewReconciler(store *Store, syncer Syncer, log Logger) *Reconciler {
	if log == nil {
		log = nopLogger{}
	}
	return &Reconciler{store: store, syncer: syncer, log: log, now: time.Now}
}

// Apply folds one item outcome into the store and returns the points awarded.
// Failed items award nothing and touch no counters. The remote sync, when a
// session exists, runs detached: its failure is logged and swallowed, and it
// never blocks the caller or rolls the local counters back.
func (r *Reconciler) Apply(succeeded bool) int {
	if !succeeded {
		return 0
	}

	var award int
	snap := r.store.mutate(func(s *Snapshot) {
		if s.ItemsAnalyzed < earlyAwardCount {
			award = earlyAward
		} else {
			award = steadyAward
		}
		s.Score += award
		s.ItemsAnalyzed++
		s.StreakDays++
		s.WeeklyActivity[WeekdaySlot(r.now())]++
		s.PerfectWeekStreak = allSlotsNonzero(s.WeeklyActivity)
	})

	if r.syncer != nil && snap.SignedIn() {
		r.wg.Add(1)
		go r.push(snap)
	}

	return award
}

// push sends one cumulative score update. It deliberately uses its own
// context: canceling a batch must not abort an already-dispatched sync.
func (r *Reconciler) push(snap Snapshot) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	server, err := r.syncer.PushScore(ctx, snap.UserID, snap.Token, snap.Score, snap.ItemsAnalyzed)
	if err != nil {
		r.log.Warnf("Leaderboard sync failed (keeping local score %d): %v", snap.Score, err)
		return
	}

	r.store.ReplaceFromServer(server)
	r.log.Debugf("Leaderboard synced: server score %d, %d items", server.Score, server.ItemsAnalyzed)
}

// Wait blocks until every in-flight sync has finished. Callers that are about
// to exit the process should wait so dispatched updates get a chance to land.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
