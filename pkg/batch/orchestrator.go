package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ecosort/ecoscan/pkg/inference"
	"github.com/ecosort/ecoscan/pkg/media"
)

// State of the orchestrator. Transitions are irreversible within one batch:
// Idle -> Validating -> Analyzing -> Completed, with Aborted reachable only
// from Validating. Once analysis has started, every accepted item is
// attempted; there is no abort out of Analyzing.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateAnalyzing
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateAnalyzing:
		return "analyzing"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// ErrBatchInFlight is returned when Run is called while a previous batch is
// still validating or analyzing.
var ErrBatchInFlight = errors.New("a batch is already in flight")

// Result is the outcome for exactly one input item. A batch of N accepted
// items always yields N results in input order; failures are represented
// in-line so consumers never deal with missing slots.
type Result struct {
	Index int
	Item  *media.Item

	Label             string
	Category          string
	ConfidencePercent *int
	Instructions      string
	Facts             string
	EcoTip            string
	Boxes             []inference.BoundingBox

	Failed       bool
	ErrorMessage string
}

// Batch groups the accepted items of one submission. Discard releases the
// preview resources; callers own calling it when the batch is done with.
type Batch struct {
	ID    string
	Kind  media.Kind
	Items []*media.Item
}

// Discard releases every preview held by the batch.
func (b *Batch) Discard() error {
	if b == nil {
		return nil
	}
	return media.ReleaseAll(b.Items)
}

// Analyzer is the remote inference boundary: one request/response round trip
// per item.
type Analyzer interface {
	Analyze(ctx context.Context, item *media.Item) (*inference.Record, error)
}

// Reconciler folds one per-item outcome into the local score state and
// returns the points awarded.
type Reconciler interface {
	Apply(succeeded bool) int
}

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

type nopReconciler struct{}

func (nopReconciler) Apply(bool) int { return 0 }

// Config holds everything the orchestrator needs for a run.
type Config struct {
	Analyzer   Analyzer
	Reconciler Reconciler    // optional
	Limiter    *rate.Limiter // optional pacing between requests
	Log        Logger        // optional; nil = no logging

	// OnItemDone is called after each item's result is appended (and its
	// score applied), letting a CLI stream results as they land. Nil = no
	// callback.
	OnItemDone func(Result)
}

// Orchestrator drives one batch at a time through the Analyzer, strictly
// sequentially. Re-entry while a batch is in flight is rejected.
type Orchestrator struct {
	cfg Config

	mu    sync.Mutex
	state State
}

func New(cfg Config) *Orchestrator {
	if cfg.Log == nil {
		cfg.Log = nopLogger{}
	}
	if cfg.Reconciler == nil {
		cfg.Reconciler = nopReconciler{}
	}
	return &Orchestrator{cfg: cfg, state: StateIdle}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run submits a batch: validates every file, encodes previews, then analyzes
// the items one at a time. It always returns exactly one Result per accepted
// item, in input order, no matter how many items fail. A validation or
// encoding failure aborts the whole batch before any network activity.
func (o *Orchestrator) Run(ctx context.Context, paths []string, kind media.Kind) (*Batch, []Result, error) {
	if err := o.enter(); err != nil {
		return nil, nil, err
	}

	items, err := media.ValidateBatch(paths, kind)
	if err != nil {
		o.setState(StateAborted)
		return nil, nil, err
	}

	// All previews must exist before item 0 is dispatched. Encoding is
	// per-file isolated; any failure still aborts the submission, but the
	// batch is returned so already-encoded previews can be released.
	b := &Batch{ID: uuid.NewString(), Kind: kind, Items: items}
	if err := media.EncodeAll(items); err != nil {
		o.setState(StateAborted)
		return b, nil, err
	}

	o.setState(StateAnalyzing)
	o.cfg.Log.Debugf("Batch %s: analyzing %d %s item(s)", b.ID, len(items), kind)

	results := make([]Result, 0, len(items))
	for i, item := range items {
		results = append(results, o.analyzeOne(ctx, b, i, item))
	}

	o.setState(StateCompleted)
	return b, results, nil
}

// analyzeOne runs a single item through the Analyzer and folds the outcome
// into the score state before the next index is dispatched.
func (o *Orchestrator) analyzeOne(ctx context.Context, b *Batch, i int, item *media.Item) Result {
	var res Result

	switch err := o.waitTurn(ctx); {
	case err != nil:
		// Canceled mid-batch: the remaining slots still get a result each.
		res = failedResult(i, item, err)
	default:
		rec, err := o.cfg.Analyzer.Analyze(ctx, item)
		if err != nil {
			o.cfg.Log.Warnf("Batch %s: item %d (%s) failed: %v", b.ID, i+1, item.Name, err)
			res = failedResult(i, item, err)
		} else {
			res = Result{
				Index:             i,
				Item:              item,
				Label:             rec.Label,
				Category:          rec.Category,
				ConfidencePercent: rec.ConfidencePercent,
				Instructions:      rec.Instructions,
				Facts:             rec.Facts,
				EcoTip:            rec.EcoTip,
				Boxes:             rec.Boxes,
			}
		}
	}

	// Score state must reflect exactly the items analyzed so far, so the
	// reconciler runs before the next item is dispatched. Failed items go
	// through too, for a zero delta.
	awarded := o.cfg.Reconciler.Apply(!res.Failed)
	if awarded > 0 {
		o.cfg.Log.Debugf("Batch %s: item %d awarded %d points", b.ID, i+1, awarded)
	}

	if o.cfg.OnItemDone != nil {
		o.cfg.OnItemDone(res)
	}
	return res
}

// waitTurn applies the optional politeness pacing between requests.
func (o *Orchestrator) waitTurn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.cfg.Limiter == nil {
		return nil
	}
	return o.cfg.Limiter.Wait(ctx)
}

// enter moves to Validating, rejecting re-entry while a batch is in flight.
// A Completed or Aborted orchestrator may start over ("analyze again").
func (o *Orchestrator) enter() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateValidating || o.state == StateAnalyzing {
		return ErrBatchInFlight
	}
	o.state = StateValidating
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// failedResult is the synthetic placeholder for an item whose analysis
// failed. It keeps the batch's shape: downstream consumers never see a
// missing slot.
func failedResult(i int, item *media.Item, err error) Result {
	return Result{
		Index:        i,
		Item:         item,
		Label:        fmt.Sprintf("Analysis Failed (File %d)", i+1),
		Category:     "Error",
		Instructions: fmt.Sprintf("Could not analyze: %v", err),
		EcoTip:       "Try a clearer photo with better lighting.",
		Boxes:        []inference.BoundingBox{},
		Failed:       true,
		ErrorMessage: err.Error(),
	}
}
