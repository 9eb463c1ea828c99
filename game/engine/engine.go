package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/venloapp/questlock/server/game/catalog"
	"github.com/venloapp/questlock/server/game/reward"
	"github.com/venloapp/questlock/server/model"
	"github.com/venloapp/questlock/server/scheduler"
	"github.com/venloapp/questlock/server/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUnknownQuest is returned when a start request names a template that is
// not in the catalog.
var ErrUnknownQuest = errors.New("engine: unknown quest template")

// TransitionEntry is one journaled lifecycle event.
type TransitionEntry struct {
	CharID    int64
	QuestID   string
	Action    string
	FromPhase Phase
	ToPhase   Phase
	SignalMs  *int64
	Error     string
}

// Journal records transition entries asynchronously. Implementations must
// never block the caller.
type Journal interface {
	Record(entry TransitionEntry)
}

// Notifier delivers quest events to presenter streams. Best-effort: the
// engine ignores delivery failures.
type Notifier interface {
	Publish(ctx context.Context, channel, message string) error
}

// Options carries the collaborators an Engine needs.
type Options struct {
	DB           *gorm.DB
	Store        store.Store
	Catalog      *catalog.Catalog
	Ledger       *reward.Ledger
	Journal      Journal
	Notifier     Notifier
	Sched        *scheduler.Scheduler
	TickInterval time.Duration
	// SignalBuf caps the buffered inbox used when a client delivers a
	// backlog of queued signals in one request.
	SignalBuf int
	Logger    *zap.Logger
	// Now returns the current wall clock in epoch milliseconds. Tests
	// inject a fake; production uses time.Now.
	Now func() int64
}

// Engine owns the canonical quest lifecycle for one character. All
// transitions are check-and-set under one mutex with no suspension point in
// between, so the two independent observers that can conclude a quest (the
// foreground ticker and unlock reconciliation) cannot both do so: the loser
// finds the phase already moved and does nothing.
//
// Every judgment of elapsed time is a wall-clock delta between recorded
// timestamps, never a count of ticks — the state stays correct even when no
// process was alive for the whole quest.
type Engine struct {
	mu      sync.Mutex
	charID  int64
	phase   Phase
	tpl     *catalog.QuestTemplate
	startMs  int64  // valid while active
	lockedAt *int64 // most recent LOCKED timestamp while pending/active
	outcome  *Outcome

	opts      Options
	lastTouch time.Time
}

// AckResult reports what acknowledging an outcome did.
type AckResult struct {
	Outcome  *Outcome         `json:"outcome"`
	Progress *reward.Progress `json:"progress,omitempty"` // set when XP was granted
}

// Status is a read-only view of the quest slot for handlers.
type Status struct {
	Phase       Phase    `json:"phase"`
	QuestID     string   `json:"quest_id,omitempty"`
	Title       string   `json:"title,omitempty"`
	DurationMs  int64    `json:"duration_ms,omitempty"`
	StartTimeMs *int64   `json:"start_time_ms,omitempty"`
	RemainingMs int64    `json:"remaining_ms"`
	Outcome     *Outcome `json:"outcome,omitempty"`
}

// New creates an Engine for the given character, restoring any persisted
// snapshot from the durable store. A snapshot referencing a template that no
// longer exists resets the slot to none.
func New(ctx context.Context, charID int64, opts Options) (*Engine, error) {
	if opts.Now == nil {
		opts.Now = func() int64 { return time.Now().UnixMilli() }
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.SignalBuf <= 0 {
		opts.SignalBuf = 16
	}
	e := &Engine{charID: charID, phase: PhaseNone, opts: opts, lastTouch: time.Now()}

	raw, ok, err := opts.Store.Load(ctx, e.storeKey())
	if err != nil {
		return nil, fmt.Errorf("engine: load snapshot: %w", err)
	}
	if ok {
		e.restore(raw)
	}
	if e.phase == PhaseActive {
		e.ensureTickerLocked()
	}
	return e, nil
}

func (e *Engine) storeKey() string {
	return fmt.Sprintf("queststate:%d", e.charID)
}

func (e *Engine) tickerName() string {
	return fmt.Sprintf("quest_tick:%d", e.charID)
}

// restore applies a persisted snapshot. Unparseable or stale snapshots are
// discarded: an externally cleared store must read as a fresh slot.
func (e *Engine) restore(raw []byte) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		e.opts.Logger.Warn("discarding unreadable quest snapshot",
			zap.Int64("char_id", e.charID), zap.Error(err))
		return
	}
	switch snap.Phase {
	case PhasePending, PhaseActive:
		tpl := e.opts.Catalog.Get(snap.QuestID)
		if tpl == nil {
			e.opts.Logger.Warn("snapshot references unknown quest, resetting",
				zap.Int64("char_id", e.charID), zap.String("quest_id", snap.QuestID))
			return
		}
		e.tpl = tpl
		e.phase = snap.Phase
		if snap.StartTimeMs != nil {
			e.startMs = *snap.StartTimeMs
		}
		e.lockedAt = snap.LockedAtMs
	case PhaseCompleted, PhaseFailed:
		if snap.Outcome == nil {
			return
		}
		e.phase = snap.Phase
		e.outcome = snap.Outcome
	}
}

// CharID returns the owning character ID.
func (e *Engine) CharID() int64 { return e.charID }

// LastTouch returns when the engine last handled an operation.
func (e *Engine) LastTouch() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTouch
}

// Status returns the current slot state and display remaining time.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// remainingLocked computes max(0, duration − (now − start)) for the active
// quest. Pure arithmetic on timestamps.
func (e *Engine) remainingLocked(nowMs int64) int64 {
	rem := e.tpl.DurationMs() - (nowMs - e.startMs)
	if rem < 0 {
		return 0
	}
	return rem
}

// Remaining returns the display remaining time at nowMs, or 0 when no quest
// is active.
func (e *Engine) Remaining(nowMs int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseActive {
		return 0
	}
	return e.remainingLocked(nowMs)
}

// StartQuest begins an attempt at the named template. Default behavior
// leaves the slot pending until the first LOCKED signal assigns the true
// start; immediate start is the none → active shortcut for platforms
// without lock broadcast.
func (e *Engine) StartQuest(ctx context.Context, questID string, immediate bool) (Status, error) {
	tpl := e.opts.Catalog.Get(questID)
	if tpl == nil {
		return Status{}, ErrUnknownQuest
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()
	if e.phase != PhaseNone {
		return Status{}, fmt.Errorf("%w: start from %s", ErrInvalidTransition, e.phase)
	}

	from := e.phase
	e.tpl = tpl
	e.outcome = nil
	if immediate {
		e.phase = PhaseActive
		e.startMs = e.opts.Now()
		e.ensureTickerLocked()
	} else {
		e.phase = PhasePending
		e.startMs = 0
	}
	e.persistLocked(ctx)
	e.journalLocked("start", from, nil, "")
	e.notifyLocked(ctx, "quest_progress")
	return e.statusLocked(), nil
}

// OnLocked records the device lock timestamp while a quest is pending or
// active. Signals in any other phase carry no quest to judge and are
// dropped.
func (e *Engine) OnLocked(ctx context.Context, atMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()
	if e.phase != PhasePending && e.phase != PhaseActive {
		return
	}
	at := atMs
	e.lockedAt = &at
	e.persistLocked(ctx)
	e.journalLocked("lock", e.phase, &at, "")
}

// OnUnlocked reconciles the lock interval against the quest:
//
//  1. no recorded lock → nothing to judge, benign no-op
//  2. pending → backdate start to the lock moment, then judge
//  3. active → judge against the recorded start
//
// The recorded lock timestamp is consumed in every branch.
func (e *Engine) OnUnlocked(ctx context.Context, atMs int64) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	if e.lockedAt == nil {
		e.opts.Logger.Info("unlock signal without recorded lock, ignoring",
			zap.Int64("char_id", e.charID), zap.String("phase", string(e.phase)))
		e.journalLocked("unlock", e.phase, &atMs, ErrMissingLockTimestamp.Error())
		return e.statusLocked(), ErrMissingLockTimestamp
	}
	tLock := *e.lockedAt
	e.lockedAt = nil // consumed, regardless of branch

	switch e.phase {
	case PhasePending:
		// The attempt truly began when the phone locked, not now.
		from := e.phase
		e.phase = PhaseActive
		e.startMs = tLock
		if atMs-tLock >= e.tpl.DurationMs() {
			if err := e.completeLocked(ctx, true, atMs); err != nil {
				// Completion blocked (narrative failure): remain active
				// with the backdated start; the ticker will retry.
				e.ensureTickerLocked()
				e.persistLocked(ctx)
				return e.statusLocked(), err
			}
			return e.statusLocked(), nil
		}
		e.ensureTickerLocked()
		e.persistLocked(ctx)
		e.journalLocked("unlock", from, &atMs, "")
		e.notifyLocked(ctx, "quest_progress")
		return e.statusLocked(), nil

	case PhaseActive:
		if atMs-e.startMs >= e.tpl.DurationMs() {
			if err := e.completeLocked(ctx, true, atMs); err != nil {
				e.persistLocked(ctx)
				return e.statusLocked(), err
			}
			return e.statusLocked(), nil
		}
		// Unlocking early is a failure, full stop.
		e.failLocked(ctx, atMs)
		return e.statusLocked(), nil

	default:
		e.persistLocked(ctx)
		return e.statusLocked(), nil
	}
}

// Signals dispatches lock-state signals from an inbound channel until ctx
// is done or the channel closes. It decouples reconciliation from any
// particular event-subscription API.
func (e *Engine) Signals(ctx context.Context, ch <-chan Signal) {
	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				return
			}
			switch sig.Kind {
			case SignalLocked:
				e.OnLocked(ctx, sig.AtMs)
			case SignalUnlocked:
				_, _ = e.OnUnlocked(ctx, sig.AtMs)
			}
		case <-ctx.Done():
			return
		}
	}
}

// CompleteQuest concludes the active quest as a success. Without force the
// duration must have fully elapsed; force is reserved for the reconciliation
// path, which has already established the interval from timestamps.
func (e *Engine) CompleteQuest(ctx context.Context, force bool) (*Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()
	if err := e.completeLocked(ctx, force, e.opts.Now()); err != nil {
		return nil, err
	}
	return e.outcome, nil
}

// completeLocked performs the completed transition. Callers hold e.mu.
func (e *Engine) completeLocked(ctx context.Context, force bool, atMs int64) error {
	switch e.phase {
	case PhaseActive:
		if !force && atMs-e.startMs < e.tpl.DurationMs() {
			return fmt.Errorf("%w: %dms remaining", ErrInvalidTransition, e.remainingLocked(atMs))
		}
	case PhasePending:
		if !force {
			return fmt.Errorf("%w: complete from pending", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, e.phase)
	}

	var char model.Character
	if err := e.opts.DB.WithContext(ctx).First(&char, e.charID).Error; err != nil {
		nerr := &NarrativeError{QuestID: e.tpl.ID, Err: fmt.Errorf("load character: %w", err)}
		e.journalLocked("complete", e.phase, &atMs, nerr.Error())
		return nerr
	}
	story, err := e.tpl.Story(&char)
	if err != nil {
		nerr := &NarrativeError{QuestID: e.tpl.ID, Err: err}
		e.journalLocked("complete", e.phase, &atMs, nerr.Error())
		return nerr
	}

	from := e.phase
	e.phase = PhaseCompleted
	e.lockedAt = nil
	e.outcome = &Outcome{
		QuestID:     e.tpl.ID,
		Title:       e.tpl.Title,
		Success:     true,
		Story:       story,
		RewardXP:    e.tpl.RewardXP,
		POISlug:     e.tpl.POISlug,
		SettledAtMs: atMs,
	}
	e.dropTickerLocked()
	e.revealLocked(ctx)
	e.persistLocked(ctx)
	e.journalLocked("complete", from, &atMs, "")
	e.notifyLocked(ctx, "quest_completed")
	return nil
}

// FailQuest concludes the pending or active quest as a failure. Failure is
// a normal terminal outcome, not an error.
func (e *Engine) FailQuest(ctx context.Context) (*Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()
	if e.phase != PhaseActive && e.phase != PhasePending {
		return nil, fmt.Errorf("%w: fail from %s", ErrInvalidTransition, e.phase)
	}
	e.failLocked(ctx, e.opts.Now())
	return e.outcome, nil
}

// failLocked performs the failed transition from pending/active. Callers
// hold e.mu and have validated the phase.
func (e *Engine) failLocked(ctx context.Context, atMs int64) {
	from := e.phase
	e.phase = PhaseFailed
	e.lockedAt = nil
	e.outcome = &Outcome{
		QuestID:     e.tpl.ID,
		Title:       e.tpl.Title,
		Success:     false,
		SettledAtMs: atMs,
	}
	e.dropTickerLocked()
	e.persistLocked(ctx)
	e.journalLocked("fail", from, &atMs, "")
	e.notifyLocked(ctx, "quest_failed")
}

// AcknowledgeOutcome clears the held outcome and returns the slot to none.
// Acknowledging a completed outcome grants its XP through the reward ledger
// — the single entry point that mutates character progression. Idempotent:
// acknowledging an empty slot is a no-op.
func (e *Engine) AcknowledgeOutcome(ctx context.Context) (*AckResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	switch e.phase {
	case PhaseNone:
		return nil, nil // already acknowledged
	case PhaseCompleted, PhaseFailed:
	default:
		return nil, fmt.Errorf("%w: acknowledge from %s", ErrInvalidTransition, e.phase)
	}

	out := e.outcome
	res := &AckResult{Outcome: out}
	if out != nil && out.Success && out.RewardXP > 0 {
		var char model.Character
		if err := e.opts.DB.WithContext(ctx).First(&char, e.charID).Error; err != nil {
			return nil, fmt.Errorf("engine: load character for reward: %w", err)
		}
		p, err := e.opts.Ledger.Grant(ctx, &char, out.RewardXP)
		if err != nil {
			// Outcome stays held so the grant can be retried.
			return nil, fmt.Errorf("engine: grant reward: %w", err)
		}
		res.Progress = &p
	}

	from := e.phase
	e.phase = PhaseNone
	e.tpl = nil
	e.startMs = 0
	e.outcome = nil
	e.persistLocked(ctx)
	e.journalLocked("acknowledge", from, nil, "")
	e.notifyLocked(ctx, "quest_progress")
	return res, nil
}

// AbandonQuest is the user-initiated failure path (giving up early).
func (e *Engine) AbandonQuest(ctx context.Context) (*Outcome, error) {
	return e.FailQuest(ctx)
}

// Close tears down the engine's ticker. Pending state is already durable.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropTickerLocked()
}

// tick is the foreground timer body: a redundant, defense-in-depth observer
// for the case where the phone never locks, so no unlock reconciliation
// ever fires.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseActive {
		e.dropTickerLocked()
		return
	}
	nowMs := e.opts.Now()
	if e.remainingLocked(nowMs) > 0 {
		return
	}
	if err := e.completeLocked(context.Background(), false, nowMs); err != nil {
		var nerr *NarrativeError
		if errors.As(err, &nerr) {
			// Stays active; retried next tick.
			e.opts.Logger.Warn("completion blocked by narrative failure",
				zap.Int64("char_id", e.charID), zap.Error(err))
			return
		}
		// Lost the race to another observer; nothing to do.
	}
}

func (e *Engine) ensureTickerLocked() {
	if e.opts.Sched == nil {
		return
	}
	e.opts.Sched.AddTicker(e.tickerName(), e.opts.TickInterval, e.tick)
}

func (e *Engine) dropTickerLocked() {
	if e.opts.Sched == nil {
		return
	}
	e.opts.Sched.Remove(e.tickerName())
}

// revealLocked marks the quest's point of interest revealed. Best-effort;
// a duplicate reveal from a repeated quest is not an error.
func (e *Engine) revealLocked(ctx context.Context) {
	if e.tpl.POISlug == "" {
		return
	}
	loc := &model.RevealedLocation{CharID: e.charID, POISlug: e.tpl.POISlug, QuestID: e.tpl.ID}
	if err := e.opts.DB.WithContext(ctx).Create(loc).Error; err != nil {
		e.opts.Logger.Debug("location reveal skipped",
			zap.Int64("char_id", e.charID),
			zap.String("poi", e.tpl.POISlug),
			zap.Error(err))
	}
}

// persistLocked snapshots the slot to the durable store. A write failure
// never rolls back the in-memory transition: the engine keeps operating
// from memory and the next mutation rewrites the full snapshot.
func (e *Engine) persistLocked(ctx context.Context) {
	snap := snapshot{Phase: e.phase, Outcome: e.outcome}
	if e.tpl != nil {
		snap.QuestID = e.tpl.ID
	}
	if e.phase == PhaseActive {
		start := e.startMs
		snap.StartTimeMs = &start
	}
	snap.LockedAtMs = e.lockedAt
	raw, err := json.Marshal(&snap)
	if err != nil {
		e.opts.Logger.Error("snapshot marshal failed", zap.Int64("char_id", e.charID), zap.Error(err))
		return
	}
	if err := e.opts.Store.Save(ctx, e.storeKey(), raw); err != nil {
		e.opts.Logger.Warn("state persistence failed, continuing from memory",
			zap.Int64("char_id", e.charID), zap.Error(err))
	}
}

func (e *Engine) journalLocked(action string, from Phase, signalMs *int64, errMsg string) {
	if e.opts.Journal == nil {
		return
	}
	entry := TransitionEntry{
		CharID:    e.charID,
		Action:    action,
		FromPhase: from,
		ToPhase:   e.phase,
		SignalMs:  signalMs,
		Error:     errMsg,
	}
	if e.tpl != nil {
		entry.QuestID = e.tpl.ID
	} else if e.outcome != nil {
		entry.QuestID = e.outcome.QuestID
	}
	e.opts.Journal.Record(entry)
}

func (e *Engine) notifyLocked(ctx context.Context, event string) {
	if e.opts.Notifier == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"event":  event,
		"status": e.statusLocked(),
	})
	if err := e.opts.Notifier.Publish(ctx, fmt.Sprintf("quest:%d", e.charID), string(payload)); err != nil {
		e.opts.Logger.Debug("quest notification dropped", zap.Int64("char_id", e.charID), zap.Error(err))
	}
}

func (e *Engine) statusLocked() Status {
	st := Status{Phase: e.phase, Outcome: e.outcome}
	if e.tpl != nil {
		st.QuestID = e.tpl.ID
		st.Title = e.tpl.Title
		st.DurationMs = e.tpl.DurationMs()
	}
	switch e.phase {
	case PhaseActive:
		start := e.startMs
		st.StartTimeMs = &start
		st.RemainingMs = e.remainingLocked(e.opts.Now())
	case PhasePending:
		st.RemainingMs = e.tpl.DurationMs()
	}
	return st
}

func (e *Engine) touchLocked() {
	e.lastTouch = time.Now()
}
