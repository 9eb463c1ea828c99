package engine

// Phase is the quest lifecycle phase. Legal transitions:
//
//	none → pending → active → completed|failed → none (acknowledge)
//
// plus the immediate-start shortcut none → active. Everything else is
// rejected with ErrInvalidTransition.
type Phase string

const (
	PhaseNone      Phase = "none"
	PhasePending   Phase = "pending"
	PhaseActive    Phase = "active"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Outcome is a terminal quest result held until the user acknowledges it.
// For a success the story is generated exactly once, at completion, and
// frozen here — it is never regenerated.
type Outcome struct {
	QuestID     string `json:"quest_id"`
	Title       string `json:"title"`
	Success     bool   `json:"success"`
	Story       string `json:"story,omitempty"`
	RewardXP    int    `json:"reward_xp"`
	POISlug     string `json:"poi_slug,omitempty"`
	SettledAtMs int64  `json:"settled_at_ms"`
}

// SignalKind tags a lock-state signal.
type SignalKind string

const (
	SignalLocked   SignalKind = "locked"
	SignalUnlocked SignalKind = "unlocked"
)

// Signal is one device lock-state event: the kind and the device wall-clock
// timestamp at which the transition was observed, in epoch milliseconds.
// Delivery is at-most-once; signals may be missing entirely.
type Signal struct {
	Kind SignalKind `json:"kind"`
	AtMs int64      `json:"at_ms"`
}

// snapshot is the JSON shape persisted to the durable store after every
// transition. It carries everything needed to rebuild the slot after a
// restart; elapsed time is always recomputable from the timestamps alone.
type snapshot struct {
	Phase       Phase    `json:"phase"`
	QuestID     string   `json:"quest_id,omitempty"`
	StartTimeMs *int64   `json:"start_time_ms,omitempty"`
	LockedAtMs  *int64   `json:"locked_at_ms,omitempty"`
	Outcome     *Outcome `json:"outcome,omitempty"`
}
