package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an operation is not legal in the
// current lifecycle phase. Handlers treat it as a client error; the engine
// state is left untouched.
var ErrInvalidTransition = errors.New("engine: invalid state transition")

// ErrMissingLockTimestamp is returned when an UNLOCKED signal arrives with
// no recorded LOCKED timestamp (the process was not alive to see the lock).
// Benign: there is no interval to judge, so nothing changes.
var ErrMissingLockTimestamp = errors.New("engine: unlock signal without recorded lock")

// NarrativeError wraps a story-generation failure. It blocks the completed
// transition: the quest stays active until completion is retried.
type NarrativeError struct {
	QuestID string
	Err     error
}

func (e *NarrativeError) Error() string {
	return fmt.Sprintf("engine: narrative generation for %s: %v", e.QuestID, e.Err)
}

func (e *NarrativeError) Unwrap() error { return e.Err }
