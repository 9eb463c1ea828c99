package model

import (
	"time"

	"gorm.io/datatypes"
)

// TransitionLog journals quest state transitions and lock signals.
// Written asynchronously by the journal service; rows are append-only.
type TransitionLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string         `gorm:"index:idx_trans_trace;size:36" json:"trace_id"`
	CharID    int64          `gorm:"index:idx_trans_char;not null" json:"char_id"`
	QuestID   string         `gorm:"size:64" json:"quest_id"`
	Action    string         `gorm:"size:64;not null" json:"action"` // start, lock, unlock, complete, fail, acknowledge
	FromPhase string         `gorm:"size:16" json:"from_phase"`
	ToPhase   string         `gorm:"size:16" json:"to_phase"`
	SignalMs  *int64         `json:"signal_ms"` // lock/unlock wall-clock timestamp, if any
	Detail    datatypes.JSON `json:"detail"`
	Error     string         `gorm:"type:text" json:"error"`
	CreatedAt time.Time      `gorm:"index:idx_trans_created;autoCreateTime:milli" json:"created_at"`
}
