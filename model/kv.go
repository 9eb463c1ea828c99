package model

import "time"

// KVEntry backs the opaque durable state store. Values are JSON blobs the
// engine writes best-effort; the schema makes no assumptions about content.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     []byte    `gorm:"type:blob" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
