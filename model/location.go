package model

import "time"

// RevealedLocation marks one map point of interest as revealed for a
// character. Revealed by completed quests; never un-revealed.
type RevealedLocation struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID    int64     `gorm:"uniqueIndex:idx_loc_char_slug;not null" json:"char_id"`
	POISlug   string    `gorm:"uniqueIndex:idx_loc_char_slug;size:64;not null" json:"poi_slug"`
	QuestID   string    `gorm:"size:64" json:"quest_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
