package model

import "time"

// Character represents a user's in-game persona and its progression.
// XP arithmetic goes through the reward ledger only; Level, CurrentXP and
// XPToNext are always committed together as one resolved triple.
type Character struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"index:idx_char_account;not null" json:"account_id"`
	Name      string    `gorm:"size:32;not null" json:"name"`
	Archetype string    `gorm:"size:32" json:"archetype"`
	Level     int       `gorm:"default:1" json:"level"`
	CurrentXP int       `gorm:"default:0" json:"current_xp"`
	XPToNext  int       `gorm:"not null" json:"xp_to_next"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
