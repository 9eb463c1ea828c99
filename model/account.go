package model

import "time"

// Account statuses.
const (
	AccountBanned = 0
	AccountActive = 1
)

// Account is an app sign-in. Accounts are created implicitly the first time
// a username signs in; there is no separate registration step.
type Account struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string    `gorm:"size:72;not null" json:"-"`
	Status       int       `gorm:"default:1" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	// LastSeenAt and LastDeviceID track the most recent sign-in, kept for
	// support lookups when a player reports lock signals not arriving.
	LastSeenAt   *time.Time `json:"last_seen_at"`
	LastDeviceID string     `gorm:"size:64" json:"-"`
}
