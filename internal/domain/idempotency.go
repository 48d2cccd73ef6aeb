package domain

import "time"

// Idempotency represents a recorded result of a previously processed request,
// keyed by (user_id, match_id, key). It enables safe retries for message
// posts by returning the originally produced message without re-executing
// side effects (including the automated-reply trigger).
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_match_key,priority:1"`
	MatchID   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_match_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_match_key,priority:3"`
	MessageID string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
