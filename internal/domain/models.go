// Package domain defines the persistence models for profiles, matches, and
// messages. These types are mapped with GORM and form the core data layer
// of the matchmaking backend.
package domain

import "time"

// Gender values recognized in profile fields. SeekingAll is only valid for
// the SeekingGender field and matches any counterpart gender.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	SeekingAll   = "all"
)

// Profile holds the user-facing identity of a participant. It is owned and
// written by the surrounding account/profile system; this service only reads
// it (seeding aside, see cmd/seed).
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Gender / SeekingGender: the two fields that drive mutual-interest
//     matching. Either may be empty on a half-completed profile, in which
//     case the user cannot start a matching session.
//   - Nickname / AvatarURL / Bio: display attributes passed through to
//     clients and used when prompting the AI persona.
type Profile struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	Gender        string    `json:"gender"         gorm:"type:varchar(16)"`
	SeekingGender string    `json:"seeking_gender" gorm:"type:varchar(16)"`
	Nickname      string    `json:"nickname"       gorm:"type:varchar(64);not null;uniqueIndex:ux_profile_nickname"`
	AvatarURL     string    `json:"avatar_url"     gorm:"type:varchar(255)"`
	Bio           string    `json:"bio"            gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Complete reports whether both matching-relevant fields are set. Incomplete
// profiles can browse venues but cannot enter matching.
func (p *Profile) Complete() bool {
	return p.Gender != "" && p.SeekingGender != ""
}

// Match records that two users have been paired. Rows are created exactly
// once per unordered user pair, are never updated after the icebreaker is
// attached, and are never deleted.
//
// Invariant: UserAID < UserBID under lexicographic byte order, so the pair
// (x, y) and the pair (y, x) map to the same row and "have these two already
// matched" is a single indexed lookup. The composite unique index is what
// resolves the cross-session creation race: the losing insert becomes a
// read-back of the winner's row.
type Match struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserAID    string    `json:"user_a_id"  gorm:"type:char(36);not null;uniqueIndex:ux_match_pair,priority:1"`
	UserBID    string    `json:"user_b_id"  gorm:"type:char(36);not null;uniqueIndex:ux_match_pair,priority:2;index:idx_match_user_b"`
	Icebreaker string    `json:"icebreaker" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Match.
func (Match) TableName() string { return "matches" }

// HasUser reports whether userID is one of the two participants.
func (m *Match) HasUser(userID string) bool {
	return m.UserAID == userID || m.UserBID == userID
}

// OtherUserID returns the counterpart of userID in this match. The boolean
// is false when userID is not a participant at all.
func (m *Match) OtherUserID(userID string) (string, bool) {
	switch userID {
	case m.UserAID:
		return m.UserBID, true
	case m.UserBID:
		return m.UserAID, true
	}
	return "", false
}

// Message is a single utterance inside a match conversation. Rows are
// append-only and ordered by (CreatedAt, ID). SenderID is always one of the
// match participants; automated replies are attributed to the counterpart's
// user id, not to a separate bot identity.
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MatchID   string    `json:"match_id"   gorm:"type:char(36);not null;index:idx_match_msgs,priority:1"`
	SenderID  string    `json:"sender_id"  gorm:"type:char(36);not null"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_match_msgs,priority:2"`

	// Match is the parent pairing. Messages are cascade-deleted if the
	// match row is ever removed by an operator.
	Match Match `json:"-" gorm:"foreignKey:MatchID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
