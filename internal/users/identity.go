package users

import (
	"strings"
	"time"
)

// Identity is one auth-provider login seen in a session cookie. Provider and
// Subject come from the session's user id claim ("google:123" splits into
// provider "google" and subject "123"; an unprefixed id uses the default
// provider). UserID is the owner id stamped on notes and tags.
type Identity struct {
	Provider string `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject  string `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID   string `gorm:"column:user_id;size:190;not null;index"`

	// Profile fields mirror the latest non-blank session claims and back /me.
	Email       string `gorm:"column:user_email;size:320"`
	DisplayName string `gorm:"column:user_display_name;size:320"`
	AvatarURL   string `gorm:"column:user_avatar_url;size:512"`

	// LastSeenAt is written on creation and on each profile refresh.
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Identity) TableName() string {
	return "user_identities"
}

// identityKey addresses an identity in the resolution cache.
func identityKey(provider, subject string) string {
	return provider + ":" + subject
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
