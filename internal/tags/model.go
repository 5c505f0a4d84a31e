package tags

import (
	"errors"
	"regexp"
)

// DefaultColor is the accent color assigned to tags created without one.
const DefaultColor = "#3b82f6"

const maxNameLength = 64

var (
	// ErrTagNotFound indicates the tag does not exist or belongs to another user.
	ErrTagNotFound = errors.New("tags: tag not found")
	// ErrInvalidTagName indicates a blank or oversized tag name.
	ErrInvalidTagName = errors.New("tags: invalid tag name")
	// ErrInvalidTagColor indicates a color that is not a hex color.
	ErrInvalidTagColor = errors.New("tags: invalid tag color")

	hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// Tag is a user-owned label that can be attached to notes.
type Tag struct {
	ID              string `gorm:"column:id;primaryKey;size:190;not null"`
	UserID          string `gorm:"column:user_id;size:190;not null;index:idx_tags_user_name,priority:1"`
	Name            string `gorm:"column:name;size:256;not null;index:idx_tags_user_name,priority:2"`
	Color           string `gorm:"column:color;size:16;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// NoteTag associates a note with a tag. Both sides share one owner.
type NoteTag struct {
	NoteID string `gorm:"column:note_id;primaryKey;size:190;not null"`
	TagID  string `gorm:"column:tag_id;primaryKey;size:190;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (NoteTag) TableName() string {
	return "note_tags"
}
