package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/tags"
)

// DefaultTitle replaces a missing or blank note title.
const DefaultTitle = "Untitled Note"

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
	// ErrNoteNotFound indicates the note does not exist or belongs to another user.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrInvalidTagIDs indicates tag ids that do not belong to the note owner.
	ErrInvalidTagIDs = errors.New("notes: invalid tag ids")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Note models a persisted note. Tags is populated on read and never stored
// on the notes table.
type Note struct {
	ID              string     `gorm:"column:id;primaryKey;size:190;not null"`
	UserID          string     `gorm:"column:user_id;size:190;not null;index:idx_notes_user_updated,priority:1"`
	Title           string     `gorm:"column:title;type:text;not null"`
	Content         string     `gorm:"column:content;type:text;not null"`
	CreatedAtMillis int64      `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis int64      `gorm:"column:updated_at_ms;not null;index:idx_notes_user_updated,priority:2"`
	Tags            []tags.Tag `gorm:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// CreatedAt returns the creation time in UTC.
func (n Note) CreatedAt() time.Time {
	return time.UnixMilli(n.CreatedAtMillis).UTC()
}

// UpdatedAt returns the last mutation time in UTC.
func (n Note) UpdatedAt() time.Time {
	return time.UnixMilli(n.UpdatedAtMillis).UTC()
}

// TagIDs lists the ids of the attached tags.
func (n Note) TagIDs() []string {
	tagIDs := make([]string, 0, len(n.Tags))
	for _, tag := range n.Tags {
		tagIDs = append(tagIDs, tag.ID)
	}
	return tagIDs
}

// ListFilter narrows List results. Zero values disable a filter.
type ListFilter struct {
	Search string
	TagID  string
}

// CreateInput describes a new note. Nil fields take their defaults.
type CreateInput struct {
	Title   *string
	Content *string
	TagIDs  []string
}

// UpdateInput describes a full-replacement update. Nil fields are left
// unchanged; a non-nil TagIDs, even empty, replaces the association set.
type UpdateInput struct {
	Title   *string
	Content *string
	TagIDs  *[]string
}

func normalizeTitle(title *string) string {
	if title == nil || strings.TrimSpace(*title) == "" {
		return DefaultTitle
	}
	return *title
}
