package notes

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/tags"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

func stringPointer(value string) *string {
	return &value
}

type sequenceIDProvider struct {
	prefix string
	next   int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("%s-%04d", p.prefix, p.next), nil
}

type failingIDProvider struct {
	err error
}

func (p failingIDProvider) NewID() (string, error) {
	return "", p.err
}

// steppingClock advances one second per call so successive writes get
// distinct timestamps.
type steppingClock struct {
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

type testFixture struct {
	notes *Service
	tags  *tags.Service
	db    *gorm.DB
	clock *steppingClock
}

func newTestFixture(t *testing.T) testFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "notes.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Note{}, &tags.Tag{}, &tags.NoteTag{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &steppingClock{current: time.Unix(1700000000, 0).UTC()}
	noteService, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &sequenceIDProvider{prefix: "note"},
	})
	if err != nil {
		t.Fatalf("failed to build note service: %v", err)
	}
	tagService, err := tags.NewService(tags.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &sequenceIDProvider{prefix: "tag"},
	})
	if err != nil {
		t.Fatalf("failed to build tag service: %v", err)
	}
	return testFixture{notes: noteService, tags: tagService, db: db, clock: clock}
}
