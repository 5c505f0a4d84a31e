package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestNewServiceValidatesConfig(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); err == nil {
		t.Fatalf("expected missing database error")
	}
	fixture := newTestFixture(t)
	_, err := NewService(ServiceConfig{Database: fixture.db})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "notes.service.new.missing_id_provider" {
		t.Fatalf("expected missing id provider error, got %v", err)
	}
}

func TestServiceWithoutDatabaseReportsCode(t *testing.T) {
	service := &Service{}
	_, err := service.List(context.Background(), "user-1", ListFilter{})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error, got %v", err)
	}
	if serviceErr.Code() != "notes.list.missing_database" {
		t.Fatalf("unexpected code %q", serviceErr.Code())
	}
	if err := service.Delete(context.Background(), "user-1", "note-1"); err == nil {
		t.Fatalf("expected delete to fail without database")
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	fixture := newTestFixture(t)
	userID := mustUserID(t, "user-1")

	note, err := fixture.notes.Create(context.Background(), userID, CreateInput{})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if note.Title != DefaultTitle {
		t.Fatalf("expected default title, got %q", note.Title)
	}
	if note.Content != "" {
		t.Fatalf("expected empty content, got %q", note.Content)
	}
	if note.CreatedAtMillis == 0 || note.CreatedAtMillis != note.UpdatedAtMillis {
		t.Fatalf("expected matching timestamps, got %d/%d", note.CreatedAtMillis, note.UpdatedAtMillis)
	}
	if note.Tags == nil || len(note.Tags) != 0 {
		t.Fatalf("expected empty tag list, got %#v", note.Tags)
	}

	blank, err := fixture.notes.Create(context.Background(), userID, CreateInput{Title: stringPointer("   ")})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if blank.Title != DefaultTitle {
		t.Fatalf("expected blank title to be replaced, got %q", blank.Title)
	}
}

func TestCreateFailsWhenIDGenerationFails(t *testing.T) {
	fixture := newTestFixture(t)
	service, err := NewService(ServiceConfig{
		Database:   fixture.db,
		IDProvider: failingIDProvider{err: errors.New("entropy exhausted")},
	})
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	_, err = service.Create(context.Background(), "user-1", CreateInput{})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "notes.create.id_generation_failed" {
		t.Fatalf("expected id generation error, got %v", err)
	}
}

func TestCreateAttachesOwnedTagsAndRejectsForeignOnes(t *testing.T) {
	fixture := newTestFixture(t)
	ctx := context.Background()
	owner := mustUserID(t, "user-1")

	work, err := fixture.tags.Create(ctx, owner.String(), "work", "")
	if err != nil {
		t.Fatalf("unexpected tag error: %v", err)
	}
	foreign, err := fixture.tags.Create(ctx, "user-2", "private", "")
	if err != nil {
		t.Fatalf("unexpected tag error: %v", err)
	}

	note, err := fixture.notes.Create(ctx, owner, CreateInput{
		Title:  stringPointer("Plan"),
		TagIDs: []string{work.ID, work.ID},
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if len(note.Tags) != 1 || note.Tags[0].ID != work.ID {
		t.Fatalf("expected single work tag, got %#v", note.Tags)
	}

	_, err = fixture.notes.Create(ctx, owner, CreateInput{TagIDs: []string{foreign.ID}})
	if !errors.Is(err, ErrInvalidTagIDs) {
		t.Fatalf("expected invalid tag ids error, got %v", err)
	}
	listed, err := fixture.notes.List(ctx, owner, ListFilter{})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected rejected create to leave no row, got %d notes", len(listed))
	}
}

func TestListOrdersByMostRecentUpdate(t *testing.T) {
	fixture := newTestFixture(t)
	ctx := context.Background()
	userID := mustUserID(t, "user-1")

	first, err := fixture.notes.Create(ctx, userID, CreateInput{Title: stringPointer("first")})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	second, err := fixture.notes.Create(ctx, userID, CreateInput{Title: stringPointer("second")})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	listed, err := fixture.notes.List(ctx, userID, ListFilter{})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != second.ID || listed[1].ID != first.ID {
		t.Fatalf("expected newest first, got %v", noteIDs(listed))
	}

	if _, err := fixture.notes.Update(ctx, userID, mustNoteID(t, first.ID), UpdateInput{Content: stringPointer("edited")}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	listed, err = fixture.notes.List(ctx, userID, ListFilter{})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if listed[0].ID != first.ID {
		t.Fatalf("expected edited note first, got %v", noteIDs(listed))
	}
}

func TestListSearchMatchesTitleOrContentCaseInsensitively(t *testing.T) {
	fixture := newTestFixture(t)
	ctx := context.Background()
	userID := mustUserID(t, "user-1")

	inputs := []CreateInput{
		{Title: stringPointer("Groceries"), Content: stringPointer("buy MILK and eggs")},
		{Title: stringPointer("Milkshake recipe"), Content: stringPointer("blend")},
		{Title: stringPointer("Budget"), Content: stringPointer("save 10% of pay_check")},
		{Title: stringPointer("Unrelated"), Content: stringPointer("nothing here")},
	}
	for _, input := range inputs {
		if _, err := fixture.notes.Create(ctx, userID, input); err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}
	}

	testCases := []struct {
		name     string
		search   string
		expected []string
	}{
		{name: "content and title", search: "milk", expected: []string{"Milkshake recipe", "Groceries"}},
		{name: "upper case query", search: "GROCER", expected: []string{"Groceries"}},
		{name: "literal percent", search: "%", expected: []string{"Budget"}},
		{name: "literal underscore", search: "y_c", expected: []string{"Budget"}},
		{name: "underscore is not a wildcard", search: "m_lk", expected: []string{}},
		{name: "empty search", search: "", expected: []string{"Unrelated", "Budget", "Milkshake recipe", "Groceries"}},
		{name: "blank search", search: "   ", expected: []string{"Unrelated", "Budget", "Milkshake recipe", "Groceries"}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			listed, err := fixture.notes.List(ctx, userID, ListFilter{Search: testCase.search})
			if err != nil {
				t.Fatalf("unexpected list error: %v", err)
			}
			titles := make([]string, 0, len(listed))
			for _, note := range listed {
				titles = append(titles, note.Title)
			}
			if strings.Join(titles, "|") != strings.Join(testCase.expected, "|") {
				t.Fatalf("expected %v, got %v", testCase.expected, titles)
			}
		})
	}
}

func TestListFiltersByTag(t *testing.T) {
	fixture := newTestFixture(t)
	ctx := context.Background()
	userID := mustUserID(t, "user-1")

	work, err := fixture.tags.Create(ctx, userID.String(), "work", "")
	if err != nil {
		t.Fatalf("unexpected tag error: %v", err)
	}
	tagged, err := fixture.notes.Create(ctx, userID, CreateInput{Title: stringPointer("tagged"), TagIDs: []string{work.ID}})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := fixture.notes.Create(ctx, userID, CreateInput{Title: stringPointer("plain")}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	listed, err := fixture.notes.List(ctx, userID, ListFilter{TagID: work.ID})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != tagged.ID {
		t.Fatalf("expected only tagged note, got %v", noteIDs(listed))
	}
	if len(listed[0].Tags) != 1 || listed[0].Tags[0].Name != "work" {
		t.Fatalf("expected tags attached to listed note, got %#v", listed[0].Tags)
	}

	listed, err = fixture.notes.List(ctx, userID, ListFilter{TagID: "unknown"})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected unknown tag to match nothing, got %v", noteIDs(listed))
	}
}

func TestUpdateAppliesFieldsAndReplacesTags(t *testing.T) {
	fixture := newTestFixture(t)
	ctx := context.Background()
	userID := mustUserID(t, "user-1")

	work, err := fixture.tags.Create(ctx, userID.String(), "work", "")
	if err != nil {
		t.Fatalf("unexpected tag error: %v", err)
	}
	home, err := fixture.tags.Create(ctx, userID.String(), "home", "")
	if err != nil {
		t.Fatalf("unexpected tag error: %v", err)
	}
	created, err := fixture.notes.Create(ctx, userID, CreateInput{
		Title:   stringPointer("draft"),
		Content: stringPointer("body"),
		TagIDs:  []string{work.ID},
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	noteID := mustNoteID(t, created.ID)

	replacement := []string{home.ID}
	updated, err := fixture.notes.Update(ctx, userID, noteID, UpdateInput{
		Title:  stringPointer(" "),
		TagIDs: &replacement,
	})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Title != DefaultTitle {
		t.Fatalf("expected blank title to normalize, got %q", updated.Title)
	}
	if updated.Content != "body" {
		t.Fatalf("expected content to be untouched, got %q", updated.Content)
	}
	if updated.UpdatedAtMillis <= created.UpdatedAtMillis {
		t.Fatalf("expected updated_at to advance, got %d <= %d", updated.UpdatedAtMillis, created.UpdatedAtMillis)
	}
	if updated.CreatedAtMillis != created.CreatedAtMillis {
		t.Fatalf("expected created_at to be preserved")
	}
	if len(updated.Tags) != 1 || updated.Tags[0].ID != home.ID {
		t.Fatalf("expected home tag only, got %#v", updated.Tags)
	}

	cleared := []string{}
	updated, err = fixture.notes.Update(ctx, userID, noteID, UpdateInput{TagIDs: &cleared})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if len(updated.Tags) != 0 {
		t.Fatalf("expected tags cleared, got %#v", updated.Tags)
	}
}

func TestUpdateWithForeignTagRollsBack(t *testing.T) {
	fixture := newTestFixture(t)
	ctx := context.Background()
	userID := mustUserID(t, "user-1")

	foreign, err := fixture.tags.Create(ctx, "user-2", "theirs", "")
	if err != nil {
		t.Fatalf("unexpected tag error: %v", err)
	}
	created, err := fixture.notes.Create(ctx, userID, CreateInput{Title: stringPointer("keep")})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	tagIDs := []string{foreign.ID}
	_, err = fixture.notes.Update(ctx, userID, mustNoteID(t, created.ID), UpdateInput{
		Title:  stringPointer("changed"),
		TagIDs: &tagIDs,
	})
	if !errors.Is(err, ErrInvalidTagIDs) {
		t.Fatalf("expected invalid tag ids error, got %v", err)
	}

	reloaded, err := fixture.notes.Get(ctx, userID, mustNoteID(t, created.ID))
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if reloaded.Title != "keep" || reloaded.UpdatedAtMillis != created.UpdatedAtMillis {
		t.Fatalf("expected rollback, got %+v", reloaded)
	}
}

func TestDeleteRemovesNoteAndAssociations(t *testing.T) {
	fixture := newTestFixture(t)
	ctx := context.Background()
	userID := mustUserID(t, "user-1")

	work, err := fixture.tags.Create(ctx, userID.String(), "work", "")
	if err != nil {
		t.Fatalf("unexpected tag error: %v", err)
	}
	created, err := fixture.notes.Create(ctx, userID, CreateInput{TagIDs: []string{work.ID}})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	noteID := mustNoteID(t, created.ID)

	if err := fixture.notes.Delete(ctx, userID, noteID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := fixture.notes.Get(ctx, userID, noteID); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	var remaining int64
	if err := fixture.db.Table("note_tags").Where("note_id = ?", created.ID).Count(&remaining).Error; err != nil {
		t.Fatalf("count associations: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected associations removed, got %d", remaining)
	}
	if err := fixture.notes.Delete(ctx, userID, noteID); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	fixture := newTestFixture(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		owner := UserID(rapid.StringMatching(`owner-[a-z0-9]{6}`).Draw(rt, "owner"))
		intruder := UserID(rapid.StringMatching(`intruder-[a-z0-9]{6}`).Draw(rt, "intruder"))
		title := rapid.StringMatching(`[A-Za-z ]{1,24}`).Draw(rt, "title")

		created, err := fixture.notes.Create(ctx, owner, CreateInput{Title: &title})
		if err != nil {
			rt.Fatalf("create: %v", err)
		}
		noteID := NoteID(created.ID)

		if _, err := fixture.notes.Get(ctx, intruder, noteID); !errors.Is(err, ErrNoteNotFound) {
			rt.Fatalf("intruder get: expected not found, got %v", err)
		}
		if _, err := fixture.notes.Update(ctx, intruder, noteID, UpdateInput{Content: stringPointer("x")}); !errors.Is(err, ErrNoteNotFound) {
			rt.Fatalf("intruder update: expected not found, got %v", err)
		}
		if err := fixture.notes.Delete(ctx, intruder, noteID); !errors.Is(err, ErrNoteNotFound) {
			rt.Fatalf("intruder delete: expected not found, got %v", err)
		}
		listed, err := fixture.notes.List(ctx, intruder, ListFilter{})
		if err != nil {
			rt.Fatalf("intruder list: %v", err)
		}
		for _, note := range listed {
			if note.ID == created.ID {
				rt.Fatalf("intruder listed a foreign note")
			}
		}

		stored, err := fixture.notes.Get(ctx, owner, noteID)
		if err != nil {
			rt.Fatalf("owner get: %v", err)
		}
		if stored.Content != "" || stored.UserID != owner.String() {
			rt.Fatalf("owner note modified by intruder: %+v", stored)
		}
	})
}

func TestSearchResultsAlwaysContainQuery(t *testing.T) {
	fixture := newTestFixture(t)
	ctx := context.Background()
	iteration := 0

	rapid.Check(t, func(rt *rapid.T) {
		iteration++
		userID := UserID(fmt.Sprintf("user-%d", iteration))
		titles := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z%_ ]{0,12}`), 1, 5).Draw(rt, "titles")
		for index := range titles {
			if _, err := fixture.notes.Create(ctx, userID, CreateInput{Title: &titles[index]}); err != nil {
				rt.Fatalf("create: %v", err)
			}
		}
		query := rapid.StringMatching(`[a-zA-Z%_]{1,3}`).Draw(rt, "query")

		listed, err := fixture.notes.List(ctx, userID, ListFilter{Search: query})
		if err != nil {
			rt.Fatalf("list: %v", err)
		}
		lowered := strings.ToLower(query)
		expected := 0
		for _, title := range titles {
			if strings.Contains(strings.ToLower(normalizeTitle(&title)), lowered) {
				expected++
			}
		}
		if len(listed) != expected {
			rt.Fatalf("expected %d matches for %q, got %d", expected, query, len(listed))
		}
		for _, note := range listed {
			if !strings.Contains(strings.ToLower(note.Title), lowered) {
				rt.Fatalf("note %q does not contain %q", note.Title, query)
			}
		}
	})
}

func noteIDs(found []Note) []string {
	ids := make([]string, 0, len(found))
	for _, note := range found {
		ids = append(ids, note.ID)
	}
	return ids
}
