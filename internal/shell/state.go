package shell

// DefaultTitle is the title sent when creating a note.
const DefaultTitle = "Untitled Note"

// Draft is the editor's local copy of the selected note.
type Draft struct {
	NoteID   string
	Title    string
	Content  string
	TagIDs   []string
	Revision uint64
	Dirty    bool
}

// State is the client's view of the user's notes. Transitions return a new
// State and never mutate the receiver's slices.
type State struct {
	Notes      []Note
	Tags       []Tag
	Search     string
	TagFilter  string
	SelectedID string
	Draft      Draft

	revisions uint64
}

// Selected returns the list entry for the selected note.
func (s State) Selected() (Note, bool) {
	index := s.indexOf(s.SelectedID)
	if index < 0 {
		return Note{}, false
	}
	return s.Notes[index], true
}

// ReconcileNotes installs a freshly fetched list. The selection survives if
// its id is still listed, otherwise the first note (or none) is selected.
func (s State) ReconcileNotes(fetched []Note) State {
	next := s.clone()
	next.Notes = cloneNotes(fetched)

	if index := next.indexOf(s.SelectedID); index >= 0 {
		if !next.Draft.Dirty {
			next.Draft = next.draftFor(next.Notes[index])
		}
		return next
	}
	if len(next.Notes) == 0 {
		return next.selectNone()
	}
	return next.SelectNote(next.Notes[0].ID)
}

// SelectNote selects id and resets the draft to its server values. An id
// that is not listed clears the selection.
func (s State) SelectNote(id string) State {
	next := s.clone()
	index := next.indexOf(id)
	if index < 0 {
		return next.selectNone()
	}
	next.SelectedID = id
	next.Draft = next.draftFor(next.Notes[index])
	return next
}

// ApplySavedNote replaces the list entry for saved.ID unless the entry is
// already newer. The draft is reset from saved only when it belongs to the
// same note and has not changed since revision was sent.
func (s State) ApplySavedNote(saved Note, revision uint64) State {
	next := s.clone()
	index := next.indexOf(saved.ID)
	if index >= 0 && !saved.UpdatedAt.Before(next.Notes[index].UpdatedAt) {
		next.Notes[index] = cloneNote(saved)
	}
	if next.SelectedID == saved.ID && next.Draft.NoteID == saved.ID && next.Draft.Revision == revision {
		next.Draft = next.draftFor(saved)
	}
	return next
}

// PrependCreated puts a newly created note at the top and selects it.
func (s State) PrependCreated(created Note) State {
	next := s.clone()
	next.Notes = append([]Note{cloneNote(created)}, next.Notes...)
	next.SelectedID = created.ID
	next.Draft = next.draftFor(created)
	return next
}

// RemoveNote drops id from the list. If it was selected, the note that
// followed it is selected, else the one before, else none.
func (s State) RemoveNote(id string) State {
	next := s.clone()
	index := next.indexOf(id)
	if index < 0 {
		return next
	}
	next.Notes = append(next.Notes[:index], next.Notes[index+1:]...)
	if next.SelectedID != id {
		return next
	}
	switch {
	case index < len(next.Notes):
		return next.SelectNote(next.Notes[index].ID)
	case index > 0:
		return next.SelectNote(next.Notes[index-1].ID)
	default:
		return next.selectNone()
	}
}

func (s State) EditTitle(title string) State {
	return s.edit(func(draft *Draft) { draft.Title = title })
}

func (s State) EditContent(content string) State {
	return s.edit(func(draft *Draft) { draft.Content = content })
}

func (s State) EditTags(tagIDs []string) State {
	return s.edit(func(draft *Draft) { draft.TagIDs = uniqueStrings(tagIDs) })
}

// ToggleTag adds tagID to the draft, or removes it when already present.
func (s State) ToggleTag(tagID string) State {
	tagIDs := make([]string, 0, len(s.Draft.TagIDs)+1)
	found := false
	for _, existing := range s.Draft.TagIDs {
		if existing == tagID {
			found = true
			continue
		}
		tagIDs = append(tagIDs, existing)
	}
	if !found {
		tagIDs = append(tagIDs, tagID)
	}
	return s.EditTags(tagIDs)
}

func (s State) WithTags(tags []Tag) State {
	next := s.clone()
	next.Tags = append([]Tag(nil), tags...)
	return next
}

func (s State) WithSearch(search string) State {
	next := s.clone()
	next.Search = search
	return next
}

func (s State) WithTagFilter(tagID string) State {
	next := s.clone()
	next.TagFilter = tagID
	return next
}

func (s State) edit(apply func(*Draft)) State {
	if s.Draft.NoteID == "" {
		return s
	}
	next := s.clone()
	apply(&next.Draft)
	next.revisions++
	next.Draft.Revision = next.revisions
	next.Draft.Dirty = true
	return next
}

func (s *State) draftFor(note Note) Draft {
	s.revisions++
	return Draft{
		NoteID:   note.ID,
		Title:    note.Title,
		Content:  note.Content,
		TagIDs:   note.TagIDs(),
		Revision: s.revisions,
	}
}

func (s State) selectNone() State {
	s.SelectedID = ""
	s.Draft = Draft{}
	return s
}

func (s State) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for index, note := range s.Notes {
		if note.ID == id {
			return index
		}
	}
	return -1
}

func (s State) clone() State {
	next := s
	next.Notes = cloneNotes(s.Notes)
	next.Tags = append([]Tag(nil), s.Tags...)
	next.Draft.TagIDs = append([]string(nil), s.Draft.TagIDs...)
	return next
}

func cloneNotes(notes []Note) []Note {
	cloned := make([]Note, 0, len(notes))
	for _, note := range notes {
		cloned = append(cloned, cloneNote(note))
	}
	return cloned
}

func cloneNote(note Note) Note {
	note.Tags = append([]Tag(nil), note.Tags...)
	return note
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		unique = append(unique, value)
	}
	return unique
}
