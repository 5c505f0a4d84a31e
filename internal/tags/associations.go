package tags

import (
	"sort"

	"gorm.io/gorm"
)

// The helpers below run on a caller-supplied handle so the note repository
// can combine them with its own writes in one transaction.

// UniqueIDs drops blanks and duplicates while keeping first-seen order.
func UniqueIDs(tagIDs []string) []string {
	seen := make(map[string]struct{}, len(tagIDs))
	unique := make([]string, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		if tagID == "" {
			continue
		}
		if _, ok := seen[tagID]; ok {
			continue
		}
		seen[tagID] = struct{}{}
		unique = append(unique, tagID)
	}
	return unique
}

// MissingForOwner returns the ids among tagIDs that the owner does not have.
func MissingForOwner(tx *gorm.DB, userID string, tagIDs []string) ([]string, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	var owned []string
	if err := tx.Model(&Tag{}).
		Scopes(ownedBy(userID)).
		Where("id IN ?", tagIDs).
		Pluck("id", &owned).Error; err != nil {
		return nil, err
	}
	ownedSet := make(map[string]struct{}, len(owned))
	for _, tagID := range owned {
		ownedSet[tagID] = struct{}{}
	}
	var missing []string
	for _, tagID := range tagIDs {
		if _, ok := ownedSet[tagID]; !ok {
			missing = append(missing, tagID)
		}
	}
	return missing, nil
}

// ReplaceForNote swaps the note's association set for tagIDs.
func ReplaceForNote(tx *gorm.DB, noteID string, tagIDs []string) error {
	if err := DeleteForNote(tx, noteID); err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return nil
	}
	rows := make([]NoteTag, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		rows = append(rows, NoteTag{NoteID: noteID, TagID: tagID})
	}
	return tx.Create(&rows).Error
}

// DeleteForNote removes every association of the note.
func DeleteForNote(tx *gorm.DB, noteID string) error {
	return tx.Where("note_id = ?", noteID).Delete(&NoteTag{}).Error
}

// NoteIDsWithTag returns a subquery selecting the notes associated with tagID.
func NoteIDsWithTag(tx *gorm.DB, tagID string) *gorm.DB {
	return tx.Model(&NoteTag{}).Select("note_id").Where("tag_id = ?", tagID)
}

// LoadForNotes returns each note's tags sorted by name. Notes without tags
// are absent from the map.
func LoadForNotes(tx *gorm.DB, noteIDs []string) (map[string][]Tag, error) {
	result := make(map[string][]Tag)
	if len(noteIDs) == 0 {
		return result, nil
	}

	var links []NoteTag
	if err := tx.Where("note_id IN ?", noteIDs).Find(&links).Error; err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return result, nil
	}

	tagIDs := make([]string, 0, len(links))
	for _, link := range links {
		tagIDs = append(tagIDs, link.TagID)
	}
	var found []Tag
	if err := tx.Where("id IN ?", UniqueIDs(tagIDs)).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]Tag, len(found))
	for _, tag := range found {
		byID[tag.ID] = tag
	}

	for _, link := range links {
		tag, ok := byID[link.TagID]
		if !ok {
			continue
		}
		result[link.NoteID] = append(result[link.NoteID], tag)
	}
	for noteID := range result {
		sortTags(result[noteID])
	}
	return result, nil
}

func sortTags(list []Tag) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Name == list[j].Name {
			return list[i].ID < list[j].ID
		}
		return list[i].Name < list[j].Name
	})
}

func ownedBy(userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}
