package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/tags"
)

type notePayload struct {
	Title   *string   `json:"title" binding:"omitempty,max=1000"`
	Content *string   `json:"content"`
	TagIDs  *[]string `json:"tagIds" binding:"omitempty,max=100,dive,max=190"`
}

type tagPayload struct {
	Name  string `json:"name" binding:"required,max=64"`
	Color string `json:"color" binding:"omitempty,hexcolor"`
}

type enhancePayload struct {
	Content string `json:"content" binding:"required"`
	Type    string `json:"type" binding:"required,oneof=improve summarize expand"`
}

type enhanceResponse struct {
	Text string `json:"text"`
}

type tagResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

type noteResponse struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Tags      []tagResponse `json:"tags"`
}

func newTagResponse(tag tags.Tag) tagResponse {
	return tagResponse{
		ID:        tag.ID,
		UserID:    tag.UserID,
		Name:      tag.Name,
		Color:     tag.Color,
		CreatedAt: time.UnixMilli(tag.CreatedAtMillis).UTC(),
	}
}

func newTagResponses(found []tags.Tag) []tagResponse {
	responses := make([]tagResponse, 0, len(found))
	for _, tag := range found {
		responses = append(responses, newTagResponse(tag))
	}
	return responses
}

func newNoteResponse(note notes.Note) noteResponse {
	return noteResponse{
		ID:        note.ID,
		UserID:    note.UserID,
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: note.CreatedAt(),
		UpdatedAt: note.UpdatedAt(),
		Tags:      newTagResponses(note.Tags),
	}
}

func newNoteResponses(found []notes.Note) []noteResponse {
	responses := make([]noteResponse, 0, len(found))
	for _, note := range found {
		responses = append(responses, newNoteResponse(note))
	}
	return responses
}
