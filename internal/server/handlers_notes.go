package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/notes"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) ownerID(c *gin.Context) (notes.UserID, bool) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	userID, err := notes.NewUserID(user.ID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

// noteIDParam reports malformed ids as missing notes.
func noteIDParam(c *gin.Context) (notes.NoteID, bool) {
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return "", false
	}
	return noteID, true
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	userID, ok := h.ownerID(c)
	if !ok {
		return
	}

	filter := notes.ListFilter{
		Search: c.Query("search"),
		TagID:  c.Query("tag"),
	}
	found, err := h.notesService.List(c.Request.Context(), userID, filter)
	if err != nil {
		h.respondError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, newNoteResponses(found))
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	userID, ok := h.ownerID(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}

	note, err := h.notesService.Get(c.Request.Context(), userID, noteID)
	if err != nil {
		h.respondError(c, "get_failed", err)
		return
	}
	c.JSON(http.StatusOK, newNoteResponse(note))
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	userID, ok := h.ownerID(c)
	if !ok {
		return
	}
	var request notePayload
	if !bindJSON(c, &request, true) {
		return
	}

	input := notes.CreateInput{
		Title:   request.Title,
		Content: request.Content,
	}
	if request.TagIDs != nil {
		input.TagIDs = *request.TagIDs
	}
	note, err := h.notesService.Create(c.Request.Context(), userID, input)
	if err != nil {
		h.respondError(c, "create_failed", err)
		return
	}
	c.JSON(http.StatusOK, newNoteResponse(note))
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	userID, ok := h.ownerID(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	var request notePayload
	if !bindJSON(c, &request, false) {
		return
	}

	note, err := h.notesService.Update(c.Request.Context(), userID, noteID, notes.UpdateInput{
		Title:   request.Title,
		Content: request.Content,
		TagIDs:  request.TagIDs,
	})
	if err != nil {
		h.respondError(c, "update_failed", err)
		return
	}
	c.JSON(http.StatusOK, newNoteResponse(note))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	userID, ok := h.ownerID(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}

	if err := h.notesService.Delete(c.Request.Context(), userID, noteID); err != nil {
		h.respondError(c, "delete_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
