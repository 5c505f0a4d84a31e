package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListTags(c *gin.Context) {
	userID, ok := h.ownerID(c)
	if !ok {
		return
	}
	found, err := h.tagsService.List(c.Request.Context(), userID.String())
	if err != nil {
		h.respondError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, newTagResponses(found))
}

func (h *httpHandler) handleCreateTag(c *gin.Context) {
	userID, ok := h.ownerID(c)
	if !ok {
		return
	}
	var request tagPayload
	if !bindJSON(c, &request, false) {
		return
	}

	tag, err := h.tagsService.Create(c.Request.Context(), userID.String(), request.Name, request.Color)
	if err != nil {
		h.respondError(c, "create_failed", err)
		return
	}
	c.JSON(http.StatusOK, newTagResponse(tag))
}

func (h *httpHandler) handleDeleteTag(c *gin.Context) {
	userID, ok := h.ownerID(c)
	if !ok {
		return
	}
	tagID := strings.TrimSpace(c.Param("id"))
	if tagID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	if err := h.tagsService.Delete(c.Request.Context(), userID.String(), tagID); err != nil {
		h.respondError(c, "delete_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
