package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleEnhance(c *gin.Context) {
	if _, ok := h.ownerID(c); !ok {
		return
	}
	var request enhancePayload
	if !bindJSON(c, &request, false) {
		return
	}

	text, err := h.enhanceService.Enhance(c.Request.Context(), request.Content, request.Type)
	if err != nil {
		h.respondError(c, "enhance_failed", err)
		return
	}
	c.JSON(http.StatusOK, enhanceResponse{Text: text})
}
