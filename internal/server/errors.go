package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/enhance"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/tags"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var fieldNamesOnce sync.Once

// codedError is implemented by the repositories' ServiceError types.
type codedError interface {
	Code() string
}

// registerJSONFieldNames makes validation errors name fields by their JSON key.
func registerJSONFieldNames() {
	fieldNamesOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			switch name {
			case "-":
				return ""
			case "":
				return field.Name
			default:
				return name
			}
		})
	})
}

// bindJSON decodes and validates the request body, writing a 400 response on
// failure. An empty body is accepted when allowEmpty is set.
func bindJSON(c *gin.Context, destination any, allowEmpty bool) bool {
	registerJSONFieldNames()
	err := c.ShouldBindJSON(destination)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	code, message := describeBindingError(err)
	c.JSON(http.StatusBadRequest, gin.H{"error": code, "message": message})
	return false
}

func describeBindingError(err error) (string, string) {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "invalid_request", "request body must be a valid JSON object"
	}
	fieldErr := validationErrs[0]
	field, _, _ := strings.Cut(fieldErr.Field(), "[")
	code := snakeCase(field)
	switch fieldErr.Tag() {
	case "required":
		return "missing_" + code, field + " is required"
	case "oneof":
		return "invalid_" + code, fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fieldErr.Param(), " ", ", "))
	case "max":
		return "invalid_" + code, fmt.Sprintf("%s exceeds the maximum of %s", field, fieldErr.Param())
	case "hexcolor":
		return "invalid_" + code, field + " must be a hex color such as #3b82f6"
	default:
		return "invalid_" + code, field + " is invalid"
	}
}

func snakeCase(value string) string {
	var builder strings.Builder
	for index, r := range value {
		if r >= 'A' && r <= 'Z' {
			if index > 0 {
				builder.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// respondError maps a repository or proxy error onto the HTTP contract.
// failure names the generic 500 error for the operation.
func (h *httpHandler) respondError(c *gin.Context, failure string, err error) {
	var upstreamErr *enhance.UpstreamError
	switch {
	case errors.Is(err, notes.ErrNoteNotFound), errors.Is(err, tags.ErrTagNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, notes.ErrInvalidTagIDs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_tag_ids", "message": strings.TrimPrefix(err.Error(), "notes: ")})
	case errors.Is(err, tags.ErrInvalidTagName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name", "message": "name must be 1 to 64 characters"})
	case errors.Is(err, tags.ErrInvalidTagColor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_color", "message": "color must be a hex color such as #3b82f6"})
	case errors.Is(err, enhance.ErrMissingContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_content", "message": "content is required"})
	case errors.Is(err, enhance.ErrMissingMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_type", "message": "type is required"})
	case errors.Is(err, enhance.ErrInvalidMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_type", "message": "type must be one of: improve, summarize, expand"})
	case errors.As(err, &upstreamErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":           "upstream_failure",
			"upstream_status": upstreamErr.StatusCode,
			"upstream_error":  upstreamPayload(upstreamErr.Payload),
		})
	default:
		body := gin.H{"error": failure}
		var coded codedError
		if errors.As(err, &coded) {
			body["code"] = coded.Code()
		}
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, body)
	}
}

func upstreamPayload(payload string) any {
	trimmed := strings.TrimSpace(payload)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	return payload
}
