package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/enhance"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/tags"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userContextKey = "notesai_user"

var (
	errMissingSessionResolver = errors.New("session resolver dependency required")
	errMissingNotesService    = errors.New("notes service dependency required")
	errMissingTagsService     = errors.New("tags service dependency required")
	errMissingEnhanceService  = errors.New("enhance service dependency required")
)

// SessionResolver reports the authenticated user of a request.
type SessionResolver interface {
	CurrentUser(request *http.Request) (auth.User, bool)
}

// ProfileStore returns the stored profile behind a canonical user id.
type ProfileStore interface {
	Lookup(ctx context.Context, userID string) (users.Identity, error)
}

type Dependencies struct {
	Sessions       SessionResolver
	Profiles       ProfileStore
	NotesService   *notes.Service
	TagsService    *tags.Service
	EnhanceService *enhance.Service
	Metrics        *metrics.Recorder
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionResolver
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}
	if deps.TagsService == nil {
		return nil, errMissingTagsService
	}
	if deps.EnhanceService == nil {
		return nil, errMissingEnhanceService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		sessions:       deps.Sessions,
		profiles:       deps.Profiles,
		notesService:   deps.NotesService,
		tagsService:    deps.TagsService,
		enhanceService: deps.EnhanceService,
		logger:         logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	protected := router.Group("/")
	protected.Use(handler.requireSession)
	protected.GET("/me", handler.handleMe)
	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.GET("/tags", handler.handleListTags)
	protected.POST("/tags", handler.handleCreateTag)
	protected.DELETE("/tags/:id", handler.handleDeleteTag)
	protected.POST("/ai/enhance", handler.handleEnhance)

	return router, nil
}

type httpHandler struct {
	sessions       SessionResolver
	profiles       ProfileStore
	notesService   *notes.Service
	tagsService    *tags.Service
	enhanceService *enhance.Service
	logger         *zap.Logger
}

// corsMiddleware lets the configured browser origins send the session
// cookie. An empty origin list or a "*" entry allows any origin without
// credentials.
func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-TAuth-Tenant"},
		MaxAge:       12 * time.Hour,
	}

	origins := make([]string, 0, len(allowedOrigins))
	allowAny := false
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAny = true
			break
		}
		origins = append(origins, trimmed)
	}
	if allowAny || len(origins) == 0 {
		config.AllowAllOrigins = true
		return cors.New(config)
	}
	config.AllowOrigins = origins
	config.AllowCredentials = true
	return cors.New(config)
}

func (h *httpHandler) requireSession(c *gin.Context) {
	user, ok := h.sessions.CurrentUser(c.Request)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

func currentUser(c *gin.Context) (auth.User, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return auth.User{}, false
	}
	user, ok := value.(auth.User)
	if !ok || user.ID == "" {
		return auth.User{}, false
	}
	return user, true
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleMe returns the session user, filled in from the stored identity
// profile when one exists.
func (h *httpHandler) handleMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.profiles == nil {
		c.JSON(http.StatusOK, user)
		return
	}

	identity, err := h.profiles.Lookup(c.Request.Context(), user.ID)
	switch {
	case err == nil:
		user.Email = firstNonEmpty(identity.Email, user.Email)
		user.DisplayName = firstNonEmpty(identity.DisplayName, user.DisplayName)
		user.AvatarURL = firstNonEmpty(identity.AvatarURL, user.AvatarURL)
	case errors.Is(err, users.ErrIdentityNotFound):
	default:
		h.logger.Warn("profile lookup failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, user)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
