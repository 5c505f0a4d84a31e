package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/tags"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
	likeEscaper          = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "notes.service.new"
	opListNotes  = "notes.list"
	opGetNote    = "notes.get"
	opCreateNote = "notes.create"
	opUpdateNote = "notes.update"
	opDeleteNote = "notes.delete"

	querySearch = `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(content) LIKE ? ESCAPE '\')`
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

// Service is the owner-scoped note repository. Every query is bound to the
// request context and filtered by the caller's user id.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// List returns the user's notes, most recently updated first, with tags attached.
func (s *Service) List(ctx context.Context, userID UserID, filter ListFilter) ([]Note, error) {
	if s.db == nil {
		s.logError(opListNotes, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListNotes, "missing_database", errMissingDatabase)
	}

	db := s.db.WithContext(ctx)
	query := db.Scopes(ownedBy(userID)).
		Order("updated_at_ms DESC").
		Order("id DESC")
	if strings.TrimSpace(filter.Search) != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(filter.Search)) + "%"
		query = query.Where(querySearch, pattern, pattern)
	}
	if tagID := strings.TrimSpace(filter.TagID); tagID != "" {
		query = query.Where("id IN (?)", tags.NoteIDsWithTag(db, tagID))
	}

	var found []Note
	if err := query.Find(&found).Error; err != nil {
		s.logError(opListNotes, "query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListNotes, "query_failed", err)
	}

	if err := attachTags(db, found); err != nil {
		s.logError(opListNotes, "tag_query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListNotes, "tag_query_failed", err)
	}
	return found, nil
}

// Get returns one note. Notes owned by someone else are reported as missing.
func (s *Service) Get(ctx context.Context, userID UserID, noteID NoteID) (Note, error) {
	if s.db == nil {
		s.logError(opGetNote, "missing_database", errMissingDatabase)
		return Note{}, newServiceError(opGetNote, "missing_database", errMissingDatabase)
	}

	db := s.db.WithContext(ctx)
	note, err := s.takeOwned(db, opGetNote, userID, noteID, false)
	if err != nil {
		return Note{}, err
	}
	if err := s.attachOne(db, opGetNote, &note); err != nil {
		return Note{}, err
	}
	return note, nil
}

// Create stores a note with defaults applied and returns the persisted row.
func (s *Service) Create(ctx context.Context, userID UserID, input CreateInput) (Note, error) {
	if s.db == nil {
		s.logError(opCreateNote, "missing_database", errMissingDatabase)
		return Note{}, newServiceError(opCreateNote, "missing_database", errMissingDatabase)
	}
	if s.idProvider == nil {
		s.logError(opCreateNote, "missing_id_provider", errMissingIDProvider)
		return Note{}, newServiceError(opCreateNote, "missing_id_provider", errMissingIDProvider)
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateNote, "id_generation_failed", err, zap.String("user_id", userID.String()))
		return Note{}, newServiceError(opCreateNote, "id_generation_failed", err)
	}

	now := s.clock().UTC().UnixMilli()
	note := Note{
		ID:              noteID,
		UserID:          userID.String(),
		Title:           normalizeTitle(input.Title),
		CreatedAtMillis: now,
		UpdatedAtMillis: now,
	}
	if input.Content != nil {
		note.Content = *input.Content
	}
	tagIDs := tags.UniqueIDs(input.TagIDs)

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkTagOwnership(tx, opCreateNote, userID, tagIDs); err != nil {
			return err
		}
		if err := tx.Create(&note).Error; err != nil {
			s.logError(opCreateNote, "insert_failed", err, zap.String("user_id", userID.String()))
			return newServiceError(opCreateNote, "insert_failed", err)
		}
		if len(tagIDs) > 0 {
			if err := tags.ReplaceForNote(tx, note.ID, tagIDs); err != nil {
				s.logError(opCreateNote, "tag_replace_failed", err,
					zap.String("user_id", userID.String()),
					zap.String("note_id", note.ID))
				return newServiceError(opCreateNote, "tag_replace_failed", err)
			}
		}
		return s.attachOne(tx, opCreateNote, &note)
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return note, nil
}

// Update applies input to an owned note in one transaction, refreshing
// updated_at and replacing the tag set when TagIDs is provided.
func (s *Service) Update(ctx context.Context, userID UserID, noteID NoteID, input UpdateInput) (Note, error) {
	if s.db == nil {
		s.logError(opUpdateNote, "missing_database", errMissingDatabase)
		return Note{}, newServiceError(opUpdateNote, "missing_database", errMissingDatabase)
	}

	var updated Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.takeOwned(tx, opUpdateNote, userID, noteID, true); err != nil {
			return err
		}

		updates := map[string]any{"updated_at_ms": s.clock().UTC().UnixMilli()}
		if input.Title != nil {
			updates["title"] = normalizeTitle(input.Title)
		}
		if input.Content != nil {
			updates["content"] = *input.Content
		}
		if err := tx.Model(&Note{}).
			Scopes(ownedBy(userID)).
			Where("id = ?", noteID.String()).
			Updates(updates).Error; err != nil {
			s.logError(opUpdateNote, "update_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("note_id", noteID.String()))
			return newServiceError(opUpdateNote, "update_failed", err)
		}

		if input.TagIDs != nil {
			tagIDs := tags.UniqueIDs(*input.TagIDs)
			if err := s.checkTagOwnership(tx, opUpdateNote, userID, tagIDs); err != nil {
				return err
			}
			if err := tags.ReplaceForNote(tx, noteID.String(), tagIDs); err != nil {
				s.logError(opUpdateNote, "tag_replace_failed", err,
					zap.String("user_id", userID.String()),
					zap.String("note_id", noteID.String()))
				return newServiceError(opUpdateNote, "tag_replace_failed", err)
			}
		}

		reloaded, err := s.takeOwned(tx, opUpdateNote, userID, noteID, false)
		if err != nil {
			return err
		}
		if err := s.attachOne(tx, opUpdateNote, &reloaded); err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return updated, nil
}

// Delete removes an owned note and its tag associations.
func (s *Service) Delete(ctx context.Context, userID UserID, noteID NoteID) error {
	if s.db == nil {
		s.logError(opDeleteNote, "missing_database", errMissingDatabase)
		return newServiceError(opDeleteNote, "missing_database", errMissingDatabase)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.takeOwned(tx, opDeleteNote, userID, noteID, true); err != nil {
			return err
		}
		if err := tags.DeleteForNote(tx, noteID.String()); err != nil {
			s.logError(opDeleteNote, "tag_delete_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("note_id", noteID.String()))
			return newServiceError(opDeleteNote, "tag_delete_failed", err)
		}
		if err := tx.Scopes(ownedBy(userID)).Where("id = ?", noteID.String()).Delete(&Note{}).Error; err != nil {
			s.logError(opDeleteNote, "delete_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("note_id", noteID.String()))
			return newServiceError(opDeleteNote, "delete_failed", err)
		}
		return nil
	})
}

func (s *Service) takeOwned(db *gorm.DB, operation string, userID UserID, noteID NoteID, lock bool) (Note, error) {
	query := db.Scopes(ownedBy(userID)).Where("id = ?", noteID.String())
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var note Note
	err := query.Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		s.logError(operation, "note_select_failed", err,
			zap.String("user_id", userID.String()),
			zap.String("note_id", noteID.String()))
		return Note{}, newServiceError(operation, "note_select_failed", err)
	}
	return note, nil
}

func (s *Service) checkTagOwnership(tx *gorm.DB, operation string, userID UserID, tagIDs []string) error {
	missing, err := tags.MissingForOwner(tx, userID.String(), tagIDs)
	if err != nil {
		s.logError(operation, "tag_lookup_failed", err, zap.String("user_id", userID.String()))
		return newServiceError(operation, "tag_lookup_failed", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTagIDs, strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) attachOne(db *gorm.DB, operation string, note *Note) error {
	single := []Note{*note}
	if err := attachTags(db, single); err != nil {
		s.logError(operation, "tag_query_failed", err,
			zap.String("user_id", note.UserID),
			zap.String("note_id", note.ID))
		return newServiceError(operation, "tag_query_failed", err)
	}
	*note = single[0]
	return nil
}

func attachTags(db *gorm.DB, found []Note) error {
	noteIDs := make([]string, 0, len(found))
	for _, note := range found {
		noteIDs = append(noteIDs, note.ID)
	}
	byNote, err := tags.LoadForNotes(db, noteIDs)
	if err != nil {
		return err
	}
	for index := range found {
		attached := byNote[found[index].ID]
		if attached == nil {
			attached = []tags.Tag{}
		}
		found[index].Tags = attached
	}
	return nil
}

func ownedBy(userID UserID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID.String())
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
