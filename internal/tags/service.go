package tags

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable code of the form tags.<operation>.<reason>.
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
	opServiceNew = "tags.service.new"
	opListTags   = "tags.list"
	opCreateTag  = "tags.create"
	opDeleteTag  = "tags.delete"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// IDProvider issues identifiers for new tags.
type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the owner-scoped tag repository.
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
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
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

// List returns the user's tags ordered by name.
func (s *Service) List(ctx context.Context, userID string) ([]Tag, error) {
	if err := s.precheck(opListTags, userID); err != nil {
		return nil, err
	}

	var found []Tag
	if err := s.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Order("name ASC").
		Order("id ASC").
		Find(&found).Error; err != nil {
		s.logError(opListTags, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListTags, "query_failed", err)
	}
	return found, nil
}

// Create stores a new tag. A blank color falls back to DefaultColor.
func (s *Service) Create(ctx context.Context, userID, name, color string) (Tag, error) {
	if err := s.precheck(opCreateTag, userID); err != nil {
		return Tag{}, err
	}

	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" || len([]rune(trimmedName)) > maxNameLength {
		return Tag{}, ErrInvalidTagName
	}
	trimmedColor := strings.TrimSpace(color)
	if trimmedColor == "" {
		trimmedColor = DefaultColor
	}
	if !hexColorPattern.MatchString(trimmedColor) {
		return Tag{}, ErrInvalidTagColor
	}

	tagID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateTag, "id_generation_failed", err, zap.String("user_id", userID))
		return Tag{}, newServiceError(opCreateTag, "id_generation_failed", err)
	}

	tag := Tag{
		ID:              tagID,
		UserID:          userID,
		Name:            trimmedName,
		Color:           trimmedColor,
		CreatedAtMillis: s.clock().UTC().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&tag).Error; err != nil {
		s.logError(opCreateTag, "insert_failed", err, zap.String("user_id", userID))
		return Tag{}, newServiceError(opCreateTag, "insert_failed", err)
	}
	return tag, nil
}

// Delete removes the tag and detaches it from every note.
func (s *Service) Delete(ctx context.Context, userID, tagID string) error {
	if err := s.precheck(opDeleteTag, userID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Scopes(ownedBy(userID)).Where("id = ?", tagID).Delete(&Tag{})
		if result.Error != nil {
			s.logError(opDeleteTag, "delete_failed", result.Error,
				zap.String("user_id", userID),
				zap.String("tag_id", tagID))
			return newServiceError(opDeleteTag, "delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTagNotFound
		}
		if err := tx.Where("tag_id = ?", tagID).Delete(&NoteTag{}).Error; err != nil {
			s.logError(opDeleteTag, "association_delete_failed", err,
				zap.String("user_id", userID),
				zap.String("tag_id", tagID))
			return newServiceError(opDeleteTag, "association_delete_failed", err)
		}
		return nil
	})
}

func (s *Service) precheck(operation, userID string) error {
	if s.db == nil {
		s.logError(operation, "missing_database", errMissingDatabase)
		return newServiceError(operation, "missing_database", errMissingDatabase)
	}
	if strings.TrimSpace(userID) == "" {
		s.logError(operation, "missing_user_id", errMissingUserID)
		return newServiceError(operation, "missing_user_id", errMissingUserID)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
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
	s.loggerOrDefault().Error("tags service error", attrs...)
}
