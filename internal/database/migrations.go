package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/tags"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillDefaultTagColors = "2026-10-01_backfill_default_tag_colors"
	migrationDropOrphanNoteTags       = "2026-10-01_drop_orphan_note_tags"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

var migrations = []migrationDefinition{
	{name: migrationBackfillDefaultTagColors, apply: backfillDefaultTagColors},
	{name: migrationDropOrphanNoteTags, apply: dropOrphanNoteTags},
}

// applyMigrations runs each pending migration in its own transaction and
// records it in db_migrations.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{
				Name:             migration.name,
				AppliedAtSeconds: time.Now().UTC().Unix(),
			}).Error
		})
		if err != nil {
			logger.Error("database migration failed", zap.String("migration", migration.name), zap.Error(err))
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

func backfillDefaultTagColors(db *gorm.DB) error {
	return db.Model(&tags.Tag{}).
		Where("color IS NULL OR TRIM(color) = ''").
		Update("color", tags.DefaultColor).Error
}

func dropOrphanNoteTags(db *gorm.DB) error {
	return db.Where("note_id NOT IN (SELECT id FROM notes) OR tag_id NOT IN (SELECT id FROM tags)").
		Delete(&tags.NoteTag{}).Error
}
