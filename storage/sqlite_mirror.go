package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SQLiteMirror is a small key-value store used as the client-local mirror of
// the ephemeral backend. It plays the part browser storage plays for a web
// client: one string value per key, overwritten on every save.
type SQLiteMirror struct {
	db *gorm.DB
}

var _ DocumentStore = (*SQLiteMirror)(nil)

type mirrorEntry struct {
	Key     string `gorm:"column:key;type:text;primaryKey"`
	Value   string `gorm:"column:value;type:text;not null"`
	SavedAt string `gorm:"column:saved_at;type:text;not null"`
}

func (mirrorEntry) TableName() string {
	return "mirror_entries"
}

// NewSQLiteMirror opens (or creates) the mirror database at path.
func NewSQLiteMirror(path string) (*SQLiteMirror, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mirror: create dir %q: %w", dir, err)
		}
	}

	db, err := gorm.Open(gormsqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&mirrorEntry{}); err != nil {
		return nil, fmt.Errorf("mirror: migrate: %w", err)
	}
	return &SQLiteMirror{db: db}, nil
}

func (s *SQLiteMirror) Load(ctx context.Context, name string) ([]byte, error) {
	var row mirrorEntry
	if err := s.db.WithContext(ctx).Where("key = ?", name).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("mirror: load %s: %w", name, err)
	}
	return []byte(row.Value), nil
}

func (s *SQLiteMirror) Save(ctx context.Context, name string, body []byte) error {
	row := mirrorEntry{
		Key:     name,
		Value:   string(body),
		SavedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "saved_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("mirror: save %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteMirror) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("mirror: get sql db: %w", err)
	}
	return sqlDB.Close()
}
