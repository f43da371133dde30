// Package journal persists scan lifecycle transitions observed by the
// console.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultListLimit = 100

// Recorder stores one transition.
type Recorder interface {
	Record(ctx context.Context, t *models.Transition) error
}

func Connect(cfg *config.JournalConfig, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to journal database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %w", err)
	}

	// Connection pool settings
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
	}

	log.Info("connected to journal database", "driver", cfg.Driver)

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Transition{})
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Record(ctx context.Context, t *models.Transition) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("recording transition: %w", err)
	}
	return nil
}

// List returns the transitions of one scan, oldest first.
func (s *Store) List(ctx context.Context, scanID string, limit int) ([]models.Transition, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var transitions []models.Transition
	err := s.db.WithContext(ctx).
		Where("scan_id = ?", scanID).
		Order("occurred_at ASC").
		Limit(limit).
		Find(&transitions).Error
	if err != nil {
		return nil, fmt.Errorf("listing transitions: %w", err)
	}
	return transitions, nil
}

// Ping checks the journal database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
