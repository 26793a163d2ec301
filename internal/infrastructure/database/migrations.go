package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"signup-service/pkg/logger"

	"gorm.io/gorm"
)

// ErrAutoMigrated is returned by Status for drivers whose schema comes from
// the gorm models rather than versioned SQL files.
var ErrAutoMigrated = errors.New("schema is auto-migrated from models")

// Migration is one versioned SQL file, for example
// 0002_create_promotion_queue.sql.
type Migration struct {
	ID          string
	Description string
	SQL         string
	AppliedAt   *time.Time
}

// MigrationRunner brings a database up to date. PostgreSQL applies the SQL
// files in dir; SQLite auto-migrates the domain models plus any extra ones.
type MigrationRunner struct {
	db     *gorm.DB
	driver string
	dir    string
	extra  []interface{}
}

func NewMigrationRunner(db *gorm.DB, driver, dir string, extra ...interface{}) *MigrationRunner {
	if driver == "" {
		driver = DriverPostgres
	}
	return &MigrationRunner{db: db, driver: driver, dir: dir, extra: extra}
}

func (mr *MigrationRunner) autoMigrated() bool {
	return mr.driver == DriverSQLite
}

// Up applies everything pending.
func (mr *MigrationRunner) Up() error {
	if mr.autoMigrated() {
		logger.WithFields(map[string]interface{}{"driver": mr.driver}).Info("Auto-migrating sign-up schema")
		return AutoMigrate(mr.db, mr.extra...)
	}

	plan, err := mr.Status()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range plan {
		if m.AppliedAt != nil {
			continue
		}
		if err := mr.apply(m); err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"migration":   m.ID,
			"description": m.Description,
		}).Info("Applied migration")
		applied++
	}

	logger.WithFields(map[string]interface{}{
		"dir":     mr.dir,
		"applied": applied,
		"total":   len(plan),
	}).Info("Sign-up schema is up to date")
	return nil
}

// Status lists every migration file in order with its applied time, if any.
func (mr *MigrationRunner) Status() ([]Migration, error) {
	if mr.autoMigrated() {
		return nil, ErrAutoMigrated
	}
	if err := mr.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id VARCHAR(255) PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`).Error; err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var rows []struct {
		ID        string
		AppliedAt time.Time
	}
	if err := mr.db.Raw("SELECT id, applied_at FROM schema_migrations").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedAt := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		appliedAt[row.ID] = row.AppliedAt
	}

	plan, err := LoadMigrations(mr.dir)
	if err != nil {
		return nil, err
	}
	for i := range plan {
		if at, ok := appliedAt[plan[i].ID]; ok {
			plan[i].AppliedAt = &at
		}
	}
	return plan, nil
}

func (mr *MigrationRunner) apply(m Migration) error {
	return mr.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.SQL).Error; err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.ID, err)
		}
		if err := tx.Exec("INSERT INTO schema_migrations (id, description) VALUES (?, ?)", m.ID, m.Description).Error; err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
		}
		return nil
	})
}

// LoadMigrations reads the .sql files directly under dir, ordered by their
// numeric prefix. Two files sharing a prefix is an error.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations dir: %w", err)
	}

	var plan []Migration
	seen := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		id, rest, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		if !ok || rest == "" {
			return nil, fmt.Errorf("invalid migration filename format: %s", name)
		}
		if _, err := strconv.Atoi(id); err != nil {
			return nil, fmt.Errorf("migration %s has a non-numeric version", name)
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %s", prev, name, id)
		}
		seen[id] = name

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}
		plan = append(plan, Migration{
			ID:          id,
			Description: strings.ReplaceAll(rest, "_", " "),
			SQL:         string(content),
		})
	}

	sort.Slice(plan, func(i, j int) bool {
		a, _ := strconv.Atoi(plan[i].ID)
		b, _ := strconv.Atoi(plan[j].ID)
		return a < b
	})
	return plan, nil
}
