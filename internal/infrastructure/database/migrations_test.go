package database

import (
	"os"
	"path/filepath"
	"testing"

	domain "signup-service/internal/domain/signup"
	"signup-service/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoadMigrations_OrdersByVersion(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"10_add_slot_index.sql":  "CREATE INDEX idx ON slots (event_id);",
		"9_create_sign_ups.sql":  "CREATE TABLE sign_ups (id TEXT);",
		"0001_create_events.sql": "CREATE TABLE events (id TEXT);",
		"README.md":              "not a migration",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0005_nested"), 0o755))

	plan, err := LoadMigrations(dir)
	require.NoError(t, err)
	require.Len(t, plan, 3)

	assert.Equal(t, "0001", plan[0].ID)
	assert.Equal(t, "create events", plan[0].Description)
	assert.Equal(t, "9", plan[1].ID)
	assert.Equal(t, "10", plan[2].ID)
	assert.Equal(t, "add slot index", plan[2].Description)
	assert.Contains(t, plan[1].SQL, "sign_ups")
	for _, m := range plan {
		assert.Nil(t, m.AppliedAt)
	}
}

func TestLoadMigrations_RejectsBadFiles(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{name: "no description", files: map[string]string{"0001.sql": ""}},
		{name: "non-numeric version", files: map[string]string{"init_schema.sql": ""}},
		{name: "duplicate version", files: map[string]string{"0001_events.sql": "", "0001_slots.sql": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMigrations(writeMigrations(t, tt.files))
			assert.Error(t, err)
		})
	}

	_, err := LoadMigrations(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoadMigrations_ShippedSchema(t *testing.T) {
	plan, err := LoadMigrations(filepath.Join("..", "..", "..", "migrations"))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "0001", plan[0].ID)
	assert.Equal(t, "create signup schema", plan[0].Description)
	assert.Equal(t, "0002", plan[1].ID)
	assert.Contains(t, plan[0].SQL, "idx_sign_ups_active_user_event")
}

func TestMigrate_SQLiteUsesModels(t *testing.T) {
	cfg := Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "migrate.db")}
	db, err := NewConnection(cfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	// The SQL directory is never read for SQLite.
	require.NoError(t, Migrate(db, cfg, filepath.Join(t.TempDir(), "missing")))
	for _, model := range []interface{}{&user.User{}, &domain.Event{}, &domain.Slot{}, &domain.SignUp{}, &domain.Order{}} {
		assert.True(t, db.Migrator().HasTable(model), "%T", model)
	}

	_, err = NewMigrationRunner(db, cfg.Driver, "migrations").Status()
	assert.ErrorIs(t, err, ErrAutoMigrated)
}
