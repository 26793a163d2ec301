package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "signup-service/internal/domain/signup"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const eventStatsQuery = `
SELECT e.id AS event_id,
       e.capacity,
       e.remaining_capacity,
       COALESCE(SUM(CASE WHEN s.participation_status = 'CONFIRMED' THEN 1 ELSE 0 END), 0) AS confirmed,
       COALESCE(SUM(CASE WHEN s.participation_status = 'ON_WAITLIST' THEN 1 ELSE 0 END), 0) AS on_waitlist,
       COALESCE(SUM(CASE WHEN s.participation_status = 'RETRACTED' THEN 1 ELSE 0 END), 0) AS retracted,
       COALESCE(SUM(CASE WHEN s.participation_status = 'REMOVED' THEN 1 ELSE 0 END), 0) AS removed
FROM events e
LEFT JOIN sign_ups s ON s.event_id = e.id
WHERE e.id = ?
GROUP BY e.id, e.capacity, e.remaining_capacity`

const slotStatsQuery = `
SELECT sl.id AS slot_id,
       sl.name,
       sl.capacity,
       sl.remaining_capacity,
       COUNT(s.id) AS confirmed
FROM slots sl
LEFT JOIN sign_ups s ON s.slot_id = sl.id AND s.participation_status = 'CONFIRMED'
WHERE sl.event_id = ?
GROUP BY sl.id, sl.name, sl.capacity, sl.remaining_capacity
ORDER BY sl.id`

// StatsRepository reads aggregate sign-up figures with plain SQL
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository wraps the pool gorm already opened. driverName selects
// the placeholder style: "pgx" for PostgreSQL, "sqlite3" for SQLite.
func NewStatsRepository(db *sql.DB, driverName string) domain.StatsRepository {
	return &StatsRepository{db: sqlx.NewDb(db, driverName)}
}

// GetEventStats returns nil when the event does not exist
func (r *StatsRepository) GetEventStats(ctx context.Context, eventID uuid.UUID) (*domain.EventStats, error) {
	var stats domain.EventStats
	err := r.db.GetContext(ctx, &stats, r.db.Rebind(eventStatsQuery), eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load event stats: %w", err)
	}

	slots := []domain.SlotStats{}
	if err := r.db.SelectContext(ctx, &slots, r.db.Rebind(slotStatsQuery), eventID); err != nil {
		return nil, fmt.Errorf("failed to load slot stats: %w", err)
	}
	stats.Slots = slots
	return &stats, nil
}

// SQLDriverName maps a configured database driver to the sqlx bind driver.
func SQLDriverName(driver string) string {
	if driver == "sqlite" {
		return "sqlite3"
	}
	return "pgx"
}
