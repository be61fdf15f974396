package calendar

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CalendarRepository persists the slot set as one document: Save always
// writes the full month list back (full-document update). Two
// interchangeable implementations exist (MariaDB here, JSON file in
// file_repository.go); the engine never knows which is active.
type CalendarRepository interface {
	// Load returns the stored slot set. The second return is false when no
	// slot set has been generated yet.
	Load(ctx context.Context) ([]Month, bool, error)

	// Save writes the full slot set, replacing any previous document.
	Save(ctx context.Context, months []Month) error
}

// calendarRepository implements CalendarRepository on a single MariaDB row
// holding the month list as a JSON column.
type calendarRepository struct {
	db *sql.DB
}

// NewCalendarRepository creates a calendar repository backed by the given
// DB pool.
func NewCalendarRepository(db *sql.DB) CalendarRepository {
	return &calendarRepository{db: db}
}

// Load reads the calendar document.
func (r *calendarRepository) Load(ctx context.Context) ([]Month, bool, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT months FROM calendar WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying calendar: %w", err)
	}

	var months []Month
	if err := json.Unmarshal(data, &months); err != nil {
		return nil, false, fmt.Errorf("unmarshaling calendar: %w", err)
	}
	return months, true, nil
}

// Save upserts the single calendar row with the full month list.
func (r *calendarRepository) Save(ctx context.Context, months []Month) error {
	data, err := json.Marshal(months)
	if err != nil {
		return fmt.Errorf("marshaling calendar: %w", err)
	}

	query := `INSERT INTO calendar (id, months, created_at, updated_at)
	          VALUES (1, ?, NOW(), NOW())
	          ON DUPLICATE KEY UPDATE months = VALUES(months), updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, data); err != nil {
		return fmt.Errorf("saving calendar: %w", err)
	}
	return nil
}
