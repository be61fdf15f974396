package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// calendarFileName is the JSON document the file backend keeps the slot
// set in.
const calendarFileName = "calendar.json"

// calendarDocument is the on-disk shape of the slot set.
type calendarDocument struct {
	Months []Month `json:"months"`
}

// fileCalendarRepository implements CalendarRepository on a JSON file.
type fileCalendarRepository struct {
	mu   sync.Mutex
	path string
}

// NewFileCalendarRepository creates a calendar repository persisting to
// dataDir/calendar.json. The directory is created if missing.
func NewFileCalendarRepository(dataDir string) (CalendarRepository, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &fileCalendarRepository{path: filepath.Join(dataDir, calendarFileName)}, nil
}

// Load reads the calendar document; a missing file means no slot set exists.
func (r *fileCalendarRepository) Load(_ context.Context) ([]Month, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading calendar file: %w", err)
	}

	doc := calendarDocument{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("parsing calendar file: %w", err)
	}
	if len(doc.Months) == 0 {
		return nil, false, nil
	}
	return doc.Months, true, nil
}

// Save writes the document atomically via a temp file and rename.
func (r *fileCalendarRepository) Save(_ context.Context, months []Month) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(calendarDocument{Months: months}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling calendar file: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing calendar file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replacing calendar file: %w", err)
	}
	return nil
}
