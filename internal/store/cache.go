package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/squadsync/squadsync/internal/model"
)

// Slot names. The events and users slots mirror the browser cache keys of the
// original client so exported data stays interchangeable.
const (
	eventsSlot    = "syncbuddy_events"
	usersSlot     = "syncbuddy_users"
	migrationSlot = "sync_migrated"
)

// Cache is the persisted local cache: named slots holding JSON payloads.
// It is the fallback data path when the realtime channel is unavailable.
type Cache struct {
	db *sql.DB
}

func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

func (c *Cache) loadSlot(name string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRow("SELECT value FROM slots WHERE name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query slot %s: %w", name, err)
	}
	return value, true, nil
}

func (c *Cache) saveSlot(name string, value []byte) error {
	_, err := c.db.Exec(
		`INSERT INTO slots (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		name, value,
	)
	if err != nil {
		return fmt.Errorf("save slot %s: %w", name, err)
	}
	return nil
}

// LoadEvents returns the cached event list. The second return value is false
// when the slot is empty or its content fails validation; malformed data is
// never an error, only treated as absent.
func (c *Cache) LoadEvents() ([]model.ScheduleEvent, bool, error) {
	raw, ok, err := c.loadSlot(eventsSlot)
	if err != nil || !ok {
		return nil, false, err
	}

	var events []model.ScheduleEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, false, nil
	}
	for _, e := range events {
		if e.ID == "" || e.Date == "" || e.Title == "" {
			return nil, false, nil
		}
	}
	return events, true, nil
}

// SaveEvents overwrites the cached event list.
func (c *Cache) SaveEvents(events []model.ScheduleEvent) error {
	if events == nil {
		events = []model.ScheduleEvent{}
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	return c.saveSlot(eventsSlot, raw)
}

// LoadUsers returns the persisted roster override. The second return value is
// false when the slot is empty or invalid, in which case callers fall back to
// the built-in roster.
func (c *Cache) LoadUsers() ([]model.User, bool, error) {
	raw, ok, err := c.loadSlot(usersSlot)
	if err != nil || !ok {
		return nil, false, err
	}

	var users []model.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, false, nil
	}
	if len(users) == 0 {
		return nil, false, nil
	}
	for _, u := range users {
		if u.ID == "" || u.Name == "" {
			return nil, false, nil
		}
	}
	return users, true, nil
}

// SaveUsers overwrites the persisted roster override.
func (c *Cache) SaveUsers(users []model.User) error {
	raw, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("marshal users: %w", err)
	}
	return c.saveSlot(usersSlot, raw)
}

// MigrationDone reports whether local data has already been migrated into the
// realtime channel. The marker is durable so a restart mid-migration cannot
// re-run the push.
func (c *Cache) MigrationDone() (bool, error) {
	raw, ok, err := c.loadSlot(migrationSlot)
	if err != nil || !ok {
		return false, err
	}
	return string(raw) == "true", nil
}

// MarkMigrationDone persists the migration marker.
func (c *Cache) MarkMigrationDone() error {
	return c.saveSlot(migrationSlot, []byte("true"))
}
