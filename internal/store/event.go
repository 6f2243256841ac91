package store

import (
	"database/sql"
	"time"

	"github.com/ayusman/gesturejump/internal/gesture"
)

// Event is one change of the current gesture.
type Event struct {
	ID         int64         `json:"id"`
	SessionID  string        `json:"session_id"`
	Label      gesture.Label `json:"label"`
	Confidence float64       `json:"confidence"`
	ObservedAt time.Time     `json:"observed_at"`
}

// EventRepository provides operations on gesture events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the gesture event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Add inserts an event and sets its ID.
func (r *EventRepository) Add(e *Event) error {
	result, err := r.db.Exec(
		`INSERT INTO gesture_events (session_id, label, confidence, observed_at) VALUES (?, ?, ?, ?)`,
		e.SessionID, string(e.Label), e.Confidence, e.ObservedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListBySession retrieves a session's events in the order they were observed.
func (r *EventRepository) ListBySession(sessionID string) ([]Event, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, label, confidence, observed_at
		 FROM gesture_events
		 WHERE session_id = ?
		 ORDER BY observed_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var label string
		if err := rows.Scan(&e.ID, &e.SessionID, &label, &e.Confidence, &e.ObservedAt); err != nil {
			return nil, err
		}
		e.Label = gesture.Label(label)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// CountBySession returns how many events a session has.
func (r *EventRepository) CountBySession(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM gesture_events WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
